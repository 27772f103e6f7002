package httpserver

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/avk1987/crypto-vault/internal/model"
	"github.com/avk1987/crypto-vault/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"
)

// Binary fields (ciphertext envelopes, wrapped keys, ivs) travel base64 in
// JSON bodies.
type uploadRequest struct {
	EncName     []byte `json:"encName"`
	EncMetadata []byte `json:"encMetadata,omitempty"`
	IV          []byte `json:"iv"`
	Checksum    string `json:"checksum"`
	WrappedKey  []byte `json:"wrappedKey"`
}

func (srv *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errBody{"no session"})
		return
	}
	var req uploadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody{"bad request body"})
		return
	}
	if len(req.EncName) == 0 || len(req.IV) == 0 || len(req.WrappedKey) == 0 {
		writeJSON(w, http.StatusBadRequest, errBody{"encName, iv and wrappedKey are required"})
		return
	}
	res, err := srv.files.Upload(r.Context(), sess, service.UploadParams{
		EncName:     req.EncName,
		EncMetadata: req.EncMetadata,
		IV:          req.IV,
		Checksum:    req.Checksum,
		WrappedKey:  req.WrappedKey,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"fileId": res.FileID.String(),
		"putUrl": res.PutURL,
	})
}

type fileSummaryResponse struct {
	ID          string    `json:"id"`
	EncName     string    `json:"encName"`
	EncMetadata string    `json:"encMetadata,omitempty"`
	IV          string    `json:"iv"`
	Tier        string    `json:"tier"`
	WrappedKey  string    `json:"wrappedKey"`
	UpdatedAt   time.Time `json:"updatedAt"`
	SharedWith  int       `json:"sharedWith,omitempty"`
}

func toSummaryResponse(s model.FileSummary) fileSummaryResponse {
	b64 := base64.StdEncoding.EncodeToString
	return fileSummaryResponse{
		ID:          s.ID.String(),
		EncName:     b64(s.EncName),
		EncMetadata: b64(s.EncMetadata),
		IV:          b64(s.IV),
		Tier:        s.Tier,
		WrappedKey:  b64(s.WrappedKey),
		UpdatedAt:   s.UpdatedAt,
		SharedWith:  s.SharedWith,
	}
}

func (srv *Server) handleList(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errBody{"no session"})
		return
	}
	items, err := srv.files.List(r.Context(), sess)
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]fileSummaryResponse, 0, len(items))
	for _, s := range items {
		out = append(out, toSummaryResponse(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": out})
}

type shareRequest struct {
	FileID     string `json:"fileId"`
	Email      string `json:"email"`
	Tier       string `json:"tier,omitempty"`
	WrappedKey []byte `json:"wrappedKey"`
}

func (srv *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errBody{"no session"})
		return
	}
	var req shareRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody{"bad request body"})
		return
	}
	fileID, err := uuid.FromString(req.FileID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errBody{"bad file id"})
		return
	}
	if err := srv.files.Share(r.Context(), sess, fileID, req.Email, req.Tier, req.WrappedKey); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"shared": true})
}

func pathFileID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	return id, err == nil
}

func (srv *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errBody{"no session"})
		return
	}
	fileID, ok := pathFileID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errBody{"bad file id"})
		return
	}
	info, err := srv.files.Download(r.Context(), sess, fileID)
	if err != nil {
		writeErr(w, err)
		return
	}
	b64 := base64.StdEncoding.EncodeToString
	writeJSON(w, http.StatusOK, map[string]string{
		"fileId":     info.FileID.String(),
		"url":        info.URL,
		"wrappedKey": b64(info.WrappedKey),
		"iv":         b64(info.IV),
		"checksum":   info.Checksum,
		"encName":    b64(info.EncName),
	})
}

func (srv *Server) handleFileDelete(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errBody{"no session"})
		return
	}
	fileID, ok := pathFileID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errBody{"bad file id"})
		return
	}
	if err := srv.files.Delete(r.Context(), sess, fileID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
