package httpserver

import (
	"net/http"
	"strconv"
	"time"
)

const defaultLogLimit = 50

func (srv *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errBody{"no session"})
		return
	}
	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeJSON(w, http.StatusBadRequest, errBody{"bad limit"})
			return
		}
		limit = n
	}
	recs, err := srv.audit.ListForUser(r.Context(), sess.UserID, limit)
	if err != nil {
		writeErr(w, err)
		return
	}

	type logEntry struct {
		ID         string    `json:"id"`
		Action     string    `json:"action"`
		ResourceID string    `json:"resourceId,omitempty"`
		Success    bool      `json:"success"`
		Timestamp  time.Time `json:"timestamp"`
	}
	out := make([]logEntry, 0, len(recs))
	for _, rec := range recs {
		e := logEntry{
			ID:        rec.ID.String(),
			Action:    rec.Action,
			Success:   rec.Success,
			Timestamp: rec.Timestamp,
		}
		if rec.ResourceID != nil {
			e.ResourceID = rec.ResourceID.String()
		}
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": out})
}

func (srv *Server) handleLogsVerify(w http.ResponseWriter, r *http.Request) {
	if _, ok := SessionFromCtx(r.Context()); !ok {
		writeJSON(w, http.StatusUnauthorized, errBody{"no session"})
		return
	}
	brk, checked, err := srv.audit.VerifyChain(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if brk != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"intact":  false,
			"checked": checked,
			"break": map[string]any{
				"seq":      brk.Seq,
				"recordId": brk.RecordID.String(),
				"reason":   brk.Reason,
			},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"intact": true, "checked": checked})
}
