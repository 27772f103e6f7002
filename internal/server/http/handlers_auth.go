package httpserver

import (
	"net/http"
	"time"

	"github.com/avk1987/crypto-vault/internal/service"
)

type registerRequest struct {
	Username      string `json:"username"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	PanicPassword string `json:"panicPassword,omitempty"`
}

func (srv *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody{"bad request body"})
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, errBody{"username, email and password are required"})
		return
	}
	if err := srv.auth.StartRegistration(r.Context(), req.Username, req.Email, req.Password, req.PanicPassword); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"requiresOTP": true})
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (srv *Server) handleRegisterVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody{"bad request body"})
		return
	}
	uid, err := srv.auth.CompleteRegistration(r.Context(), req.Email, req.Code)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"userId": uid.String()})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
}

// writeLoginResult never exposes the duress flag on the wire: a duress
// session must be indistinguishable from a normal one.
func writeLoginResult(w http.ResponseWriter, res *service.LoginResult) {
	if res.RequiresOTP {
		writeJSON(w, http.StatusAccepted, map[string]any{"requiresOTP": true})
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Token:     res.Token.Value,
		ExpiresAt: res.Token.ExpiresAt,
		UserID:    res.User.ID.String(),
		Email:     res.User.Email,
		Username:  res.User.Username,
	})
}

func (srv *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody{"bad request body"})
		return
	}
	res, err := srv.auth.Login(r.Context(), req.Email, req.Password, r.RemoteAddr, r.UserAgent())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeLoginResult(w, res)
}

func (srv *Server) handleLoginVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody{"bad request body"})
		return
	}
	res, err := srv.auth.VerifyLogin(r.Context(), req.Email, req.Code, r.RemoteAddr, r.UserAgent())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeLoginResult(w, res)
}

type resendRequest struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
}

func (srv *Server) handleResendOTP(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody{"bad request body"})
		return
	}
	if err := srv.auth.ResendOTP(r.Context(), req.Email, req.Purpose); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"requiresOTP": true})
}

type securityRequest struct {
	TwoFactorEnabled   *bool `json:"twoFactorEnabled,omitempty"`
	LoginAlertsEnabled *bool `json:"loginAlertsEnabled,omitempty"`
}

func (srv *Server) handleSecurity(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errBody{"no session"})
		return
	}
	var req securityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody{"bad request body"})
		return
	}
	u, err := srv.auth.UpdateSecurity(r.Context(), sess.UserID, service.SecurityUpdate{
		TwoFactorEnabled:   req.TwoFactorEnabled,
		LoginAlertsEnabled: req.LoginAlertsEnabled,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{
		"twoFactorEnabled":   u.TwoFactorEnabled,
		"loginAlertsEnabled": u.LoginAlertsEnabled,
	})
}

type panicRequest struct {
	PanicPassword string `json:"panicPassword"`
}

func (srv *Server) handlePanic(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errBody{"no session"})
		return
	}
	var req panicRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody{"bad request body"})
		return
	}
	if err := srv.auth.SetPanicPassword(r.Context(), sess.UserID, req.PanicPassword); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"panicEnabled": req.PanicPassword != ""})
}

type deleteAccountRequest struct {
	Password string `json:"password"`
}

func (srv *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errBody{"no session"})
		return
	}
	var req deleteAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody{"bad request body"})
		return
	}
	if err := srv.auth.DeleteAccount(r.Context(), sess.UserID, req.Password); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (srv *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errBody{"no session"})
		return
	}
	exp, err := srv.auth.ExportData(r.Context(), sess.UserID)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="vault-export.json"`)
	writeJSON(w, http.StatusOK, exp)
}
