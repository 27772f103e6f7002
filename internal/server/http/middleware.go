package httpserver

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/avk1987/crypto-vault/internal/token"
	"go.uber.org/zap"
)

// requestLogger logs request metadata after the handler runs. Payloads are
// never logged.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			log.Info("http",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.status),
				zap.Duration("dur", time.Since(start)),
				zap.String("remote", r.RemoteAddr),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// recoverer converts handler panics into a 500 response.
func recoverer(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error("panic",
						zap.Any("reason", rec),
						zap.ByteString("stack", debug.Stack()),
						zap.String("path", r.URL.Path),
					)
					writeJSON(w, http.StatusInternalServerError, errBody{"internal"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// authenticate parses the bearer token and stores the session in context.
// Tokens for deleted accounts are refused even when the signature is valid.
func (srv *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" || raw == r.Header.Get("Authorization") {
			writeJSON(w, http.StatusUnauthorized, errBody{"missing bearer token"})
			return
		}
		sess, err := token.Parse(srv.signKey, raw)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errBody{"invalid token"})
			return
		}
		ok, err := srv.users.Exists(r.Context(), sess.UserID)
		if err != nil {
			writeErr(w, err)
			return
		}
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errBody{"invalid token"})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}
