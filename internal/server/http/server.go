// Package httpserver exposes the vault REST API.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/avk1987/crypto-vault/internal/repository"
	"github.com/avk1987/crypto-vault/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// Config holds HTTP server settings.
type Config struct {
	ListenAddr               string
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
	GracefulShutdownDuration time.Duration
}

// Server wires services into HTTP handlers.
type Server struct {
	cfg     Config
	auth    *service.AuthService
	files   *service.FileService
	audit   *service.AuditChain
	users   repository.UserRepository
	signKey []byte
	log     *zap.Logger

	srv *http.Server
}

// New constructs a Server with injected services.
func New(
	cfg Config,
	auth *service.AuthService,
	files *service.FileService,
	audit *service.AuditChain,
	users repository.UserRepository,
	signKey []byte,
	log *zap.Logger,
) *Server {
	srv := &Server{
		cfg:     cfg,
		auth:    auth,
		files:   files,
		audit:   audit,
		users:   users,
		signKey: signKey,
		log:     log,
	}
	srv.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return srv
}

// Router builds the route tree.
func (srv *Server) Router() http.Handler {
	mux := chi.NewRouter()
	mux.Use(recoverer(srv.log))
	mux.Use(requestLogger(srv.log))

	mux.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", srv.handleRegister)
		r.Post("/register/verify", srv.handleRegisterVerify)
		r.Post("/login", srv.handleLogin)
		r.Post("/login/verify", srv.handleLoginVerify)
		r.Post("/resend-otp", srv.handleResendOTP)

		r.Group(func(r chi.Router) {
			r.Use(srv.authenticate)
			r.Put("/security", srv.handleSecurity)
			r.Put("/panic", srv.handlePanic)
			r.Delete("/account", srv.handleDeleteAccount)
			r.Get("/export", srv.handleExport)
		})
	})

	mux.Route("/api/files", func(r chi.Router) {
		r.Use(srv.authenticate)
		r.Post("/", srv.handleUpload)
		r.Get("/", srv.handleList)
		r.Post("/share", srv.handleShare)
		r.Get("/{id}/download", srv.handleDownload)
		r.Delete("/{id}", srv.handleFileDelete)
	})

	mux.Route("/api/logs", func(r chi.Router) {
		r.Use(srv.authenticate)
		r.Get("/", srv.handleLogs)
		r.Get("/verify", srv.handleLogsVerify)
	})

	mux.Get("/livez", srv.handleLiveness)
	mux.Get("/readyz", srv.handleReadiness)
	return mux
}

func (srv *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (srv *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if _, err := srv.users.Exists(r.Context(), uuid.Nil); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// RunInBackground starts serving without blocking.
func (srv *Server) RunInBackground() {
	go func() {
		srv.log.Info("starting http server", zap.String("addr", srv.cfg.ListenAddr))
		if err := srv.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.log.Error("http server failed", zap.Error(err))
		}
	}()
}

// Shutdown stops the server, draining in-flight requests.
func (srv *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
	defer cancel()
	if err := srv.srv.Shutdown(ctx); err != nil {
		srv.log.Error("graceful shutdown failed", zap.Error(err))
		return
	}
	srv.log.Info("http server stopped")
}
