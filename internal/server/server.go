// Package server provides the Pluisje HTTP server: pages, JSON endpoints and
// the streaming socket, with lifecycle management.
package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/pluisje-go/internal/api"
	"github.com/raphaelgruber/pluisje-go/internal/app"
	"github.com/raphaelgruber/pluisje-go/web"
)

// HTTP server timeouts. Writes are long for completion calls.
const (
	readTimeout     = 15 * time.Second
	writeTimeout    = 120 * time.Second
	idleTimeout     = 120 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Server serves the web UI and JSON API for one App.
type Server struct {
	app       *app.App
	templates *template.Template
	upgrader  websocket.Upgrader
	handler   http.Handler
	logger    *slog.Logger
}

// New creates a server and registers all routes.
func New(a *app.App) (*Server, error) {
	tmpl, err := template.ParseFS(web.Templates, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	log := a.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		app:       a,
		templates: tmpl,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: log,
	}
	s.handler = LoggingMiddleware(log)(RecoverMiddleware(log)(s.routes()))
	return s, nil
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Account lifecycle, no session required.
	mux.HandleFunc("GET /login", s.loginPage)
	mux.HandleFunc("POST /login", s.login)
	mux.HandleFunc("GET /register", s.registerPage)
	mux.HandleFunc("POST /register", s.register)
	mux.HandleFunc("GET /verify", s.verify)
	mux.HandleFunc("GET /forgot-password", s.forgotPasswordPage)
	mux.HandleFunc("POST /forgot-password", s.forgotPassword)
	mux.HandleFunc("GET /reset-password/{token}", s.resetPasswordPage)
	mux.HandleFunc("POST /reset-password/{token}", s.resetPassword)

	mux.HandleFunc("GET "+api.PathHealth, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	// Chat.
	mux.Handle("GET /{$}", s.requireLogin(s.index))
	mux.Handle("POST "+api.PathGenerate, s.requireLogin(s.generate))
	mux.Handle("POST "+api.PathGenerateImage, s.requireLogin(s.generateImage))
	mux.Handle("GET "+api.PathStream, s.requireLogin(s.stream))
	mux.Handle("GET "+api.PathReset, s.requireLogin(s.reset))
	mux.Handle("GET "+api.PathLogout, s.requireLogin(s.logout))

	// Diagnostics.
	mux.Handle("GET "+api.PathStats, s.requireLogin(s.stats))
	mux.Handle("GET /test-db", s.requireLogin(s.testDB))
	mux.Handle("GET /test-email", s.requireLogin(s.testEmail))

	return mux
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on addr and serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
		ErrorLog:     slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web UI available", "addr", ln.Addr().String(), "url", s.app.Config.PublicURL)
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}
