package server

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/pluisje-go/internal/api"
	"github.com/raphaelgruber/pluisje-go/internal/session"
)

// maxArgLogLen is the maximum length for logged query strings before truncation.
const maxArgLogLen = 200

// slowRequestThreshold is the duration above which requests are logged at WARN level.
// Completion calls dominate, so this is much higher than for a plain CRUD service.
const slowRequestThreshold = 2 * time.Second

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Hijack lets the stream endpoint take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// LoggingMiddleware returns middleware that logs all requests with timing.
// Failed requests (5xx) are logged at ERROR, slow requests (>2s) at WARN.
// Query strings are truncated to 200 characters. Tokens in paths and query
// strings are redacted. Bodies are never logged.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			duration := time.Since(start)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}

			attrs := []any{
				"method", r.Method,
				"path", redactPath(r.URL.Path),
				"status", rec.status,
				"duration_ms", duration.Milliseconds(),
			}
			if q := r.URL.RawQuery; q != "" {
				attrs = append(attrs, "query", truncate(redactQuery(q), maxArgLogLen))
			}

			switch {
			case rec.status >= http.StatusInternalServerError:
				logger.Error("request failed", attrs...)
			case duration > slowRequestThreshold:
				logger.Warn("slow request", attrs...)
			default:
				logger.Debug("request completed", attrs...)
			}
		})
	}
}

// RecoverMiddleware turns handler panics into 500 responses.
func RecoverMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					logger.Error("handler panic", "path", r.URL.Path, "panic", v, "stack", string(debug.Stack()))
					if wantsJSON(r) {
						writeError(w, http.StatusInternalServerError, "Interne serverfout")
						return
					}
					http.Error(w, "Interne serverfout", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// sessionHandler is a handler that runs for a logged-in session.
type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session)

// requireLogin runs h only for authenticated sessions. Script and socket
// requests get a 401 JSON answer, page requests a flash and a redirect to /login.
func (s *Server) requireLogin(h sessionHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := s.app.Sessions.Get(r)
		if sess == nil || !sess.Authenticated() {
			if wantsJSON(r) {
				writeError(w, http.StatusUnauthorized, "Niet ingelogd")
				return
			}
			s.app.Sessions.GetOrCreate(w, r).AddFlash("warning", "Log eerst in om deze pagina te bezoeken.")
			http.Redirect(w, r, api.PathLogin, http.StatusSeeOther)
			return
		}
		h(w, r, sess)
	})
}

// wantsJSON reports whether the caller is a script rather than a browser page load.
func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	if r.Header.Get(api.HeaderRequestedWith) == api.XMLHttpRequest {
		return true
	}
	return websocket.IsWebSocketUpgrade(r)
}

// resetPathPrefix starts password reset links; the rest of the path is the token.
const resetPathPrefix = "/reset-password/"

// redactPath hides the token of password reset paths.
func redactPath(p string) string {
	if strings.HasPrefix(p, resetPathPrefix) && len(p) > len(resetPathPrefix) {
		return resetPathPrefix + "REDACTED"
	}
	return p
}

// redactQuery hides verification tokens in logged query strings.
func redactQuery(q string) string {
	parts := strings.Split(q, "&")
	for i, p := range parts {
		if strings.HasPrefix(p, "token=") {
			parts[i] = "token=REDACTED"
		}
	}
	return strings.Join(parts, "&")
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
