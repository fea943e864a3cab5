package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/raphaelgruber/pluisje-go/internal/api"
	"github.com/raphaelgruber/pluisje-go/internal/models"
	"github.com/raphaelgruber/pluisje-go/internal/service"
	"github.com/raphaelgruber/pluisje-go/internal/session"
)

// pageData is passed to every template.
type pageData struct {
	Title   string
	Flashes []session.Flash

	// index
	User            string
	Debug           bool
	Messages        []messageView
	MaxPromptLength int

	// welcome, reset_password
	Email string
	Token string
}

// messageView is one rendered turn. ImageURL is set for generated image
// turns, which the template renders from the URL instead of the stored markup.
type messageView struct {
	Role     models.Role
	Content  string
	ImageURL string
}

func messageViews(turns []models.Turn) []messageView {
	out := make([]messageView, 0, len(turns))
	for _, t := range turns {
		v := messageView{Role: t.Role, Content: t.Content}
		if t.Role == models.RoleAssistant {
			if u, ok := service.ImageTurnURL(t.Content); ok {
				v.ImageURL = u
			}
		}
		out = append(out, v)
	}
	return out
}

// page builds template data and consumes the pending flashes of the request's session.
func (s *Server) page(r *http.Request, title string) pageData {
	data := pageData{Title: title}
	if sess := s.app.Sessions.Get(r); sess != nil {
		data.Flashes = sess.PopFlashes()
	}
	return data
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data pageData) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.Error("render template", "template", name, "error", err)
		http.Error(w, "Interne serverfout", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// flashRedirect queues a flash on the (possibly new) session and redirects.
func (s *Server) flashRedirect(w http.ResponseWriter, r *http.Request, category, message, to string) {
	s.app.Sessions.GetOrCreate(w, r).AddFlash(category, message)
	http.Redirect(w, r, to, http.StatusSeeOther)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, api.ErrorResponse{Error: message})
}
