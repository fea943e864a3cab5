package server

import (
	"fmt"
	"net/http"

	"github.com/raphaelgruber/pluisje-go/internal/api"
	"github.com/raphaelgruber/pluisje-go/internal/mail"
	"github.com/raphaelgruber/pluisje-go/internal/session"
)

func (s *Server) stats(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	st, err := s.app.Store.Stats(r.Context())
	if err != nil {
		s.logger.Error("store stats", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.StatsResponse{
		Metrics:  s.app.Metrics.Snapshot(),
		Store:    st,
		Sessions: s.app.Sessions.Len(),
	})
}

func (s *Server) testDB(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if err := s.app.Store.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "❌ DB-fout: %v", err)
		return
	}
	st, err := s.app.Store.Stats(r.Context())
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "❌ DB-fout: %v", err)
		return
	}
	fmt.Fprintf(w, "✅ DB OK! Testresultaat: 1<br>📨 Aantal berichten: %d<br>👤 Aantal unieke gebruikers: %d",
		st.Turns, st.Owners)
}

// testEmail sends a test mail to the SMTP account itself, or to the
// logged-in user when SMTP is not configured.
func (s *Server) testEmail(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	to := s.app.Config.SMTPUsername
	if to == "" {
		to = sess.Email()
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := s.app.Mailer.Send(r.Context(), mail.TestMessage(to)); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "Fout bij verzenden: %v", err)
		return
	}
	fmt.Fprint(w, "Testmail succesvol verzonden!")
}
