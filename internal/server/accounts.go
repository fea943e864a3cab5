package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/raphaelgruber/pluisje-go/internal/mail"
	"github.com/raphaelgruber/pluisje-go/internal/service"
)

// Flash texts shown on the account pages.
const (
	flashAccountNotFound  = "Geen account gevonden met dit e-mailadres."
	flashUnverified       = "Bevestig eerst je e-mailadres via de mail."
	flashWrongPassword    = "Wachtwoord klopt niet."
	flashMissingFields    = "Vul zowel e-mailadres als wachtwoord in."
	flashDuplicate        = "Dit e-mailadres is al geregistreerd."
	flashVerificationSent = "Verificatielink verzonden naar je e-mail."
	flashAlreadyVerified  = "Je account is al geverifieerd. Je kunt inloggen."
	flashResetSent        = "Als dit e-mailadres bij ons bekend is, is er een herstellink verzonden."
	flashResetInvalid     = "Ongeldige of verlopen herstellink."
	flashPasswordMissing  = "Vul een nieuw wachtwoord in."
	flashPasswordChanged  = "Je wachtwoord is gewijzigd. Je kunt nu inloggen."
	flashEmailMissing     = "Vul je e-mailadres in."
	flashInternal         = "Er ging iets mis. Probeer het later opnieuw."

	invalidVerifyLink = "Ongeldige of verlopen verificatielink."
)

func (s *Server) loginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "login.html", s.page(r, "Inloggen"))
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	acc, err := s.app.Auth.Login(r.Context(), r.FormValue("email"), r.FormValue("password"))
	switch {
	case errors.Is(err, service.ErrAccountNotFound):
		s.flashRedirect(w, r, "danger", flashAccountNotFound, "/login")
		return
	case errors.Is(err, service.ErrAccountUnverified):
		s.flashRedirect(w, r, "warning", flashUnverified, "/login")
		return
	case errors.Is(err, service.ErrWrongPassword):
		s.flashRedirect(w, r, "danger", flashWrongPassword, "/login")
		return
	case err != nil:
		s.logger.Error("login failed", "error", err)
		s.flashRedirect(w, r, "danger", flashInternal, "/login")
		return
	}

	s.app.Sessions.Login(w, r, acc.Email)
	s.logger.Info("user logged in", "email", acc.Email)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) registerPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "register.html", s.page(r, "Registreren"))
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	res, err := s.app.Auth.Register(r.Context(), r.FormValue("email"), r.FormValue("password"))
	switch {
	case errors.Is(err, service.ErrMissingCredentials):
		s.flashRedirect(w, r, "danger", flashMissingFields, "/register")
		return
	case errors.Is(err, service.ErrDuplicateAccount):
		s.flashRedirect(w, r, "warning", flashDuplicate, "/register")
		return
	case err != nil:
		s.logger.Error("register failed", "error", err)
		s.flashRedirect(w, r, "danger", flashInternal, "/register")
		return
	}

	// The account stands even when the mail could not be sent.
	if res.MailErr != nil {
		s.flashRedirect(w, r, "danger", fmt.Sprintf("Fout bij verzenden verificatiemail: %v", res.MailErr), "/login")
		return
	}
	s.flashRedirect(w, r, "success", flashVerificationSent, "/login")
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	err := s.app.Auth.Verify(r.Context(), email, r.URL.Query().Get("token"))
	switch {
	case errors.Is(err, service.ErrInvalidToken):
		http.Error(w, invalidVerifyLink, http.StatusBadRequest)
		return
	case errors.Is(err, service.ErrAlreadyVerified):
		s.flashRedirect(w, r, "message", flashAlreadyVerified, "/login")
		return
	case err != nil:
		s.logger.Error("verify failed", "error", err)
		http.Error(w, flashInternal, http.StatusInternalServerError)
		return
	}

	data := s.page(r, "Welkom")
	data.Email = email
	s.render(w, http.StatusOK, "welcome.html", data)
}

func (s *Server) forgotPasswordPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "forgot_password.html", s.page(r, "Wachtwoord vergeten"))
}

func (s *Server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	if email == "" {
		s.flashRedirect(w, r, "danger", flashEmailMissing, "/forgot-password")
		return
	}

	err := s.app.Auth.ForgotPassword(r.Context(), email)
	switch {
	case errors.Is(err, mail.ErrDelivery):
		s.flashRedirect(w, r, "danger", fmt.Sprintf("Fout bij verzenden herstelmail: %v", err), "/forgot-password")
		return
	case err != nil:
		s.logger.Error("password reset request failed", "error", err)
		s.flashRedirect(w, r, "danger", flashInternal, "/forgot-password")
		return
	}
	s.flashRedirect(w, r, "success", flashResetSent, "/login")
}

func (s *Server) resetPasswordPage(w http.ResponseWriter, r *http.Request) {
	tok := r.PathValue("token")
	email, err := s.app.Auth.CheckResetToken(tok)
	if err != nil {
		s.flashRedirect(w, r, "danger", flashResetInvalid, "/forgot-password")
		return
	}

	data := s.page(r, "Nieuw wachtwoord")
	data.Email = email
	data.Token = tok
	s.render(w, http.StatusOK, "reset_password.html", data)
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	tok := r.PathValue("token")
	_, err := s.app.Auth.ResetPassword(r.Context(), tok, r.FormValue("password"))
	switch {
	case errors.Is(err, service.ErrInvalidToken):
		s.flashRedirect(w, r, "danger", flashResetInvalid, "/forgot-password")
		return
	case errors.Is(err, service.ErrMissingCredentials):
		s.flashRedirect(w, r, "danger", flashPasswordMissing, "/reset-password/"+tok)
		return
	case err != nil:
		s.logger.Error("password reset failed", "error", err)
		s.flashRedirect(w, r, "danger", flashInternal, "/reset-password/"+tok)
		return
	}
	s.flashRedirect(w, r, "success", flashPasswordChanged, "/login")
}
