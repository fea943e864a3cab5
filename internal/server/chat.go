package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/pluisje-go/internal/api"
	"github.com/raphaelgruber/pluisje-go/internal/models"
	"github.com/raphaelgruber/pluisje-go/internal/service"
	"github.com/raphaelgruber/pluisje-go/internal/session"
)

// maxPromptBody bounds the request body of the generate endpoints.
const maxPromptBody = 64 << 10

// streamIdleTimeout closes stream sockets without a prompt for this long.
const streamIdleTimeout = 10 * time.Minute

const (
	errEmptyText  = "Geen invoer ontvangen"
	errEmptyImage = "Geen prompt ontvangen"
	errBadBody    = "Ongeldige aanvraag"
)

func (s *Server) index(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	turns, err := s.app.Chat.History(r.Context(), sess.Email())
	if err != nil {
		s.logger.Error("load history", "email", sess.Email(), "error", err)
		http.Error(w, flashInternal, http.StatusInternalServerError)
		return
	}

	data := s.page(r, "Chat")
	data.User = models.DisplayName(sess.Email())
	data.Debug = s.app.Config.Debug
	data.Messages = messageViews(turns)
	data.MaxPromptLength = s.app.Chat.Options().MaxPromptLength
	s.render(w, http.StatusOK, "index.html", data)
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	prompt, err := readPrompt(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, errBadBody)
		return
	}

	reply, err := s.app.Chat.Generate(r.Context(), sess.Conversation(), prompt)
	if err != nil {
		status, msg := s.chatError(err, errEmptyText)
		writeError(w, status, msg)
		return
	}

	if s.app.Chat.Options().DualResponse {
		writeJSON(w, http.StatusOK, api.GenerateResponse{
			LongResponse:  reply.Response,
			ShortResponse: reply.ShortResponse,
		})
		return
	}
	writeJSON(w, http.StatusOK, api.GenerateResponse{Response: reply.Response})
}

func (s *Server) generateImage(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	prompt, err := readPrompt(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, errBadBody)
		return
	}

	reply, err := s.app.Chat.GenerateImage(r.Context(), sess.Conversation(), prompt)
	if err != nil {
		status, msg := s.chatError(err, errEmptyImage)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, api.ImageResponse{ImageURL: reply.ImageURL})
}

// stream serves prompts over a WebSocket. Each text message is a
// GenerateRequest and is answered with chunk events and one done or error event.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// The HTTP server's deadlines still apply to the hijacked connection.
	conn.SetWriteDeadline(time.Time{})

	conv := sess.Conversation()
	for {
		conn.SetReadDeadline(time.Now().Add(streamIdleTimeout))
		var req api.GenerateRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("stream closed", "email", sess.Email(), "error", err)
			}
			return
		}

		reply, err := s.app.Chat.GenerateStream(r.Context(), conv, req.Prompt, func(chunk string) error {
			return conn.WriteJSON(api.StreamEvent{Type: api.EventChunk, Content: chunk})
		})
		if err != nil {
			_, msg := s.chatError(err, errEmptyText)
			if werr := conn.WriteJSON(api.StreamEvent{Type: api.EventError, Error: msg}); werr != nil {
				return
			}
			continue
		}

		done := api.StreamEvent{Type: api.EventDone, Response: reply.Response, ShortResponse: reply.ShortResponse}
		if err := conn.WriteJSON(done); err != nil {
			return
		}
	}
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	s.app.Chat.Reset(sess.Conversation())
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	s.logger.Info("user logged out", "email", sess.Email())
	s.app.Sessions.Destroy(w, r)
	http.Redirect(w, r, api.PathLogin, http.StatusSeeOther)
}

// chatError maps a chat service error to a status and a user-facing message.
// Upstream failures are surfaced with the provider's own message.
func (s *Server) chatError(err error, emptyMsg string) (int, string) {
	switch {
	case errors.Is(err, service.ErrEmptyInput):
		return http.StatusBadRequest, emptyMsg
	case errors.Is(err, service.ErrInputTooLong):
		return http.StatusBadRequest, fmt.Sprintf("De invoer is te lang (max. %d tekens).", s.app.Chat.Options().MaxPromptLength)
	case errors.Is(err, service.ErrUpstream):
		s.logger.Error("upstream call failed", "error", err)
		return http.StatusInternalServerError, strings.TrimPrefix(err.Error(), service.ErrUpstream.Error()+": ")
	default:
		s.logger.Error("chat exchange failed", "error", err)
		return http.StatusInternalServerError, err.Error()
	}
}

// readPrompt reads the prompt from a JSON body or, for plain form posts, the prompt field.
func readPrompt(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPromptBody)
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return r.FormValue("prompt"), nil
	}
	var req api.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("decode prompt: %w", err)
	}
	return req.Prompt, nil
}
