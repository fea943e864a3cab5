// Package session keeps per-browser state on the server, keyed by a signed cookie.
package session

import (
	"sync"

	"github.com/raphaelgruber/pluisje-go/internal/models"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Session is the state of one browser. Safe for concurrent use.
type Session struct {
	ID string

	mu      sync.Mutex
	email   string
	conv    *models.Conversation
	flashes []Flash
}

// Email returns the logged-in identity, or "" for an anonymous session.
func (s *Session) Email() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.email
}

// Authenticated reports whether an identity is attached.
func (s *Session) Authenticated() bool {
	return s.Email() != ""
}

// Conversation returns the session window, creating an empty one on first use.
// Returns nil for anonymous sessions.
func (s *Session) Conversation() *models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.email == "" {
		return nil
	}
	if s.conv == nil {
		s.conv = models.NewConversation(s.email)
	}
	return s.conv
}

// AddFlash queues a message for the next page.
func (s *Session) AddFlash(category, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flashes = append(s.flashes, Flash{Category: category, Message: message})
}

// PopFlashes returns and clears the queued messages.
func (s *Session) PopFlashes() []Flash {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.flashes
	s.flashes = nil
	return out
}
