package session

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/raphaelgruber/pluisje-go/internal/token"
)

// CookieName is the session cookie.
const CookieName = "pluisje_session"

// DefaultCapacity bounds the number of live sessions kept in memory.
const DefaultCapacity = 10000

// Options configures a Manager.
type Options struct {
	Secret   string
	TTL      time.Duration
	Capacity int
	// Secure marks the cookie HTTPS-only.
	Secure bool
}

// Manager stores sessions in an expiring LRU and binds them to browsers via
// a signed cookie. Each access extends the session lifetime by TTL.
type Manager struct {
	cache  *expirable.LRU[string, *Session]
	signer *token.Signer
	ttl    time.Duration
	secure bool
	logger *slog.Logger
}

// NewManager creates a session manager.
func NewManager(opts Options, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	m := &Manager{
		signer: token.NewSigner(opts.Secret, "session"),
		ttl:    opts.TTL,
		secure: opts.Secure,
		logger: log,
	}
	m.cache = expirable.NewLRU[string, *Session](opts.Capacity, m.onEvict, opts.TTL)
	return m
}

func (m *Manager) onEvict(id string, s *Session) {
	m.logger.Debug("session evicted", "session", id[:8], "email", s.Email())
}

// Get returns the session referenced by the request cookie, or nil.
func (m *Manager) Get(r *http.Request) *Session {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return nil
	}
	id, err := m.signer.Verify(c.Value, 0)
	if err != nil {
		return nil
	}
	s, ok := m.cache.Get(id)
	if !ok {
		return nil
	}
	m.cache.Add(id, s)
	return s
}

// GetOrCreate returns the request's session, starting an anonymous one if needed.
func (m *Manager) GetOrCreate(w http.ResponseWriter, r *http.Request) *Session {
	if s := m.Get(r); s != nil {
		return s
	}
	return m.start(w)
}

// Login starts a fresh session for email and drops the previous one.
// Pending flashes carry over.
func (m *Manager) Login(w http.ResponseWriter, r *http.Request, email string) *Session {
	var flashes []Flash
	if old := m.Get(r); old != nil {
		flashes = old.PopFlashes()
		m.cache.Remove(old.ID)
	}
	s := m.start(w)
	s.mu.Lock()
	s.email = email
	s.flashes = flashes
	s.mu.Unlock()
	return s
}

// Destroy removes the request's session and expires the cookie.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) {
	if s := m.Get(r); s != nil {
		m.cache.Remove(s.ID)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	return m.cache.Len()
}

func (m *Manager) start(w http.ResponseWriter) *Session {
	s := &Session{ID: uuid.NewString()}
	m.cache.Add(s.ID, s)
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    m.signer.Sign(s.ID),
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return s
}
