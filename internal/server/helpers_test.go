package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/pluisje-go/internal/app"
	"github.com/raphaelgruber/pluisje-go/internal/config"
	"github.com/raphaelgruber/pluisje-go/internal/mail"
	"github.com/raphaelgruber/pluisje-go/internal/metrics"
	"github.com/raphaelgruber/pluisje-go/internal/models"
	"github.com/raphaelgruber/pluisje-go/internal/service"
	"github.com/raphaelgruber/pluisje-go/internal/session"
	"github.com/raphaelgruber/pluisje-go/internal/sqlite"
)

// scriptedCompleter answers "antwoord op: <last message>" unless err is set.
type scriptedCompleter struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (c *scriptedCompleter) Complete(_ context.Context, msgs []models.ChatMessage) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return "antwoord op: " + msgs[len(msgs)-1].Content, nil
}

func (c *scriptedCompleter) CompleteStream(ctx context.Context, msgs []models.ChatMessage, onChunk func(string) error) (string, error) {
	text, err := c.Complete(ctx, msgs)
	if err != nil {
		return "", err
	}
	for _, part := range strings.SplitAfter(text, " ") {
		if err := onChunk(part); err != nil {
			return "", err
		}
	}
	return text, nil
}

func (c *scriptedCompleter) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

type stubImages struct{ url string }

func (s stubImages) GenerateImage(context.Context, string) (string, error) {
	return s.url, nil
}

// recordingMailer keeps sent messages; err makes every send fail.
type recordingMailer struct {
	mu   sync.Mutex
	err  error
	sent []mail.Message
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) last(t *testing.T) mail.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no mail sent")
	return m.sent[len(m.sent)-1]
}

var linkPattern = regexp.MustCompile(`http://\S+`)

type testEnv struct {
	t         *testing.T
	srv       *httptest.Server
	app       *app.App
	store     *sqlite.Store
	completer *scriptedCompleter
	mailer    *recordingMailer
}

func newTestEnv(t *testing.T, tweak ...func(*service.ChatOptions)) *testEnv {
	t.Helper()

	st, err := sqlite.Open(filepath.Join(t.TempDir(), "server.db"), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close(context.Background()) })

	env := &testEnv{t: t, store: st, completer: &scriptedCompleter{}, mailer: &recordingMailer{}}

	// PublicURL is patched once the listener address is known.
	cfg := config.Config{SecretKey: "geheim", MaxPromptLength: 1000, SMTPUsername: "pluisje@example.com"}

	opts := service.DefaultChatOptions()
	opts.Timeout = 5 * time.Second
	for _, f := range tweak {
		f(&opts)
	}

	srv := httptest.NewUnstartedServer(nil)
	baseURL := "http://" + srv.Listener.Addr().String()
	cfg.PublicURL = baseURL

	env.app = &app.App{
		Config:  cfg,
		Metrics: metrics.NewCollector(),
		Store:   st,
		Mailer:  env.mailer,
		Chat:    service.NewChatService(st, env.completer, stubImages{url: "https://img.example/kat.png"}, opts, nil),
		Auth: service.NewAuthService(st, env.mailer, service.AuthOptions{
			Secret:      cfg.SecretKey,
			BaseURL:     baseURL,
			ResetMaxAge: time.Hour,
			BcryptCost:  4,
		}, nil),
		Sessions: session.NewManager(session.Options{Secret: cfg.SecretKey, TTL: time.Hour}, nil),
	}

	s, err := New(env.app)
	require.NoError(t, err)
	srv.Config.Handler = s.Handler()
	srv.Start()
	t.Cleanup(srv.Close)
	env.srv = srv
	return env
}

// client returns a browser-like client with its own cookie jar that does not follow redirects.
func (e *testEnv) client() *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(e.t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (e *testEnv) url(path string) string {
	return e.srv.URL + path
}

func (e *testEnv) createAccount(email, password string, verified bool) {
	_, err := e.app.Auth.CreateAccount(context.Background(), email, password, verified)
	require.NoError(e.t, err)
}

// login creates a verified account and returns a client logged in as it.
func (e *testEnv) login(email string) *http.Client {
	e.createAccount(email, "wachtwoord", true)
	c := e.client()
	resp := e.postForm(c, "/login", url.Values{"email": {email}, "password": {"wachtwoord"}})
	require.Equal(e.t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(e.t, "/", resp.Header.Get("Location"))
	return c
}

func (e *testEnv) get(c *http.Client, path string) (*http.Response, string) {
	resp, err := c.Get(e.url(path))
	require.NoError(e.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(e.t, err)
	return resp, string(body)
}

func (e *testEnv) postForm(c *http.Client, path string, form url.Values) *http.Response {
	resp, err := c.PostForm(e.url(path), form)
	require.NoError(e.t, err)
	resp.Body.Close()
	return resp
}

// postJSON posts body and decodes the JSON answer into out.
func (e *testEnv) postJSON(c *http.Client, path string, body any, out any) *http.Response {
	data, err := json.Marshal(body)
	require.NoError(e.t, err)
	req, err := http.NewRequest(http.MethodPost, e.url(path), strings.NewReader(string(data)))
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(e.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (e *testEnv) turns(owner string) []models.Turn {
	turns, err := e.store.ListTurns(context.Background(), owner)
	require.NoError(e.t, err)
	return turns
}

var errProvider = errors.New("rate limit exceeded")
