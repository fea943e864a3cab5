package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/pluisje-go/internal/mail"
	"github.com/raphaelgruber/pluisje-go/internal/models"
	"github.com/raphaelgruber/pluisje-go/internal/sqlite"
	"github.com/raphaelgruber/pluisje-go/internal/store"
)

// fakeCompleter records every request and answers from reply.
type fakeCompleter struct {
	mu    sync.Mutex
	calls [][]models.ChatMessage
	reply func(messages []models.ChatMessage) (string, error)
}

func echoCompleter() *fakeCompleter {
	return &fakeCompleter{reply: func(messages []models.ChatMessage) (string, error) {
		return "echo: " + messages[len(messages)-1].Content, nil
	}}
}

func failingCompleter(err error) *fakeCompleter {
	return &fakeCompleter{reply: func([]models.ChatMessage) (string, error) { return "", err }}
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []models.ChatMessage) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]models.ChatMessage(nil), messages...))
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.reply(messages)
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeCompleter) lastCall() []models.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

// streamingCompleter splits the reply into chunks of one word.
type streamingCompleter struct {
	*fakeCompleter
	chunks []string
}

func (s *streamingCompleter) CompleteStream(ctx context.Context, messages []models.ChatMessage, onChunk func(string) error) (string, error) {
	var full string
	for _, c := range s.chunks {
		if err := onChunk(c); err != nil {
			return "", err
		}
		full += c
	}
	return full, nil
}

type completerFunc func(ctx context.Context, messages []models.ChatMessage) (string, error)

func (f completerFunc) Complete(ctx context.Context, messages []models.ChatMessage) (string, error) {
	return f(ctx, messages)
}

type fakeImages struct {
	got string
	url string
	err error
}

func (f *fakeImages) GenerateImage(_ context.Context, description string) (string, error) {
	f.got = description
	return f.url, f.err
}

// fakeMailer records sent messages and can fail.
type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return fmt.Errorf("%w: %w", mail.ErrDelivery, f.err)
	}
	f.sent = append(f.sent, msg)
	return nil
}

// failingAppends wraps a store and fails every AppendTurns call.
type failingAppends struct {
	store.Store
}

func (failingAppends) AppendTurns(context.Context, string, store.Policy, ...models.Turn) (store.Retention, error) {
	return store.Retention{}, errors.New("disk full")
}

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

// seedTurns stores n alternating turns "old-0".."old-(n-1)" for owner, bypassing retention.
func seedTurns(t *testing.T, s store.Turns, owner string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		_, err := s.AppendTurns(context.Background(), owner, store.Policy{},
			models.Turn{Role: role, Content: fmt.Sprintf("old-%d", i)})
		require.NoError(t, err)
	}
}

func contents[T interface{ models.Turn | models.ChatMessage }](items []T) []string {
	out := make([]string, len(items))
	for i, it := range items {
		switch v := any(it).(type) {
		case models.Turn:
			out[i] = v.Content
		case models.ChatMessage:
			out[i] = v.Content
		}
	}
	return out
}
