package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/pluisje-go/internal/models"
	"github.com/raphaelgruber/pluisje-go/internal/store"
)

func newChat(t *testing.T, turns store.Turns, c Completer, images ImageGenerator, mutate ...func(*ChatOptions)) *ChatService {
	t.Helper()
	opts := DefaultChatOptions()
	for _, m := range mutate {
		m(&opts)
	}
	return NewChatService(turns, c, images, opts, nil)
}

func TestGenerateRejectsEmptyPrompt(t *testing.T) {
	st := newStore(t)
	completer := echoCompleter()
	chat := newChat(t, st, completer, nil)
	conv := models.NewConversation("a@x.com")

	for _, prompt := range []string{"", "   ", "\n\t"} {
		_, err := chat.Generate(context.Background(), conv, prompt)
		assert.ErrorIs(t, err, ErrEmptyInput)
	}

	assert.Zero(t, completer.callCount())
	assert.False(t, conv.Hydrated())
	turns, err := st.ListTurns(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestGenerateRejectsLongPrompt(t *testing.T) {
	st := newStore(t)
	completer := echoCompleter()
	chat := newChat(t, st, completer, nil)
	conv := models.NewConversation("a@x.com")

	_, err := chat.Generate(context.Background(), conv, strings.Repeat("a", 1001))
	assert.ErrorIs(t, err, ErrInputTooLong)
	assert.Zero(t, completer.callCount())

	// Exactly the maximum is fine, counted in characters rather than bytes.
	_, err = chat.Generate(context.Background(), conv, strings.Repeat("é", 1000))
	assert.NoError(t, err)
}

func TestGenerateLengthCheckDisabled(t *testing.T) {
	chat := newChat(t, newStore(t), echoCompleter(), nil, func(o *ChatOptions) { o.MaxPromptLength = 0 })
	_, err := chat.Generate(context.Background(), models.NewConversation("a@x.com"), strings.Repeat("a", 5000))
	assert.NoError(t, err)
}

func TestGenerateSeedsPersona(t *testing.T) {
	tests := []struct {
		identity string
		want     string
	}{
		{"medewerker@bibliotheekzout.nl", LibraryStaffPersona},
		{"bieb@example.com", LibraryStaffPersona},
		{"anita@example.com", DefaultPersona},
		{"bibliotheekzout.nl@example.com", DefaultPersona},
	}
	for _, tt := range tests {
		t.Run(tt.identity, func(t *testing.T) {
			completer := echoCompleter()
			chat := newChat(t, newStore(t), completer, nil)

			_, err := chat.Generate(context.Background(), models.NewConversation(tt.identity), "hoi")
			require.NoError(t, err)

			sent := completer.lastCall()
			require.Len(t, sent, 2)
			assert.Equal(t, models.ChatMessage{Role: models.RoleSystem, Content: tt.want}, sent[0])
			assert.Equal(t, models.ChatMessage{Role: models.RoleUser, Content: "hoi"}, sent[1])
		})
	}
}

func TestGeneratePersistsExactlyOnePair(t *testing.T) {
	st := newStore(t)
	chat := newChat(t, st, echoCompleter(), nil)
	conv := models.NewConversation("a@x.com")

	reply, err := chat.Generate(context.Background(), conv, "  Hoe gaat het?  ")
	require.NoError(t, err)
	assert.Equal(t, "echo: Hoe gaat het?", reply.Response)
	assert.Empty(t, reply.ShortResponse)

	turns, err := st.ListTurns(context.Background(), "a@x.com")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, models.RoleUser, turns[0].Role)
	assert.Equal(t, "Hoe gaat het?", turns[0].Content)
	assert.Equal(t, models.RoleAssistant, turns[1].Role)
	assert.Equal(t, "echo: Hoe gaat het?", turns[1].Content)

	assert.Equal(t, []string{DefaultPersona, "Hoe gaat het?", "echo: Hoe gaat het?"}, contents(conv.Messages))
}

func TestWindowReusedWithinSession(t *testing.T) {
	st := newStore(t)
	completer := echoCompleter()
	chat := newChat(t, st, completer, nil)
	conv := models.NewConversation("a@x.com")
	ctx := context.Background()

	_, err := chat.Generate(ctx, conv, "een")
	require.NoError(t, err)

	// A turn written elsewhere is not picked up until the window is reset.
	seedTurns(t, st, "a@x.com", 1)

	_, err = chat.Generate(ctx, conv, "twee")
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultPersona, "een", "echo: een", "twee"}, contents(completer.lastCall()))

	chat.Reset(conv)
	assert.False(t, conv.Hydrated())

	_, err = chat.Generate(ctx, conv, "drie")
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultPersona, "een", "echo: een", "old-0", "twee", "echo: twee", "drie"},
		contents(completer.lastCall()))
}

func TestHydrationReadsAtMostTwentyTurns(t *testing.T) {
	st := newStore(t)
	seedTurns(t, st, "a@x.com", 21)
	completer := echoCompleter()
	chat := newChat(t, st, completer, nil, func(o *ChatOptions) { o.Policy = store.Policy{} })

	_, err := chat.Generate(context.Background(), models.NewConversation("a@x.com"), "nieuw")
	require.NoError(t, err)

	sent := completer.lastCall()
	require.Len(t, sent, 1+20+1)
	assert.Equal(t, models.RoleSystem, sent[0].Role)
	assert.Equal(t, "old-1", sent[1].Content, "oldest of the 20 first")
	assert.Equal(t, "old-20", sent[20].Content)
	assert.NotContains(t, contents(sent), "old-0")
	assert.Equal(t, "nieuw", sent[21].Content)
}

func TestRetentionBelowCapKeepsEverything(t *testing.T) {
	// 11 existing turns do not reach M=12, so nothing is deleted and 13 remain.
	st := newStore(t)
	seedTurns(t, st, "a@x.com", 11)
	chat := newChat(t, st, echoCompleter(), nil)

	reply, err := chat.Generate(context.Background(), models.NewConversation("a@x.com"), "vraag")
	require.NoError(t, err)
	assert.Equal(t, store.Retention{Existing: 11, Deleted: 0, Inserted: 2}, reply.Retention)

	turns, err := st.ListTurns(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Len(t, turns, 13)
}

func TestRetentionAtCapKeepsMostRecent(t *testing.T) {
	// 13 existing turns: delete 13-12+2 = 3 oldest, then add the pair.
	st := newStore(t)
	seedTurns(t, st, "a@x.com", 13)
	chat := newChat(t, st, echoCompleter(), nil)
	conv := models.NewConversation("a@x.com")

	reply, err := chat.Generate(context.Background(), conv, "vraag")
	require.NoError(t, err)
	assert.Equal(t, store.Retention{Existing: 13, Deleted: 3, Inserted: 2}, reply.Retention)

	turns, err := st.ListTurns(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(turns), 12)
	want := []string{}
	for i := 3; i < 13; i++ {
		want = append(want, fmt.Sprintf("old-%d", i))
	}
	want = append(want, "vraag", "echo: vraag")
	assert.Equal(t, want, contents(turns))

	// The window is truncated to its last M entries, the system entry included.
	require.Len(t, conv.Messages, 12)
	assert.Equal(t, "echo: vraag", conv.Messages[11].Content)
	assert.NotEqual(t, models.RoleSystem, conv.Messages[0].Role)
}

func TestRetentionStaysCappedOverManyExchanges(t *testing.T) {
	st := newStore(t)
	chat := newChat(t, st, echoCompleter(), nil)
	conv := models.NewConversation("a@x.com")

	for i := 0; i < 15; i++ {
		_, err := chat.Generate(context.Background(), conv, fmt.Sprintf("q%d", i))
		require.NoError(t, err)
		turns, err := st.ListTurns(context.Background(), "a@x.com")
		require.NoError(t, err)
		assert.LessOrEqual(t, len(turns), 12, "after exchange %d", i)
	}
}

func TestRetentionIsPerIdentity(t *testing.T) {
	st := newStore(t)
	seedTurns(t, st, "a@x.com", 13)
	seedTurns(t, st, "b@x.com", 13)
	chat := newChat(t, st, echoCompleter(), nil)

	_, err := chat.Generate(context.Background(), models.NewConversation("a@x.com"), "q")
	require.NoError(t, err)

	b, err := st.ListTurns(context.Background(), "b@x.com")
	require.NoError(t, err)
	assert.Len(t, b, 13)
}

func TestCompletionFailureRollsBackWindow(t *testing.T) {
	st := newStore(t)
	upstream := errors.New("503 service unavailable")
	completer := failingCompleter(upstream)
	chat := newChat(t, st, completer, nil)
	conv := models.NewConversation("a@x.com")

	_, err := chat.Generate(context.Background(), conv, "hoi")
	require.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, upstream)
	assert.Contains(t, err.Error(), "503 service unavailable")

	assert.True(t, conv.Hydrated())
	assert.Equal(t, []string{DefaultPersona}, contents(conv.Messages))

	turns, err := st.ListTurns(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestPersistFailureRollsBackWindow(t *testing.T) {
	chat := newChat(t, failingAppends{newStore(t)}, echoCompleter(), nil)
	conv := models.NewConversation("a@x.com")

	_, err := chat.Generate(context.Background(), conv, "hoi")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUpstream)
	assert.Equal(t, []string{DefaultPersona}, contents(conv.Messages))
}

func TestCompletionTimeout(t *testing.T) {
	slow := completerFunc(func(ctx context.Context, _ []models.ChatMessage) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	chat := newChat(t, newStore(t), slow, nil, func(o *ChatOptions) { o.Timeout = 20 * time.Millisecond })

	start := time.Now()
	_, err := chat.Generate(context.Background(), models.NewConversation("a@x.com"), "hoi")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDualResponse(t *testing.T) {
	st := newStore(t)
	completer := &fakeCompleter{reply: func(messages []models.ChatMessage) (string, error) {
		if messages[0].Content == SummaryInstruction {
			return "kort", nil
		}
		return "een heel lang antwoord", nil
	}}
	chat := newChat(t, st, completer, nil, func(o *ChatOptions) { o.DualResponse = true })

	reply, err := chat.Generate(context.Background(), models.NewConversation("a@x.com"), "vraag")
	require.NoError(t, err)
	assert.Equal(t, "een heel lang antwoord", reply.Response)
	assert.Equal(t, "kort", reply.ShortResponse)

	turns, err := st.ListTurns(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"vraag", "een heel lang antwoord"}, contents(turns))
}

func TestDualResponseSummaryFailureFallsBack(t *testing.T) {
	calls := 0
	completer := &fakeCompleter{reply: func([]models.ChatMessage) (string, error) {
		calls++
		if calls > 1 {
			return "", errors.New("boom")
		}
		return "lang", nil
	}}
	chat := newChat(t, newStore(t), completer, nil, func(o *ChatOptions) { o.DualResponse = true })

	reply, err := chat.Generate(context.Background(), models.NewConversation("a@x.com"), "vraag")
	require.NoError(t, err)
	assert.Equal(t, "lang", reply.ShortResponse)
}

func TestGenerateImage(t *testing.T) {
	st := newStore(t)
	completer := &fakeCompleter{reply: func([]models.ChatMessage) (string, error) {
		return "Een hamster die een boek leest, aquarel", nil
	}}
	images := &fakeImages{url: "https://img.example/1.png"}
	chat := newChat(t, st, completer, images)
	conv := models.NewConversation("a@x.com")

	reply, err := chat.GenerateImage(context.Background(), conv, "hamster met boek")
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/1.png", reply.ImageURL)
	assert.Equal(t, "Een hamster die een boek leest, aquarel", images.got)

	sent := completer.lastCall()
	assert.Equal(t, []string{DefaultPersona, "hamster met boek", ImageRewriteInstruction}, contents(sent))

	turns, err := st.ListTurns(context.Background(), "a@x.com")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "hamster met boek", turns[0].Content)
	assert.Equal(t, ImageTurnContent("https://img.example/1.png"), turns[1].Content)
	assert.Contains(t, turns[1].Content, "<img src='https://img.example/1.png'")
	u, ok := ImageTurnURL(turns[1].Content)
	assert.True(t, ok)
	assert.Equal(t, "https://img.example/1.png", u)

	// The rewrite instruction never enters the window.
	assert.Equal(t, []string{DefaultPersona, "hamster met boek", turns[1].Content}, contents(conv.Messages))
}

func TestGenerateImageFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("empty prompt", func(t *testing.T) {
		chat := newChat(t, newStore(t), echoCompleter(), &fakeImages{})
		_, err := chat.GenerateImage(ctx, models.NewConversation("a@x.com"), " ")
		assert.ErrorIs(t, err, ErrEmptyInput)
	})

	t.Run("not configured", func(t *testing.T) {
		chat := newChat(t, newStore(t), echoCompleter(), nil)
		conv := models.NewConversation("a@x.com")
		_, err := chat.GenerateImage(ctx, conv, "kat")
		assert.ErrorIs(t, err, ErrUpstream)
		assert.Equal(t, []string{DefaultPersona}, contents(conv.Messages))
	})

	t.Run("image service error", func(t *testing.T) {
		st := newStore(t)
		chat := newChat(t, st, echoCompleter(), &fakeImages{err: errors.New("content policy")})
		conv := models.NewConversation("a@x.com")
		_, err := chat.GenerateImage(ctx, conv, "kat")
		assert.ErrorIs(t, err, ErrUpstream)
		assert.Contains(t, err.Error(), "content policy")
		assert.Equal(t, []string{DefaultPersona}, contents(conv.Messages))

		turns, err := st.ListTurns(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Empty(t, turns)
	})
}

func TestGenerateStream(t *testing.T) {
	st := newStore(t)
	completer := &streamingCompleter{fakeCompleter: echoCompleter(), chunks: []string{"Piep ", "piep!"}}
	chat := newChat(t, st, completer, nil)

	var got []string
	reply, err := chat.GenerateStream(context.Background(), models.NewConversation("a@x.com"), "hoi",
		func(chunk string) error {
			got = append(got, chunk)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"Piep ", "piep!"}, got)
	assert.Equal(t, "Piep piep!", reply.Response)

	turns, err := st.ListTurns(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"hoi", "Piep piep!"}, contents(turns))
}

func TestGenerateStreamWithoutStreamingCompleter(t *testing.T) {
	chat := newChat(t, newStore(t), echoCompleter(), nil)

	var got []string
	_, err := chat.GenerateStream(context.Background(), models.NewConversation("a@x.com"), "hoi",
		func(chunk string) error {
			got = append(got, chunk)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"echo: hoi"}, got)
}

func TestGenerateStreamAbortRollsBack(t *testing.T) {
	st := newStore(t)
	completer := &streamingCompleter{fakeCompleter: echoCompleter(), chunks: []string{"a", "b"}}
	chat := newChat(t, st, completer, nil)
	conv := models.NewConversation("a@x.com")

	_, err := chat.GenerateStream(context.Background(), conv, "hoi", func(string) error {
		return errors.New("client gone")
	})
	require.Error(t, err)
	assert.Equal(t, []string{DefaultPersona}, contents(conv.Messages))

	turns, err := st.ListTurns(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestConcurrentGenerateSameIdentity(t *testing.T) {
	st := newStore(t)
	chat := newChat(t, st, echoCompleter(), nil)
	conv := models.NewConversation("a@x.com")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := chat.Generate(context.Background(), conv, fmt.Sprintf("q%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	turns, err := st.ListTurns(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(turns), 12)
	// Turns stay paired: user, assistant, user, assistant...
	for i, turn := range turns {
		if i%2 == 0 {
			assert.Equal(t, models.RoleUser, turn.Role)
		} else {
			assert.Equal(t, "echo: "+turns[i-1].Content, turn.Content)
		}
	}
	assert.Zero(t, chat.locks.size())
}

func TestHistoryAndClear(t *testing.T) {
	st := newStore(t)
	seedTurns(t, st, "a@x.com", 4)
	chat := newChat(t, st, echoCompleter(), nil)
	ctx := context.Background()

	turns, err := chat.History(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"old-0", "old-1", "old-2", "old-3"}, contents(turns))

	n, err := chat.Clear(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	turns, err = chat.History(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestImageTurnURL(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		ok      bool
	}{
		{"generated turn", ImageTurnContent("https://img.example/a.png?x=1&y=2"), "https://img.example/a.png?x=1&y=2", true},
		{"quote in url", ImageTurnContent("https://img.example/it's.png"), "https://img.example/it's.png", true},
		{"plain text", "Hier is je afbeelding:", "", false},
		{"extra attributes", "Hier is je afbeelding:<br><img src='x' onerror='alert(document.cookie)'>", "", false},
		{"trailing markup", ImageTurnContent("https://img.example/a.png") + "<script>alert(1)</script>", "", false},
		{"javascript scheme", ImageTurnContent("javascript:alert(1)"), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ImageTurnURL(tt.content)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
