package service

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/raphaelgruber/pluisje-go/internal/models"
	"github.com/raphaelgruber/pluisje-go/internal/store"
)

// Prompts sent to the completion service on top of the window.
const (
	ImageRewriteInstruction = "Vat mijn laatste idee samen als duidelijke beeldprompt " +
		"voor een AI die een afbeelding gaat genereren."
	SummaryInstruction = "Vat het volgende antwoord samen in maximaal twee korte zinnen, " +
		"in dezelfde taal en toon."
)

// Defaults for ChatOptions.
const (
	DefaultHistoryLimit    = 20
	DefaultMaxPromptLength = 1000
	DefaultTimeout         = 60 * time.Second
)

// Completer turns a message list into the assistant's reply.
type Completer interface {
	Complete(ctx context.Context, messages []models.ChatMessage) (string, error)
}

// StreamCompleter is a Completer that can emit the reply incrementally.
type StreamCompleter interface {
	CompleteStream(ctx context.Context, messages []models.ChatMessage, onChunk func(string) error) (string, error)
}

// ImageGenerator renders an image for a description and returns its URL.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, description string) (string, error)
}

// ChatOptions tunes the assembler and the retention policy.
type ChatOptions struct {
	Policy store.Policy
	// HistoryLimit is the number of persisted turns loaded into a new window.
	HistoryLimit int
	// MaxPromptLength in characters; 0 disables the check.
	MaxPromptLength int
	// Timeout bounds each outbound completion or image call; 0 disables it.
	Timeout time.Duration
	// DualResponse adds a short summary to text replies.
	DualResponse bool
	Personas     Personas
}

// DefaultChatOptions returns the standard settings.
func DefaultChatOptions() ChatOptions {
	return ChatOptions{
		Policy:          store.DefaultPolicy(),
		HistoryLimit:    DefaultHistoryLimit,
		MaxPromptLength: DefaultMaxPromptLength,
		Timeout:         DefaultTimeout,
		Personas:        DefaultPersonas(),
	}
}

// Reply is the outcome of a text exchange.
type Reply struct {
	Response string
	// ShortResponse is set only in dual response mode.
	ShortResponse string
	Retention     store.Retention
}

// ImageReply is the outcome of an image exchange.
type ImageReply struct {
	ImageURL    string
	Description string
	// Content is the assistant turn stored for the exchange.
	Content   string
	Retention store.Retention
}

// ChatService assembles conversation windows, calls the completion and image
// services and persists each exchange under the retention policy.
//
// Calls for the same identity are serialized. A failed call leaves the window
// as it was before the call.
type ChatService struct {
	turns     store.Turns
	completer Completer
	images    ImageGenerator
	opts      ChatOptions
	locks     *identityLocks
	logger    *slog.Logger
}

// NewChatService creates a chat service. images may be nil, in which case
// image requests fail with ErrUpstream.
func NewChatService(turns store.Turns, completer Completer, images ImageGenerator, opts ChatOptions, log *slog.Logger) *ChatService {
	if log == nil {
		log = slog.Default()
	}
	if opts.Personas.Default == "" && len(opts.Personas.Rules) == 0 {
		opts.Personas = DefaultPersonas()
	}
	return &ChatService{
		turns:     turns,
		completer: completer,
		images:    images,
		opts:      opts,
		locks:     newIdentityLocks(),
		logger:    log,
	}
}

// Options returns the active settings.
func (s *ChatService) Options() ChatOptions {
	return s.opts
}

// ValidatePrompt trims prompt and checks it against the length rules.
func (s *ChatService) ValidatePrompt(prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyInput
	}
	if max := s.opts.MaxPromptLength; max > 0 && utf8.RuneCountInString(prompt) > max {
		return "", fmt.Errorf("%w: max %d characters", ErrInputTooLong, max)
	}
	return prompt, nil
}

// Generate runs one text exchange on conv.
func (s *ChatService) Generate(ctx context.Context, conv *models.Conversation, prompt string) (*Reply, error) {
	return s.generate(ctx, conv, prompt, nil)
}

// GenerateStream is Generate with the reply delivered through onChunk as it
// arrives. Without a streaming completer the whole reply is one chunk.
func (s *ChatService) GenerateStream(ctx context.Context, conv *models.Conversation, prompt string, onChunk func(string) error) (*Reply, error) {
	return s.generate(ctx, conv, prompt, onChunk)
}

func (s *ChatService) generate(ctx context.Context, conv *models.Conversation, prompt string, onChunk func(string) error) (*Reply, error) {
	prompt, err := s.ValidatePrompt(prompt)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(conv.Identity)
	defer unlock()

	if err := s.hydrate(ctx, conv); err != nil {
		return nil, err
	}

	mark := conv.Append(models.RoleUser, prompt)

	var text string
	if onChunk != nil {
		text, err = s.stream(ctx, conv.Snapshot(), onChunk)
	} else {
		text, err = s.complete(ctx, conv.Snapshot())
	}
	if err != nil {
		conv.Rollback(mark)
		return nil, err
	}
	conv.Append(models.RoleAssistant, text)

	res, err := s.persist(ctx, conv, mark, prompt, text)
	if err != nil {
		return nil, err
	}

	reply := &Reply{Response: text, Retention: res}
	if s.opts.DualResponse {
		reply.ShortResponse = s.summarize(ctx, text)
	}
	return reply, nil
}

// GenerateImage runs one image exchange on conv: the window plus a rewrite
// instruction produces an image description, which is rendered by the image
// service. The stored assistant turn embeds the image.
func (s *ChatService) GenerateImage(ctx context.Context, conv *models.Conversation, prompt string) (*ImageReply, error) {
	prompt, err := s.ValidatePrompt(prompt)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(conv.Identity)
	defer unlock()

	if err := s.hydrate(ctx, conv); err != nil {
		return nil, err
	}

	mark := conv.Append(models.RoleUser, prompt)

	description, url, err := s.renderImage(ctx, conv.Snapshot())
	if err != nil {
		conv.Rollback(mark)
		return nil, err
	}

	content := ImageTurnContent(url)
	conv.Append(models.RoleAssistant, content)

	res, err := s.persist(ctx, conv, mark, prompt, content)
	if err != nil {
		return nil, err
	}
	return &ImageReply{ImageURL: url, Description: description, Content: content, Retention: res}, nil
}

func (s *ChatService) renderImage(ctx context.Context, window []models.ChatMessage) (string, string, error) {
	if s.images == nil {
		return "", "", fmt.Errorf("%w: image generation not configured", ErrUpstream)
	}

	request := append(window, models.ChatMessage{Role: models.RoleUser, Content: ImageRewriteInstruction})
	description, err := s.complete(ctx, request)
	if err != nil {
		return "", "", err
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	url, err := s.images.GenerateImage(callCtx, description)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	return description, url, nil
}

const (
	imageTurnPrefix = "Hier is je afbeelding:<br><img src='"
	imageTurnSuffix = "' alt='Pluisje afbeelding' " +
		"style='max-width:100%; border-radius: 12px; margin-top: 1rem;'>"
)

// ImageTurnContent is the assistant turn recorded for a generated image.
func ImageTurnContent(url string) string {
	return imageTurnPrefix + html.EscapeString(url) + imageTurnSuffix
}

// ImageTurnURL returns the image URL of a turn produced by ImageTurnContent.
// Model replies that merely resemble one (extra attributes, other schemes)
// are rejected, so callers may render the URL but never the stored content.
func ImageTurnURL(content string) (string, bool) {
	rest, ok := strings.CutPrefix(content, imageTurnPrefix)
	if !ok {
		return "", false
	}
	escaped, _, ok := strings.Cut(rest, "'")
	if !ok {
		return "", false
	}
	u := html.UnescapeString(escaped)
	if !strings.HasPrefix(u, "https://") && !strings.HasPrefix(u, "http://") {
		return "", false
	}
	if ImageTurnContent(u) != content {
		return "", false
	}
	return u, true
}

// Reset discards the window; the next exchange hydrates it from storage again.
func (s *ChatService) Reset(conv *models.Conversation) {
	if conv == nil {
		return
	}
	unlock := s.locks.Lock(conv.Identity)
	defer unlock()
	conv.Reset()
}

// History returns every persisted turn for identity, oldest first.
func (s *ChatService) History(ctx context.Context, identity string) ([]models.Turn, error) {
	turns, err := s.turns.ListTurns(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return turns, nil
}

// Clear deletes all persisted turns for identity.
func (s *ChatService) Clear(ctx context.Context, identity string) (int, error) {
	unlock := s.locks.Lock(identity)
	defer unlock()
	n, err := s.turns.DeleteTurns(ctx, identity)
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	s.logger.Info("history cleared", "identity", identity, "deleted", n)
	return n, nil
}

// hydrate seeds an empty window with the persona and recent history.
func (s *ChatService) hydrate(ctx context.Context, conv *models.Conversation) error {
	if conv.Hydrated() {
		return nil
	}
	history, err := s.turns.RecentTurns(ctx, conv.Identity, s.opts.HistoryLimit)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	conv.Seed(s.opts.Personas.For(conv.Identity), history)
	s.logger.Debug("window hydrated", "identity", conv.Identity, "turns", len(history))
	return nil
}

// persist stores the exchange, pruning old turns first. When the cap was
// reached the window is truncated to its last MaxTurns entries. On failure
// the exchange is removed from the window.
func (s *ChatService) persist(ctx context.Context, conv *models.Conversation, mark int, prompt, reply string) (store.Retention, error) {
	now := time.Now()
	res, err := s.turns.AppendTurns(ctx, conv.Identity, s.opts.Policy,
		models.Turn{Owner: conv.Identity, Role: models.RoleUser, Content: prompt, CreatedAt: now},
		models.Turn{Owner: conv.Identity, Role: models.RoleAssistant, Content: reply, CreatedAt: now},
	)
	if err != nil {
		conv.Rollback(mark)
		return store.Retention{}, fmt.Errorf("save exchange: %w", err)
	}
	if res.Triggered(s.opts.Policy) {
		conv.KeepLast(s.opts.Policy.MaxTurns)
		s.logger.Debug("history pruned", "identity", conv.Identity,
			"existing", res.Existing, "deleted", res.Deleted)
	}
	return res, nil
}

func (s *ChatService) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.Timeout > 0 {
		return context.WithTimeout(ctx, s.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

func (s *ChatService) complete(ctx context.Context, messages []models.ChatMessage) (string, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	text, err := s.completer.Complete(callCtx, messages)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	return text, nil
}

func (s *ChatService) stream(ctx context.Context, messages []models.ChatMessage, onChunk func(string) error) (string, error) {
	sc, ok := s.completer.(StreamCompleter)
	if !ok {
		text, err := s.complete(ctx, messages)
		if err != nil {
			return "", err
		}
		if err := onChunk(text); err != nil {
			return "", err
		}
		return text, nil
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	text, err := sc.CompleteStream(callCtx, messages, onChunk)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	return text, nil
}

// summarize returns a short version of reply. Failures fall back to the full reply.
func (s *ChatService) summarize(ctx context.Context, reply string) string {
	short, err := s.complete(ctx, []models.ChatMessage{
		{Role: models.RoleSystem, Content: SummaryInstruction},
		{Role: models.RoleUser, Content: reply},
	})
	if err != nil {
		s.logger.Warn("summary failed, using full reply", "error", err)
		return reply
	}
	return short
}
