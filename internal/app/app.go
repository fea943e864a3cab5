// Package app wires configuration into the storage backend, services and session manager.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/raphaelgruber/pluisje-go/internal/config"
	"github.com/raphaelgruber/pluisje-go/internal/db"
	"github.com/raphaelgruber/pluisje-go/internal/llm"
	"github.com/raphaelgruber/pluisje-go/internal/mail"
	"github.com/raphaelgruber/pluisje-go/internal/metrics"
	"github.com/raphaelgruber/pluisje-go/internal/models"
	"github.com/raphaelgruber/pluisje-go/internal/service"
	"github.com/raphaelgruber/pluisje-go/internal/session"
	"github.com/raphaelgruber/pluisje-go/internal/sqlite"
	"github.com/raphaelgruber/pluisje-go/internal/store"
)

// App holds all dependencies of the server and the admin commands.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Metrics  *metrics.Collector
	Store    store.Store
	Mailer   mail.Sender
	Chat     *service.ChatService
	Auth     *service.AuthService
	Sessions *session.Manager
}

type options struct {
	models bool
}

// Option adjusts New.
type Option func(*options)

// WithoutModels skips LLM and image clients. Chat history operations still
// work; exchanges fail. Used by admin commands that never call a model.
func WithoutModels() Option {
	return func(o *options) { o.models = false }
}

// New builds the application from cfg.
func New(ctx context.Context, cfg config.Config, log *slog.Logger, opts ...Option) (*App, error) {
	o := options{models: true}
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = slog.Default()
	}

	mc := metrics.NewCollector()

	st, err := OpenStore(ctx, cfg, log, mc)
	if err != nil {
		return nil, err
	}

	personas, err := service.LoadPersonas(cfg.PersonasFile)
	if err != nil {
		st.Close(ctx)
		return nil, err
	}

	var completer service.Completer = unconfiguredCompleter{}
	var images service.ImageGenerator
	if o.models {
		model, err := llm.NewModel(ctx, cfg, log, mc)
		if err != nil {
			st.Close(ctx)
			return nil, fmt.Errorf("create model: %w", err)
		}
		completer = model

		if cfg.OpenAIAPIKey != "" {
			images, err = llm.NewImageClient(cfg.OpenAIAPIKey, cfg.ImageModel, cfg.ImageSize, log, mc)
			if err != nil {
				st.Close(ctx)
				return nil, fmt.Errorf("create image client: %w", err)
			}
		} else {
			log.Warn("OPENAI_API_KEY not set, image generation disabled")
		}
	}

	mailer := NewMailer(cfg, log, mc)

	chat := service.NewChatService(st, completer, images, service.ChatOptions{
		Policy:          store.Policy{MaxTurns: cfg.MaxStoredTurns, Reserve: cfg.PruneReserve},
		HistoryLimit:    cfg.HistoryLimit,
		MaxPromptLength: cfg.MaxPromptLength,
		Timeout:         cfg.CompletionTimeout,
		DualResponse:    cfg.DualResponse,
		Personas:        personas,
	}, log)

	auth := service.NewAuthService(st, mailer, service.AuthOptions{
		Secret:      cfg.SecretKey,
		BaseURL:     cfg.PublicURL,
		ResetMaxAge: cfg.ResetTokenMaxAge,
	}, log)

	sessions := session.NewManager(session.Options{
		Secret: cfg.SecretKey,
		TTL:    cfg.SessionTTL,
		Secure: strings.HasPrefix(cfg.PublicURL, "https://"),
	}, log)

	return &App{
		Config:   cfg,
		Logger:   log,
		Metrics:  mc,
		Store:    st,
		Mailer:   mailer,
		Chat:     chat,
		Auth:     auth,
		Sessions: sessions,
	}, nil
}

// Close releases the storage backend.
func (a *App) Close(ctx context.Context) error {
	if a.Store != nil {
		return a.Store.Close(ctx)
	}
	return nil
}

// Backend identifies a storage implementation.
type Backend string

const (
	BackendSurrealDB Backend = "surrealdb"
	BackendSQLite    Backend = "sqlite"
)

// ParseDatabaseURL picks the backend for a DATABASE_URL and returns the
// address to hand to it: the URL itself for SurrealDB, a file path for SQLite.
func ParseDatabaseURL(raw string) (Backend, string, error) {
	switch {
	case strings.HasPrefix(raw, "ws://"), strings.HasPrefix(raw, "wss://"):
		return BackendSurrealDB, raw, nil
	case strings.HasPrefix(raw, "sqlite://"):
		path := strings.TrimPrefix(raw, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("empty sqlite path in %q", raw)
		}
		return BackendSQLite, path, nil
	case strings.HasPrefix(raw, "file:"):
		return BackendSQLite, strings.TrimPrefix(strings.TrimPrefix(raw, "file:"), "//"), nil
	case strings.HasSuffix(raw, ".db"), strings.HasSuffix(raw, ".sqlite"):
		return BackendSQLite, raw, nil
	default:
		return "", "", fmt.Errorf("unsupported DATABASE_URL %q (want ws://, wss://, sqlite:// or file:)", raw)
	}
}

// OpenStore connects the backend selected by cfg.DatabaseURL and prepares its schema.
func OpenStore(ctx context.Context, cfg config.Config, log *slog.Logger, mc *metrics.Collector) (store.Store, error) {
	backend, addr, err := ParseDatabaseURL(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	switch backend {
	case BackendSurrealDB:
		client, err := db.NewClient(ctx, db.Config{
			URL:       addr,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, log, mc)
		if err != nil {
			return nil, fmt.Errorf("connect surrealdb: %w", err)
		}
		if err := client.InitSchema(ctx); err != nil {
			client.Close(ctx)
			return nil, err
		}
		return client, nil

	default:
		st, err := sqlite.Open(addr, log, mc)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return st, nil
	}
}

// NewMailer returns an SMTP sender, or a logging sender when SMTP is not configured.
func NewMailer(cfg config.Config, log *slog.Logger, mc *metrics.Collector) mail.Sender {
	if !cfg.MailConfigured() {
		return mail.LogSender{Logger: log}
	}
	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTPServer,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
	}, log, mc)
}

// unconfiguredCompleter backs admin-only apps built WithoutModels.
type unconfiguredCompleter struct{}

func (unconfiguredCompleter) Complete(context.Context, []models.ChatMessage) (string, error) {
	return "", fmt.Errorf("no language model configured")
}
