// Package store defines the persistence contracts shared by the storage backends.
package store

import (
	"context"

	"github.com/raphaelgruber/pluisje-go/internal/models"
)

// Accounts persists registered users.
type Accounts interface {
	// CreateAccount inserts a new account. Returns ErrAlreadyExists if the e-mail is taken.
	CreateAccount(ctx context.Context, account models.Account) error

	// GetAccount returns the account for email or ErrNotFound.
	GetAccount(ctx context.Context, email string) (*models.Account, error)

	// FindAccountByToken returns the account whose e-mail and verification token both match.
	FindAccountByToken(ctx context.Context, email, token string) (*models.Account, error)

	// MarkVerified flags the account as verified.
	MarkVerified(ctx context.Context, email string) error

	// UpdatePasswordHash replaces the stored password hash.
	UpdatePasswordHash(ctx context.Context, email, hash string) error

	// ListAccounts returns all accounts ordered by creation.
	ListAccounts(ctx context.Context) ([]models.Account, error)
}

// Turns persists chat history per identity.
type Turns interface {
	// RecentTurns returns at most limit of the newest turns for owner, oldest first.
	RecentTurns(ctx context.Context, owner string, limit int) ([]models.Turn, error)

	// ListTurns returns every turn for owner, oldest first.
	ListTurns(ctx context.Context, owner string) ([]models.Turn, error)

	// AppendTurns counts the owner's stored turns, deletes policy.Excess(count)
	// of the oldest ones and inserts turns, all in one transaction.
	AppendTurns(ctx context.Context, owner string, policy Policy, turns ...models.Turn) (Retention, error)

	// DeleteTurns removes all history for owner and returns how many turns were removed.
	DeleteTurns(ctx context.Context, owner string) (int, error)
}

// Stats summarizes the stored data.
type Stats struct {
	Turns    int `json:"turns"`
	Owners   int `json:"owners"`
	Accounts int `json:"accounts"`
}

// Store is a complete storage backend.
type Store interface {
	Accounts
	Turns

	Ping(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
	Close(ctx context.Context) error

	// WipeData deletes all accounts and turns. Use for testing only.
	WipeData(ctx context.Context) error
}
