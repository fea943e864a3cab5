package db

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/pluisje-go/internal/metrics"
	"github.com/raphaelgruber/pluisje-go/internal/models"
	"github.com/raphaelgruber/pluisje-go/internal/store"
)

type accountRecord struct {
	ID                surrealmodels.RecordID `json:"id"`
	Email             string                 `json:"email"`
	PasswordHash      string                 `json:"password_hash"`
	Verified          bool                   `json:"verified"`
	VerificationToken *string                `json:"verification_token,omitempty"`
	Created           time.Time              `json:"created"`
}

func (r accountRecord) model() *models.Account {
	return &models.Account{
		Email:             r.Email,
		PasswordHash:      r.PasswordHash,
		Verified:          r.Verified,
		VerificationToken: r.VerificationToken,
		CreatedAt:         r.Created,
	}
}

func firstAccount(results *[]surrealdb.QueryResult[[]accountRecord]) *models.Account {
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil
	}
	return (*results)[0].Result[0].model()
}

// CreateAccount inserts a new account keyed by e-mail.
func (c *Client) CreateAccount(ctx context.Context, account models.Account) error {
	defer c.metrics.Since(metrics.OpDBQuery, time.Now())

	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	vars := map[string]any{
		"email":    account.Email,
		"hash":     account.PasswordHash,
		"verified": account.Verified,
		"created":  account.CreatedAt.UTC(),
	}
	tokenClause := ""
	if account.VerificationToken != nil {
		vars["token"] = *account.VerificationToken
		tokenClause = ", verification_token: $token"
	}

	sql := `
		CREATE type::record("account", $email) CONTENT {
			email: $email,
			password_hash: $hash,
			verified: $verified,
			created: $created` + tokenClause + `
		}
	`
	if _, err := surrealdb.Query[[]accountRecord](ctx, c.db, sql, vars); err != nil {
		return fmt.Errorf("create account: %w", wrapQueryError(err))
	}
	return nil
}

// GetAccount retrieves an account by e-mail.
func (c *Client) GetAccount(ctx context.Context, email string) (*models.Account, error) {
	defer c.metrics.Since(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]accountRecord](ctx, c.db, `
		SELECT * FROM type::record("account", $email)
	`, map[string]any{"email": email})
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	acc := firstAccount(results)
	if acc == nil {
		return nil, fmt.Errorf("get account: %w", store.ErrNotFound)
	}
	return acc, nil
}

// FindAccountByToken retrieves an account whose e-mail and verification token match.
func (c *Client) FindAccountByToken(ctx context.Context, email, token string) (*models.Account, error) {
	defer c.metrics.Since(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]accountRecord](ctx, c.db, `
		SELECT * FROM type::record("account", $email) WHERE verification_token = $token
	`, map[string]any{"email": email, "token": token})
	if err != nil {
		return nil, fmt.Errorf("find account by token: %w", err)
	}
	acc := firstAccount(results)
	if acc == nil {
		return nil, fmt.Errorf("find account by token: %w", store.ErrNotFound)
	}
	return acc, nil
}

// MarkVerified flags an account as verified.
func (c *Client) MarkVerified(ctx context.Context, email string) error {
	return c.updateAccount(ctx, "mark verified", `
		UPDATE type::record("account", $email) SET verified = true
	`, map[string]any{"email": email})
}

// UpdatePasswordHash replaces an account's password hash.
func (c *Client) UpdatePasswordHash(ctx context.Context, email, hash string) error {
	return c.updateAccount(ctx, "update password", `
		UPDATE type::record("account", $email) SET password_hash = $hash
	`, map[string]any{"email": email, "hash": hash})
}

// updateAccount runs an UPDATE on a single account record.
// UPDATE on a missing record returns no rows, which maps to ErrNotFound.
func (c *Client) updateAccount(ctx context.Context, op, sql string, vars map[string]any) error {
	defer c.metrics.Since(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]accountRecord](ctx, c.db, sql, vars)
	if err != nil {
		return fmt.Errorf("%s: %w", op, wrapQueryError(err))
	}
	if firstAccount(results) == nil {
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	return nil
}

// ListAccounts returns all accounts, oldest first.
func (c *Client) ListAccounts(ctx context.Context) ([]models.Account, error) {
	defer c.metrics.Since(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]accountRecord](ctx, c.db, `
		SELECT * FROM account ORDER BY created ASC, email ASC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	out := make([]models.Account, 0, len((*results)[0].Result))
	for _, r := range (*results)[0].Result {
		out = append(out, *r.model())
	}
	return out, nil
}
