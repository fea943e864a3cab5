package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/raphaelgruber/pluisje-go/internal/metrics"
	"github.com/raphaelgruber/pluisje-go/internal/models"
	"github.com/raphaelgruber/pluisje-go/internal/store"
)

const accountColumns = `email, password_hash, verified, verification_token, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		acc       models.Account
		verified  int
		token     sql.NullString
		createdAt string
	)
	if err := row.Scan(&acc.Email, &acc.PasswordHash, &verified, &token, &createdAt); err != nil {
		return nil, err
	}
	acc.Verified = verified != 0
	if token.Valid {
		acc.VerificationToken = &token.String
	}
	acc.CreatedAt = parseTime(createdAt)
	return &acc, nil
}

// CreateAccount inserts a new account.
func (s *Store) CreateAccount(ctx context.Context, account models.Account) error {
	defer s.metrics.Since(metrics.OpDBQuery, time.Now())

	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	verified := 0
	if account.Verified {
		verified = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?)
	`, account.Email, account.PasswordHash, verified, account.VerificationToken, formatTime(account.CreatedAt))
	if err != nil {
		return fmt.Errorf("create account: %w", wrapError(err))
	}
	return nil
}

// GetAccount retrieves an account by e-mail.
func (s *Store) GetAccount(ctx context.Context, email string) (*models.Account, error) {
	defer s.metrics.Since(metrics.OpDBQuery, time.Now())

	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = ?`, email)
	acc, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", wrapError(err))
	}
	return acc, nil
}

// FindAccountByToken retrieves an account whose e-mail and verification token match.
func (s *Store) FindAccountByToken(ctx context.Context, email, token string) (*models.Account, error) {
	defer s.metrics.Since(metrics.OpDBQuery, time.Now())

	row := s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE email = ? AND verification_token = ?
	`, email, token)
	acc, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("find account by token: %w", wrapError(err))
	}
	return acc, nil
}

// MarkVerified flags an account as verified.
func (s *Store) MarkVerified(ctx context.Context, email string) error {
	return s.updateAccount(ctx, "mark verified", `UPDATE accounts SET verified = 1 WHERE email = ?`, email)
}

// UpdatePasswordHash replaces an account's password hash.
func (s *Store) UpdatePasswordHash(ctx context.Context, email, hash string) error {
	return s.updateAccount(ctx, "update password", `UPDATE accounts SET password_hash = ? WHERE email = ?`, hash, email)
}

func (s *Store) updateAccount(ctx context.Context, op, query string, args ...any) error {
	defer s.metrics.Since(metrics.OpDBQuery, time.Now())

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, wrapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	return nil
}

// ListAccounts returns all accounts, oldest first.
func (s *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	defer s.metrics.Since(metrics.OpDBQuery, time.Now())

	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at, email`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []models.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, *acc)
	}
	return out, rows.Err()
}
