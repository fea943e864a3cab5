package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/raphaelgruber/pluisje-go/internal/metrics"
	"github.com/raphaelgruber/pluisje-go/internal/models"
	"github.com/raphaelgruber/pluisje-go/internal/store"
)

const turnColumns = `id, owner, role, content, created_at`

func scanTurns(rows *sql.Rows) ([]models.Turn, error) {
	defer rows.Close()

	turns := []models.Turn{}
	for rows.Next() {
		var (
			t         models.Turn
			role      string
			createdAt string
		)
		if err := rows.Scan(&t.ID, &t.Owner, &role, &t.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Role = models.Role(role)
		t.CreatedAt = parseTime(createdAt)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// RecentTurns returns the newest limit turns for owner, oldest first.
func (s *Store) RecentTurns(ctx context.Context, owner string, limit int) ([]models.Turn, error) {
	defer s.metrics.Since(metrics.OpDBQuery, time.Now())

	if limit <= 0 {
		return []models.Turn{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+turnColumns+` FROM (
			SELECT `+turnColumns+` FROM turns WHERE owner = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC
	`, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}
	return scanTurns(rows)
}

// ListTurns returns every turn for owner, oldest first.
func (s *Store) ListTurns(ctx context.Context, owner string) ([]models.Turn, error) {
	defer s.metrics.Since(metrics.OpDBQuery, time.Now())

	rows, err := s.db.QueryContext(ctx, `SELECT `+turnColumns+` FROM turns WHERE owner = ? ORDER BY id ASC`, owner)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	return scanTurns(rows)
}

// AppendTurns applies the retention policy and inserts turns in one transaction.
func (s *Store) AppendTurns(ctx context.Context, owner string, policy store.Policy, turns ...models.Turn) (store.Retention, error) {
	defer s.metrics.Since(metrics.OpDBQuery, time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Retention{}, fmt.Errorf("begin append: %w", wrapError(err))
	}
	defer tx.Rollback()

	var res store.Retention
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM turns WHERE owner = ?`, owner).Scan(&res.Existing); err != nil {
		return store.Retention{}, fmt.Errorf("count turns: %w", err)
	}

	if excess := policy.Excess(res.Existing); excess > 0 {
		r, err := tx.ExecContext(ctx, `
			DELETE FROM turns WHERE id IN (
				SELECT id FROM turns WHERE owner = ? ORDER BY id ASC LIMIT ?
			)
		`, owner, excess)
		if err != nil {
			return store.Retention{}, fmt.Errorf("prune turns: %w", err)
		}
		n, _ := r.RowsAffected()
		res.Deleted = int(n)
	}

	now := time.Now()
	for _, t := range turns {
		createdAt := t.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO turns (`+turnColumns+`) VALUES (?, ?, ?, ?, ?)
		`, ulid.Make().String(), owner, string(t.Role), t.Content, formatTime(createdAt))
		if err != nil {
			return store.Retention{}, fmt.Errorf("insert turn: %w", wrapError(err))
		}
		res.Inserted++
	}

	if err := tx.Commit(); err != nil {
		return store.Retention{}, fmt.Errorf("commit append: %w", wrapError(err))
	}

	if res.Deleted > 0 {
		s.logger.Debug("pruned turns", "owner", owner, "existing", res.Existing, "deleted", res.Deleted)
	}
	return res, nil
}

// DeleteTurns removes all turns for owner.
func (s *Store) DeleteTurns(ctx context.Context, owner string) (int, error) {
	defer s.metrics.Since(metrics.OpDBQuery, time.Now())

	res, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE owner = ?`, owner)
	if err != nil {
		return 0, fmt.Errorf("delete turns: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete turns: %w", err)
	}
	return int(n), nil
}
