package db

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/pluisje-go/internal/metrics"
	"github.com/raphaelgruber/pluisje-go/internal/models"
	"github.com/raphaelgruber/pluisje-go/internal/store"
)

type turnRecord struct {
	ID      surrealmodels.RecordID `json:"id"`
	Owner   string                 `json:"owner"`
	Role    string                 `json:"role"`
	Content string                 `json:"content"`
	Created time.Time              `json:"created"`
}

func (r turnRecord) model() models.Turn {
	return models.Turn{
		ID:        recordKey(r.ID),
		Owner:     r.Owner,
		Role:      models.Role(r.Role),
		Content:   r.Content,
		CreatedAt: r.Created,
	}
}

func turnsFrom(results *[]surrealdb.QueryResult[[]turnRecord]) []models.Turn {
	out := []models.Turn{}
	if results == nil || len(*results) == 0 {
		return out
	}
	for _, r := range (*results)[0].Result {
		out = append(out, r.model())
	}
	return out
}

// RecentTurns returns the newest limit turns for owner, oldest first.
func (c *Client) RecentTurns(ctx context.Context, owner string, limit int) ([]models.Turn, error) {
	defer c.metrics.Since(metrics.OpDBQuery, time.Now())

	if limit <= 0 {
		return []models.Turn{}, nil
	}
	results, err := surrealdb.Query[[]turnRecord](ctx, c.db, `
		SELECT * FROM (
			SELECT * FROM turn WHERE owner = $owner ORDER BY id DESC LIMIT $limit
		) ORDER BY id ASC
	`, map[string]any{"owner": owner, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}
	return turnsFrom(results), nil
}

// ListTurns returns every turn for owner, oldest first.
func (c *Client) ListTurns(ctx context.Context, owner string) ([]models.Turn, error) {
	defer c.metrics.Since(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]turnRecord](ctx, c.db, `
		SELECT * FROM turn WHERE owner = $owner ORDER BY id ASC
	`, map[string]any{"owner": owner})
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	return turnsFrom(results), nil
}

// appendTurnsSQL counts the owner's turns, prunes the oldest ones once the
// cap is reached and creates the new turns inside one transaction.
// The excess expression must stay in sync with store.Policy.Excess.
const appendTurnsSQL = `
	BEGIN TRANSACTION;
	LET $existing = (SELECT VALUE id FROM turn WHERE owner = $owner ORDER BY id ASC);
	LET $count = array::len($existing);
	LET $excess = IF $max > 0 AND $count >= $max THEN
		math::min([$count, math::max([0, $count - $max + $reserve])])
	ELSE 0 END;
	IF $excess > 0 THEN
		(DELETE turn WHERE id IN array::slice($existing, 0, $excess))
	END;
	FOR $t IN $turns {
		CREATE type::record("turn", $t.id) CONTENT {
			owner: $owner,
			role: $t.role,
			content: $t.content,
			created: $t.created
		};
	};
	RETURN $count;
	COMMIT TRANSACTION;
`

// AppendTurns applies the retention policy and inserts turns in one transaction.
func (c *Client) AppendTurns(ctx context.Context, owner string, policy store.Policy, turns ...models.Turn) (store.Retention, error) {
	defer c.metrics.Since(metrics.OpDBQuery, time.Now())

	now := time.Now().UTC()
	rows := make([]map[string]any, 0, len(turns))
	for _, t := range turns {
		created := t.CreatedAt
		if created.IsZero() {
			created = now
		}
		rows = append(rows, map[string]any{
			"id":      ulid.Make().String(),
			"role":    string(t.Role),
			"content": t.Content,
			"created": created.UTC(),
		})
	}

	results, err := surrealdb.Query[any](ctx, c.db, appendTurnsSQL, map[string]any{
		"owner":   owner,
		"max":     policy.MaxTurns,
		"reserve": policy.Reserve,
		"turns":   rows,
	})
	if err != nil {
		return store.Retention{}, fmt.Errorf("append turns: %w", wrapQueryError(err))
	}

	existing, ok := lastCount(results)
	if !ok {
		return store.Retention{}, fmt.Errorf("append turns: missing count in result")
	}

	res := store.Retention{
		Existing: existing,
		Deleted:  policy.Excess(existing),
		Inserted: len(turns),
	}
	if res.Deleted > 0 {
		c.logger.Debug("pruned turns", "owner", owner, "existing", res.Existing, "deleted", res.Deleted)
	}
	return res, nil
}

// lastCount returns the last numeric statement result, which is RETURN $count.
func lastCount(results *[]surrealdb.QueryResult[any]) (int, bool) {
	if results == nil {
		return 0, false
	}
	for i := len(*results) - 1; i >= 0; i-- {
		if n, ok := toInt((*results)[i].Result); ok {
			return n, true
		}
	}
	return 0, false
}

// DeleteTurns removes all turns for owner.
func (c *Client) DeleteTurns(ctx context.Context, owner string) (int, error) {
	defer c.metrics.Since(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]turnRecord](ctx, c.db, `
		DELETE turn WHERE owner = $owner RETURN BEFORE
	`, map[string]any{"owner": owner})
	if err != nil {
		return 0, fmt.Errorf("delete turns: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}
