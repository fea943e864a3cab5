// Package storetest provides a conformance suite run against every storage backend.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/pluisje-go/internal/models"
	"github.com/raphaelgruber/pluisje-go/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run executes the suite. s may be shared between subtests; every subtest
// works on its own identities.
func Run(t *testing.T, s store.Store) {
	t.Run("accounts", func(t *testing.T) { testAccounts(t, s) })
	t.Run("verification token", func(t *testing.T) { testVerificationToken(t, s) })
	t.Run("password update", func(t *testing.T) { testPasswordUpdate(t, s) })
	t.Run("turn order", func(t *testing.T) { testTurnOrder(t, s) })
	t.Run("recent turns limit", func(t *testing.T) { testRecentTurnsLimit(t, s) })
	t.Run("retention below cap", func(t *testing.T) { testRetentionBelowCap(t, s) })
	t.Run("retention at cap", func(t *testing.T) { testRetentionAtCap(t, s) })
	t.Run("retention disabled", func(t *testing.T) { testRetentionDisabled(t, s) })
	t.Run("owner isolation", func(t *testing.T) { testOwnerIsolation(t, s) })
	t.Run("delete turns", func(t *testing.T) { testDeleteTurns(t, s) })
	t.Run("stats", func(t *testing.T) { testStats(t, s) })
	// Must stay last: empties the store.
	t.Run("wipe", func(t *testing.T) { testWipe(t, s) })
}

// identity returns an e-mail address unique to this run.
func identity(prefix string) string {
	return fmt.Sprintf("%s-%s@example.com", prefix, uuid.New().String()[:8])
}

// seed stores n alternating user/assistant turns with contents "turn-0".."turn-(n-1)".
func seed(t *testing.T, s store.Store, owner string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		_, err := s.AppendTurns(ctx, owner, store.Policy{}, models.Turn{
			Role:    role,
			Content: fmt.Sprintf("turn-%d", i),
		})
		require.NoError(t, err)
	}
}

func contents(turns []models.Turn) []string {
	out := make([]string, len(turns))
	for i, t := range turns {
		out[i] = t.Content
	}
	return out
}

func pair(user, assistant string) []models.Turn {
	return []models.Turn{
		{Role: models.RoleUser, Content: user},
		{Role: models.RoleAssistant, Content: assistant},
	}
}

func testAccounts(t *testing.T, s store.Store) {
	ctx := context.Background()
	email := identity("acc")

	_, err := s.GetAccount(ctx, email)
	require.ErrorIs(t, err, store.ErrNotFound)

	token := "tok-" + uuid.New().String()
	err = s.CreateAccount(ctx, models.Account{
		Email:             email,
		PasswordHash:      "hash",
		VerificationToken: &token,
		CreatedAt:         time.Now(),
	})
	require.NoError(t, err)

	err = s.CreateAccount(ctx, models.Account{Email: email, PasswordHash: "other"})
	require.ErrorIs(t, err, store.ErrAlreadyExists)

	acc, err := s.GetAccount(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, email, acc.Email)
	assert.Equal(t, "hash", acc.PasswordHash)
	assert.False(t, acc.Verified)
	require.NotNil(t, acc.VerificationToken)
	assert.Equal(t, token, *acc.VerificationToken)

	require.NoError(t, s.MarkVerified(ctx, email))
	acc, err = s.GetAccount(ctx, email)
	require.NoError(t, err)
	assert.True(t, acc.Verified)

	all, err := s.ListAccounts(ctx)
	require.NoError(t, err)
	found := false
	for _, a := range all {
		if a.Email == email {
			found = true
		}
	}
	assert.True(t, found, "ListAccounts should include %s", email)

	assert.ErrorIs(t, s.MarkVerified(ctx, identity("missing")), store.ErrNotFound)
}

func testVerificationToken(t *testing.T, s store.Store) {
	ctx := context.Background()
	email := identity("tok")
	token := uuid.New().String()

	require.NoError(t, s.CreateAccount(ctx, models.Account{
		Email:             email,
		PasswordHash:      "hash",
		VerificationToken: &token,
	}))

	acc, err := s.FindAccountByToken(ctx, email, token)
	require.NoError(t, err)
	assert.Equal(t, email, acc.Email)

	_, err = s.FindAccountByToken(ctx, email, "wrong-token")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.FindAccountByToken(ctx, identity("other"), token)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// A failed lookup must not touch the account
	acc, err = s.GetAccount(ctx, email)
	require.NoError(t, err)
	assert.False(t, acc.Verified)
}

func testPasswordUpdate(t *testing.T, s store.Store) {
	ctx := context.Background()
	email := identity("pw")

	require.NoError(t, s.CreateAccount(ctx, models.Account{Email: email, PasswordHash: "old"}))
	require.NoError(t, s.UpdatePasswordHash(ctx, email, "new"))

	acc, err := s.GetAccount(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, "new", acc.PasswordHash)

	assert.ErrorIs(t, s.UpdatePasswordHash(ctx, identity("missing"), "x"), store.ErrNotFound)
}

func testTurnOrder(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := identity("order")

	res, err := s.AppendTurns(ctx, owner, store.DefaultPolicy(), pair("question", "answer")...)
	require.NoError(t, err)
	assert.Equal(t, store.Retention{Existing: 0, Deleted: 0, Inserted: 2}, res)

	turns, err := s.ListTurns(ctx, owner)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, models.RoleUser, turns[0].Role)
	assert.Equal(t, "question", turns[0].Content)
	assert.Equal(t, models.RoleAssistant, turns[1].Role)
	assert.Equal(t, "answer", turns[1].Content)
	assert.Equal(t, owner, turns[0].Owner)
	assert.NotEmpty(t, turns[0].ID)
	assert.NotEqual(t, turns[0].ID, turns[1].ID)
	assert.False(t, turns[0].CreatedAt.IsZero())
}

func testRecentTurnsLimit(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := identity("recent")
	seed(t, s, owner, 21)

	turns, err := s.RecentTurns(ctx, owner, 20)
	require.NoError(t, err)
	require.Len(t, turns, 20)
	assert.Equal(t, "turn-1", turns[0].Content, "oldest of the newest 20 comes first")
	assert.Equal(t, "turn-20", turns[19].Content)
	assert.NotContains(t, contents(turns), "turn-0", "21st-oldest row is never included")

	few, err := s.RecentTurns(ctx, identity("empty"), 20)
	require.NoError(t, err)
	assert.Empty(t, few)
}

func testRetentionBelowCap(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := identity("below")
	seed(t, s, owner, 11)

	res, err := s.AppendTurns(ctx, owner, store.DefaultPolicy(), pair("new-q", "new-a")...)
	require.NoError(t, err)
	assert.Equal(t, 11, res.Existing)
	assert.Equal(t, 0, res.Deleted)

	turns, err := s.ListTurns(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, turns, 13, "pruning only starts once the cap is reached")
}

func testRetentionAtCap(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := identity("cap")
	seed(t, s, owner, 13)

	res, err := s.AppendTurns(ctx, owner, store.DefaultPolicy(), pair("new-q", "new-a")...)
	require.NoError(t, err)
	assert.Equal(t, 13, res.Existing)
	assert.Equal(t, 3, res.Deleted, "13 - 12 + 2")
	assert.Equal(t, 2, res.Inserted)

	turns, err := s.ListTurns(ctx, owner)
	require.NoError(t, err)
	require.Len(t, turns, 12)

	want := []string{}
	for i := 3; i < 13; i++ {
		want = append(want, fmt.Sprintf("turn-%d", i))
	}
	want = append(want, "new-q", "new-a")
	assert.Equal(t, want, contents(turns))
}

func testRetentionDisabled(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := identity("nocap")
	seed(t, s, owner, 14)

	res, err := s.AppendTurns(ctx, owner, store.Policy{}, pair("q", "a")...)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Deleted)

	turns, err := s.ListTurns(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, turns, 16)
}

func testOwnerIsolation(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := identity("iso-a")
	b := identity("iso-b")
	seed(t, s, a, 12)
	seed(t, s, b, 3)

	_, err := s.AppendTurns(ctx, a, store.DefaultPolicy(), pair("q", "a")...)
	require.NoError(t, err)

	turns, err := s.ListTurns(ctx, b)
	require.NoError(t, err)
	assert.Len(t, turns, 3, "pruning one identity leaves others alone")
}

func testDeleteTurns(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := identity("del")
	seed(t, s, owner, 4)

	n, err := s.DeleteTurns(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	turns, err := s.ListTurns(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func testStats(t *testing.T, s store.Store) {
	ctx := context.Background()
	before, err := s.Stats(ctx)
	require.NoError(t, err)

	owner := identity("stats")
	seed(t, s, owner, 2)
	require.NoError(t, s.CreateAccount(ctx, models.Account{Email: owner, PasswordHash: "h"}))

	after, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Turns+2, after.Turns)
	assert.Equal(t, before.Owners+1, after.Owners)
	assert.Equal(t, before.Accounts+1, after.Accounts)

	require.NoError(t, s.Ping(ctx))
}

func testWipe(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s, identity("wipe"), 2)

	require.NoError(t, s.WipeData(ctx))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Stats{}, st)
}
