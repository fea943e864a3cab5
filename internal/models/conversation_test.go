package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationSeed(t *testing.T) {
	c := NewConversation("a@x.com")
	assert.False(t, c.Hydrated())

	c.Seed("persona", []Turn{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	})

	require.True(t, c.Hydrated())
	require.Len(t, c.Messages, 3)
	assert.Equal(t, ChatMessage{Role: RoleSystem, Content: "persona"}, c.Messages[0])
	assert.Equal(t, RoleAssistant, c.Messages[2].Role)
}

func TestConversationRollback(t *testing.T) {
	c := NewConversation("a@x.com")
	c.Seed("persona", nil)

	mark := c.Append(RoleUser, "question")
	assert.Len(t, c.Messages, 2)

	c.Rollback(mark)
	assert.Len(t, c.Messages, 1)

	// Out of range is a no-op
	c.Rollback(5)
	assert.Len(t, c.Messages, 1)
}

func TestConversationKeepLast(t *testing.T) {
	c := NewConversation("a@x.com")
	c.Seed("persona", nil)
	for i := 0; i < 5; i++ {
		c.Append(RoleUser, "q")
	}

	c.KeepLast(3)
	require.Len(t, c.Messages, 3)
	for _, m := range c.Messages {
		assert.Equal(t, RoleUser, m.Role, "system entry is dropped like any other")
	}

	c.KeepLast(10)
	assert.Len(t, c.Messages, 3)
}

func TestConversationSnapshotIsCopy(t *testing.T) {
	c := NewConversation("a@x.com")
	c.Seed("persona", nil)

	snap := c.Snapshot()
	snap[0].Content = "changed"

	assert.Equal(t, "persona", c.Messages[0].Content)
}

func TestConversationReset(t *testing.T) {
	c := NewConversation("a@x.com")
	c.Seed("persona", nil)
	c.Reset()

	assert.False(t, c.Hydrated())
	assert.Empty(t, c.Messages)
}
