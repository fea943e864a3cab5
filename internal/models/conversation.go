package models

// Conversation is the ephemeral message window of one browser session.
// It is created empty and hydrated from persisted turns on first use.
type Conversation struct {
	Identity string        `json:"identity"`
	Messages []ChatMessage `json:"messages"`
	hydrated bool
}

// NewConversation creates an empty, not yet hydrated window for identity.
func NewConversation(identity string) *Conversation {
	return &Conversation{Identity: identity}
}

// Hydrated reports whether the window has been seeded.
func (c *Conversation) Hydrated() bool {
	return c.hydrated
}

// Seed initializes the window with a system entry followed by history.
func (c *Conversation) Seed(system string, history []Turn) {
	c.Messages = make([]ChatMessage, 0, len(history)+3)
	c.Messages = append(c.Messages, ChatMessage{Role: RoleSystem, Content: system})
	for _, t := range history {
		c.Messages = append(c.Messages, ChatMessage{Role: t.Role, Content: t.Content})
	}
	c.hydrated = true
}

// Append adds a message and returns the window length before the append,
// which can be passed to Rollback.
func (c *Conversation) Append(role Role, content string) int {
	n := len(c.Messages)
	c.Messages = append(c.Messages, ChatMessage{Role: role, Content: content})
	return n
}

// Rollback drops every message at or after index n.
func (c *Conversation) Rollback(n int) {
	if n < 0 || n >= len(c.Messages) {
		return
	}
	c.Messages = c.Messages[:n]
}

// KeepLast truncates the window to its last n messages.
// The system entry is not treated specially.
func (c *Conversation) KeepLast(n int) {
	if n < 0 || len(c.Messages) <= n {
		return
	}
	kept := make([]ChatMessage, n)
	copy(kept, c.Messages[len(c.Messages)-n:])
	c.Messages = kept
}

// Snapshot returns a copy of the window suitable for submission.
func (c *Conversation) Snapshot() []ChatMessage {
	out := make([]ChatMessage, len(c.Messages))
	copy(out, c.Messages)
	return out
}

// Reset discards the window; the next request hydrates it again.
func (c *Conversation) Reset() {
	c.Messages = nil
	c.hydrated = false
}
