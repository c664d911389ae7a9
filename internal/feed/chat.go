package feed

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// ChatLimit is how many messages the feed retains.
	ChatLimit = 50

	SystemAuthor = "系统"
	HostAuthor   = "主播"
	HostColor    = "#FFFFFF"
)

// ChatMessage is a single chat line.
type ChatMessage struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Message  string    `json:"message"`
	Color    string    `json:"color"`
	IsSystem bool      `json:"is_system"`
	IsHost   bool      `json:"is_host"`
	At       time.Time `json:"at"`
}

// SystemMessage builds a system-originated line.
func SystemMessage(text string) ChatMessage {
	return ChatMessage{Username: SystemAuthor, Message: text, Color: HostColor, IsSystem: true}
}

// HostMessage builds a line attributed to the presenter.
func HostMessage(text string) ChatMessage {
	return ChatMessage{Username: HostAuthor, Message: text, Color: HostColor, IsHost: true}
}

// ViewerMessage builds a line from a simulated viewer.
func ViewerMessage(username, text, color string) ChatMessage {
	return ChatMessage{Username: username, Message: text, Color: color}
}

// Chat is a bounded, ordered chat history. The oldest message is evicted first.
type Chat struct {
	mu       sync.RWMutex
	limit    int
	messages []ChatMessage
}

// NewChat creates a chat feed retaining at most limit messages (ChatLimit when limit <= 0).
func NewChat(limit int) *Chat {
	if limit <= 0 {
		limit = ChatLimit
	}
	return &Chat{limit: limit, messages: make([]ChatMessage, 0, limit)}
}

// Append stores m, assigning an id when it has none, and returns the stored message.
func (c *Chat) Append(m ChatMessage, now time.Time) ChatMessage {
	if m.ID == uuid.Nil {
		m.ID = uuid.Must(uuid.NewV7())
	}
	if m.At.IsZero() {
		m.At = now
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, m)
	if over := len(c.messages) - c.limit; over > 0 {
		copy(c.messages, c.messages[over:])
		c.messages = c.messages[:c.limit]
	}
	return m
}

// Messages returns a copy of the retained messages, oldest first.
func (c *Chat) Messages() []ChatMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Chat) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}
