package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConversationRepository defines the interface for AI Analyst chat history.
type ConversationRepository interface {
	// CreateConversation inserts a new, empty conversation.
	CreateConversation(conversation *Conversation) error

	// GetConversations retrieves the conversations owned by ownerID, most recently updated first.
	// Messages are not loaded.
	GetConversations(ownerID string) ([]*Conversation, error)

	// GetConversation retrieves a conversation with all of its messages in order.
	// It returns an error if the conversation does not exist.
	GetConversation(id uuid.UUID) (*Conversation, error)

	// DeleteConversation removes a conversation and its messages.
	DeleteConversation(id uuid.UUID) error

	// AppendMessages adds messages to a conversation and bumps its updated time.
	AppendMessages(conversationID uuid.UUID, messages ...*ChatMessage) error

	// CountUserMessages counts the messages with the user role sent by ownerID across all
	// of its conversations.
	CountUserMessages(ownerID string) (int, error)
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation is a thread with the AI Analyst.
type Conversation struct {
	ID        uuid.UUID      `json:"id"`
	OwnerID   string         `json:"ownerId"` // user ID, or "guest:<session>" for guests
	Title     string         `json:"title"`
	Pinned    bool           `json:"pinned"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Messages  []*ChatMessage `json:"messages,omitempty"`
}

// ChatMessage is a single turn in a conversation.
type ChatMessage struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversationId"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}
