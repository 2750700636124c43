package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tfkr-ae/furlong/domain"
)

var _ domain.ConversationRepository = (*Repository)(nil)

var (
	// ErrConversationNotFound is returned when no conversation matches the given ID.
	ErrConversationNotFound = errors.New("conversation not found")
)

// dbConversation represents a conversation as stored in the database.
type dbConversation struct {
	ID        uuid.UUID `db:"id"`
	OwnerID   string    `db:"owner_id"`
	Title     string    `db:"title"`
	Pinned    bool      `db:"pinned"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// dbMessage represents a chat message as stored in the database.
type dbMessage struct {
	ID             uuid.UUID `db:"id"`
	ConversationID uuid.UUID `db:"conversation_id"`
	Role           string    `db:"role"`
	Content        string    `db:"content"`
	CreatedAt      time.Time `db:"created_at"`
}

func toDomainConversation(c *dbConversation) *domain.Conversation {
	return &domain.Conversation{
		ID:        c.ID,
		OwnerID:   c.OwnerID,
		Title:     c.Title,
		Pinned:    c.Pinned,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func toDomainMessage(m *dbMessage) *domain.ChatMessage {
	return &domain.ChatMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Role:           m.Role,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
	}
}

// CreateConversation inserts a new, empty conversation.
func (repo *Repository) CreateConversation(conversation *domain.Conversation) error {
	query := `INSERT INTO conversation (id, owner_id, title, pinned, created_at, updated_at)
	          VALUES (:id, :owner_id, :title, :pinned, :created_at, :updated_at)`

	_, err := repo.dbConn.NamedExec(query, &dbConversation{
		ID:        conversation.ID,
		OwnerID:   conversation.OwnerID,
		Title:     conversation.Title,
		Pinned:    conversation.Pinned,
		CreatedAt: conversation.CreatedAt.UTC(),
		UpdatedAt: conversation.UpdatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("creating conversation %s: %w", conversation.ID, err)
	}
	return nil
}

// GetConversations retrieves the conversations owned by ownerID, pinned first, then most recently updated.
func (repo *Repository) GetConversations(ownerID string) ([]*domain.Conversation, error) {
	var dbConversations []*dbConversation
	query := `SELECT id, owner_id, title, pinned, created_at, updated_at
	          FROM conversation WHERE owner_id = ?
	          ORDER BY pinned DESC, updated_at DESC`

	if err := repo.dbConn.Select(&dbConversations, query, ownerID); err != nil {
		return nil, fmt.Errorf("getting conversations for %s: %w", ownerID, err)
	}

	conversations := make([]*domain.Conversation, len(dbConversations))
	for i, c := range dbConversations {
		conversations[i] = toDomainConversation(c)
	}
	return conversations, nil
}

// GetConversation retrieves a conversation with all of its messages in order.
func (repo *Repository) GetConversation(id uuid.UUID) (*domain.Conversation, error) {
	var c dbConversation
	query := `SELECT id, owner_id, title, pinned, created_at, updated_at FROM conversation WHERE id = ?`

	if err := repo.dbConn.Get(&c, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("getting conversation %s: %w", id, err)
	}

	var dbMessages []*dbMessage
	query = `SELECT id, conversation_id, role, content, created_at
	         FROM message WHERE conversation_id = ?
	         ORDER BY created_at, id`
	if err := repo.dbConn.Select(&dbMessages, query, id); err != nil {
		return nil, fmt.Errorf("getting messages for conversation %s: %w", id, err)
	}

	conversation := toDomainConversation(&c)
	conversation.Messages = make([]*domain.ChatMessage, len(dbMessages))
	for i, m := range dbMessages {
		conversation.Messages[i] = toDomainMessage(m)
	}
	return conversation, nil
}

// DeleteConversation removes a conversation and, through the foreign key, its messages.
func (repo *Repository) DeleteConversation(id uuid.UUID) error {
	result, err := repo.dbConn.Exec(`DELETE FROM conversation WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("fetching rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// AppendMessages adds messages to a conversation and bumps its updated time to the newest message.
func (repo *Repository) AppendMessages(conversationID uuid.UUID, messages ...*domain.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := repo.dbConn.Beginx()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO message (id, conversation_id, role, content, created_at)
	          VALUES (:id, :conversation_id, :role, :content, :created_at)`

	latest := time.Time{}
	for _, m := range messages {
		_, err := tx.NamedExec(query, &dbMessage{
			ID:             m.ID,
			ConversationID: conversationID,
			Role:           m.Role,
			Content:        m.Content,
			CreatedAt:      m.CreatedAt.UTC(),
		})
		if err != nil {
			if isForeignKeyViolation(err) {
				return ErrConversationNotFound
			}
			return fmt.Errorf("appending message to conversation %s: %w", conversationID, err)
		}
		if m.CreatedAt.After(latest) {
			latest = m.CreatedAt
		}
	}

	_, err = tx.Exec(`UPDATE conversation SET updated_at = ? WHERE id = ?`, latest.UTC(), conversationID)
	if err != nil {
		return fmt.Errorf("bumping conversation %s: %w", conversationID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing messages: %w", err)
	}
	return nil
}

// CountUserMessages counts the user-role messages sent by ownerID across all of its conversations.
func (repo *Repository) CountUserMessages(ownerID string) (int, error) {
	var count int
	query := `SELECT COUNT(*)
	          FROM message m
	          JOIN conversation c ON c.id = m.conversation_id
	          WHERE c.owner_id = ? AND m.role = ?`

	if err := repo.dbConn.Get(&count, query, ownerID, domain.RoleUser); err != nil {
		return 0, fmt.Errorf("counting messages for %s: %w", ownerID, err)
	}
	return count, nil
}
