// Package analyst runs the AI Analyst chat: it stores conversations, enforces the guest
// message allowance and asks a Responder for the analyst's reply.
package analyst

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tfkr-ae/furlong/domain"
)

// DefaultGuestLimit is the number of messages a guest may send before signing up.
const DefaultGuestLimit = 10

const titleLength = 48

var (
	// ErrEmptyMessage is returned when a message has no content.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrGuestLimitReached is returned when a guest has used every allowed message.
	ErrGuestLimitReached = errors.New("guest message limit reached, sign up to keep chatting")
	// ErrConversationNotFound is returned when a conversation does not exist or belongs to someone else.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrGuestCannotDelete is returned when a guest tries to delete a conversation.
	ErrGuestCannotDelete = errors.New("guests cannot delete conversations")
	// ErrNoIdentity is returned when neither a user nor a guest session is known.
	ErrNoIdentity = errors.New("no user or guest session")
)

// Identity is the person chatting: a signed in user or a guest session.
type Identity struct {
	UserID       string
	GuestSession string
}

// IsGuest reports whether the identity has no user account.
func (who Identity) IsGuest() bool {
	return who.UserID == ""
}

// OwnerID returns the key conversations are stored under.
func (who Identity) OwnerID() string {
	if who.UserID != "" {
		return who.UserID
	}
	return "guest:" + who.GuestSession
}

func (who Identity) valid() bool {
	return who.UserID != "" || who.GuestSession != ""
}

// Responder produces the analyst's answer to a question.
type Responder interface {
	Respond(ctx context.Context, question string, history []*domain.ChatMessage) (string, error)
}

// Exchange is the result of a successful Send.
type Exchange struct {
	Conversation *domain.Conversation `json:"conversation"`
	Question     *domain.ChatMessage  `json:"question"`
	Reply        *domain.ChatMessage  `json:"reply"`
	Remaining    int                  `json:"remaining"` // -1 for signed in users
}

// Analyst is safe for concurrent use.
type Analyst struct {
	repo      domain.ConversationRepository
	logger    *slog.Logger
	now       func() time.Time
	sendMu    sync.Mutex
	mu        sync.RWMutex
	responder Responder
	limit     int
}

// New creates an Analyst backed by repo. It answers with a CannedResponder and allows
// DefaultGuestLimit guest messages unless options say otherwise.
func New(repo domain.ConversationRepository, options ...func(*Analyst) error) (*Analyst, error) {
	if repo == nil {
		return nil, errors.New("analyst needs a conversation repository")
	}
	analyst := &Analyst{
		repo:      repo,
		logger:    slog.New(slog.DiscardHandler),
		now:       time.Now,
		responder: CannedResponder{},
		limit:     DefaultGuestLimit,
	}
	for _, option := range options {
		if err := option(analyst); err != nil {
			return nil, fmt.Errorf("applying option on analyst: %w", err)
		}
	}
	return analyst, nil
}

// WithResponder sets the Responder used to answer questions.
func WithResponder(responder Responder) func(*Analyst) error {
	return func(a *Analyst) error {
		if responder == nil {
			return errors.New("responder is nil")
		}
		a.responder = responder
		return nil
	}
}

// WithGuestLimit sets how many messages a guest may send.
func WithGuestLimit(limit int) func(*Analyst) error {
	return func(a *Analyst) error {
		if limit < 0 {
			return fmt.Errorf("invalid guest limit %d", limit)
		}
		a.limit = limit
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) func(*Analyst) error {
	return func(a *Analyst) error {
		if logger != nil {
			a.logger = logger
		}
		return nil
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) func(*Analyst) error {
	return func(a *Analyst) error {
		a.now = now
		return nil
	}
}

// SetResponder swaps the Responder, e.g. after the analyst script changed on disk.
func (a *Analyst) SetResponder(responder Responder) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.responder = responder
}

// SetGuestLimit changes the guest allowance for subsequent messages.
func (a *Analyst) SetGuestLimit(limit int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.limit = limit
}

// GuestLimit returns the current guest allowance.
func (a *Analyst) GuestLimit() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.limit
}

func (a *Analyst) currentResponder() Responder {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.responder
}

// Remaining returns how many messages who may still send. Signed in users are not
// limited and get -1.
func (a *Analyst) Remaining(who Identity) (int, error) {
	if !who.valid() {
		return 0, ErrNoIdentity
	}
	if !who.IsGuest() {
		return -1, nil
	}

	sent, err := a.repo.CountUserMessages(who.OwnerID())
	if err != nil {
		return 0, fmt.Errorf("counting guest messages: %w", err)
	}
	return max(a.GuestLimit()-sent, 0), nil
}

// Send posts content to a conversation and stores the analyst's reply. A nil
// conversationID starts a new conversation titled after content. Guests that reached
// their allowance get ErrGuestLimitReached and nothing is stored.
func (a *Analyst) Send(ctx context.Context, who Identity, conversationID uuid.UUID, content string) (*Exchange, error) {
	if !who.valid() {
		return nil, ErrNoIdentity
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	conversation, question, remaining, err := a.storeQuestion(who, conversationID, content)
	if err != nil {
		return nil, err
	}

	reply, err := a.currentResponder().Respond(ctx, content, conversation.Messages)
	if err != nil {
		a.logger.Warn("analyst responder failed", "conversation", conversation.ID, "error", err)
		reply, _ = CannedResponder{}.Respond(ctx, content, conversation.Messages)
	}

	answer := &domain.ChatMessage{
		ID:             uuid.Must(uuid.NewV7()),
		ConversationID: conversation.ID,
		Role:           domain.RoleAssistant,
		Content:        reply,
		CreatedAt:      a.now().UTC(),
	}
	if err := a.repo.AppendMessages(conversation.ID, answer); err != nil {
		return nil, fmt.Errorf("storing reply: %w", err)
	}

	conversation.Messages = append(conversation.Messages, answer)
	conversation.UpdatedAt = answer.CreatedAt
	return &Exchange{Conversation: conversation, Question: question, Reply: answer, Remaining: remaining}, nil
}

// storeQuestion checks the guest allowance and appends the question under one lock so
// concurrent sends from the same guest cannot overrun the limit.
func (a *Analyst) storeQuestion(who Identity, conversationID uuid.UUID, content string) (*domain.Conversation, *domain.ChatMessage, int, error) {
	a.sendMu.Lock()
	defer a.sendMu.Unlock()

	remaining := -1
	if who.IsGuest() {
		left, err := a.Remaining(who)
		if err != nil {
			return nil, nil, 0, err
		}
		if left <= 0 {
			return nil, nil, 0, ErrGuestLimitReached
		}
		remaining = left - 1
	}

	now := a.now().UTC()
	var conversation *domain.Conversation
	if conversationID == uuid.Nil {
		conversation = &domain.Conversation{
			ID:        uuid.Must(uuid.NewV7()),
			OwnerID:   who.OwnerID(),
			Title:     Title(content),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := a.repo.CreateConversation(conversation); err != nil {
			return nil, nil, 0, fmt.Errorf("starting conversation: %w", err)
		}
	} else {
		existing, err := a.Conversation(who, conversationID)
		if err != nil {
			return nil, nil, 0, err
		}
		conversation = existing
	}

	question := &domain.ChatMessage{
		ID:             uuid.Must(uuid.NewV7()),
		ConversationID: conversation.ID,
		Role:           domain.RoleUser,
		Content:        content,
		CreatedAt:      now,
	}
	if err := a.repo.AppendMessages(conversation.ID, question); err != nil {
		return nil, nil, 0, fmt.Errorf("storing question: %w", err)
	}
	conversation.Messages = append(conversation.Messages, question)
	return conversation, question, remaining, nil
}

// Conversations lists the conversations of who, pinned first, then most recent.
func (a *Analyst) Conversations(who Identity) ([]*domain.Conversation, error) {
	if !who.valid() {
		return nil, ErrNoIdentity
	}
	conversations, err := a.repo.GetConversations(who.OwnerID())
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	return conversations, nil
}

// Conversation returns a conversation with its messages if it belongs to who.
func (a *Analyst) Conversation(who Identity, id uuid.UUID) (*domain.Conversation, error) {
	if !who.valid() {
		return nil, ErrNoIdentity
	}
	conversation, err := a.repo.GetConversation(id)
	if err != nil {
		return nil, fmt.Errorf("getting conversation %s: %w", id, err)
	}
	if conversation.OwnerID != who.OwnerID() {
		return nil, ErrConversationNotFound
	}
	return conversation, nil
}

// Delete removes a conversation owned by who. Guests keep their history so the
// allowance cannot be reset by deleting it.
func (a *Analyst) Delete(who Identity, id uuid.UUID) error {
	if who.IsGuest() {
		return ErrGuestCannotDelete
	}
	if _, err := a.Conversation(who, id); err != nil {
		return err
	}
	if err := a.repo.DeleteConversation(id); err != nil {
		return fmt.Errorf("deleting conversation %s: %w", id, err)
	}
	return nil
}

// Title derives a conversation title from its first message.
func Title(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(content) <= titleLength {
		return content
	}
	runes := []rune(content)
	return strings.TrimSpace(string(runes[:titleLength])) + "…"
}
