package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultPruneInterval is how often Run drops completed wizards.
const DefaultPruneInterval = time.Minute

// ErrWizardNotFound is returned for unknown or finished wizard IDs.
var ErrWizardNotFound = errors.New("onboarding wizard not found")

// Manager keeps the wizards in progress.
type Manager struct {
	mu         sync.Mutex
	wizards    map[uuid.UUID]*Wizard
	delay      time.Duration
	onComplete CompletionFunc
	logger     *slog.Logger
}

// NewManager creates a Manager whose wizards call onComplete with the collected preferences.
func NewManager(onComplete CompletionFunc, options ...func(*Manager) error) (*Manager, error) {
	manager := &Manager{
		wizards:    make(map[uuid.UUID]*Wizard),
		delay:      DefaultProcessingDelay,
		onComplete: onComplete,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, option := range options {
		if err := option(manager); err != nil {
			return nil, fmt.Errorf("applying option on onboarding manager: %w", err)
		}
	}
	return manager, nil
}

// WithProcessingDelay sets how long wizards stay on the processing step.
func WithProcessingDelay(delay time.Duration) func(*Manager) error {
	return func(m *Manager) error {
		if delay < 0 {
			return fmt.Errorf("invalid processing delay %s", delay)
		}
		m.delay = delay
		return nil
	}
}

// WithLogger sets the logger handed to every wizard.
func WithLogger(logger *slog.Logger) func(*Manager) error {
	return func(m *Manager) error {
		if logger != nil {
			m.logger = logger
		}
		return nil
	}
}

// Start begins a wizard for userID. A wizard already running for the user is closed.
func (m *Manager) Start(userID string) *Wizard {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, wizard := range m.wizards {
		if wizard.UserID() == userID {
			wizard.Close()
			delete(m.wizards, id)
		}
	}

	wizard := NewWizard(userID, m.delay, m.onComplete, m.logger)
	m.wizards[wizard.ID()] = wizard
	return wizard
}

// Get returns the wizard with id if it belongs to userID.
func (m *Manager) Get(id uuid.UUID, userID string) (*Wizard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wizard, ok := m.wizards[id]
	if !ok || wizard.UserID() != userID {
		return nil, ErrWizardNotFound
	}
	return wizard, nil
}

// Len returns the number of wizards held.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.wizards)
}

// Prune drops completed wizards.
func (m *Manager) Prune() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, wizard := range m.wizards {
		select {
		case <-wizard.Done():
			delete(m.wizards, id)
		default:
		}
	}
}

// Run prunes completed wizards every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid prune interval %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Prune()
		}
	}
}

// Close stops every wizard.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, wizard := range m.wizards {
		wizard.Close()
		delete(m.wizards, id)
	}
}
