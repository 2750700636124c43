// Package onboarding runs the sign up wizard that collects a new member's favourite
// jockeys, trainers, tracks and bookmakers before saving them as preferences.
package onboarding

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tfkr-ae/furlong/domain"
)

// Step is a screen of the wizard.
type Step string

// Steps in order.
const (
	StepSignup           Step = "signup"
	StepWelcome          Step = "welcome"
	StepSelectJockeys    Step = "selectJockeys"
	StepSelectTrainers   Step = "selectTrainers"
	StepSelectTracks     Step = "selectTracks"
	StepSelectBookmakers Step = "selectBookmakers"
	StepNotifications    Step = "notifications"
	StepProcessing       Step = "processing"
	StepComplete         Step = "complete"
)

// DefaultProcessingDelay is how long the processing screen shows before completing.
const DefaultProcessingDelay = 5 * time.Second

var steps = []Step{
	StepSignup, StepWelcome, StepSelectJockeys, StepSelectTrainers, StepSelectTracks,
	StepSelectBookmakers, StepNotifications, StepProcessing, StepComplete,
}

var (
	// ErrInvalidTransition is returned when a move is not allowed from the current step.
	ErrInvalidTransition = errors.New("invalid onboarding transition")
	// ErrWizardClosed is returned when a closed wizard is used.
	ErrWizardClosed = errors.New("onboarding wizard is closed")
)

// CompletionFunc receives the collected preferences when the wizard completes.
type CompletionFunc func(prefs *domain.Preferences) error

// State is a snapshot of a wizard for clients.
type State struct {
	ID          uuid.UUID          `json:"id"`
	Step        Step               `json:"step"`
	Preferences domain.Preferences `json:"preferences"`
	CanBack     bool               `json:"canBack"`
	CanSkip     bool               `json:"canSkip"`
	Error       string             `json:"error,omitempty"` // set when saving the preferences failed
}

// Wizard is safe for concurrent use.
type Wizard struct {
	mu         sync.Mutex
	id         uuid.UUID
	step       Step
	prefs      domain.Preferences
	delay      time.Duration
	timer      *time.Timer
	onComplete CompletionFunc
	saveErr    error
	closed     bool
	logger     *slog.Logger
	done       chan struct{}
}

// NewWizard starts a wizard for userID at the signup step.
func NewWizard(userID string, delay time.Duration, onComplete CompletionFunc, logger *slog.Logger) *Wizard {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Wizard{
		id:         uuid.Must(uuid.NewV7()),
		step:       StepSignup,
		prefs:      domain.Preferences{UserID: userID, Jockeys: []string{}, Trainers: []string{}, Tracks: []string{}, Bookmakers: []string{}},
		delay:      delay,
		onComplete: onComplete,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// ID returns the wizard's identifier.
func (w *Wizard) ID() uuid.UUID {
	return w.id
}

// UserID returns the user being onboarded.
func (w *Wizard) UserID() string {
	return w.prefs.UserID
}

// Done is closed once the wizard reaches the complete step.
func (w *Wizard) Done() <-chan struct{} {
	return w.done
}

func isSelection(step Step) bool {
	switch step {
	case StepSelectJockeys, StepSelectTrainers, StepSelectTracks, StepSelectBookmakers:
		return true
	}
	return false
}

func canBack(step Step) bool {
	switch step {
	case StepSignup, StepProcessing, StepComplete:
		return false
	}
	return true
}

func canSkip(step Step) bool {
	return isSelection(step) || step == StepNotifications
}

func indexOf(step Step) int {
	return slices.Index(steps, step)
}

// State returns a snapshot of the wizard.
func (w *Wizard) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stateLocked()
}

func (w *Wizard) stateLocked() State {
	prefs := w.prefs
	prefs.Jockeys = slices.Clone(w.prefs.Jockeys)
	prefs.Trainers = slices.Clone(w.prefs.Trainers)
	prefs.Tracks = slices.Clone(w.prefs.Tracks)
	prefs.Bookmakers = slices.Clone(w.prefs.Bookmakers)

	state := State{
		ID:          w.id,
		Step:        w.step,
		Preferences: prefs,
		CanBack:     canBack(w.step),
		CanSkip:     canSkip(w.step),
	}
	if w.saveErr != nil {
		state.Error = w.saveErr.Error()
	}
	return state
}

// Select records the choices of the current selection step.
func (w *Wizard) Select(values []string) (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return w.stateLocked(), ErrWizardClosed
	}
	values = slices.Clone(values)
	if values == nil {
		values = []string{}
	}

	switch w.step {
	case StepSelectJockeys:
		w.prefs.Jockeys = values
	case StepSelectTrainers:
		w.prefs.Trainers = values
	case StepSelectTracks:
		w.prefs.Tracks = values
	case StepSelectBookmakers:
		w.prefs.Bookmakers = values
	default:
		return w.stateLocked(), fmt.Errorf("%w: nothing to select on %s", ErrInvalidTransition, w.step)
	}
	return w.stateLocked(), nil
}

// SetNotifications records the notification opt in on the notifications step.
func (w *Wizard) SetNotifications(enabled bool) (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return w.stateLocked(), ErrWizardClosed
	}
	if w.step != StepNotifications {
		return w.stateLocked(), fmt.Errorf("%w: notifications are set on %s", ErrInvalidTransition, StepNotifications)
	}
	w.prefs.Notifications = enabled
	return w.stateLocked(), nil
}

// Next advances one step. Processing completes on its own.
func (w *Wizard) Next() (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return w.stateLocked(), ErrWizardClosed
	}
	if w.step == StepProcessing || w.step == StepComplete {
		return w.stateLocked(), fmt.Errorf("%w: next from %s", ErrInvalidTransition, w.step)
	}
	w.advanceLocked()
	return w.stateLocked(), nil
}

// Back returns to the previous step. It is not allowed from signup, processing or complete.
func (w *Wizard) Back() (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return w.stateLocked(), ErrWizardClosed
	}
	if !canBack(w.step) {
		return w.stateLocked(), fmt.Errorf("%w: back from %s", ErrInvalidTransition, w.step)
	}
	w.step = steps[indexOf(w.step)-1]
	return w.stateLocked(), nil
}

// Skip advances past a selection or the notifications step without keeping its choice.
func (w *Wizard) Skip() (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return w.stateLocked(), ErrWizardClosed
	}
	if !canSkip(w.step) {
		return w.stateLocked(), fmt.Errorf("%w: skip on %s", ErrInvalidTransition, w.step)
	}

	switch w.step {
	case StepSelectJockeys:
		w.prefs.Jockeys = []string{}
	case StepSelectTrainers:
		w.prefs.Trainers = []string{}
	case StepSelectTracks:
		w.prefs.Tracks = []string{}
	case StepSelectBookmakers:
		w.prefs.Bookmakers = []string{}
	case StepNotifications:
		w.prefs.Notifications = false
	}
	w.advanceLocked()
	return w.stateLocked(), nil
}

func (w *Wizard) advanceLocked() {
	w.step = steps[indexOf(w.step)+1]
	if w.step == StepProcessing {
		w.timer = time.AfterFunc(w.delay, w.complete)
	}
}

// complete runs when the processing delay elapses.
func (w *Wizard) complete() {
	w.mu.Lock()
	if w.closed || w.step != StepProcessing {
		w.mu.Unlock()
		return
	}
	w.step = StepComplete
	onboardedAt := time.Now().UTC()
	w.prefs.OnboardedAt = &onboardedAt
	prefs := w.stateLocked().Preferences
	onComplete := w.onComplete
	w.mu.Unlock()

	var err error
	if onComplete != nil {
		err = onComplete(&prefs)
	}
	if err != nil {
		w.logger.Error("saving onboarding preferences", "user", prefs.UserID, "error", err)
	}

	w.mu.Lock()
	w.saveErr = err
	w.mu.Unlock()
	close(w.done)
}

// Close stops a pending processing timer. Further moves return ErrWizardClosed.
func (w *Wizard) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
}
