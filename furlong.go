// Package furlong wires the racing content and odds comparison service together: the
// repository, the live odds hub, the AI Analyst, the onboarding wizards and the feed
// importer. It is independent of the HTTP layer in package api, which serves it.
//
// The core functionality includes:
//   - Merging live odds snapshots on their composite key and pushing them to subscribers
//   - Guest limited analyst chat with canned or Lua scripted answers
//   - RSS and Atom ingestion filtered through per feed scopes
//   - Persisted operational logs for administrators
//   - Live reload of the configuration file
package furlong

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tfkr-ae/furlong/analyst"
	"github.com/tfkr-ae/furlong/core"
	"github.com/tfkr-ae/furlong/domain"
	"github.com/tfkr-ae/furlong/feed"
	"github.com/tfkr-ae/furlong/live"
	"github.com/tfkr-ae/furlong/odds"
	"github.com/tfkr-ae/furlong/onboarding"
)

// Repository defines the methods consumed by the service to interact with the SQLite backend.
type Repository interface {
	domain.ArticleRepository
	domain.RaceRepository
	domain.OddsRepository
	domain.ProfileRepository
	domain.PromotionRepository
	domain.ConversationRepository
	domain.LogRepository
	domain.StatsRepository
	Close() error
}

// Log levels accepted by WriteLog.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Service is the main struct that coordinates the furlong components.
type Service struct {
	Repo            Repository            // DB Repository Interface
	Logger          *slog.Logger          // Structured logger, never nil
	Hub             *live.Hub             // Live odds websocket hub
	Analyst         *analyst.Analyst      // AI Analyst chat
	Onboarding      *onboarding.Manager   // Running onboarding wizards
	Importer        *feed.Importer        // Feed item importer
	LogWriteChannel chan *domain.Log      // Logs waiting to be persisted by WriteToDB
	OnLog           func(log *domain.Log) // Called after a log is persisted

	cfgMu   sync.RWMutex
	config  *Config
	writeMu sync.Mutex // serialises config swaps and config file writes
	oddsMu  sync.Mutex
}

// New creates a Service. A repository must be supplied through WithRepo; every other
// component is built from the configuration unless an option sets it.
func New(options ...func(*Service) error) (*Service, error) {
	svc := &Service{
		Logger:          slog.New(slog.DiscardHandler),
		LogWriteChannel: make(chan *domain.Log, 64),
		config:          DefaultConfig(),
	}
	if err := svc.WithOptions(options...); err != nil {
		return nil, err
	}
	if err := svc.init(); err != nil {
		return nil, err
	}
	return svc, nil
}

func (svc *Service) init() error {
	if svc.Repo == nil {
		return errors.New("service needs a repository")
	}
	cfg := svc.Config()

	if svc.Hub == nil {
		hub, err := live.NewHub(
			live.WithLogger(svc.Logger),
			live.WithAllowedOrigins(cfg.AllowedOrigins),
		)
		if err != nil {
			return fmt.Errorf("creating hub: %w", err)
		}
		svc.Hub = hub
	}

	if svc.Analyst == nil {
		responder, err := svc.loadResponder(cfg)
		if err != nil {
			return err
		}
		a, err := analyst.New(svc.Repo,
			analyst.WithResponder(responder),
			analyst.WithGuestLimit(cfg.GuestMessageLimit),
			analyst.WithLogger(svc.Logger),
		)
		if err != nil {
			return fmt.Errorf("creating analyst: %w", err)
		}
		svc.Analyst = a
	}

	if svc.Onboarding == nil {
		manager, err := onboarding.NewManager(svc.completeOnboarding,
			onboarding.WithProcessingDelay(cfg.ProcessingDelay),
			onboarding.WithLogger(svc.Logger),
		)
		if err != nil {
			return fmt.Errorf("creating onboarding manager: %w", err)
		}
		svc.Onboarding = manager
	}

	if svc.Importer == nil {
		svc.Importer = feed.NewImporter(svc.Repo, svc.Logger)
	}
	return nil
}

// Config returns the current configuration. It is replaced, never mutated, on reload.
func (svc *Service) Config() *Config {
	svc.cfgMu.RLock()
	defer svc.cfgMu.RUnlock()
	return svc.config
}

func (svc *Service) loadResponder(cfg *Config) (analyst.Responder, error) {
	src, err := cfg.AnalystScriptSource()
	if err != nil {
		return nil, err
	}
	if src == "" {
		return analyst.CannedResponder{}, nil
	}
	responder, err := analyst.NewLuaResponder(src, analyst.CannedResponder{}, svc.Logger)
	if err != nil {
		return nil, fmt.Errorf("loading analyst script %s: %w", cfg.AnalystScript, err)
	}
	return responder, nil
}

// Reload applies a changed configuration. The guest limit and analyst script take
// effect immediately; listener settings need a restart.
func (svc *Service) Reload(cfg *Config) error {
	responder, err := svc.loadResponder(cfg)
	if err != nil {
		return err
	}
	svc.Analyst.SetResponder(responder)
	svc.Analyst.SetGuestLimit(cfg.GuestMessageLimit)

	svc.writeMu.Lock()
	svc.swapConfig(cfg)
	svc.writeMu.Unlock()

	svc.Logger.Info("configuration reloaded", "guest_message_limit", cfg.GuestMessageLimit,
		"analyst_script", cfg.AnalystScript, "feeds", len(cfg.Feeds))
	return nil
}

func (svc *Service) swapConfig(cfg *Config) {
	svc.cfgMu.Lock()
	svc.config = cfg
	svc.cfgMu.Unlock()
}

// AddFeed configures a new feed and saves the configuration file.
func (svc *Service) AddFeed(f feed.Config) error {
	return svc.editConfig(func(cfg *Config) (*Config, error) { return cfg.WithFeed(f) })
}

// RemoveFeed removes a configured feed and saves the configuration file.
func (svc *Service) RemoveFeed(name string) error {
	return svc.editConfig(func(cfg *Config) (*Config, error) { return cfg.WithoutFeed(name) })
}

func (svc *Service) editConfig(edit func(*Config) (*Config, error)) error {
	svc.writeMu.Lock()
	defer svc.writeMu.Unlock()

	next, err := edit(svc.Config())
	if err != nil {
		return err
	}
	svc.swapConfig(next)
	return nil
}

// WatchConfig reloads the service whenever the configuration file changes.
func (svc *Service) WatchConfig() {
	svc.Config().Watch(func(cfg *Config) {
		if err := svc.Reload(cfg); err != nil {
			svc.Logger.Error("reloading configuration", "error", err)
			svc.WriteLog(LevelError, "configuration reload failed", core.LogWithContext(map[string]any{"error": err.Error()}))
		}
	}, func(err error) {
		svc.Logger.Warn("ignoring configuration change", "error", err)
	})
}

func (svc *Service) completeOnboarding(prefs *domain.Preferences) error {
	if err := svc.Repo.SetPreferences(prefs); err != nil {
		return fmt.Errorf("saving onboarding preferences: %w", err)
	}
	svc.WriteLog(LevelInfo, "onboarding completed", core.LogWithUserID(prefs.UserID))
	return nil
}

// OddsTable loads the stored odds of a race into a Table. It fails with
// the repository's not-found error for an unknown race.
func (svc *Service) OddsTable(raceID uuid.UUID) (*odds.Table, error) {
	if _, err := svc.Repo.GetRace(raceID); err != nil {
		return nil, err
	}
	rows, err := svc.Repo.GetOdds(raceID)
	if err != nil {
		return nil, err
	}
	return odds.NewTable(raceID, rows), nil
}

// ApplySnapshot merges a live snapshot into the stored odds of its race, persists the
// changed rows and pushes the new table to subscribers.
func (svc *Service) ApplySnapshot(snapshot *domain.Snapshot) (*odds.MergeResult, error) {
	svc.oddsMu.Lock()
	defer svc.oddsMu.Unlock()

	table, err := svc.OddsTable(snapshot.RaceID)
	if err != nil {
		return nil, err
	}
	result, err := table.Apply(snapshot)
	if err != nil {
		return nil, err
	}

	changed := append(append([]*domain.OddsRow{}, result.Updated...), result.Added...)
	if err := svc.Repo.UpsertOdds(changed); err != nil {
		return nil, fmt.Errorf("storing merged odds: %w", err)
	}

	delivered := svc.Hub.Broadcast(snapshot.RaceID, live.Message{Type: live.TypeOdds, Data: table.Rows()})
	svc.Hub.Broadcast(snapshot.RaceID, live.Message{Type: live.TypeMerge, Data: result})
	svc.Logger.Debug("odds merged", "race", snapshot.RaceID, "updated", len(result.Updated),
		"added", len(result.Added), "rejected", len(result.Rejected), "subscribers", delivered)

	if len(result.Added) > 0 || len(result.Rejected) > 0 {
		reasons := make([]string, len(result.Rejected))
		for i, r := range result.Rejected {
			reasons[i] = r.Reason
		}
		svc.WriteLog(LevelWarn, "odds snapshot contained new or rejected rows",
			core.LogWithRaceID(snapshot.RaceID),
			core.LogWithContext(map[string]any{
				"added":    len(result.Added),
				"rejected": reasons,
			}),
		)
	}
	return result, nil
}

// FeedSources returns the configured feeds with their scopes. Feeds with invalid rules
// are left out and logged.
func (svc *Service) FeedSources() []feed.Source {
	cfg := svc.Config()
	sources := make([]feed.Source, 0, len(cfg.Feeds))
	for _, f := range cfg.Feeds {
		scope, err := ScopeFromFeed(f)
		if err != nil {
			svc.Logger.Error("skipping feed", "feed", f.Name, "error", err)
			continue
		}
		sources = append(sources, feed.Source{Config: f, Scope: scope})
	}
	return sources
}

// ImportFeed parses a feed document and imports its items under cfg.
func (svc *Service) ImportFeed(ctx context.Context, cfg feed.Config, r io.Reader) (*feed.Result, error) {
	scope, err := ScopeFromFeed(cfg)
	if err != nil {
		return nil, err
	}
	items, err := feed.Parse(r)
	if err != nil {
		return nil, err
	}
	result, err := svc.Importer.Import(ctx, cfg, scope, items)
	svc.RecordFeedResult(result, err)
	return result, err
}

// RecordFeedResult persists the outcome of a feed import as a log entry.
func (svc *Service) RecordFeedResult(result *feed.Result, err error) {
	if err != nil {
		svc.WriteLog(LevelError, "feed import failed", core.LogWithContext(map[string]any{"error": err.Error()}))
		return
	}
	if result == nil {
		return
	}
	level := LevelInfo
	if result.Failed > 0 {
		level = LevelWarn
	}
	svc.WriteLog(level, fmt.Sprintf("feed %s imported", result.Feed), core.LogWithContext(map[string]any{
		"created": result.Created,
		"updated": result.Updated,
		"skipped": result.Skipped,
		"failed":  result.Failed,
	}))
}

// WriteLog queues a log entry for WriteToDB. Entries are dropped with a warning when the
// queue is full.
func (svc *Service) WriteLog(level string, message string, options ...core.LogOption) error {
	switch level {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
	default:
		return fmt.Errorf("level should be either: debug, info, warn, error")
	}
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generating new uuid : %w", err)
	}
	entry := &domain.Log{
		ID:        id,
		Level:     level,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	for _, option := range options {
		if err := option(entry); err != nil {
			return fmt.Errorf("applying log option : %w", err)
		}
	}

	select {
	case svc.LogWriteChannel <- entry:
	default:
		svc.Logger.Warn("log queue full, dropping entry", "message", message)
	}
	return nil
}

// WriteToDB persists queued logs until ctx is done, then drains what is left.
func (svc *Service) WriteToDB(ctx context.Context) error {
	for {
		select {
		case entry := <-svc.LogWriteChannel:
			svc.insertLog(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-svc.LogWriteChannel:
					svc.insertLog(entry)
				default:
					return nil
				}
			}
		}
	}
}

func (svc *Service) insertLog(entry *domain.Log) {
	if err := svc.Repo.InsertLog(entry); err != nil {
		svc.Logger.Error("persisting log", "message", entry.Message, "error", err)
		return
	}
	if svc.OnLog != nil {
		svc.OnLog(entry)
	}
}

// Close stops the onboarding timers and closes the repository.
func (svc *Service) Close() error {
	svc.Onboarding.Close()
	if err := svc.Repo.Close(); err != nil {
		return fmt.Errorf("closing service: %w", err)
	}
	return nil
}
