package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tfkr-ae/furlong/domain"
)

var _ domain.ProfileRepository = (*Repository)(nil)

var (
	// ErrNotOnWatchlist is returned when removing a horse that the user is not following.
	ErrNotOnWatchlist = errors.New("horse is not on the watchlist")
)

// dbPreferences represents a user's preferences as stored in the database.
type dbPreferences struct {
	UserID        string       `db:"user_id"`
	Jockeys       StringList   `db:"jockeys"`
	Trainers      StringList   `db:"trainers"`
	Tracks        StringList   `db:"tracks"`
	Bookmakers    StringList   `db:"bookmakers"`
	Notifications bool         `db:"notifications"`
	OnboardedAt   sql.NullTime `db:"onboarded_at"`
}

// dbWatchlistEntry represents a followed horse as stored in the database.
type dbWatchlistEntry struct {
	HorseName string    `db:"horse_name"`
	Note      string    `db:"note"`
	AddedAt   time.Time `db:"added_at"`
}

// GetPreferences retrieves the preferences of a user, or empty preferences if none were saved.
func (repo *Repository) GetPreferences(userID string) (*domain.Preferences, error) {
	var p dbPreferences
	query := `SELECT user_id, jockeys, trainers, tracks, bookmakers, notifications, onboarded_at
	          FROM preferences WHERE user_id = ?`

	err := repo.dbConn.Get(&p, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.Preferences{
				UserID:     userID,
				Jockeys:    []string{},
				Trainers:   []string{},
				Tracks:     []string{},
				Bookmakers: []string{},
			}, nil
		}
		return nil, fmt.Errorf("getting preferences for %s: %w", userID, err)
	}

	prefs := &domain.Preferences{
		UserID:        p.UserID,
		Jockeys:       []string(p.Jockeys),
		Trainers:      []string(p.Trainers),
		Tracks:        []string(p.Tracks),
		Bookmakers:    []string(p.Bookmakers),
		Notifications: p.Notifications,
	}
	if p.OnboardedAt.Valid {
		onboardedAt := p.OnboardedAt.Time
		prefs.OnboardedAt = &onboardedAt
	}
	return prefs, nil
}

// SetPreferences stores the preferences of a user, replacing previous values.
func (repo *Repository) SetPreferences(prefs *domain.Preferences) error {
	p := &dbPreferences{
		UserID:        prefs.UserID,
		Jockeys:       StringList(prefs.Jockeys),
		Trainers:      StringList(prefs.Trainers),
		Tracks:        StringList(prefs.Tracks),
		Bookmakers:    StringList(prefs.Bookmakers),
		Notifications: prefs.Notifications,
	}
	if prefs.OnboardedAt != nil {
		p.OnboardedAt = sql.NullTime{Time: prefs.OnboardedAt.UTC(), Valid: true}
	}

	query := `INSERT INTO preferences (user_id, jockeys, trainers, tracks, bookmakers, notifications, onboarded_at)
	          VALUES (:user_id, :jockeys, :trainers, :tracks, :bookmakers, :notifications, :onboarded_at)
	          ON CONFLICT(user_id) DO UPDATE SET jockeys = excluded.jockeys, trainers = excluded.trainers,
	              tracks = excluded.tracks, bookmakers = excluded.bookmakers,
	              notifications = excluded.notifications,
	              onboarded_at = COALESCE(excluded.onboarded_at, preferences.onboarded_at)`

	if _, err := repo.dbConn.NamedExec(query, p); err != nil {
		return fmt.Errorf("setting preferences for %s: %w", prefs.UserID, err)
	}
	return nil
}

// GetPinnedWidgets retrieves the ordered list of pinned widget IDs for a user.
func (repo *Repository) GetPinnedWidgets(userID string) ([]string, error) {
	var widgets StringList
	err := repo.dbConn.Get(&widgets, `SELECT widgets FROM pinned_widgets WHERE user_id = ?`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("getting pinned widgets for %s: %w", userID, err)
	}
	return []string(widgets), nil
}

// SetPinnedWidgets replaces the pinned widget IDs for a user.
func (repo *Repository) SetPinnedWidgets(userID string, widgets []string) error {
	query := `INSERT INTO pinned_widgets (user_id, widgets) VALUES (?, ?)
	          ON CONFLICT(user_id) DO UPDATE SET widgets = excluded.widgets`

	if _, err := repo.dbConn.Exec(query, userID, StringList(widgets)); err != nil {
		return fmt.Errorf("setting pinned widgets for %s: %w", userID, err)
	}
	return nil
}

// UpdatePinnedWidgets reads the pinned widget IDs of a user, passes them to update and
// stores the result, all in one transaction. It returns the stored list.
func (repo *Repository) UpdatePinnedWidgets(userID string, update func([]string) ([]string, error)) ([]string, error) {
	tx, err := repo.dbConn.Beginx()
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var current StringList
	err = tx.Get(&current, `SELECT widgets FROM pinned_widgets WHERE user_id = ?`, userID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting pinned widgets for %s: %w", userID, err)
	}
	if current == nil {
		current = StringList{}
	}

	next, err := update([]string(current))
	if err != nil {
		return nil, err
	}

	query := `INSERT INTO pinned_widgets (user_id, widgets) VALUES (?, ?)
	          ON CONFLICT(user_id) DO UPDATE SET widgets = excluded.widgets`
	if _, err := tx.Exec(query, userID, StringList(next)); err != nil {
		return nil, fmt.Errorf("setting pinned widgets for %s: %w", userID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing pinned widgets: %w", err)
	}
	return next, nil
}

// GetWatchlist retrieves the horses a user is following, oldest first.
func (repo *Repository) GetWatchlist(userID string) ([]*domain.WatchlistEntry, error) {
	var dbEntries []*dbWatchlistEntry
	query := `SELECT horse_name, note, added_at FROM watchlist WHERE user_id = ? ORDER BY added_at, horse_name`

	if err := repo.dbConn.Select(&dbEntries, query, userID); err != nil {
		return nil, fmt.Errorf("getting watchlist for %s: %w", userID, err)
	}

	entries := make([]*domain.WatchlistEntry, len(dbEntries))
	for i, e := range dbEntries {
		entries[i] = &domain.WatchlistEntry{HorseName: e.HorseName, Note: e.Note, AddedAt: e.AddedAt}
	}
	return entries, nil
}

// AddToWatchlist follows a horse. Adding a horse that is already followed keeps the original entry.
func (repo *Repository) AddToWatchlist(userID string, horseName string, note string) error {
	query := `INSERT INTO watchlist (user_id, horse_name, note, added_at) VALUES (?, ?, ?, ?)
	          ON CONFLICT(user_id, horse_name) DO NOTHING`

	if _, err := repo.dbConn.Exec(query, userID, horseName, note, time.Now().UTC()); err != nil {
		return fmt.Errorf("adding %s to watchlist for %s: %w", horseName, userID, err)
	}
	return nil
}

// RemoveFromWatchlist unfollows a horse.
func (repo *Repository) RemoveFromWatchlist(userID string, horseName string) error {
	result, err := repo.dbConn.Exec(`DELETE FROM watchlist WHERE user_id = ? AND horse_name = ?`, userID, horseName)
	if err != nil {
		return fmt.Errorf("removing %s from watchlist for %s: %w", horseName, userID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking deletion rows affected for %s: %w", horseName, err)
	}
	if rowsAffected == 0 {
		return ErrNotOnWatchlist
	}
	return nil
}
