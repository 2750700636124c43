// Package odds holds the live odds comparison table of a race and the merge rules used
// when a new snapshot arrives from an odds source.
package odds

import (
	"cmp"
	"errors"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tfkr-ae/furlong/domain"
)

var (
	// ErrWrongRace is returned when a snapshot for another race is applied to a table.
	ErrWrongRace = errors.New("snapshot belongs to a different race")
	// ErrMissingHorse rejects rows without a horse name.
	ErrMissingHorse = errors.New("row has no horse name")
	// ErrMissingBookmaker rejects rows without a bookmaker.
	ErrMissingBookmaker = errors.New("row has no bookmaker")
	// ErrInvalidPrice rejects rows whose win price is not a decimal price above 1.
	ErrInvalidPrice = errors.New("row has an invalid win price")
)

// Key identifies a row: one bookmaker's price for one horse in one race.
type Key struct {
	RaceID    uuid.UUID
	Horse     string // normalised with domain.HorseKey
	Bookmaker string // lower-case slug
}

// KeyOf returns the key of a row.
func KeyOf(row *domain.OddsRow) Key {
	return Key{
		RaceID:    row.RaceID,
		Horse:     domain.HorseKey(row.HorseName),
		Bookmaker: strings.ToLower(strings.TrimSpace(row.Bookmaker)),
	}
}

// Rejection is an incoming row that was not merged.
type Rejection struct {
	Row    *domain.OddsRow `json:"row"`
	Reason string          `json:"reason"`
}

// MergeResult reports what Apply did with a snapshot.
type MergeResult struct {
	RaceID   uuid.UUID         `json:"raceId"`
	Updated  []*domain.OddsRow `json:"updated"`
	Added    []*domain.OddsRow `json:"added"`
	Rejected []Rejection       `json:"rejected"`
}

// Table is the odds comparison table of a single race. It is safe for concurrent use.
type Table struct {
	mu     sync.RWMutex
	raceID uuid.UUID
	rows   map[Key]*domain.OddsRow
	order  []Key
}

// NewTable creates a table for raceID seeded with previously stored rows.
// Rows for other races are ignored.
func NewTable(raceID uuid.UUID, rows []*domain.OddsRow) *Table {
	table := &Table{
		raceID: raceID,
		rows:   make(map[Key]*domain.OddsRow),
	}
	for _, row := range rows {
		if row.RaceID != raceID || validate(row) != nil {
			continue
		}
		table.insert(copyRow(row))
	}
	return table
}

// RaceID returns the race the table belongs to.
func (t *Table) RaceID() uuid.UUID {
	return t.raceID
}

func (t *Table) insert(row *domain.OddsRow) {
	key := KeyOf(row)
	row.Bookmaker = key.Bookmaker
	if row.Open == 0 {
		row.Open = row.Win
	}
	t.rows[key] = row
	t.order = append(t.order, key)
}

func validate(row *domain.OddsRow) error {
	switch {
	case domain.HorseKey(row.HorseName) == "":
		return ErrMissingHorse
	case strings.TrimSpace(row.Bookmaker) == "":
		return ErrMissingBookmaker
	case row.Win <= 1 || math.IsNaN(row.Win) || math.IsInf(row.Win, 0):
		return ErrInvalidPrice
	}
	return nil
}

// Apply merges a snapshot into the table. An incoming row only ever updates the row with
// the same race, horse and bookmaker. Rows with an unseen key are appended and rows with
// no horse, no bookmaker or an invalid price are rejected. The opening price of an
// existing row is kept. A key repeated within one snapshot is reported once, with its
// last price.
func (t *Table) Apply(snapshot *domain.Snapshot) (*MergeResult, error) {
	if snapshot.RaceID != t.raceID {
		return nil, ErrWrongRace
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	result := &MergeResult{
		RaceID:   t.raceID,
		Updated:  []*domain.OddsRow{},
		Added:    []*domain.OddsRow{},
		Rejected: []Rejection{},
	}

	added := make(map[Key]int)
	updated := make(map[Key]int)

	now := time.Now().UTC()
	for _, incoming := range snapshot.Rows {
		if incoming == nil {
			continue
		}
		row := copyRow(incoming)
		row.RaceID = t.raceID

		if err := validate(row); err != nil {
			result.Rejected = append(result.Rejected, Rejection{Row: incoming, Reason: err.Error()})
			continue
		}
		if row.UpdatedAt.IsZero() {
			row.UpdatedAt = now
		}

		key := KeyOf(row)
		existing, ok := t.rows[key]
		if !ok {
			t.insert(row)
			added[key] = len(result.Added)
			result.Added = append(result.Added, copyRow(row))
			continue
		}

		existing.Win = row.Win
		existing.Place = row.Place
		existing.UpdatedAt = row.UpdatedAt
		if existing.RunnerID == uuid.Nil {
			existing.RunnerID = row.RunnerID
		}

		if i, ok := added[key]; ok {
			result.Added[i] = copyRow(existing)
			continue
		}
		if i, ok := updated[key]; ok {
			result.Updated[i] = copyRow(existing)
			continue
		}
		updated[key] = len(result.Updated)
		result.Updated = append(result.Updated, copyRow(existing))
	}
	return result, nil
}

// Rows returns a copy of every row ordered by horse then bookmaker.
func (t *Table) Rows() []*domain.OddsRow {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rows := make([]*domain.OddsRow, 0, len(t.rows))
	for _, key := range t.order {
		rows = append(rows, copyRow(t.rows[key]))
	}
	slices.SortFunc(rows, func(a, b *domain.OddsRow) int {
		return cmp.Or(
			strings.Compare(domain.HorseKey(a.HorseName), domain.HorseKey(b.HorseName)),
			strings.Compare(a.Bookmaker, b.Bookmaker),
		)
	})
	return rows
}

// Best returns the highest win price offered for horse. Equal prices are broken by
// bookmaker slug. It reports false when no bookmaker prices the horse.
func (t *Table) Best(horse string) (*domain.OddsRow, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	horseKey := domain.HorseKey(horse)
	var best *domain.OddsRow
	for key, row := range t.rows {
		if key.Horse != horseKey {
			continue
		}
		if best == nil || row.Win > best.Win || (row.Win == best.Win && row.Bookmaker < best.Bookmaker) {
			best = row
		}
	}
	if best == nil {
		return nil, false
	}
	return copyRow(best), true
}

// BestPrices returns the best row for every horse in the table, ordered by horse.
func (t *Table) BestPrices() []*domain.OddsRow {
	seen := make(map[string]bool)
	best := make([]*domain.OddsRow, 0)
	for _, row := range t.Rows() {
		key := domain.HorseKey(row.HorseName)
		if seen[key] {
			continue
		}
		seen[key] = true
		if b, ok := t.Best(row.HorseName); ok {
			best = append(best, b)
		}
	}
	return best
}

func copyRow(row *domain.OddsRow) *domain.OddsRow {
	c := *row
	return &c
}
