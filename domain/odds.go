package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// OddsRepository defines the interface for bookmakers and the odds they offer.
type OddsRepository interface {
	// GetBookmakers retrieves every bookmaker ordered by name.
	GetBookmakers() ([]*Bookmaker, error)

	// CreateOrUpdateBookmaker inserts a bookmaker or updates the one with the same slug.
	CreateOrUpdateBookmaker(bookmaker *Bookmaker) error

	// GetOdds retrieves every odds row held for a race.
	GetOdds(raceID uuid.UUID) ([]*OddsRow, error)

	// UpsertOdds stores rows keyed by race, horse and bookmaker.
	// The opening price of an existing row is never overwritten.
	UpsertOdds(rows []*OddsRow) error
}

// Bookmaker is a betting agency whose prices are compared.
type Bookmaker struct {
	ID           uuid.UUID `json:"id"`
	Slug         string    `json:"slug"`
	Name         string    `json:"name"`
	Website      string    `json:"website"`
	AffiliateURL string    `json:"affiliateUrl,omitempty"`
	Rating       float64   `json:"rating"`
}

// OddsRow is one bookmaker's price for one horse in one race.
type OddsRow struct {
	RaceID    uuid.UUID `json:"raceId"`
	RunnerID  uuid.UUID `json:"runnerId,omitempty"`
	HorseName string    `json:"horseName"`
	Bookmaker string    `json:"bookmaker"` // bookmaker slug
	Win       float64   `json:"win"`       // decimal odds
	Place     float64   `json:"place"`
	Open      float64   `json:"open"` // first win price seen for this key
	UpdatedAt time.Time `json:"updatedAt"`
}

// Snapshot is a batch of live prices for a race, as pushed by an odds source.
type Snapshot struct {
	RaceID uuid.UUID  `json:"raceId"`
	Rows   []*OddsRow `json:"rows"`
}

// HorseKey normalises a horse name for matching odds rows from different sources:
// case, surrounding and repeated whitespace, and apostrophes are ignored.
func HorseKey(name string) string {
	name = strings.ReplaceAll(strings.ToLower(name), "'", "")
	name = strings.ReplaceAll(name, "’", "")
	return strings.Join(strings.Fields(name), " ")
}
