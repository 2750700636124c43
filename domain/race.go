package domain

import (
	"time"

	"github.com/google/uuid"
)

// RaceRepository defines the interface for the race schedule: venues, races and their runners.
type RaceRepository interface {
	// GetVenues retrieves every venue ordered by name.
	GetVenues() ([]*Venue, error)

	// CreateOrUpdateVenue inserts a venue or updates the one with the same ID.
	CreateOrUpdateVenue(venue *Venue) error

	// GetRacesBetween retrieves the races whose start time falls in [from, to).
	GetRacesBetween(from, to time.Time) ([]*Race, error)

	// GetRace retrieves a race together with its runners.
	// It returns an error if the race does not exist.
	GetRace(id uuid.UUID) (*Race, error)

	// CreateOrUpdateRace inserts a race or updates the one with the same ID.
	CreateOrUpdateRace(race *Race) error

	// GetRunner retrieves a single runner by ID.
	// It returns an error if the runner does not exist.
	GetRunner(id uuid.UUID) (*Runner, error)

	// CreateOrUpdateRunner inserts a runner or updates the one with the same ID.
	CreateOrUpdateRunner(runner *Runner) error

	// SetRaceStatus updates the status of a race (open, closed, abandoned, final).
	SetRaceStatus(id uuid.UUID, status string) error
}

// Race statuses.
const (
	RaceOpen      = "open"
	RaceClosed    = "closed"
	RaceAbandoned = "abandoned"
	RaceFinal     = "final"
)

// Venue is a racecourse.
type Venue struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	State       string    `json:"state"`
	Country     string    `json:"country"`
	TrackRating string    `json:"trackRating"` // e.g. "Good 4"
}

// Race is a single race at a venue.
type Race struct {
	ID          uuid.UUID `json:"id"`
	VenueID     uuid.UUID `json:"venueId"`
	Number      int       `json:"number"`
	Name        string    `json:"name"`
	Distance    int       `json:"distance"` // metres
	Class       string    `json:"class"`
	StartTime   time.Time `json:"startTime"`
	Status      string    `json:"status"`
	TrackRating string    `json:"trackRating,omitempty"` // Overrides the venue rating when set.
	Runners     []*Runner `json:"runners,omitempty"`
}

// Runner is a horse entered in a race.
type Runner struct {
	ID        uuid.UUID `json:"id"`
	RaceID    uuid.UUID `json:"raceId"`
	Number    int       `json:"number"`
	HorseName string    `json:"horseName"`
	Jockey    string    `json:"jockey"`
	Trainer   string    `json:"trainer"`
	Barrier   int       `json:"barrier"`
	Weight    float64   `json:"weight"` // kilograms
	Form      string    `json:"form"`   // recent finishing positions, most recent last
	Scratched bool      `json:"scratched"`
}

// HorseStats summarises a horse's form guide.
type HorseStats struct {
	Starts   int     `json:"starts"`
	Wins     int     `json:"wins"`
	Places   int     `json:"places"` // top three finishes, wins included
	WinPct   float64 `json:"winPct"`
	PlacePct float64 `json:"placePct"`
}
