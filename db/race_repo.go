package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tfkr-ae/furlong/domain"
)

var _ domain.RaceRepository = (*Repository)(nil)

var (
	// ErrRaceNotFound is returned when no race matches the given ID.
	ErrRaceNotFound = errors.New("race not found")
	// ErrRunnerNotFound is returned when no runner matches the given ID.
	ErrRunnerNotFound = errors.New("runner not found")
	// ErrVenueNotFound is returned when a race references a venue that does not exist.
	ErrVenueNotFound = errors.New("venue not found")
)

// dbVenue represents a venue as stored in the database.
type dbVenue struct {
	ID          uuid.UUID `db:"id"`
	Name        string    `db:"name"`
	State       string    `db:"state"`
	Country     string    `db:"country"`
	TrackRating string    `db:"track_rating"`
}

// dbRace represents a race as stored in the database.
type dbRace struct {
	ID          uuid.UUID `db:"id"`
	VenueID     uuid.UUID `db:"venue_id"`
	Number      int       `db:"number"`
	Name        string    `db:"name"`
	Distance    int       `db:"distance"`
	Class       string    `db:"class"`
	StartTime   time.Time `db:"start_time"`
	Status      string    `db:"status"`
	TrackRating string    `db:"track_rating"`
}

// dbRunner represents a runner as stored in the database.
type dbRunner struct {
	ID        uuid.UUID `db:"id"`
	RaceID    uuid.UUID `db:"race_id"`
	Number    int       `db:"number"`
	HorseName string    `db:"horse_name"`
	Jockey    string    `db:"jockey"`
	Trainer   string    `db:"trainer"`
	Barrier   int       `db:"barrier"`
	Weight    float64   `db:"weight"`
	Form      string    `db:"form"`
	Scratched bool      `db:"scratched"`
}

func toDomainVenue(v *dbVenue) *domain.Venue {
	return &domain.Venue{
		ID:          v.ID,
		Name:        v.Name,
		State:       v.State,
		Country:     v.Country,
		TrackRating: v.TrackRating,
	}
}

func toDomainRace(r *dbRace) *domain.Race {
	return &domain.Race{
		ID:          r.ID,
		VenueID:     r.VenueID,
		Number:      r.Number,
		Name:        r.Name,
		Distance:    r.Distance,
		Class:       r.Class,
		StartTime:   r.StartTime,
		Status:      r.Status,
		TrackRating: r.TrackRating,
	}
}

func toDomainRunner(r *dbRunner) *domain.Runner {
	return &domain.Runner{
		ID:        r.ID,
		RaceID:    r.RaceID,
		Number:    r.Number,
		HorseName: r.HorseName,
		Jockey:    r.Jockey,
		Trainer:   r.Trainer,
		Barrier:   r.Barrier,
		Weight:    r.Weight,
		Form:      r.Form,
		Scratched: r.Scratched,
	}
}

// GetVenues retrieves every venue ordered by name.
func (repo *Repository) GetVenues() ([]*domain.Venue, error) {
	var dbVenues []*dbVenue
	err := repo.dbConn.Select(&dbVenues, `SELECT id, name, state, country, track_rating FROM venue ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("getting venues: %w", err)
	}

	venues := make([]*domain.Venue, len(dbVenues))
	for i, v := range dbVenues {
		venues[i] = toDomainVenue(v)
	}
	return venues, nil
}

// CreateOrUpdateVenue inserts a venue or updates the one with the same ID.
func (repo *Repository) CreateOrUpdateVenue(venue *domain.Venue) error {
	query := `INSERT INTO venue (id, name, state, country, track_rating)
	          VALUES (:id, :name, :state, :country, :track_rating)
	          ON CONFLICT(id) DO UPDATE SET name = excluded.name, state = excluded.state,
	              country = excluded.country, track_rating = excluded.track_rating`

	_, err := repo.dbConn.NamedExec(query, &dbVenue{
		ID:          venue.ID,
		Name:        venue.Name,
		State:       venue.State,
		Country:     venue.Country,
		TrackRating: venue.TrackRating,
	})
	if err != nil {
		return fmt.Errorf("creating or updating venue %s: %w", venue.Name, err)
	}
	return nil
}

// GetRacesBetween retrieves the races whose start time falls in [from, to), without runners.
func (repo *Repository) GetRacesBetween(from, to time.Time) ([]*domain.Race, error) {
	var dbRaces []*dbRace
	query := `SELECT id, venue_id, number, name, distance, class, start_time, status, track_rating
	          FROM race
	          WHERE start_time >= ? AND start_time < ?
	          ORDER BY start_time, number`

	err := repo.dbConn.Select(&dbRaces, query, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("getting races between %s and %s: %w", from, to, err)
	}

	races := make([]*domain.Race, len(dbRaces))
	for i, r := range dbRaces {
		races[i] = toDomainRace(r)
	}
	return races, nil
}

// GetRace retrieves a race together with its runners ordered by saddlecloth number.
func (repo *Repository) GetRace(id uuid.UUID) (*domain.Race, error) {
	var r dbRace
	query := `SELECT id, venue_id, number, name, distance, class, start_time, status, track_rating
	          FROM race WHERE id = ?`

	err := repo.dbConn.Get(&r, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRaceNotFound
		}
		return nil, fmt.Errorf("getting race %s: %w", id, err)
	}

	var dbRunners []*dbRunner
	query = `SELECT id, race_id, number, horse_name, jockey, trainer, barrier, weight, form, scratched
	         FROM runner WHERE race_id = ? ORDER BY number`
	if err := repo.dbConn.Select(&dbRunners, query, id); err != nil {
		return nil, fmt.Errorf("getting runners for race %s: %w", id, err)
	}

	race := toDomainRace(&r)
	race.Runners = make([]*domain.Runner, len(dbRunners))
	for i, runner := range dbRunners {
		race.Runners[i] = toDomainRunner(runner)
	}
	return race, nil
}

// GetRunner retrieves a single runner by ID.
func (repo *Repository) GetRunner(id uuid.UUID) (*domain.Runner, error) {
	var r dbRunner
	query := `SELECT id, race_id, number, horse_name, jockey, trainer, barrier, weight, form, scratched
	          FROM runner WHERE id = ?`

	err := repo.dbConn.Get(&r, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunnerNotFound
		}
		return nil, fmt.Errorf("getting runner %s: %w", id, err)
	}
	return toDomainRunner(&r), nil
}

// CreateOrUpdateRace inserts a race or updates the one with the same ID.
func (repo *Repository) CreateOrUpdateRace(race *domain.Race) error {
	status := race.Status
	if status == "" {
		status = domain.RaceOpen
	}

	query := `INSERT INTO race (id, venue_id, number, name, distance, class, start_time, status, track_rating)
	          VALUES (:id, :venue_id, :number, :name, :distance, :class, :start_time, :status, :track_rating)
	          ON CONFLICT(id) DO UPDATE SET venue_id = excluded.venue_id, number = excluded.number,
	              name = excluded.name, distance = excluded.distance, class = excluded.class,
	              start_time = excluded.start_time, status = excluded.status, track_rating = excluded.track_rating`

	_, err := repo.dbConn.NamedExec(query, &dbRace{
		ID:          race.ID,
		VenueID:     race.VenueID,
		Number:      race.Number,
		Name:        race.Name,
		Distance:    race.Distance,
		Class:       race.Class,
		StartTime:   race.StartTime.UTC(),
		Status:      status,
		TrackRating: race.TrackRating,
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrVenueNotFound
		}
		return fmt.Errorf("creating or updating race %s: %w", race.ID, err)
	}
	return nil
}

// CreateOrUpdateRunner inserts a runner or updates the one with the same ID.
func (repo *Repository) CreateOrUpdateRunner(runner *domain.Runner) error {
	query := `INSERT INTO runner (id, race_id, number, horse_name, jockey, trainer, barrier, weight, form, scratched)
	          VALUES (:id, :race_id, :number, :horse_name, :jockey, :trainer, :barrier, :weight, :form, :scratched)
	          ON CONFLICT(id) DO UPDATE SET number = excluded.number, horse_name = excluded.horse_name,
	              jockey = excluded.jockey, trainer = excluded.trainer, barrier = excluded.barrier,
	              weight = excluded.weight, form = excluded.form, scratched = excluded.scratched`

	_, err := repo.dbConn.NamedExec(query, &dbRunner{
		ID:        runner.ID,
		RaceID:    runner.RaceID,
		Number:    runner.Number,
		HorseName: runner.HorseName,
		Jockey:    runner.Jockey,
		Trainer:   runner.Trainer,
		Barrier:   runner.Barrier,
		Weight:    runner.Weight,
		Form:      runner.Form,
		Scratched: runner.Scratched,
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrRaceNotFound
		}
		return fmt.Errorf("creating or updating runner %s: %w", runner.HorseName, err)
	}
	return nil
}

// SetRaceStatus updates the status of a race.
func (repo *Repository) SetRaceStatus(id uuid.UUID, status string) error {
	switch status {
	case domain.RaceOpen, domain.RaceClosed, domain.RaceAbandoned, domain.RaceFinal:
	default:
		return fmt.Errorf("invalid race status %q", status)
	}

	result, err := repo.dbConn.Exec(`UPDATE race SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("setting status for race %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("fetching rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRaceNotFound
	}
	return nil
}
