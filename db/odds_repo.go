package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tfkr-ae/furlong/domain"
)

var _ domain.OddsRepository = (*Repository)(nil)

// dbBookmaker represents a bookmaker as stored in the database.
type dbBookmaker struct {
	ID           uuid.UUID `db:"id"`
	Slug         string    `db:"slug"`
	Name         string    `db:"name"`
	Website      string    `db:"website"`
	AffiliateURL string    `db:"affiliate_url"`
	Rating       float64   `db:"rating"`
}

// dbOdds represents an odds row as stored in the database.
type dbOdds struct {
	RaceID    uuid.UUID      `db:"race_id"`
	RunnerID  sql.NullString `db:"runner_id"`
	HorseName string         `db:"horse_name"`
	HorseKey  string         `db:"horse_key"`
	Bookmaker string         `db:"bookmaker"`
	Win       float64        `db:"win"`
	Place     float64        `db:"place"`
	Open      float64        `db:"open"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func toDomainBookmaker(b *dbBookmaker) *domain.Bookmaker {
	return &domain.Bookmaker{
		ID:           b.ID,
		Slug:         b.Slug,
		Name:         b.Name,
		Website:      b.Website,
		AffiliateURL: b.AffiliateURL,
		Rating:       b.Rating,
	}
}

func toDomainOdds(o *dbOdds) *domain.OddsRow {
	row := &domain.OddsRow{
		RaceID:    o.RaceID,
		HorseName: o.HorseName,
		Bookmaker: o.Bookmaker,
		Win:       o.Win,
		Place:     o.Place,
		Open:      o.Open,
		UpdatedAt: o.UpdatedAt,
	}
	if o.RunnerID.Valid {
		if id, err := uuid.Parse(o.RunnerID.String); err == nil {
			row.RunnerID = id
		}
	}
	return row
}

func fromDomainOdds(row *domain.OddsRow) *dbOdds {
	o := &dbOdds{
		RaceID:    row.RaceID,
		HorseName: row.HorseName,
		HorseKey:  domain.HorseKey(row.HorseName),
		Bookmaker: row.Bookmaker,
		Win:       row.Win,
		Place:     row.Place,
		Open:      row.Open,
		UpdatedAt: row.UpdatedAt.UTC(),
	}
	if o.Open == 0 {
		o.Open = row.Win
	}
	if row.RunnerID != uuid.Nil {
		o.RunnerID = sql.NullString{String: row.RunnerID.String(), Valid: true}
	}
	return o
}

// GetBookmakers retrieves every bookmaker ordered by name.
func (repo *Repository) GetBookmakers() ([]*domain.Bookmaker, error) {
	var dbBookmakers []*dbBookmaker
	query := `SELECT id, slug, name, website, affiliate_url, rating FROM bookmaker ORDER BY name`

	if err := repo.dbConn.Select(&dbBookmakers, query); err != nil {
		return nil, fmt.Errorf("getting bookmakers: %w", err)
	}

	bookmakers := make([]*domain.Bookmaker, len(dbBookmakers))
	for i, b := range dbBookmakers {
		bookmakers[i] = toDomainBookmaker(b)
	}
	return bookmakers, nil
}

// CreateOrUpdateBookmaker inserts a bookmaker or updates the one with the same slug.
func (repo *Repository) CreateOrUpdateBookmaker(bookmaker *domain.Bookmaker) error {
	query := `INSERT INTO bookmaker (id, slug, name, website, affiliate_url, rating)
	          VALUES (:id, :slug, :name, :website, :affiliate_url, :rating)
	          ON CONFLICT(slug) DO UPDATE SET name = excluded.name, website = excluded.website,
	              affiliate_url = excluded.affiliate_url, rating = excluded.rating`

	_, err := repo.dbConn.NamedExec(query, &dbBookmaker{
		ID:           bookmaker.ID,
		Slug:         bookmaker.Slug,
		Name:         bookmaker.Name,
		Website:      bookmaker.Website,
		AffiliateURL: bookmaker.AffiliateURL,
		Rating:       bookmaker.Rating,
	})
	if err != nil {
		return fmt.Errorf("creating or updating bookmaker %s: %w", bookmaker.Slug, err)
	}
	return nil
}

// GetOdds retrieves every odds row held for a race, ordered by horse then bookmaker.
func (repo *Repository) GetOdds(raceID uuid.UUID) ([]*domain.OddsRow, error) {
	var dbRows []*dbOdds
	query := `SELECT race_id, runner_id, horse_name, horse_key, bookmaker, win, place, open, updated_at
	          FROM odds WHERE race_id = ?
	          ORDER BY horse_key, bookmaker`

	if err := repo.dbConn.Select(&dbRows, query, raceID); err != nil {
		return nil, fmt.Errorf("getting odds for race %s: %w", raceID, err)
	}

	rows := make([]*domain.OddsRow, len(dbRows))
	for i, o := range dbRows {
		rows[i] = toDomainOdds(o)
	}
	return rows, nil
}

// UpsertOdds stores rows keyed by race, normalised horse name and bookmaker in a single transaction.
func (repo *Repository) UpsertOdds(rows []*domain.OddsRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := repo.dbConn.Beginx()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO odds (race_id, runner_id, horse_name, horse_key, bookmaker, win, place, open, updated_at)
	          VALUES (:race_id, :runner_id, :horse_name, :horse_key, :bookmaker, :win, :place, :open, :updated_at)
	          ON CONFLICT(race_id, horse_key, bookmaker) DO UPDATE SET
	              runner_id = COALESCE(excluded.runner_id, odds.runner_id),
	              win = excluded.win, place = excluded.place, updated_at = excluded.updated_at`

	for _, row := range rows {
		if _, err := tx.NamedExec(query, fromDomainOdds(row)); err != nil {
			if isForeignKeyViolation(err) {
				return ErrRaceNotFound
			}
			return fmt.Errorf("upserting odds for %s at %s: %w", row.HorseName, row.Bookmaker, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing odds: %w", err)
	}
	return nil
}
