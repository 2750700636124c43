package migrations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/tfkr-ae/furlong/domain"
	_ "modernc.org/sqlite"
)

func init() {
	goose.AddMigrationContext(upOddsHorseKey, downOddsHorseKey)
}

// upOddsHorseKey keys odds rows on (race, normalised horse, bookmaker). Rows that collapse
// onto the same key keep only the most recently updated price.
func upOddsHorseKey(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `ALTER TABLE odds ADD COLUMN horse_key TEXT NOT NULL DEFAULT ''`)
	if err != nil {
		return fmt.Errorf("adding horse_key column : %w", err)
	}

	rows, err := tx.QueryContext(ctx, "SELECT id, horse_name FROM odds")
	if err != nil {
		return fmt.Errorf("getting all odds rows: %w", err)
	}

	keys := make(map[int64]string)
	for rows.Next() {
		var id int64
		var horseName string
		if err := rows.Scan(&id, &horseName); err != nil {
			rows.Close()
			return fmt.Errorf("scanning odds row: %w", err)
		}
		keys[id] = domain.HorseKey(horseName)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return fmt.Errorf("iterating odds rows: %w", err)
	}

	for id, key := range keys {
		_, err = tx.ExecContext(ctx, "UPDATE odds SET horse_key = ? WHERE id = ?", key, id)
		if err != nil {
			return fmt.Errorf("updating odds row %d : %w", id, err)
		}
	}

	dedupe := `DELETE FROM odds WHERE id NOT IN (
		SELECT id FROM (
			SELECT id, ROW_NUMBER() OVER (
				PARTITION BY race_id, horse_key, bookmaker ORDER BY updated_at DESC, id DESC
			) AS rn FROM odds
		) WHERE rn = 1
	)`
	if _, err = tx.ExecContext(ctx, dedupe); err != nil {
		return fmt.Errorf("removing duplicate odds rows : %w", err)
	}

	_, err = tx.ExecContext(ctx, "CREATE UNIQUE INDEX idx_odds_key ON odds(race_id, horse_key, bookmaker)")
	if err != nil {
		return fmt.Errorf("creating odds key index : %w", err)
	}
	return nil
}

func downOddsHorseKey(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, "DROP INDEX idx_odds_key"); err != nil {
		return fmt.Errorf("dropping odds key index : %w", err)
	}
	if _, err := tx.ExecContext(ctx, "ALTER TABLE odds DROP COLUMN horse_key"); err != nil {
		return fmt.Errorf("dropping horse_key column : %w", err)
	}
	return nil
}
