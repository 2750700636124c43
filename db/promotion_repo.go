package db

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tfkr-ae/furlong/domain"
)

var _ domain.PromotionRepository = (*Repository)(nil)

var (
	// ErrUnknownReferralCode is returned when a click references a code no ambassador owns.
	ErrUnknownReferralCode = errors.New("unknown referral code")
)

// dbAmbassador represents an ambassador as stored in the database.
type dbAmbassador struct {
	ID           uuid.UUID `db:"id"`
	Name         string    `db:"name"`
	Handle       string    `db:"handle"`
	Bio          string    `db:"bio"`
	Avatar       string    `db:"avatar"`
	ReferralCode string    `db:"referral_code"`
}

// dbReferralClick represents a referral click as stored in the database.
type dbReferralClick struct {
	ID        uuid.UUID `db:"id"`
	Code      string    `db:"code"`
	Bookmaker string    `db:"bookmaker"`
	UserID    string    `db:"user_id"`
	ClickedAt time.Time `db:"clicked_at"`
}

// GetAmbassadors retrieves every ambassador ordered by name.
func (repo *Repository) GetAmbassadors() ([]*domain.Ambassador, error) {
	var dbAmbassadors []*dbAmbassador
	query := `SELECT id, name, handle, bio, avatar, referral_code FROM ambassador ORDER BY name`

	if err := repo.dbConn.Select(&dbAmbassadors, query); err != nil {
		return nil, fmt.Errorf("getting ambassadors: %w", err)
	}

	ambassadors := make([]*domain.Ambassador, len(dbAmbassadors))
	for i, a := range dbAmbassadors {
		ambassadors[i] = &domain.Ambassador{
			ID:           a.ID,
			Name:         a.Name,
			Handle:       a.Handle,
			Bio:          a.Bio,
			Avatar:       a.Avatar,
			ReferralCode: a.ReferralCode,
		}
	}
	return ambassadors, nil
}

// CreateOrUpdateAmbassador inserts an ambassador or updates the one with the same referral code.
func (repo *Repository) CreateOrUpdateAmbassador(ambassador *domain.Ambassador) error {
	query := `INSERT INTO ambassador (id, name, handle, bio, avatar, referral_code)
	          VALUES (:id, :name, :handle, :bio, :avatar, :referral_code)
	          ON CONFLICT(referral_code) DO UPDATE SET name = excluded.name, handle = excluded.handle,
	              bio = excluded.bio, avatar = excluded.avatar`

	_, err := repo.dbConn.NamedExec(query, &dbAmbassador{
		ID:           ambassador.ID,
		Name:         ambassador.Name,
		Handle:       ambassador.Handle,
		Bio:          ambassador.Bio,
		Avatar:       ambassador.Avatar,
		ReferralCode: ambassador.ReferralCode,
	})
	if err != nil {
		return fmt.Errorf("creating or updating ambassador %s: %w", ambassador.ReferralCode, err)
	}
	return nil
}

// RecordReferralClick stores a click on an ambassador's referral link.
func (repo *Repository) RecordReferralClick(click *domain.ReferralClick) error {
	query := `INSERT INTO referral_click (id, code, bookmaker, user_id, clicked_at)
	          VALUES (:id, :code, :bookmaker, :user_id, :clicked_at)`

	_, err := repo.dbConn.NamedExec(query, &dbReferralClick{
		ID:        click.ID,
		Code:      click.Code,
		Bookmaker: click.Bookmaker,
		UserID:    click.UserID,
		ClickedAt: click.ClickedAt.UTC(),
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrUnknownReferralCode
		}
		return fmt.Errorf("recording referral click for %s: %w", click.Code, err)
	}
	return nil
}
