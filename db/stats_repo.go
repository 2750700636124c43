package db

import (
	"fmt"

	"github.com/tfkr-ae/furlong/domain"
)

var _ domain.StatsRepository = (*Repository)(nil)

// CountArticles returns the total number of published articles.
func (repo *Repository) CountArticles() (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM article`

	err := repo.dbConn.Get(&count, query)
	if err != nil {
		return 0, fmt.Errorf("getting article count: %w", err)
	}

	return count, nil
}

// CountRaces returns the total number of races in the schedule.
func (repo *Repository) CountRaces() (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM race`

	err := repo.dbConn.Get(&count, query)
	if err != nil {
		return 0, fmt.Errorf("getting race count: %w", err)
	}

	return count, nil
}

// CountConversations returns the total number of analyst conversations that have at least one message.
func (repo *Repository) CountConversations() (int, error) {
	var count int
	query := `SELECT COUNT(*)
              FROM conversation c
              WHERE EXISTS (SELECT 1 FROM message m WHERE m.conversation_id = c.id)`

	err := repo.dbConn.Get(&count, query)
	if err != nil {
		return 0, fmt.Errorf("getting conversation count: %w", err)
	}

	return count, nil
}

// CountReferralClicks returns the total number of recorded referral clicks.
func (repo *Repository) CountReferralClicks() (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM referral_click`

	err := repo.dbConn.Get(&count, query)
	if err != nil {
		return 0, fmt.Errorf("getting referral click count: %w", err)
	}

	return count, nil
}
