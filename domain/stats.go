package domain

// StatsRepository defines the interface for retrieving various statistics about the catalogue.
// It provides methods for counting different types of entities within the repository.
type StatsRepository interface {
	// CountArticles returns the total number of published articles.
	CountArticles() (int, error)
	// CountRaces returns the total number of races in the schedule.
	CountRaces() (int, error)
	// CountConversations returns the total number of analyst conversations.
	CountConversations() (int, error)
	// CountReferralClicks returns the total number of recorded referral clicks.
	CountReferralClicks() (int, error)
}

// Stats is the admin dashboard summary.
type Stats struct {
	Articles       int `json:"articles"`
	Races          int `json:"races"`
	Conversations  int `json:"conversations"`
	ReferralClicks int `json:"referralClicks"`
}
