package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProfileRepository defines the interface for per-user settings: onboarding preferences,
// pinned dashboard widgets and the horse watchlist.
type ProfileRepository interface {
	// GetPreferences retrieves the preferences of a user.
	// A user that never saved preferences gets an empty Preferences value.
	GetPreferences(userID string) (*Preferences, error)

	// SetPreferences stores the preferences of a user, replacing previous values.
	SetPreferences(prefs *Preferences) error

	// GetPinnedWidgets retrieves the ordered list of pinned widget IDs for a user.
	GetPinnedWidgets(userID string) ([]string, error)

	// SetPinnedWidgets replaces the pinned widget IDs for a user.
	SetPinnedWidgets(userID string, widgets []string) error

	// UpdatePinnedWidgets applies update to the pinned widget IDs of a user atomically
	// and returns the stored list.
	UpdatePinnedWidgets(userID string, update func([]string) ([]string, error)) ([]string, error)

	// GetWatchlist retrieves the horses a user is following, oldest first.
	GetWatchlist(userID string) ([]*WatchlistEntry, error)

	// AddToWatchlist follows a horse. Adding a horse twice is a no-op.
	AddToWatchlist(userID string, horseName string, note string) error

	// RemoveFromWatchlist unfollows a horse.
	// It returns an error if the horse is not on the watchlist.
	RemoveFromWatchlist(userID string, horseName string) error
}

// PromotionRepository defines the interface for ambassadors and their referral links.
type PromotionRepository interface {
	// GetAmbassadors retrieves every ambassador ordered by name.
	GetAmbassadors() ([]*Ambassador, error)

	// CreateOrUpdateAmbassador inserts an ambassador or updates the one with the same referral code.
	CreateOrUpdateAmbassador(ambassador *Ambassador) error

	// RecordReferralClick stores a click on an ambassador's referral link.
	// It returns an error if the referral code is unknown.
	RecordReferralClick(click *ReferralClick) error
}

// Preferences are collected by the onboarding wizard and edited on the profile page.
type Preferences struct {
	UserID        string     `json:"userId"`
	Jockeys       []string   `json:"jockeys"`
	Trainers      []string   `json:"trainers"`
	Tracks        []string   `json:"tracks"`
	Bookmakers    []string   `json:"bookmakers"`
	Notifications bool       `json:"notifications"`
	OnboardedAt   *time.Time `json:"onboardedAt,omitempty"`
}

// WatchlistEntry is a horse followed by a user.
type WatchlistEntry struct {
	HorseName string    `json:"horseName"`
	Note      string    `json:"note,omitempty"`
	AddedAt   time.Time `json:"addedAt"`
}

// Ambassador is a tipster or personality with a referral code.
type Ambassador struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Handle       string    `json:"handle"`
	Bio          string    `json:"bio"`
	Avatar       string    `json:"avatar,omitempty"`
	ReferralCode string    `json:"referralCode"`
}

// ReferralClick is a single click through an ambassador's referral link.
type ReferralClick struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Bookmaker string    `json:"bookmaker,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	ClickedAt time.Time `json:"clickedAt"`
}
