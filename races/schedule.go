// Package races builds the race day views: the schedule grouped by venue, the next to
// jump list, track ratings and form guide statistics.
package races

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tfkr-ae/furlong/domain"
)

// Meeting is one venue's races on a given day.
type Meeting struct {
	Venue *domain.Venue  `json:"venue"`
	Races []*domain.Race `json:"races"`
}

// Schedule returns the races starting on day (in day's location), grouped by venue.
// Meetings are ordered by their earliest start, races by start time then number.
// Races at unknown venues are grouped under a placeholder venue holding only the ID.
func Schedule(races []*domain.Race, venues []*domain.Venue, day time.Time) []*Meeting {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	byID := make(map[uuid.UUID]*domain.Venue, len(venues))
	for _, v := range venues {
		byID[v.ID] = v
	}

	meetings := make(map[uuid.UUID]*Meeting)
	for _, race := range races {
		if race.StartTime.Before(start) || !race.StartTime.Before(end) {
			continue
		}
		meeting, ok := meetings[race.VenueID]
		if !ok {
			venue, known := byID[race.VenueID]
			if !known {
				venue = &domain.Venue{ID: race.VenueID}
			}
			meeting = &Meeting{Venue: venue}
			meetings[race.VenueID] = meeting
		}
		meeting.Races = append(meeting.Races, race)
	}

	ordered := make([]*Meeting, 0, len(meetings))
	for _, meeting := range meetings {
		slices.SortFunc(meeting.Races, compareRaces)
		ordered = append(ordered, meeting)
	}
	slices.SortFunc(ordered, func(a, b *Meeting) int {
		if c := a.Races[0].StartTime.Compare(b.Races[0].StartTime); c != 0 {
			return c
		}
		return strings.Compare(a.Venue.Name, b.Venue.Name)
	})
	return ordered
}

// NextToJump returns up to n open races starting at or after now, soonest first.
func NextToJump(races []*domain.Race, now time.Time, n int) []*domain.Race {
	upcoming := make([]*domain.Race, 0)
	for _, race := range races {
		if race.Status != domain.RaceOpen || race.StartTime.Before(now) {
			continue
		}
		upcoming = append(upcoming, race)
	}
	slices.SortFunc(upcoming, compareRaces)
	if n >= 0 && n < len(upcoming) {
		upcoming = upcoming[:n]
	}
	return upcoming
}

func compareRaces(a, b *domain.Race) int {
	if c := a.StartTime.Compare(b.StartTime); c != 0 {
		return c
	}
	return a.Number - b.Number
}
