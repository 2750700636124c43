package races

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Track conditions.
const (
	Firm      = "Firm"
	Good      = "Good"
	Soft      = "Soft"
	Heavy     = "Heavy"
	Synthetic = "Synthetic"
)

// ErrInvalidTrackRating is returned when a track rating cannot be parsed.
var ErrInvalidTrackRating = errors.New("invalid track rating")

// TrackRating is a parsed track condition such as "Good 4".
type TrackRating struct {
	Condition string `json:"condition"`
	Value     int    `json:"value,omitempty"` // zero for Synthetic
}

var ratingRanges = map[string][2]int{
	Firm:  {1, 2},
	Good:  {3, 4},
	Soft:  {5, 7},
	Heavy: {8, 10},
}

// ParseTrackRating parses ratings of the form "<Condition> <Value>", e.g. "Soft 6".
// Synthetic tracks carry no number. The value must fall in the condition's band.
func ParseTrackRating(input string) (TrackRating, error) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return TrackRating{}, fmt.Errorf("%w: empty", ErrInvalidTrackRating)
	}

	condition := strings.ToUpper(fields[0][:1]) + strings.ToLower(fields[0][1:])
	if condition == Synthetic {
		if len(fields) != 1 {
			return TrackRating{}, fmt.Errorf("%w: %q", ErrInvalidTrackRating, input)
		}
		return TrackRating{Condition: Synthetic}, nil
	}

	band, ok := ratingRanges[condition]
	if !ok || len(fields) != 2 {
		return TrackRating{}, fmt.Errorf("%w: %q", ErrInvalidTrackRating, input)
	}

	value, err := strconv.Atoi(fields[1])
	if err != nil || value < band[0] || value > band[1] {
		return TrackRating{}, fmt.Errorf("%w: %q", ErrInvalidTrackRating, input)
	}
	return TrackRating{Condition: condition, Value: value}, nil
}

// String formats the rating the way it is displayed, e.g. "Good 4".
func (r TrackRating) String() string {
	if r.Value == 0 {
		return r.Condition
	}
	return fmt.Sprintf("%s %d", r.Condition, r.Value)
}
