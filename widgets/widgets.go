// Package widgets describes the dashboard widget catalogue and the pin/unpin rules.
package widgets

import (
	"errors"
	"fmt"
	"slices"
)

// ErrUnknownWidget is returned for widget IDs that are not in the catalogue.
var ErrUnknownWidget = errors.New("unknown widget")

// Widget is an entry of the catalogue.
type Widget struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// Catalogue lists every widget that can be pinned, in display order.
var Catalogue = []Widget{
	{ID: "odds-table", Name: "Odds Table", Description: "Compare win and place prices across bookmakers.", Category: "odds"},
	{ID: "form-guide", Name: "Form Guide", Description: "Recent runs and strike rates for every runner.", Category: "form"},
	{ID: "track-bias", Name: "Track Bias", Description: "How the rail and barriers are racing today.", Category: "track"},
	{ID: "market-movers", Name: "Market Movers", Description: "Horses firming and drifting in the betting.", Category: "odds"},
	{ID: "next-to-jump", Name: "Next to Jump", Description: "The next races around the country.", Category: "schedule"},
	{ID: "speed-map", Name: "Speed Map", Description: "Expected settling positions from the barrier draw.", Category: "form"},
	{ID: "news-feed", Name: "News Feed", Description: "The latest racing news and tips.", Category: "news"},
}

// Lookup returns the catalogue entry for id.
func Lookup(id string) (Widget, bool) {
	i := slices.IndexFunc(Catalogue, func(w Widget) bool { return w.ID == id })
	if i < 0 {
		return Widget{}, false
	}
	return Catalogue[i], true
}

// Toggle unpins id if it is pinned, otherwise pins it at the end. The input slice is not
// modified, so toggling the same id twice returns the original list.
func Toggle(pinned []string, id string) ([]string, error) {
	if _, ok := Lookup(id); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWidget, id)
	}
	if i := slices.Index(pinned, id); i >= 0 {
		return slices.Delete(slices.Clone(pinned), i, i+1), nil
	}
	return append(slices.Clone(pinned), id), nil
}

// Validate checks a full list of pinned widgets: every id must be known and appear once.
func Validate(pinned []string) error {
	seen := make(map[string]bool, len(pinned))
	for _, id := range pinned {
		if _, ok := Lookup(id); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownWidget, id)
		}
		if seen[id] {
			return fmt.Errorf("widget %s pinned twice", id)
		}
		seen[id] = true
	}
	return nil
}
