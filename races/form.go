package races

import (
	"fmt"
	"strings"

	"github.com/tfkr-ae/furlong/domain"
)

// Spell marks a break between preparations in a form line.
const Spell = -1

// TenthOrWorse is the finishing position recorded for a '0' in a form line.
const TenthOrWorse = 10

// ParseForm parses a form line such as "x1231" into finishing positions, oldest first.
// Digits are placings, '0' is tenth or worse, 'x' is a spell and '-' separates seasons.
func ParseForm(form string) ([]int, error) {
	positions := make([]int, 0, len(form))
	for _, r := range strings.ToLower(form) {
		switch {
		case r == '0':
			positions = append(positions, TenthOrWorse)
		case r >= '1' && r <= '9':
			positions = append(positions, int(r-'0'))
		case r == 'x':
			positions = append(positions, Spell)
		case r == '-' || r == ' ':
		default:
			return nil, fmt.Errorf("invalid form character %q in %q", r, form)
		}
	}
	return positions, nil
}

// StatsFromForm summarises parsed positions. Spells are not starts.
func StatsFromForm(positions []int) domain.HorseStats {
	var stats domain.HorseStats
	for _, p := range positions {
		if p == Spell {
			continue
		}
		stats.Starts++
		if p == 1 {
			stats.Wins++
		}
		if p >= 1 && p <= 3 {
			stats.Places++
		}
	}
	if stats.Starts > 0 {
		stats.WinPct = float64(stats.Wins) * 100 / float64(stats.Starts)
		stats.PlacePct = float64(stats.Places) * 100 / float64(stats.Starts)
	}
	return stats
}
