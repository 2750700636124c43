package odds

import (
	"cmp"
	"math"
	"slices"
	"strings"
)

// Movement directions.
const (
	Steamer = "steamer" // price shortened from open
	Drifter = "drifter" // price lengthened from open
)

// Mover is a horse whose price moved away from the opening price at one bookmaker.
type Mover struct {
	HorseName string  `json:"horseName"`
	Bookmaker string  `json:"bookmaker"`
	Open      float64 `json:"open"`
	Win       float64 `json:"win"`
	Change    float64 `json:"change"` // percent change from open, negative when shortening
	Direction string  `json:"direction"`
}

// Movers returns the rows whose win price moved at least threshold percent from open,
// largest movement first. Steamers have shortened, drifters have lengthened.
func (t *Table) Movers(threshold float64) []Mover {
	movers := make([]Mover, 0)
	for _, row := range t.Rows() {
		if row.Open <= 0 {
			continue
		}
		change := (row.Win - row.Open) / row.Open * 100
		if change == 0 || math.Abs(change) < threshold {
			continue
		}

		direction := Drifter
		if change < 0 {
			direction = Steamer
		}
		movers = append(movers, Mover{
			HorseName: row.HorseName,
			Bookmaker: row.Bookmaker,
			Open:      row.Open,
			Win:       row.Win,
			Change:    math.Round(change*10) / 10,
			Direction: direction,
		})
	}

	slices.SortStableFunc(movers, func(a, b Mover) int {
		return cmp.Or(
			cmp.Compare(math.Abs(b.Change), math.Abs(a.Change)),
			strings.Compare(a.HorseName, b.HorseName),
		)
	})
	return movers
}
