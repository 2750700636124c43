package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/tfkr-ae/furlong/domain"
	"github.com/tfkr-ae/furlong/races"
)

const (
	defaultNextToJump = 5
	nextToJumpWindow  = 7 * 24 * time.Hour
	defaultMoverPct   = 5.0
)

// runnerView is a runner with its form guide summarised.
type runnerView struct {
	*domain.Runner
	Positions []int             `json:"positions"`
	Stats     domain.HorseStats `json:"stats"`
}

type raceView struct {
	*domain.Race
	Venue       *domain.Venue      `json:"venue,omitempty"`
	TrackRating *races.TrackRating `json:"track,omitempty"`
	Runners     []runnerView       `json:"runners"`
}

func (s *Server) listRaces(w http.ResponseWriter, r *http.Request) {
	day := s.now()
	if raw := r.URL.Query().Get("day"); raw != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, raw, day.Location())
		if err != nil {
			s.fail(w, badRequest("day must be formatted as YYYY-MM-DD"))
			return
		}
		day = parsed
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	list, err := s.svc.Repo.GetRacesBetween(start, start.AddDate(0, 0, 1))
	if err != nil {
		s.fail(w, err)
		return
	}
	venues, err := s.svc.Repo.GetVenues()
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, races.Schedule(list, venues, day))
}

func (s *Server) nextToJump(w http.ResponseWriter, r *http.Request) {
	n, err := queryInt(r, "n", defaultNextToJump)
	if err != nil {
		s.fail(w, err)
		return
	}
	now := s.now()
	list, err := s.svc.Repo.GetRacesBetween(now, now.Add(nextToJumpWindow))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, races.NextToJump(list, now, n))
}

func (s *Server) getRace(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	race, err := s.svc.Repo.GetRace(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	venues, err := s.svc.Repo.GetVenues()
	if err != nil {
		s.fail(w, err)
		return
	}

	view := raceView{Race: race, Runners: make([]runnerView, 0, len(race.Runners))}
	rating := race.TrackRating
	for _, v := range venues {
		if v.ID == race.VenueID {
			view.Venue = v
			if rating == "" {
				rating = v.TrackRating
			}
			break
		}
	}
	if rating != "" {
		parsed, err := races.ParseTrackRating(rating)
		if err != nil {
			s.logger.Warn("unreadable track rating", "race", race.ID, "rating", rating, "error", err)
		} else {
			view.TrackRating = &parsed
		}
	}

	for _, runner := range race.Runners {
		view.Runners = append(view.Runners, s.newRunnerView(runner))
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) newRunnerView(runner *domain.Runner) runnerView {
	positions, err := races.ParseForm(runner.Form)
	if err != nil {
		s.logger.Warn("unreadable form", "runner", runner.ID, "form", runner.Form, "error", err)
		positions = []int{}
	}
	return runnerView{
		Runner:    runner,
		Positions: positions,
		Stats:     races.StatsFromForm(positions),
	}
}

func (s *Server) getRunner(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	runner, err := s.svc.Repo.GetRunner(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.newRunnerView(runner))
}

func (s *Server) listVenues(w http.ResponseWriter, r *http.Request) {
	venues, err := s.svc.Repo.GetVenues()
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, venues)
}

func (s *Server) getOdds(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	table, err := s.svc.OddsTable(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, table.Rows())
}

func (s *Server) getBestOdds(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	table, err := s.svc.OddsTable(id)
	if err != nil {
		s.fail(w, err)
		return
	}

	if horse := r.URL.Query().Get("horse"); horse != "" {
		best, ok := table.Best(horse)
		if !ok {
			s.fail(w, fmt.Errorf("%w: no prices for %s", errNotFound, horse))
			return
		}
		writeJSON(w, http.StatusOK, best)
		return
	}
	writeJSON(w, http.StatusOK, table.BestPrices())
}

func (s *Server) getMovers(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	threshold := defaultMoverPct
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		threshold, err = strconv.ParseFloat(raw, 64)
		if err != nil || threshold < 0 {
			s.fail(w, badRequest("threshold must be a non-negative number"))
			return
		}
	}
	table, err := s.svc.OddsTable(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, table.Movers(threshold))
}
