package db

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tfkr-ae/furlong/domain"
)

func TestRaceRepo_GetVenues(t *testing.T) {
	t.Run("should return venues ordered by name", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		testVenue(t, repo, "Randwick")
		testVenue(t, repo, "Flemington")

		got, err := repo.GetVenues()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(got) != 2 || got[0].Name != "Flemington" || got[1].Name != "Randwick" {
			t.Fatalf("\nwanted:\n[Flemington Randwick]\ngot:\n%v", got)
		}
	})
}

func TestRaceRepo_GetRacesBetween(t *testing.T) {
	t.Run("should only return races inside the window ordered by start time", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		day := time.Date(2025, 11, 4, 0, 0, 0, 0, time.UTC)
		venue := testVenue(t, repo, "Flemington")
		late := testRace(t, repo, venue.ID, 7, day.Add(15*time.Hour))
		early := testRace(t, repo, venue.ID, 1, day.Add(11*time.Hour))
		testRace(t, repo, venue.ID, 1, day.Add(35*time.Hour))

		got, err := repo.GetRacesBetween(day, day.Add(24*time.Hour))
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(got) != 2 {
			t.Fatalf("\nwanted:\n2\ngot:\n%d", len(got))
		}
		if got[0].ID != early.ID || got[1].ID != late.ID {
			t.Fatalf("\nwanted:\n[%s %s]\ngot:\n[%s %s]", early.ID, late.ID, got[0].ID, got[1].ID)
		}
		if !got[0].StartTime.Equal(early.StartTime) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", early.StartTime, got[0].StartTime)
		}
	})
}

func TestRaceRepo_GetRace(t *testing.T) {
	t.Run("should return the race with its runners ordered by number", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		venue := testVenue(t, repo, "Caulfield")
		race := testRace(t, repo, venue.ID, 3, time.Now())

		for _, r := range []*domain.Runner{
			{ID: uuid.New(), RaceID: race.ID, Number: 2, HorseName: "Anamoe", Barrier: 5, Form: "1x12"},
			{ID: uuid.New(), RaceID: race.ID, Number: 1, HorseName: "Verry Elleegant", Barrier: 9, Form: "3211"},
		} {
			if err := repo.CreateOrUpdateRunner(r); err != nil {
				t.Fatalf("creating runner: %v", err)
			}
		}

		got, err := repo.GetRace(race.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(got.Runners) != 2 {
			t.Fatalf("\nwanted:\n2\ngot:\n%d", len(got.Runners))
		}
		if got.Runners[0].HorseName != "Verry Elleegant" {
			t.Fatalf("\nwanted:\nVerry Elleegant\ngot:\n%s", got.Runners[0].HorseName)
		}
	})

	t.Run("should return ErrRaceNotFound for an unknown race", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		_, err := repo.GetRace(uuid.New())
		if !errors.Is(err, ErrRaceNotFound) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrRaceNotFound, err)
		}
	})

	t.Run("should return ErrVenueNotFound when the venue does not exist", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		err := repo.CreateOrUpdateRace(&domain.Race{ID: uuid.New(), VenueID: uuid.New(), Number: 1, StartTime: time.Now()})
		if !errors.Is(err, ErrVenueNotFound) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrVenueNotFound, err)
		}
	})
}

func TestRaceRepo_GetRunner(t *testing.T) {
	t.Run("should return the runner with its form", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		venue := testVenue(t, repo, "Rosehill")
		race := testRace(t, repo, venue.ID, 8, time.Now())
		want := &domain.Runner{
			ID: uuid.New(), RaceID: race.ID, Number: 4, HorseName: "Fangirl", Jockey: "J. McDonald",
			Trainer: "C. Waller", Barrier: 11, Weight: 56.5, Form: "21x3", Scratched: true,
		}
		if err := repo.CreateOrUpdateRunner(want); err != nil {
			t.Fatalf("creating runner: %v", err)
		}

		got, err := repo.GetRunner(want.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if !reflect.DeepEqual(want, got) {
			t.Fatalf("\nwanted:\n%+v\ngot:\n%+v", want, got)
		}
	})

	t.Run("should return ErrRunnerNotFound for an unknown runner", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		_, err := repo.GetRunner(uuid.New())
		if !errors.Is(err, ErrRunnerNotFound) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrRunnerNotFound, err)
		}
	})
}

func TestRaceRepo_SetRaceStatus(t *testing.T) {
	t.Run("should update the status", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		venue := testVenue(t, repo, "Rosehill")
		race := testRace(t, repo, venue.ID, 1, time.Now())

		if err := repo.SetRaceStatus(race.ID, domain.RaceFinal); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		got, _ := repo.GetRace(race.ID)
		if got.Status != domain.RaceFinal {
			t.Fatalf("\nwanted:\n%s\ngot:\n%s", domain.RaceFinal, got.Status)
		}
	})

	t.Run("should reject an unknown status", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		if err := repo.SetRaceStatus(uuid.New(), "photo"); err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}
	})
}
