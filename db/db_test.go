package db

import (
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tfkr-ae/furlong/domain"
)

func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	tempFile, err := os.CreateTemp(t.TempDir(), "test_*.db")
	if err != nil {
		t.Fatalf("os.CreateTemp() failed: %v", err)
	}
	tempFile.Close()

	dbConn, err := New(tempFile.Name())
	if err != nil {
		t.Fatalf("db.New() failed: %v", err)
	}

	repo := NewRepo(dbConn)

	teardown := func() {
		repo.Close()
		os.Remove(tempFile.Name())
	}

	return repo, teardown
}

func testVenue(t *testing.T, repo *Repository, name string) *domain.Venue {
	t.Helper()
	id, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("creating uuid: %v", err)
	}

	venue := &domain.Venue{ID: id, Name: name, State: "VIC", Country: "AUS", TrackRating: "Good 4"}
	if err := repo.CreateOrUpdateVenue(venue); err != nil {
		t.Fatalf("creating venue: %v", err)
	}
	return venue
}

func testRace(t *testing.T, repo *Repository, venueID uuid.UUID, number int, start time.Time) *domain.Race {
	t.Helper()
	id, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("creating uuid: %v", err)
	}

	race := &domain.Race{
		ID:        id,
		VenueID:   venueID,
		Number:    number,
		Name:      "Maiden Plate",
		Distance:  1200,
		Class:     "Maiden",
		StartTime: start,
		Status:    domain.RaceOpen,
	}
	if err := repo.CreateOrUpdateRace(race); err != nil {
		t.Fatalf("creating race: %v", err)
	}
	return race
}

func TestNew(t *testing.T) {
	t.Run("should apply every migration", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		version, err := Version(repo.dbConn)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if version != 2 {
			t.Fatalf("\nwanted:\n2\ngot:\n%d", version)
		}
	})
}
