package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tfkr-ae/furlong/db"
	"github.com/tfkr-ae/furlong/domain"
	"github.com/tfkr-ae/furlong/feed"
	"github.com/tfkr-ae/furlong/news"
	"gopkg.in/yaml.v3"
)

// fixtureNamespace derives stable IDs so seeding the same file twice updates rows in place.
var fixtureNamespace = uuid.MustParse("6f1c1f1e-6b2a-4c55-9a2e-2f3b8d0c7a10")

type fixtures struct {
	Venues      []venueFixture      `yaml:"venues"`
	Bookmakers  []bookmakerFixture  `yaml:"bookmakers"`
	Ambassadors []ambassadorFixture `yaml:"ambassadors"`
	Articles    []articleFixture    `yaml:"articles"`
}

type venueFixture struct {
	Name        string        `yaml:"name"`
	State       string        `yaml:"state"`
	Country     string        `yaml:"country"`
	TrackRating string        `yaml:"track_rating"`
	Races       []raceFixture `yaml:"races"`
}

type raceFixture struct {
	Number      int             `yaml:"number"`
	Name        string          `yaml:"name"`
	Distance    int             `yaml:"distance"`
	Class       string          `yaml:"class"`
	Start       time.Time       `yaml:"start"`
	Status      string          `yaml:"status"`
	TrackRating string          `yaml:"track_rating"`
	Runners     []runnerFixture `yaml:"runners"`
}

type runnerFixture struct {
	Number    int     `yaml:"number"`
	Horse     string  `yaml:"horse"`
	Jockey    string  `yaml:"jockey"`
	Trainer   string  `yaml:"trainer"`
	Barrier   int     `yaml:"barrier"`
	Weight    float64 `yaml:"weight"`
	Form      string  `yaml:"form"`
	Scratched bool    `yaml:"scratched"`
}

type bookmakerFixture struct {
	Slug         string  `yaml:"slug"`
	Name         string  `yaml:"name"`
	Website      string  `yaml:"website"`
	AffiliateURL string  `yaml:"affiliate_url"`
	Rating       float64 `yaml:"rating"`
}

type ambassadorFixture struct {
	Name         string `yaml:"name"`
	Handle       string `yaml:"handle"`
	Bio          string `yaml:"bio"`
	Avatar       string `yaml:"avatar"`
	ReferralCode string `yaml:"referral_code"`
}

type articleFixture struct {
	Title     string    `yaml:"title"`
	Slug      string    `yaml:"slug"`
	Summary   string    `yaml:"summary"`
	Body      string    `yaml:"body"`
	Category  string    `yaml:"category"`
	Author    string    `yaml:"author"`
	Tags      []string  `yaml:"tags"`
	Featured  bool      `yaml:"featured"`
	Published time.Time `yaml:"published"`
}

// seedRepository is the part of the service repository that seeding writes to.
type seedRepository interface {
	domain.RaceRepository
	domain.OddsRepository
	domain.PromotionRepository
	domain.ArticleRepository
}

// seedCounts reports how many rows of each kind were written.
type seedCounts struct {
	Venues, Races, Runners, Bookmakers, Ambassadors, Articles int
}

func fixtureID(parts ...string) uuid.UUID {
	return uuid.NewSHA1(fixtureNamespace, []byte(strings.ToLower(strings.Join(parts, "/"))))
}

func loadFixtures(r io.Reader) (*fixtures, error) {
	var f fixtures
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding fixtures: %w", err)
	}
	return &f, nil
}

func applyFixtures(repo seedRepository, f *fixtures, now time.Time) (seedCounts, error) {
	var counts seedCounts

	for _, v := range f.Venues {
		venue := &domain.Venue{
			ID: fixtureID("venue", v.Name), Name: v.Name, State: v.State,
			Country: v.Country, TrackRating: v.TrackRating,
		}
		if err := repo.CreateOrUpdateVenue(venue); err != nil {
			return counts, err
		}
		counts.Venues++

		for _, r := range v.Races {
			status := r.Status
			if status == "" {
				status = domain.RaceOpen
			}
			race := &domain.Race{
				ID: fixtureID("race", v.Name, r.Start.Format(time.DateOnly), fmt.Sprint(r.Number)),
				VenueID: venue.ID, Number: r.Number, Name: r.Name, Distance: r.Distance,
				Class: r.Class, StartTime: r.Start, Status: status, TrackRating: r.TrackRating,
			}
			if err := repo.CreateOrUpdateRace(race); err != nil {
				return counts, err
			}
			counts.Races++

			for _, rn := range r.Runners {
				runner := &domain.Runner{
					ID: fixtureID("runner", race.ID.String(), rn.Horse), RaceID: race.ID,
					Number: rn.Number, HorseName: rn.Horse, Jockey: rn.Jockey, Trainer: rn.Trainer,
					Barrier: rn.Barrier, Weight: rn.Weight, Form: rn.Form, Scratched: rn.Scratched,
				}
				if err := repo.CreateOrUpdateRunner(runner); err != nil {
					return counts, err
				}
				counts.Runners++
			}
		}
	}

	for _, b := range f.Bookmakers {
		err := repo.CreateOrUpdateBookmaker(&domain.Bookmaker{
			ID: fixtureID("bookmaker", b.Slug), Slug: b.Slug, Name: b.Name,
			Website: b.Website, AffiliateURL: b.AffiliateURL, Rating: b.Rating,
		})
		if err != nil {
			return counts, err
		}
		counts.Bookmakers++
	}

	for _, a := range f.Ambassadors {
		err := repo.CreateOrUpdateAmbassador(&domain.Ambassador{
			ID: fixtureID("ambassador", a.ReferralCode), Name: a.Name, Handle: a.Handle,
			Bio: a.Bio, Avatar: a.Avatar, ReferralCode: a.ReferralCode,
		})
		if err != nil {
			return counts, err
		}
		counts.Ambassadors++
	}

	for _, a := range f.Articles {
		category := strings.ToLower(a.Category)
		if category == "" {
			category = news.CategoryRacing
		}
		if !news.ValidCategory(category) {
			return counts, fmt.Errorf("article %q has unknown category %q", a.Title, a.Category)
		}
		slug := a.Slug
		if slug == "" {
			slug = feed.Slugify(a.Title)
		}
		published := a.Published
		if published.IsZero() {
			published = now
		}
		tags := a.Tags
		if tags == nil {
			tags = []string{}
		}

		article := &domain.Article{
			ID: fixtureID("article", slug), Slug: slug, Title: a.Title, Summary: a.Summary,
			Body: a.Body, Category: category, Author: a.Author, Tags: tags,
			Featured: a.Featured, PublishedAt: published, UpdatedAt: now,
		}
		err := repo.UpdateArticle(article)
		if errors.Is(err, db.ErrArticleNotFound) {
			err = repo.CreateArticle(article)
		}
		if err != nil {
			return counts, fmt.Errorf("seeding article %s: %w", slug, err)
		}
		counts.Articles++
	}
	return counts, nil
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <fixtures.yaml>",
		Short: "Load venues, races, bookmakers, ambassadors and articles from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			f, err := loadFixtures(file)
			if err != nil {
				return err
			}

			svc, err := openService(newLogger())
			if err != nil {
				return err
			}
			defer svc.Close()

			counts, err := applyFixtures(svc.Repo, f, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d venues, %d races, %d runners, %d bookmakers, %d ambassadors, %d articles\n",
				counts.Venues, counts.Races, counts.Runners, counts.Bookmakers, counts.Ambassadors, counts.Articles)
			return nil
		},
	}
}
