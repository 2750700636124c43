package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tfkr-ae/furlong"
	"github.com/tfkr-ae/furlong/db"
	"github.com/tfkr-ae/furlong/domain"
	"github.com/tfkr-ae/furlong/widgets"
)

const (
	userToken  = "user-token"
	adminToken = "admin-token"
)

func setupServer(t *testing.T, configure func(*furlong.Config)) (*furlong.Service, http.Handler) {
	t.Helper()

	dbConn, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	repo := db.NewRepo(dbConn)

	cfg := furlong.DefaultConfig()
	cfg.APITokens = map[string]string{userToken: "alice", adminToken: "root"}
	cfg.Admins = []string{"root"}
	cfg.MediaDir = t.TempDir()
	if configure != nil {
		configure(cfg)
	}

	svc, err := furlong.New(furlong.WithRepo(repo), furlong.WithConfig(cfg))
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc, NewRouter(svc)
}

type request struct {
	method  string
	path    string
	token   string
	session string
	body    any
	raw     []byte
}

func do(t *testing.T, h http.Handler, req request) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader = http.NoBody
	switch {
	case req.raw != nil:
		body = bytes.NewReader(req.raw)
	case req.body != nil:
		data, err := json.Marshal(req.body)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}

	r := httptest.NewRequest(req.method, req.path, body)
	if req.token != "" {
		r.Header.Set("Authorization", "Bearer "+req.token)
	}
	if req.session != "" {
		r.Header.Set(GuestSessionHeader, req.session)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func seedRace(t *testing.T, svc *furlong.Service) *domain.Race {
	t.Helper()
	venue := &domain.Venue{ID: uuid.New(), Name: "Randwick", State: "NSW", Country: "AUS", TrackRating: "Soft 5"}
	require.NoError(t, svc.Repo.CreateOrUpdateVenue(venue))

	race := &domain.Race{
		ID: uuid.New(), VenueID: venue.ID, Number: 4, Name: "The Everest", Distance: 1200,
		StartTime: time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second), Status: domain.RaceOpen,
	}
	require.NoError(t, svc.Repo.CreateOrUpdateRace(race))
	require.NoError(t, svc.Repo.CreateOrUpdateRunner(&domain.Runner{
		ID: uuid.New(), RaceID: race.ID, Number: 1, HorseName: "Nature Strip", Jockey: "J. McDonald",
		Trainer: "C. Waller", Barrier: 3, Weight: 58.5, Form: "x1231",
	}))
	return race
}

func TestHealth(t *testing.T) {
	_, h := setupServer(t, nil)

	w := do(t, h, request{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestAuthentication(t *testing.T) {
	_, h := setupServer(t, nil)

	t.Run("should reject unknown tokens", func(t *testing.T) {
		w := do(t, h, request{method: http.MethodGet, path: "/api/widgets", token: "nope"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("should require a user for preferences", func(t *testing.T) {
		w := do(t, h, request{method: http.MethodGet, path: "/api/preferences", session: "guest-1"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("should forbid admin routes to regular users", func(t *testing.T) {
		w := do(t, h, request{method: http.MethodGet, path: "/api/admin/stats", token: userToken})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("should allow admins", func(t *testing.T) {
		w := do(t, h, request{method: http.MethodGet, path: "/api/admin/stats", token: adminToken})
		require.Equal(t, http.StatusOK, w.Code)
		stats := decode[statsResponse](t, w)
		assert.Equal(t, 0, stats.Articles)
	})
}

func TestCompression(t *testing.T) {
	_, h := setupServer(t, nil)

	r := httptest.NewRequest(http.MethodGet, "/api/widgets", nil)
	r.Header.Set("Accept-Encoding", "gzip, br")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "br", w.Header().Get("Content-Encoding"))

	var got []widgets.Widget
	require.NoError(t, json.NewDecoder(brotli.NewReader(w.Body)).Decode(&got))
	assert.Equal(t, widgets.Catalogue, got)
}

func TestAnalystChat(t *testing.T) {
	_, h := setupServer(t, func(cfg *furlong.Config) { cfg.GuestMessageLimit = 2 })

	t.Run("should reject empty messages", func(t *testing.T) {
		w := do(t, h, request{method: http.MethodPost, path: "/api/conversations", session: "g-empty",
			body: messageRequest{Content: "   "}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("should stop guests at the message limit", func(t *testing.T) {
		w := do(t, h, request{method: http.MethodPost, path: "/api/conversations", session: "g-1",
			body: messageRequest{Content: "Who do you like in the Cup?"}})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		first := decode[map[string]any](t, w)
		conversation := first["conversation"].(map[string]any)
		id := conversation["id"].(string)
		assert.Equal(t, float64(1), first["remaining"])

		w = do(t, h, request{method: http.MethodPost, path: "/api/conversations/" + id + "/messages",
			session: "g-1", body: messageRequest{Content: "And the track?"}})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = do(t, h, request{method: http.MethodPost, path: "/api/conversations/" + id + "/messages",
			session: "g-1", body: messageRequest{Content: "One more?"}})
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, decode[apiError](t, w).Error, "limit")

		w = do(t, h, request{method: http.MethodGet, path: "/api/conversations/" + id, session: "g-1"})
		require.Equal(t, http.StatusOK, w.Code)
		stored := decode[domain.Conversation](t, w)
		assert.Len(t, stored.Messages, 4)

		w = do(t, h, request{method: http.MethodGet, path: "/api/conversations/remaining", session: "g-1"})
		assert.Equal(t, remainingResponse{Remaining: 0, Limit: 2, Guest: true}, decode[remainingResponse](t, w))
	})

	t.Run("should not let guests delete conversations", func(t *testing.T) {
		w := do(t, h, request{method: http.MethodPost, path: "/api/conversations", session: "g-2",
			body: messageRequest{Content: "Barrier stats?"}})
		require.Equal(t, http.StatusCreated, w.Code)
		id := decode[map[string]any](t, w)["conversation"].(map[string]any)["id"].(string)

		w = do(t, h, request{method: http.MethodDelete, path: "/api/conversations/" + id, session: "g-2"})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("should hide other owners' conversations", func(t *testing.T) {
		w := do(t, h, request{method: http.MethodPost, path: "/api/conversations", token: userToken,
			body: messageRequest{Content: "Speed map please"}})
		require.Equal(t, http.StatusCreated, w.Code)
		id := decode[map[string]any](t, w)["conversation"].(map[string]any)["id"].(string)

		w = do(t, h, request{method: http.MethodGet, path: "/api/conversations/" + id, session: "g-3"})
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = do(t, h, request{method: http.MethodDelete, path: "/api/conversations/" + id, token: userToken})
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestWidgets(t *testing.T) {
	_, h := setupServer(t, nil)
	toggle := request{method: http.MethodPost, path: "/api/preferences/widgets/odds-table/toggle", token: userToken}

	w := do(t, h, toggle)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"odds-table"}, decode[[]string](t, w))

	w = do(t, h, toggle)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{}, decode[[]string](t, w))

	w = do(t, h, request{method: http.MethodPost, path: "/api/preferences/widgets/teletext/toggle", token: userToken})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, request{method: http.MethodPut, path: "/api/preferences/widgets", token: userToken,
		body: []string{"news-feed", "news-feed"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWatchlist(t *testing.T) {
	_, h := setupServer(t, nil)

	w := do(t, h, request{method: http.MethodPost, path: "/api/watchlist", token: userToken,
		body: watchRequest{HorseName: "  Winx ", Note: "back next start"}})
	require.Equal(t, http.StatusCreated, w.Code)
	entries := decode[[]domain.WatchlistEntry](t, w)
	require.Len(t, entries, 1)
	assert.Equal(t, "Winx", entries[0].HorseName)

	w = do(t, h, request{method: http.MethodDelete, path: "/api/watchlist/Winx", token: userToken})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, request{method: http.MethodDelete, path: "/api/watchlist/Winx", token: userToken})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReferralClick(t *testing.T) {
	svc, h := setupServer(t, nil)
	require.NoError(t, svc.Repo.CreateOrUpdateAmbassador(&domain.Ambassador{
		ID: uuid.New(), Name: "Tipster Tom", Handle: "@tom", ReferralCode: "TOM10",
	}))

	w := do(t, h, request{method: http.MethodPost, path: "/api/referrals/click", session: "g-1",
		body: referralRequest{Code: "TOM10", Bookmaker: "sportsbet"}})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = do(t, h, request{method: http.MethodPost, path: "/api/referrals/click", session: "g-1",
		body: referralRequest{Code: "NOBODY"}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	count, err := svc.Repo.CountReferralClicks()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestArticles(t *testing.T) {
	_, h := setupServer(t, nil)

	w := do(t, h, request{method: http.MethodPost, path: "/api/admin/articles", token: adminToken,
		body: articleRequest{Title: "Cup Day Preview", Body: "First paragraph.\n\nSecond paragraph.", Category: "Tips"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[domain.Article](t, w)
	assert.Equal(t, "cup-day-preview", created.Slug)
	assert.Equal(t, "tips", created.Category)

	t.Run("should reject duplicate slugs", func(t *testing.T) {
		w := do(t, h, request{method: http.MethodPost, path: "/api/admin/articles", token: adminToken,
			body: articleRequest{Title: "Cup day preview!", Category: "tips"}})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("should reject unknown categories", func(t *testing.T) {
		w := do(t, h, request{method: http.MethodPost, path: "/api/admin/articles", token: adminToken,
			body: articleRequest{Title: "Elsewhere", Category: "gossip"}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("should list summaries without bodies", func(t *testing.T) {
		w := do(t, h, request{method: http.MethodGet, path: "/api/news?category=tips", session: "g"})
		require.Equal(t, http.StatusOK, w.Code)
		list := decode[[]domain.Article](t, w)
		require.Len(t, list, 1)
		assert.Empty(t, list[0].Body)

		w = do(t, h, request{method: http.MethodGet, path: "/api/news?q=nothing-matches", session: "g"})
		assert.Empty(t, decode[[]domain.Article](t, w))
	})

	t.Run("should list the latest articles first", func(t *testing.T) {
		older := time.Now().Add(-48 * time.Hour).UTC()
		w := do(t, h, request{method: http.MethodPost, path: "/api/admin/articles", token: adminToken,
			body: articleRequest{Title: "Spring carnival wrap", Category: "racing", PublishedAt: &older}})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		w = do(t, h, request{method: http.MethodGet, path: "/api/news?latest=1", session: "g"})
		require.Equal(t, http.StatusOK, w.Code)
		list := decode[[]domain.Article](t, w)
		require.Len(t, list, 1)
		assert.Equal(t, "cup-day-preview", list[0].Slug)

		w = do(t, h, request{method: http.MethodGet, path: "/api/news?latest=-1", session: "g"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("should serve the formatted body", func(t *testing.T) {
		w := do(t, h, request{method: http.MethodGet, path: "/api/articles/cup-day-preview", session: "g"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, decode[domain.Article](t, w).Body, "<p>Second paragraph.</p>")
	})

	t.Run("should store uploaded images", func(t *testing.T) {
		png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")
		w := do(t, h, request{method: http.MethodPost, path: "/api/admin/articles/" + created.ID.String() + "/media",
			token: adminToken, raw: png})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		article := decode[domain.Article](t, w)
		assert.Equal(t, "image/png", article.HeroMime)
		assert.Equal(t, "/media/"+created.ID.String()+".png", article.HeroImage)

		w = do(t, h, request{method: http.MethodGet, path: article.HeroImage})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("should reject other uploads", func(t *testing.T) {
		w := do(t, h, request{method: http.MethodPost, path: "/api/admin/articles/" + created.ID.String() + "/media",
			token: adminToken, raw: []byte("just some text")})
		assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	})

	t.Run("should delete articles", func(t *testing.T) {
		path := "/api/admin/articles/" + created.ID.String()
		assert.Equal(t, http.StatusNoContent, do(t, h, request{method: http.MethodDelete, path: path, token: adminToken}).Code)
		assert.Equal(t, http.StatusNotFound, do(t, h, request{method: http.MethodDelete, path: path, token: adminToken}).Code)
	})
}

func TestRacesAndOdds(t *testing.T) {
	svc, h := setupServer(t, nil)
	race := seedRace(t, svc)
	racePath := "/api/races/" + race.ID.String()

	t.Run("should describe the race with form stats", func(t *testing.T) {
		w := do(t, h, request{method: http.MethodGet, path: racePath, session: "g"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		got := decode[map[string]any](t, w)
		assert.Equal(t, map[string]any{"condition": "Soft", "value": float64(5)}, got["track"])
		runners := got["runners"].([]any)
		require.Len(t, runners, 1)
		stats := runners[0].(map[string]any)["stats"].(map[string]any)
		assert.Equal(t, float64(4), stats["starts"])
	})

	t.Run("should return 404 for unknown races", func(t *testing.T) {
		unknown := "/api/races/" + uuid.NewString()
		for _, path := range []string{unknown, unknown + "/odds", unknown + "/odds/best", unknown + "/movers"} {
			w := do(t, h, request{method: http.MethodGet, path: path, session: "g"})
			assert.Equal(t, http.StatusNotFound, w.Code, path)
		}
	})

	t.Run("should describe a runner by id", func(t *testing.T) {
		full, err := svc.Repo.GetRace(race.ID)
		require.NoError(t, err)
		require.Len(t, full.Runners, 1)

		w := do(t, h, request{method: http.MethodGet, path: "/api/runners/" + full.Runners[0].ID.String(), session: "g"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		got := decode[map[string]any](t, w)
		assert.Equal(t, "Nature Strip", got["horseName"])
		assert.Equal(t, []any{float64(1), float64(2), float64(3), float64(1)}, got["positions"])

		w = do(t, h, request{method: http.MethodGet, path: "/api/runners/" + uuid.NewString(), session: "g"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("should merge snapshots", func(t *testing.T) {
		snapshot := domain.Snapshot{RaceID: race.ID, Rows: []*domain.OddsRow{
			{HorseName: "Nature Strip", Bookmaker: "tab", Win: 3.5, Place: 1.5},
			{HorseName: "nature  strip", Bookmaker: "sportsbet", Win: 3.8, Place: 1.6},
			{HorseName: "", Bookmaker: "tab", Win: 9},
		}}
		w := do(t, h, request{method: http.MethodPost, path: "/api/admin/odds", token: adminToken, body: snapshot})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		result := decode[map[string]any](t, w)
		assert.Len(t, result["rejected"], 1)

		w = do(t, h, request{method: http.MethodGet, path: racePath + "/odds/best?horse=NATURE%20STRIP", session: "g"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		best := decode[domain.OddsRow](t, w)
		assert.Equal(t, "sportsbet", best.Bookmaker)
		assert.Equal(t, 3.8, best.Win)

		w = do(t, h, request{method: http.MethodGet, path: racePath + "/odds/best?horse=Phar%20Lap", session: "g"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("should reject snapshots for unknown races", func(t *testing.T) {
		snapshot := domain.Snapshot{RaceID: uuid.New(), Rows: []*domain.OddsRow{{HorseName: "X", Bookmaker: "tab", Win: 2}}}
		w := do(t, h, request{method: http.MethodPost, path: "/api/admin/odds", token: adminToken, body: snapshot})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("should list next to jump", func(t *testing.T) {
		w := do(t, h, request{method: http.MethodGet, path: "/api/races/next?n=3", session: "g"})
		require.Equal(t, http.StatusOK, w.Code)
		next := decode[[]domain.Race](t, w)
		require.Len(t, next, 1)
		assert.Equal(t, race.ID, next[0].ID)
	})

	t.Run("should validate race status", func(t *testing.T) {
		w := do(t, h, request{method: http.MethodPut, path: "/api/admin" + racePath[len("/api"):] + "/status",
			token: adminToken, body: statusRequest{Status: "postponed"}})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = do(t, h, request{method: http.MethodPut, path: "/api/admin" + racePath[len("/api"):] + "/status",
			token: adminToken, body: statusRequest{Status: domain.RaceClosed}})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, domain.RaceClosed, decode[domain.Race](t, w).Status)
	})
}

func TestOnboarding(t *testing.T) {
	_, h := setupServer(t, nil)

	w := do(t, h, request{method: http.MethodPost, path: "/api/onboarding", token: userToken})
	require.Equal(t, http.StatusCreated, w.Code)
	state := decode[map[string]any](t, w)
	id := state["id"].(string)
	assert.Equal(t, "signup", state["step"])

	w = do(t, h, request{method: http.MethodPost, path: "/api/onboarding/" + id + "/back", token: userToken})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, request{method: http.MethodPost, path: "/api/onboarding/" + id + "/next", token: userToken})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "welcome", decode[map[string]any](t, w)["step"])

	t.Run("should hide wizards of other users", func(t *testing.T) {
		w := do(t, h, request{method: http.MethodGet, path: "/api/onboarding/" + id, token: adminToken})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestFeeds(t *testing.T) {
	_, h := setupServer(t, nil)

	w := do(t, h, request{method: http.MethodPost, path: "/api/admin/feeds", token: adminToken,
		body: map[string]any{"name": "wire", "url": "https://example.com/rss", "category": "racing"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, h, request{method: http.MethodPost, path: "/api/admin/feeds", token: adminToken,
		body: map[string]any{"name": "wire", "url": "https://example.com/other"}})
	assert.Equal(t, http.StatusConflict, w.Code)

	rss := `<?xml version="1.0"?><rss version="2.0"><channel><title>Wire</title>
<item><title>Favourite scratched</title><link>https://example.com/a</link><description>Late news.</description></item>
<item><title>No link here</title></item>
</channel></rss>`
	w = do(t, h, request{method: http.MethodPost, path: "/api/admin/feeds/import?name=wire", token: adminToken, raw: []byte(rss)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[map[string]any](t, w)
	assert.Equal(t, float64(1), result["created"])
	assert.Equal(t, float64(1), result["skipped"])

	w = do(t, h, request{method: http.MethodPost, path: "/api/admin/feeds/import", token: adminToken, raw: []byte("not xml")})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, request{method: http.MethodDelete, path: "/api/admin/feeds/wire", token: adminToken})
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, h, request{method: http.MethodDelete, path: "/api/admin/feeds/wire", token: adminToken})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
