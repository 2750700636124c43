package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/tfkr-ae/furlong"
	"github.com/tfkr-ae/furlong/core"
	"github.com/tfkr-ae/furlong/domain"
	"github.com/tfkr-ae/furlong/feed"
	"github.com/tfkr-ae/furlong/news"
	"github.com/tfkr-ae/furlong/render"
)

// articleRequest holds the editable fields of an article.
type articleRequest struct {
	Slug        string     `json:"slug"`
	Title       string     `json:"title"`
	Summary     string     `json:"summary"`
	Body        string     `json:"body"`
	Category    string     `json:"category"`
	Author      string     `json:"author"`
	Tags        []string   `json:"tags"`
	Featured    bool       `json:"featured"`
	PublishedAt *time.Time `json:"publishedAt"`
}

func (req *articleRequest) apply(article *domain.Article, now time.Time) error {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return badRequest("title is required")
	}
	category := strings.ToLower(strings.TrimSpace(req.Category))
	if category == "" {
		category = news.CategoryRacing
	}
	if !news.ValidCategory(category) {
		return badRequest("unknown category %q", req.Category)
	}
	slug := feed.Slugify(req.Slug)
	if slug == "" {
		slug = feed.Slugify(title)
	}
	if slug == "" {
		return badRequest("title does not produce a usable slug")
	}

	article.Slug = slug
	article.Title = title
	article.Body = req.Body
	article.Summary = strings.TrimSpace(req.Summary)
	if article.Summary == "" {
		article.Summary = render.Excerpt(render.FormatBody(req.Body), 280)
	}
	article.Category = category
	article.Author = strings.TrimSpace(req.Author)
	article.Tags = req.Tags
	if article.Tags == nil {
		article.Tags = []string{}
	}
	article.Featured = req.Featured
	if req.PublishedAt != nil {
		article.PublishedAt = *req.PublishedAt
	} else if article.PublishedAt.IsZero() {
		article.PublishedAt = now
	}
	article.UpdatedAt = now
	return nil
}

func (s *Server) createArticle(w http.ResponseWriter, r *http.Request) {
	var req articleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	article := &domain.Article{ID: uuid.New()}
	if err := req.apply(article, s.now()); err != nil {
		s.fail(w, err)
		return
	}
	if err := s.svc.Repo.CreateArticle(article); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, article)
}

func (s *Server) updateArticle(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	var req articleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	article, err := s.svc.Repo.GetArticleByID(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := req.apply(article, s.now()); err != nil {
		s.fail(w, err)
		return
	}
	if err := s.svc.Repo.UpdateArticle(article); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, article)
}

func (s *Server) deleteArticle(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := s.svc.Repo.DeleteArticle(id); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// uploadMedia stores the request body as the article's hero image or video. The file
// type is sniffed from the content, the Content-Type header is ignored.
func (s *Server) uploadMedia(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	if _, err := s.svc.Repo.GetArticleByID(id); err != nil {
		s.fail(w, err)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMediaBytes))
	if err != nil {
		s.fail(w, badRequest("reading upload: %v", err))
		return
	}
	media, err := render.DetectMedia(data)
	if err != nil {
		s.fail(w, err)
		return
	}

	dir := s.svc.Config().Path(s.svc.Config().MediaDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.fail(w, fmt.Errorf("creating media directory: %w", err))
		return
	}
	name := id.String() + media.Extension
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		s.fail(w, fmt.Errorf("saving media: %w", err))
		return
	}
	if err := s.svc.Repo.SetArticleMedia(id, "/media/"+name, media.MIME); err != nil {
		s.fail(w, err)
		return
	}

	article, err := s.svc.Repo.GetArticleByID(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, article)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) setRaceStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	switch req.Status {
	case domain.RaceOpen, domain.RaceClosed, domain.RaceAbandoned, domain.RaceFinal:
	default:
		s.fail(w, badRequest("invalid race status %q", req.Status))
		return
	}

	if err := s.svc.Repo.SetRaceStatus(id, req.Status); err != nil {
		s.fail(w, err)
		return
	}
	s.svc.WriteLog(furlong.LevelInfo, "race status changed", core.LogWithRaceID(id),
		core.LogWithUserID(userID(r)), core.LogWithContext(map[string]any{"status": req.Status}))

	race, err := s.svc.Repo.GetRace(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, race)
}

func (s *Server) applyOdds(w http.ResponseWriter, r *http.Request) {
	var snapshot domain.Snapshot
	if err := decodeJSON(w, r, &snapshot); err != nil {
		s.fail(w, err)
		return
	}
	if snapshot.RaceID == uuid.Nil {
		s.fail(w, badRequest("raceId is required"))
		return
	}
	now := s.now()
	for _, row := range snapshot.Rows {
		if row != nil && row.UpdatedAt.IsZero() {
			row.UpdatedAt = now
		}
	}

	result, err := s.svc.ApplySnapshot(&snapshot)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) listFeeds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Config().Feeds)
}

func (s *Server) addFeed(w http.ResponseWriter, r *http.Request) {
	var cfg feed.Config
	if err := decodeJSON(w, r, &cfg); err != nil {
		s.fail(w, err)
		return
	}
	cfg.Name = strings.TrimSpace(cfg.Name)
	cfg.Category = strings.ToLower(strings.TrimSpace(cfg.Category))
	if cfg.Name == "" || cfg.URL == "" {
		s.fail(w, badRequest("name and url are required"))
		return
	}
	if cfg.Category != "" && !news.ValidCategory(cfg.Category) {
		s.fail(w, badRequest("unknown category %q", cfg.Category))
		return
	}
	if _, err := furlong.ScopeFromFeed(cfg); err != nil {
		s.fail(w, badRequest("%v", err))
		return
	}

	if err := s.svc.AddFeed(cfg); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

func (s *Server) removeFeed(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.RemoveFeed(mux.Vars(r)["name"]); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// importFeed imports an uploaded RSS or Atom document. A configured feed can be named
// with ?name=, otherwise the document is imported as a one-off under ?category=.
func (s *Server) importFeed(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	cfg := feed.Config{Name: "upload", Category: query.Get("category")}
	if name := query.Get("name"); name != "" {
		found := false
		for _, f := range s.svc.Config().Feeds {
			if f.Name == name {
				cfg, found = f, true
				break
			}
		}
		if !found {
			s.fail(w, fmt.Errorf("%w: %s", furlong.ErrFeedNotFound, name))
			return
		}
	}
	if c := strings.ToLower(cfg.Category); c != "" && c != news.CategoryAll && !news.ValidCategory(c) {
		s.fail(w, badRequest("unknown category %q", cfg.Category))
		return
	}

	result, err := s.svc.ImportFeed(r.Context(), cfg, http.MaxBytesReader(w, r.Body, maxMediaBytes))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type statsResponse struct {
	Articles       int `json:"articles"`
	Races          int `json:"races"`
	Conversations  int `json:"conversations"`
	ReferralClicks int `json:"referralClicks"`
	Wizards        int `json:"onboardingWizards"`
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	var (
		stats statsResponse
		err   error
	)
	counts := []struct {
		dst   *int
		count func() (int, error)
	}{
		{&stats.Articles, s.svc.Repo.CountArticles},
		{&stats.Races, s.svc.Repo.CountRaces},
		{&stats.Conversations, s.svc.Repo.CountConversations},
		{&stats.ReferralClicks, s.svc.Repo.CountReferralClicks},
	}
	for _, c := range counts {
		if *c.dst, err = c.count(); err != nil {
			s.fail(w, err)
			return
		}
	}
	stats.Wizards = s.svc.Onboarding.Len()
	writeJSON(w, http.StatusOK, stats)
}

type logView struct {
	ID        uuid.UUID      `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	RaceID    *uuid.UUID     `json:"raceId,omitempty"`
	UserID    string         `json:"userId,omitempty"`
}

// getLogs returns the persisted logs, optionally only those at ?level=.
func (s *Server) getLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.svc.Repo.GetLogs()
	if err != nil {
		s.fail(w, err)
		return
	}
	level := strings.ToUpper(r.URL.Query().Get("level"))

	views := make([]logView, 0, len(logs))
	for _, l := range logs {
		if level != "" && l.Level != level {
			continue
		}
		views = append(views, logView(*l))
	}
	writeJSON(w, http.StatusOK, views)
}
