package feed

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/tfkr-ae/furlong/domain"
	"github.com/tfkr-ae/furlong/news"
	"github.com/tfkr-ae/furlong/render"
)

const (
	summaryLength = 280
	slugLength    = 80
)

// Config describes one configured feed.
type Config struct {
	Name     string   `mapstructure:"name" json:"name"`
	URL      string   `mapstructure:"url" json:"url"`
	Category string   `mapstructure:"category" json:"category"`
	Include  []string `mapstructure:"include" json:"include,omitempty"` // title or url regex rules
	Exclude  []string `mapstructure:"exclude" json:"exclude,omitempty"`
}

// Matcher decides whether an item may be imported.
type Matcher interface {
	Matches(input any) bool
}

// Result counts what an import did.
type Result struct {
	Feed    string `json:"feed"`
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
}

// Importer turns feed items into articles.
type Importer struct {
	repo   domain.ArticleRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewImporter creates an Importer that writes through repo. A nil logger discards output.
func NewImporter(repo domain.ArticleRepository, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Importer{repo: repo, logger: logger, now: time.Now}
}

// Import upserts items as articles of cfg's category. Items without a title or link, and
// items the scope rejects, are skipped. A nil scope accepts everything.
func (imp *Importer) Import(ctx context.Context, cfg Config, scope Matcher, items []*Item) (*Result, error) {
	category := strings.ToLower(strings.TrimSpace(cfg.Category))
	if category == "" || category == news.CategoryAll {
		category = news.CategoryRacing
	}
	if !news.ValidCategory(category) {
		return nil, fmt.Errorf("feed %s has unknown category %q", cfg.Name, cfg.Category)
	}

	result := &Result{Feed: cfg.Name}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if item.Title == "" || item.Link == "" {
			result.Skipped++
			continue
		}
		if scope != nil && !scope.Matches(item) {
			result.Skipped++
			continue
		}

		article, err := imp.toArticle(cfg, category, item)
		if err != nil {
			return result, err
		}
		created, err := imp.repo.UpsertArticleBySource(article)
		if err != nil {
			imp.logger.Warn("importing feed item", "feed", cfg.Name, "link", item.Link, "error", err)
			result.Failed++
			continue
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	imp.logger.Info("feed imported", "feed", cfg.Name, "created", result.Created,
		"updated", result.Updated, "skipped", result.Skipped, "failed", result.Failed)
	return result, nil
}

func (imp *Importer) toArticle(cfg Config, category string, item *Item) (*domain.Article, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating article id: %w", err)
	}
	now := imp.now().UTC()
	published := item.Published
	if published.IsZero() {
		published = now
	}

	body := item.Body
	if body == "" {
		body = item.Summary
	}
	author := item.Author
	if author == "" {
		author = cfg.Name
	}
	tags := make([]string, 0, len(item.Categories))
	for _, c := range item.Categories {
		tags = append(tags, strings.ToLower(c))
	}

	slug, err := imp.uniqueSlug(item)
	if err != nil {
		return nil, err
	}

	return &domain.Article{
		ID:          id,
		Slug:        slug,
		Title:       item.Title,
		Summary:     render.Excerpt(item.Summary, summaryLength),
		Body:        render.FormatBody(body),
		Category:    category,
		Author:      author,
		Source:      cfg.Name,
		SourceURL:   item.Link,
		Tags:        tags,
		PublishedAt: published,
		UpdatedAt:   now,
	}, nil
}

// uniqueSlug returns the title slug, suffixed with a hash of the link when another
// source already owns it.
func (imp *Importer) uniqueSlug(item *Item) (string, error) {
	slug := Slugify(item.Title)
	if slug == "" {
		slug = "article"
	}
	existing, err := imp.repo.GetArticleBySlug(slug)
	if err != nil {
		// Missing, or a lookup error the upsert will report.
		return slug, nil
	}
	if existing.SourceURL == item.Link {
		return slug, nil
	}
	h := fnv.New32a()
	h.Write([]byte(item.Link))
	return fmt.Sprintf("%s-%08x", slug, h.Sum32()), nil
}

// Slugify lower-cases s and joins its letters and digits with hyphens.
func Slugify(s string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r == '\'' || r == '’':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if dash && sb.Len() > 0 {
				sb.WriteByte('-')
			}
			sb.WriteRune(r)
			dash = false
		default:
			dash = true
		}
		if sb.Len() >= slugLength {
			break
		}
	}
	return strings.Trim(sb.String(), "-")
}
