package domain

import (
	"time"

	"github.com/google/uuid"
)

// ArticleRepository defines the interface for managing editorial news articles.
type ArticleRepository interface {
	// GetArticles retrieves articles ordered by publish time, newest first.
	// An empty category or "all" returns every category. A limit of 0 means no limit.
	GetArticles(category string, limit, offset int) ([]*Article, error)

	// GetArticleBySlug retrieves a single article by its URL slug.
	// It returns an error if no article with that slug exists.
	GetArticleBySlug(slug string) (*Article, error)

	// GetArticleByID retrieves a single article by its UUID.
	GetArticleByID(id uuid.UUID) (*Article, error)

	// CreateArticle inserts a new article. The ID is assigned by the caller.
	CreateArticle(article *Article) error

	// UpdateArticle replaces the editable fields of an existing article.
	UpdateArticle(article *Article) error

	// DeleteArticle removes an article by its UUID.
	DeleteArticle(id uuid.UUID) error

	// UpsertArticleBySource inserts the article, or updates the existing article that was
	// imported from the same source URL. It reports whether a new row was created.
	UpsertArticleBySource(article *Article) (created bool, err error)

	// SetArticleMedia stores the hero media reference and its detected MIME type.
	SetArticleMedia(id uuid.UUID, media string, mime string) error
}

// Article is a single piece of editorial content shown on the news pages.
type Article struct {
	ID          uuid.UUID `json:"id"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Body        string    `json:"body,omitempty"`
	Category    string    `json:"category"`
	Author      string    `json:"author"`
	HeroImage   string    `json:"heroImage,omitempty"`
	HeroMime    string    `json:"heroMime,omitempty"`
	Source      string    `json:"source,omitempty"`    // Feed name when imported.
	SourceURL   string    `json:"sourceUrl,omitempty"` // Original link when imported.
	Tags        []string  `json:"tags"`
	Featured    bool      `json:"featured"`
	PublishedAt time.Time `json:"publishedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Summarize returns a copy of the article without its body, as served by the listing endpoints.
func (a *Article) Summarize() *Article {
	summary := *a
	summary.Body = ""
	return &summary
}
