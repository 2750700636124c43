package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tfkr-ae/furlong/domain"
)

var _ domain.ArticleRepository = (*Repository)(nil)

var (
	// ErrArticleNotFound is returned when no article matches the given slug or ID.
	ErrArticleNotFound = errors.New("article not found")
	// ErrDuplicateSlug is returned when an article is saved with a slug already in use.
	ErrDuplicateSlug = errors.New("article slug already exists")
)

// dbArticle represents an article as stored in the database.
type dbArticle struct {
	ID          uuid.UUID  `db:"id"`
	Slug        string     `db:"slug"`
	Title       string     `db:"title"`
	Summary     string     `db:"summary"`
	Body        string     `db:"body"`
	Category    string     `db:"category"`
	Author      string     `db:"author"`
	HeroImage   string     `db:"hero_image"`
	HeroMime    string     `db:"hero_mime"`
	Source      string     `db:"source"`
	SourceURL   string     `db:"source_url"`
	Tags        StringList `db:"tags"`
	Featured    bool       `db:"featured"`
	PublishedAt time.Time  `db:"published_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

const articleColumns = `id, slug, title, summary, body, category, author, hero_image, hero_mime,
	source, source_url, tags, featured, published_at, updated_at`

// toDomainArticle converts a dbArticle to a domain.Article.
func toDomainArticle(a *dbArticle) *domain.Article {
	return &domain.Article{
		ID:          a.ID,
		Slug:        a.Slug,
		Title:       a.Title,
		Summary:     a.Summary,
		Body:        a.Body,
		Category:    a.Category,
		Author:      a.Author,
		HeroImage:   a.HeroImage,
		HeroMime:    a.HeroMime,
		Source:      a.Source,
		SourceURL:   a.SourceURL,
		Tags:        []string(a.Tags),
		Featured:    a.Featured,
		PublishedAt: a.PublishedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

// fromDomainArticle converts a domain.Article to a dbArticle. Times are stored in UTC.
func fromDomainArticle(a *domain.Article) *dbArticle {
	return &dbArticle{
		ID:          a.ID,
		Slug:        a.Slug,
		Title:       a.Title,
		Summary:     a.Summary,
		Body:        a.Body,
		Category:    strings.ToLower(a.Category),
		Author:      a.Author,
		HeroImage:   a.HeroImage,
		HeroMime:    a.HeroMime,
		Source:      a.Source,
		SourceURL:   a.SourceURL,
		Tags:        StringList(a.Tags),
		Featured:    a.Featured,
		PublishedAt: a.PublishedAt.UTC(),
		UpdatedAt:   a.UpdatedAt.UTC(),
	}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// GetArticles retrieves articles ordered by publish time, newest first.
func (repo *Repository) GetArticles(category string, limit, offset int) ([]*domain.Article, error) {
	var dbArticles []*dbArticle
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "all" {
		category = ""
	}
	if limit <= 0 {
		limit = -1
	}

	query := `SELECT ` + articleColumns + ` FROM article
	          WHERE (? = '' OR category = ?)
	          ORDER BY published_at DESC, slug
	          LIMIT ? OFFSET ?`

	err := repo.dbConn.Select(&dbArticles, query, category, category, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("getting articles: %w", err)
	}

	articles := make([]*domain.Article, len(dbArticles))
	for i, a := range dbArticles {
		articles[i] = toDomainArticle(a)
	}
	return articles, nil
}

// GetArticleBySlug retrieves a single article by its URL slug.
func (repo *Repository) GetArticleBySlug(slug string) (*domain.Article, error) {
	var a dbArticle
	query := `SELECT ` + articleColumns + ` FROM article WHERE slug = ?`

	err := repo.dbConn.Get(&a, query, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrArticleNotFound
		}
		return nil, fmt.Errorf("getting article %s: %w", slug, err)
	}
	return toDomainArticle(&a), nil
}

// GetArticleByID retrieves a single article by its UUID.
func (repo *Repository) GetArticleByID(id uuid.UUID) (*domain.Article, error) {
	var a dbArticle
	query := `SELECT ` + articleColumns + ` FROM article WHERE id = ?`

	err := repo.dbConn.Get(&a, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrArticleNotFound
		}
		return nil, fmt.Errorf("getting article %s: %w", id, err)
	}
	return toDomainArticle(&a), nil
}

// CreateArticle inserts a new article.
func (repo *Repository) CreateArticle(article *domain.Article) error {
	query := `INSERT INTO article (` + articleColumns + `)
	          VALUES (:id, :slug, :title, :summary, :body, :category, :author, :hero_image, :hero_mime,
	                  :source, :source_url, :tags, :featured, :published_at, :updated_at)`

	_, err := repo.dbConn.NamedExec(query, fromDomainArticle(article))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSlug
		}
		return fmt.Errorf("creating article %s: %w", article.Slug, err)
	}
	return nil
}

// UpdateArticle replaces the editable fields of an existing article.
func (repo *Repository) UpdateArticle(article *domain.Article) error {
	query := `UPDATE article SET slug = :slug, title = :title, summary = :summary, body = :body,
	              category = :category, author = :author, tags = :tags, featured = :featured,
	              published_at = :published_at, updated_at = :updated_at
	          WHERE id = :id`

	result, err := repo.dbConn.NamedExec(query, fromDomainArticle(article))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSlug
		}
		return fmt.Errorf("updating article %s: %w", article.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("fetching rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrArticleNotFound
	}
	return nil
}

// DeleteArticle removes an article by its UUID.
func (repo *Repository) DeleteArticle(id uuid.UUID) error {
	result, err := repo.dbConn.Exec(`DELETE FROM article WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting article %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("fetching rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrArticleNotFound
	}
	return nil
}

// UpsertArticleBySource inserts the article, or refreshes the article previously imported
// from the same source URL. The existing ID and slug are kept on update.
func (repo *Repository) UpsertArticleBySource(article *domain.Article) (bool, error) {
	if article.SourceURL == "" {
		return false, errors.New("upserting article without a source url")
	}

	tx, err := repo.dbConn.Beginx()
	if err != nil {
		return false, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var existing uuid.UUID
	err = tx.Get(&existing, `SELECT id FROM article WHERE source_url = ?`, article.SourceURL)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		query := `INSERT INTO article (` + articleColumns + `)
		          VALUES (:id, :slug, :title, :summary, :body, :category, :author, :hero_image, :hero_mime,
		                  :source, :source_url, :tags, :featured, :published_at, :updated_at)`
		if _, err := tx.NamedExec(query, fromDomainArticle(article)); err != nil {
			if isUniqueViolation(err) {
				return false, ErrDuplicateSlug
			}
			return false, fmt.Errorf("inserting imported article %s: %w", article.SourceURL, err)
		}
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("committing import: %w", err)
		}
		return true, nil
	case err != nil:
		return false, fmt.Errorf("looking up article by source %s: %w", article.SourceURL, err)
	}

	query := `UPDATE article SET title = ?, summary = ?, body = ?, tags = ?, updated_at = ? WHERE id = ?`
	_, err = tx.Exec(query, article.Title, article.Summary, article.Body, StringList(article.Tags), article.UpdatedAt.UTC(), existing)
	if err != nil {
		return false, fmt.Errorf("refreshing imported article %s: %w", article.SourceURL, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing import: %w", err)
	}
	article.ID = existing
	return false, nil
}

// SetArticleMedia stores the hero media reference and its detected MIME type.
func (repo *Repository) SetArticleMedia(id uuid.UUID, media string, mime string) error {
	result, err := repo.dbConn.Exec(`UPDATE article SET hero_image = ?, hero_mime = ? WHERE id = ?`, media, mime, id)
	if err != nil {
		return fmt.Errorf("setting media for article %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("fetching rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrArticleNotFound
	}
	return nil
}
