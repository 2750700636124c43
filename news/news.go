// Package news implements the article listing rules of the news pages: category filtering,
// free text search and the featured and latest selections.
package news

import (
	"slices"
	"strings"

	"github.com/tfkr-ae/furlong/domain"
)

// Article categories. CategoryAll is a filter value, never stored on an article.
const (
	CategoryAll      = "all"
	CategoryRacing   = "racing"
	CategoryTips     = "tips"
	CategoryIndustry = "industry"
	CategoryFeatures = "features"
	CategoryResults  = "results"
)

// Categories lists the categories an article may belong to, in display order.
var Categories = []string{CategoryRacing, CategoryTips, CategoryIndustry, CategoryFeatures, CategoryResults}

// ValidCategory reports whether category is one of Categories, ignoring case.
func ValidCategory(category string) bool {
	return slices.Contains(Categories, strings.ToLower(strings.TrimSpace(category)))
}

// FilterByCategory returns the articles in category, keeping their order.
// An empty category or "all" returns every article.
func FilterByCategory(articles []*domain.Article, category string) []*domain.Article {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" || category == CategoryAll {
		return articles
	}

	filtered := make([]*domain.Article, 0, len(articles))
	for _, article := range articles {
		if strings.EqualFold(article.Category, category) {
			filtered = append(filtered, article)
		}
	}
	return filtered
}

// Search returns the articles whose title, summary or one of the tags contains query,
// ignoring case. Results keep their original order. An empty query matches everything.
func Search(articles []*domain.Article, query string) []*domain.Article {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return articles
	}

	matched := make([]*domain.Article, 0)
	for _, article := range articles {
		if matches(article, query) {
			matched = append(matched, article)
		}
	}
	return matched
}

func matches(article *domain.Article, query string) bool {
	if strings.Contains(strings.ToLower(article.Title), query) ||
		strings.Contains(strings.ToLower(article.Summary), query) {
		return true
	}
	for _, tag := range article.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	return false
}

// Featured returns the articles flagged as featured, keeping their order.
func Featured(articles []*domain.Article) []*domain.Article {
	featured := make([]*domain.Article, 0)
	for _, article := range articles {
		if article.Featured {
			featured = append(featured, article)
		}
	}
	return featured
}

// Latest returns at most n articles, newest first. The input is not modified.
func Latest(articles []*domain.Article, n int) []*domain.Article {
	sorted := slices.Clone(articles)
	slices.SortStableFunc(sorted, func(a, b *domain.Article) int {
		return b.PublishedAt.Compare(a.PublishedAt)
	})
	if n >= 0 && n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

// Summaries strips the bodies from articles for the listing endpoints.
func Summaries(articles []*domain.Article) []*domain.Article {
	summaries := make([]*domain.Article, len(articles))
	for i, article := range articles {
		summaries[i] = article.Summarize()
	}
	return summaries
}
