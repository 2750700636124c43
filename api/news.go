package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/tfkr-ae/furlong/news"
	"github.com/tfkr-ae/furlong/render"
)

const defaultNewsLimit = 20

// listNews serves article summaries, optionally filtered by category, a search query and
// the featured flag.
func (s *Server) listNews(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	category := strings.ToLower(strings.TrimSpace(query.Get("category")))
	if category != "" && category != news.CategoryAll && !news.ValidCategory(category) {
		s.fail(w, badRequest("unknown category %q", category))
		return
	}
	limit, err := queryInt(r, "limit", defaultNewsLimit)
	if err != nil {
		s.fail(w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.fail(w, err)
		return
	}

	latest, err := queryInt(r, "latest", -1)
	if err != nil {
		s.fail(w, err)
		return
	}

	search := query.Get("q")
	featured := query.Get("featured") == "true"
	if search == "" && !featured && latest < 0 {
		articles, err := s.svc.Repo.GetArticles(category, limit, offset)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, news.Summaries(articles))
		return
	}

	articles, err := s.svc.Repo.GetArticles(category, 0, 0)
	if err != nil {
		s.fail(w, err)
		return
	}
	articles = news.Search(articles, search)
	if featured {
		articles = news.Featured(articles)
	}
	if latest >= 0 {
		articles = news.Latest(articles, latest)
	}
	writeJSON(w, http.StatusOK, news.Summaries(page(articles, limit, offset)))
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, append([]string{news.CategoryAll}, news.Categories...))
}

func (s *Server) getArticle(w http.ResponseWriter, r *http.Request) {
	article, err := s.svc.Repo.GetArticleBySlug(mux.Vars(r)["slug"])
	if err != nil {
		s.fail(w, err)
		return
	}
	article.Body = render.FormatBody(article.Body)
	writeJSON(w, http.StatusOK, article)
}
