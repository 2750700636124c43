// Package api serves the furlong service over HTTP: the JSON endpoints under /api that the
// web client calls, the live odds websocket and the uploaded article media.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/tfkr-ae/furlong"
)

const (
	maxBodyBytes  = 1 << 20
	maxMediaBytes = 20 << 20
)

// Server holds the handlers' dependencies.
type Server struct {
	svc    *furlong.Service
	logger *slog.Logger
	now    func() time.Time
}

// NewRouter builds the HTTP handler for svc.
func NewRouter(svc *furlong.Service) http.Handler {
	s := &Server{svc: svc, logger: svc.Logger, now: time.Now}

	router := mux.NewRouter()
	router.Use(s.requestID, s.logRequests)
	router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	router.HandleFunc("/ws/odds", svc.Hub.ServeWS).Methods(http.MethodGet)
	router.PathPrefix("/media/").Handler(http.StripPrefix("/media/", http.FileServer(http.Dir(svc.Config().Path(svc.Config().MediaDir))))).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(s.compress, s.authenticate)

	api.HandleFunc("/races", s.listRaces).Methods(http.MethodGet)
	api.HandleFunc("/races/next", s.nextToJump).Methods(http.MethodGet)
	api.HandleFunc("/races/{id}", s.getRace).Methods(http.MethodGet)
	api.HandleFunc("/races/{id}/odds", s.getOdds).Methods(http.MethodGet)
	api.HandleFunc("/races/{id}/odds/best", s.getBestOdds).Methods(http.MethodGet)
	api.HandleFunc("/races/{id}/movers", s.getMovers).Methods(http.MethodGet)
	api.HandleFunc("/runners/{id}", s.getRunner).Methods(http.MethodGet)
	api.HandleFunc("/venues", s.listVenues).Methods(http.MethodGet)

	api.HandleFunc("/news", s.listNews).Methods(http.MethodGet)
	api.HandleFunc("/news/categories", s.listCategories).Methods(http.MethodGet)
	api.HandleFunc("/articles/{slug}", s.getArticle).Methods(http.MethodGet)

	api.HandleFunc("/bookmakers", s.listBookmakers).Methods(http.MethodGet)
	api.HandleFunc("/ambassadors", s.listAmbassadors).Methods(http.MethodGet)
	api.HandleFunc("/referrals/click", s.recordReferralClick).Methods(http.MethodPost)
	api.HandleFunc("/widgets", s.listWidgets).Methods(http.MethodGet)

	api.HandleFunc("/conversations", s.listConversations).Methods(http.MethodGet)
	api.HandleFunc("/conversations", s.startConversation).Methods(http.MethodPost)
	api.HandleFunc("/conversations/remaining", s.remainingMessages).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}", s.getConversation).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}", s.deleteConversation).Methods(http.MethodDelete)
	api.HandleFunc("/conversations/{id}/messages", s.sendMessage).Methods(http.MethodPost)

	user := api.NewRoute().Subrouter()
	user.Use(s.requireUser)
	user.HandleFunc("/preferences", s.getPreferences).Methods(http.MethodGet)
	user.HandleFunc("/preferences", s.setPreferences).Methods(http.MethodPost)
	user.HandleFunc("/preferences/widgets", s.getWidgets).Methods(http.MethodGet)
	user.HandleFunc("/preferences/widgets", s.setWidgets).Methods(http.MethodPut)
	user.HandleFunc("/preferences/widgets/{id}/toggle", s.toggleWidget).Methods(http.MethodPost)
	user.HandleFunc("/watchlist", s.getWatchlist).Methods(http.MethodGet)
	user.HandleFunc("/watchlist", s.addToWatchlist).Methods(http.MethodPost)
	user.HandleFunc("/watchlist/{horse}", s.removeFromWatchlist).Methods(http.MethodDelete)
	user.HandleFunc("/onboarding", s.startOnboarding).Methods(http.MethodPost)
	user.HandleFunc("/onboarding/{id}", s.getOnboarding).Methods(http.MethodGet)
	user.HandleFunc("/onboarding/{id}/{action:next|back|skip}", s.moveOnboarding).Methods(http.MethodPost)
	user.HandleFunc("/onboarding/{id}/select", s.selectOnboarding).Methods(http.MethodPost)
	user.HandleFunc("/onboarding/{id}/notifications", s.notifyOnboarding).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(s.requireAdmin)
	admin.HandleFunc("/articles", s.createArticle).Methods(http.MethodPost)
	admin.HandleFunc("/articles/{id}", s.updateArticle).Methods(http.MethodPut)
	admin.HandleFunc("/articles/{id}", s.deleteArticle).Methods(http.MethodDelete)
	admin.HandleFunc("/articles/{id}/media", s.uploadMedia).Methods(http.MethodPost)
	admin.HandleFunc("/races/{id}/status", s.setRaceStatus).Methods(http.MethodPut)
	admin.HandleFunc("/odds", s.applyOdds).Methods(http.MethodPost)
	admin.HandleFunc("/feeds", s.listFeeds).Methods(http.MethodGet)
	admin.HandleFunc("/feeds", s.addFeed).Methods(http.MethodPost)
	admin.HandleFunc("/feeds/{name}", s.removeFeed).Methods(http.MethodDelete)
	admin.HandleFunc("/feeds/import", s.importFeed).Methods(http.MethodPost)
	admin.HandleFunc("/stats", s.getStats).Methods(http.MethodGet)
	admin.HandleFunc("/logs", s.getLogs).Methods(http.MethodGet)

	return router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
