package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/tfkr-ae/furlong/domain"
	"github.com/tfkr-ae/furlong/widgets"
)

func (s *Server) getPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.svc.Repo.GetPreferences(userID(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// setPreferences replaces the caller's preferences. The user and onboarding time
// come from the server, not the body.
func (s *Server) setPreferences(w http.ResponseWriter, r *http.Request) {
	var prefs domain.Preferences
	if err := decodeJSON(w, r, &prefs); err != nil {
		s.fail(w, err)
		return
	}
	prefs.UserID = userID(r)
	prefs.OnboardedAt = nil
	for _, list := range []*[]string{&prefs.Jockeys, &prefs.Trainers, &prefs.Tracks, &prefs.Bookmakers} {
		if *list == nil {
			*list = []string{}
		}
	}

	if err := s.svc.Repo.SetPreferences(&prefs); err != nil {
		s.fail(w, err)
		return
	}
	stored, err := s.svc.Repo.GetPreferences(prefs.UserID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) getWidgets(w http.ResponseWriter, r *http.Request) {
	pinned, err := s.svc.Repo.GetPinnedWidgets(userID(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pinned)
}

func (s *Server) setWidgets(w http.ResponseWriter, r *http.Request) {
	var pinned []string
	if err := decodeJSON(w, r, &pinned); err != nil {
		s.fail(w, err)
		return
	}
	if pinned == nil {
		pinned = []string{}
	}
	if err := widgets.Validate(pinned); err != nil {
		s.fail(w, err)
		return
	}
	if err := s.svc.Repo.SetPinnedWidgets(userID(r), pinned); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pinned)
}

func (s *Server) toggleWidget(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	pinned, err := s.svc.Repo.UpdatePinnedWidgets(userID(r), func(pinned []string) ([]string, error) {
		return widgets.Toggle(pinned, id)
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pinned)
}

type watchRequest struct {
	HorseName string `json:"horseName"`
	Note      string `json:"note"`
}

func (s *Server) getWatchlist(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.Repo.GetWatchlist(userID(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) addToWatchlist(w http.ResponseWriter, r *http.Request) {
	var req watchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	horse := strings.Join(strings.Fields(req.HorseName), " ")
	if horse == "" {
		s.fail(w, badRequest("horseName is required"))
		return
	}

	user := userID(r)
	if err := s.svc.Repo.AddToWatchlist(user, horse, strings.TrimSpace(req.Note)); err != nil {
		s.fail(w, err)
		return
	}
	entries, err := s.svc.Repo.GetWatchlist(user)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entries)
}

func (s *Server) removeFromWatchlist(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Repo.RemoveFromWatchlist(userID(r), mux.Vars(r)["horse"]); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
