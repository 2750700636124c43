package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/tfkr-ae/furlong/onboarding"
)

type selectRequest struct {
	Values []string `json:"values"`
}

type notificationsRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) startOnboarding(w http.ResponseWriter, r *http.Request) {
	wizard := s.svc.Onboarding.Start(userID(r))
	writeJSON(w, http.StatusCreated, wizard.State())
}

func (s *Server) wizard(r *http.Request) (*onboarding.Wizard, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	return s.svc.Onboarding.Get(id, userID(r))
}

func (s *Server) getOnboarding(w http.ResponseWriter, r *http.Request) {
	wizard, err := s.wizard(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wizard.State())
}

func (s *Server) moveOnboarding(w http.ResponseWriter, r *http.Request) {
	wizard, err := s.wizard(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	var state onboarding.State
	switch mux.Vars(r)["action"] {
	case "next":
		state, err = wizard.Next()
	case "back":
		state, err = wizard.Back()
	case "skip":
		state, err = wizard.Skip()
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) selectOnboarding(w http.ResponseWriter, r *http.Request) {
	wizard, err := s.wizard(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	var req selectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	state, err := wizard.Select(req.Values)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) notifyOnboarding(w http.ResponseWriter, r *http.Request) {
	wizard, err := s.wizard(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	var req notificationsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	state, err := wizard.SetNotifications(req.Enabled)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}
