package api

import (
	"net/http"

	"github.com/google/uuid"
)

type messageRequest struct {
	Content string `json:"content"`
}

type remainingResponse struct {
	Remaining int  `json:"remaining"` // -1 when not limited
	Limit     int  `json:"limit"`
	Guest     bool `json:"guest"`
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := s.svc.Analyst.Conversations(identity(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conversations)
}

// startConversation sends the first message of a new conversation.
func (s *Server) startConversation(w http.ResponseWriter, r *http.Request) {
	s.send(w, r, uuid.Nil)
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	s.send(w, r, id)
}

func (s *Server) send(w http.ResponseWriter, r *http.Request, conversationID uuid.UUID) {
	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}

	exchange, err := s.svc.Analyst.Send(r.Context(), identity(r), conversationID, req.Content)
	if err != nil {
		s.fail(w, err)
		return
	}
	status := http.StatusOK
	if conversationID == uuid.Nil {
		status = http.StatusCreated
	}
	writeJSON(w, status, exchange)
}

func (s *Server) remainingMessages(w http.ResponseWriter, r *http.Request) {
	who := identity(r)
	remaining, err := s.svc.Analyst.Remaining(who)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, remainingResponse{
		Remaining: remaining,
		Limit:     s.svc.Analyst.GuestLimit(),
		Guest:     who.IsGuest(),
	})
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	conversation, err := s.svc.Analyst.Conversation(identity(r), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conversation)
}

func (s *Server) deleteConversation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := s.svc.Analyst.Delete(identity(r), id); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
