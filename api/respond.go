package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/tfkr-ae/furlong"
	"github.com/tfkr-ae/furlong/analyst"
	"github.com/tfkr-ae/furlong/db"
	"github.com/tfkr-ae/furlong/feed"
	"github.com/tfkr-ae/furlong/odds"
	"github.com/tfkr-ae/furlong/onboarding"
	"github.com/tfkr-ae/furlong/races"
	"github.com/tfkr-ae/furlong/render"
	"github.com/tfkr-ae/furlong/widgets"
)

var (
	// errBadRequest marks request validation failures.
	errBadRequest = errors.New("bad request")
	errNotFound   = errors.New("not found")
)

// apiError is the body of every error response.
type apiError struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, analyst.ErrEmptyMessage),
		errors.Is(err, analyst.ErrNoIdentity),
		errors.Is(err, onboarding.ErrInvalidTransition),
		errors.Is(err, widgets.ErrUnknownWidget),
		errors.Is(err, odds.ErrWrongRace),
		errors.Is(err, races.ErrInvalidTrackRating),
		errors.Is(err, feed.ErrUnknownFormat),
		errors.Is(err, db.ErrVenueNotFound):
		return http.StatusBadRequest
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errForbidden), errors.Is(err, analyst.ErrGuestCannotDelete):
		return http.StatusForbidden
	case errors.Is(err, errNotFound),
		errors.Is(err, db.ErrArticleNotFound),
		errors.Is(err, db.ErrRaceNotFound),
		errors.Is(err, db.ErrRunnerNotFound),
		errors.Is(err, db.ErrConversationNotFound),
		errors.Is(err, db.ErrNotOnWatchlist),
		errors.Is(err, db.ErrUnknownReferralCode),
		errors.Is(err, analyst.ErrConversationNotFound),
		errors.Is(err, onboarding.ErrWizardNotFound),
		errors.Is(err, furlong.ErrFeedNotFound):
		return http.StatusNotFound
	case errors.Is(err, db.ErrDuplicateSlug),
		errors.Is(err, furlong.ErrFeedExists),
		errors.Is(err, onboarding.ErrWizardClosed):
		return http.StatusConflict
	case errors.Is(err, render.ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, analyst.ErrGuestLimitReached):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are gone; nothing left to report to the client.
		return
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("handling request", "error", err)
		message = http.StatusText(status)
	}
	writeJSON(w, status, apiError{Error: message, Code: status})
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	writeError(w, s.logger, err)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("decoding body: %v", err)
	}
	return nil
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, badRequest("invalid %s", name)
	}
	return id, nil
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, badRequest("%s must be a non-negative integer", name)
	}
	return n, nil
}
