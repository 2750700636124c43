package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/tfkr-ae/furlong"
	"github.com/tfkr-ae/furlong/core"
	"github.com/tfkr-ae/furlong/domain"
	"github.com/tfkr-ae/furlong/widgets"
)

func (s *Server) listBookmakers(w http.ResponseWriter, r *http.Request) {
	bookmakers, err := s.svc.Repo.GetBookmakers()
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookmakers)
}

func (s *Server) listAmbassadors(w http.ResponseWriter, r *http.Request) {
	ambassadors, err := s.svc.Repo.GetAmbassadors()
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ambassadors)
}

type referralRequest struct {
	Code      string `json:"code"`
	Bookmaker string `json:"bookmaker"`
}

// recordReferralClick stores a click through an ambassador's link. Guests are recorded
// without a user.
func (s *Server) recordReferralClick(w http.ResponseWriter, r *http.Request) {
	var req referralRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	req.Code = strings.TrimSpace(req.Code)
	if req.Code == "" {
		s.fail(w, badRequest("code is required"))
		return
	}

	click := &domain.ReferralClick{
		ID:        uuid.New(),
		Code:      req.Code,
		Bookmaker: strings.TrimSpace(req.Bookmaker),
		UserID:    userID(r),
		ClickedAt: s.now(),
	}
	if err := s.svc.Repo.RecordReferralClick(click); err != nil {
		s.fail(w, err)
		return
	}
	s.svc.WriteLog(furlong.LevelInfo, "referral click", core.LogWithUserID(click.UserID),
		core.LogWithContext(map[string]any{"code": click.Code, "bookmaker": click.Bookmaker}))
	writeJSON(w, http.StatusCreated, click)
}

func (s *Server) listWidgets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, widgets.Catalogue)
}
