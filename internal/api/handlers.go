package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/engagement-monitor/internal/models"
	"github.com/engagement-monitor/internal/storage"
	"github.com/gorilla/mux"
)

// handleEnqueueCampaignJobs fans a campaign's targets out into crawl jobs.
func (s *Server) handleEnqueueCampaignJobs(w http.ResponseWriter, r *http.Request) {
	campaignID := mux.Vars(r)["id"]
	if campaignID == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "campaign id is required")
		return
	}

	enqueued, err := s.queueSvc.EnqueueCampaignJobs(r.Context(), campaignID)
	if err != nil {
		if errors.Is(err, storage.ErrCampaignNotFound) {
			respondError(w, http.StatusNotFound, ErrCodeNotFound, "campaign not found")
			return
		}
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"campaign_id": campaignID,
		"enqueued":    enqueued,
	})
}

// handleJobStats returns queue counts by status.
func (s *Server) handleJobStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queueSvc.Stats(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// handleListEngagements lists a campaign's stored engagements.
func (s *Server) handleListEngagements(w http.ResponseWriter, r *http.Request) {
	campaignID := mux.Vars(r)["id"]
	limit, offset := parsePagination(r)

	records, err := s.engagements.ListByCampaign(r.Context(), campaignID, limit, offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if records == nil {
		records = []*models.EngagementRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"engagements": records,
		"count":       len(records),
	})
}

// handleObservationCounts returns observation volume per action type for
// a campaign over a trailing window (dashboard accessor over the
// analytics sink).
func (s *Server) handleObservationCounts(w http.ResponseWriter, r *http.Request) {
	if s.observations == nil {
		respondError(w, http.StatusServiceUnavailable, "OBSERVATIONS_DISABLED", "observation sink is not enabled")
		return
	}

	campaignID := mux.Vars(r)["id"]
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 24*30 {
			hours = n
		}
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	counts, err := s.observations.CountSince(r.Context(), campaignID, since)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if counts == nil {
		counts = map[string]uint64{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"campaign_id": campaignID,
		"hours":       hours,
		"counts":      counts,
	})
}

// handleDetectAlerts runs one alert detection pass for a campaign.
func (s *Server) handleDetectAlerts(w http.ResponseWriter, r *http.Request) {
	campaignID := mux.Vars(r)["id"]

	queued, err := s.alertSvc.DetectAndQueue(r.Context(), campaignID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"campaign_id": campaignID,
		"queued":      queued,
	})
}

// handleListAlerts lists a campaign's alerts.
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	campaignID := mux.Vars(r)["id"]
	limit, offset := parsePagination(r)

	alerts, err := s.alerts.ListByCampaign(r.Context(), campaignID, limit, offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if alerts == nil {
		alerts = []*models.AlertRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// handleListDueAlerts lists pending alerts whose send time has passed.
func (s *Server) handleListDueAlerts(w http.ResponseWriter, r *http.Request) {
	limit, _ := parsePagination(r)

	alerts, err := s.alerts.ListDue(r.Context(), time.Now(), limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if alerts == nil {
		alerts = []*models.AlertRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// indexSyncRequest is the body for POST /api/index/sync.
type indexSyncRequest struct {
	AccountID string                   `json:"account_id"`
	Username  string                   `json:"username"`
	Weight    float64                  `json:"weight"`
	Following []models.FollowedAccount `json:"following"`
}

// handleIndexSync replaces an important account's following edges.
func (s *Server) handleIndexSync(w http.ResponseWriter, r *http.Request) {
	var req indexSyncRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid request body")
		return
	}
	if req.AccountID == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "account_id is required")
		return
	}
	if req.Weight <= 0 {
		req.Weight = 1
	}

	if err := s.indexSvc.SyncImportantAccount(r.Context(), req.AccountID, req.Username, req.Weight, req.Following); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": req.AccountID,
		"edges":      len(req.Following),
	})
}

// handleIndexScore returns an account's importance score.
func (s *Server) handleIndexScore(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["accountId"]

	score, err := s.indexSvc.Score(r.Context(), accountID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"score":      score,
	})
}

// parsePagination reads limit/offset query parameters with defaults.
func parsePagination(r *http.Request) (limit, offset int) {
	limit = 100
	offset = 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
