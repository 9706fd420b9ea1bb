package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/byerim/brandshield/internal/auth"
	"github.com/byerim/brandshield/internal/dmca"
	"github.com/byerim/brandshield/internal/models"
	"github.com/byerim/brandshield/internal/store"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "username and password are required")
		return
	}

	tokens, err := s.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "auth_error", "Invalid credentials")
		return
	}

	respondJSON(w, http.StatusOK, tokens)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	tokens, err := s.authService.RefreshTokens(r.Context(), req.RefreshToken)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "auth_error", "Invalid refresh token")
		return
	}

	respondJSON(w, http.StatusOK, tokens)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.UserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "auth_error", "Not authenticated")
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = s.authService.LogoutAll(r.Context(), claims.UserID)
	} else {
		_ = s.authService.Logout(r.Context(), claims.UserID, req.RefreshToken)
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *Server) getCurrentUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.UserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "auth_error", "Not authenticated")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":  claims.UserID,
		"username": claims.Username,
		"role":     claims.Role,
	})
}

type createUserRequest struct {
	Username string    `json:"username"`
	Password string    `json:"password"`
	Role     auth.Role `json:"role"`
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "username and password are required")
		return
	}

	if req.Role == "" {
		req.Role = auth.RoleViewer
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "server_error", "Failed to process password")
		return
	}

	user := &auth.User{
		Username: req.Username,
		Password: hashedPassword,
		Role:     req.Role,
	}

	if err := s.userStore.CreateUser(r.Context(), user); err != nil {
		respondError(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}

	user.Password = ""
	respondJSON(w, http.StatusCreated, user)
}

func (s *Server) listThreats(w http.ResponseWriter, r *http.Request) {
	filters := store.ListThreatFilters{
		Limit:  100,
		Offset: 0,
	}

	q := r.URL.Query()
	if l := q.Get("limit"); l != "" {
		if limit, err := strconv.Atoi(l); err == nil && limit > 0 {
			filters.Limit = limit
		}
	}
	if o := q.Get("offset"); o != "" {
		if offset, err := strconv.Atoi(o); err == nil && offset >= 0 {
			filters.Offset = offset
		}
	}
	if brand := q.Get("brand"); brand != "" {
		filters.Brand = &brand
	}
	if tt := q.Get("threat_type"); tt != "" {
		threatType := models.ThreatType(tt)
		filters.ThreatType = &threatType
	}
	if sev := q.Get("severity"); sev != "" {
		severity := models.Severity(sev)
		filters.Severity = &severity
	}
	if st := q.Get("status"); st != "" {
		status := models.ThreatStatus(st)
		filters.Status = &status
	}
	if platform := q.Get("platform"); platform != "" {
		filters.Platform = &platform
	}

	threats, total, err := s.store.ListThreats(r.Context(), filters)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}

	respondJSONWithMeta(w, http.StatusOK, threats, &apiMeta{
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	})
}

type threatDetail struct {
	*models.Threat
	Notices []models.DMCANotice `json:"dmca_notices"`
}

func (s *Server) getThreat(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "threatID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid threat ID")
		return
	}

	threat, err := s.store.GetThreat(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if threat == nil {
		respondError(w, http.StatusNotFound, "not_found", "Threat not found")
		return
	}

	notices, err := s.store.ListNotices(r.Context(), &id)
	if err != nil {
		s.logger.Warn("loading notices for threat", "threat_id", id, "error", err)
		notices = nil
	}

	respondJSON(w, http.StatusOK, threatDetail{Threat: threat, Notices: notices})
}

type updateThreatStatusRequest struct {
	Status models.ThreatStatus `json:"status"`
	Notes  string              `json:"notes"`
}

func (s *Server) updateThreatStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "threatID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid threat ID")
		return
	}

	var req updateThreatStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	switch req.Status {
	case models.ThreatStatusNew, models.ThreatStatusReported,
		models.ThreatStatusResolved, models.ThreatStatusIgnored:
	case "":
		respondError(w, http.StatusBadRequest, "validation_error", "status is required")
		return
	default:
		respondError(w, http.StatusBadRequest, "validation_error", "unknown status")
		return
	}

	if err := s.store.UpdateThreatStatus(r.Context(), id, req.Status, req.Notes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "not_found", "Threat not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}

	threat, err := s.store.GetThreat(r.Context(), id)
	if err != nil || threat == nil {
		respondJSON(w, http.StatusOK, map[string]string{"id": id.String(), "status": string(req.Status)})
		return
	}
	respondJSON(w, http.StatusOK, threat)
}

func (s *Server) generateDMCANotice(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "threatID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid threat ID")
		return
	}

	var req dmca.GenerateRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
	}
	req.ThreatID = id

	notice, err := s.dmca.Generate(r.Context(), req)
	if err != nil {
		if errors.Is(err, dmca.ErrThreatNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "Threat not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "dmca_error", err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, notice)
}

func (s *Server) listSuspects(w http.ResponseWriter, r *http.Request) {
	filters := store.ListSuspectFilters{
		Limit:  100,
		Offset: 0,
	}

	q := r.URL.Query()
	if l := q.Get("limit"); l != "" {
		if limit, err := strconv.Atoi(l); err == nil && limit > 0 {
			filters.Limit = limit
		}
	}
	if o := q.Get("offset"); o != "" {
		if offset, err := strconv.Atoi(o); err == nil && offset >= 0 {
			filters.Offset = offset
		}
	}
	if brand := q.Get("brand"); brand != "" {
		filters.Brand = &brand
	}
	if platform := q.Get("platform"); platform != "" {
		filters.Platform = &platform
	}
	if st := q.Get("status"); st != "" {
		status := models.SuspectStatus(st)
		filters.Status = &status
	}

	suspects, total, err := s.store.ListSuspects(r.Context(), filters)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}

	respondJSONWithMeta(w, http.StatusOK, suspects, &apiMeta{
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	})
}

func (s *Server) getSuspect(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "suspectID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid suspect ID")
		return
	}

	suspect, err := s.store.GetSuspect(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if suspect == nil {
		respondError(w, http.StatusNotFound, "not_found", "Suspect not found")
		return
	}

	respondJSON(w, http.StatusOK, suspect)
}

type updateSuspectStatusRequest struct {
	Status models.SuspectStatus `json:"status"`
}

func (s *Server) updateSuspectStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "suspectID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid suspect ID")
		return
	}

	var req updateSuspectStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	switch req.Status {
	case models.SuspectStatusSuspected, models.SuspectStatusConfirmed, models.SuspectStatusCleared:
	default:
		respondError(w, http.StatusBadRequest, "validation_error", "unknown status")
		return
	}

	if err := s.store.UpdateSuspectStatus(r.Context(), id, req.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "not_found", "Suspect not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"id": id.String(), "status": string(req.Status)})
}

func (s *Server) listScans(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	scans, err := s.store.ListScans(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, scans)
}

func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "scanID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid scan ID")
		return
	}

	scan, err := s.store.GetScan(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if scan == nil {
		respondError(w, http.StatusNotFound, "not_found", "Scan not found")
		return
	}

	respondJSON(w, http.StatusOK, scan)
}

type runScanRequest struct {
	Brand    string `json:"brand"`
	Platform string `json:"platform"`
	Async    bool   `json:"async"`
}

// runScan executes a scan inline and returns its summary, or hands it
// to the scheduler when async is set. Either way the scan lands in
// scan_history.
func (s *Server) runScan(w http.ResponseWriter, r *http.Request) {
	var req runScanRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
	}

	if req.Async {
		s.scheduler.TriggerScan(req.Brand, req.Platform)
		respondJSON(w, http.StatusAccepted, map[string]string{"status": "scan_started"})
		return
	}

	summary, err := s.scanner.RunFullScan(r.Context(), req.Brand, req.Platform)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "scan_error", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) listDMCANotices(w http.ResponseWriter, r *http.Request) {
	var threatID *uuid.UUID
	if id := r.URL.Query().Get("threat_id"); id != "" {
		parsed, err := uuid.Parse(id)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_id", "Invalid threat ID")
			return
		}
		threatID = &parsed
	}

	notices, err := s.store.ListNotices(r.Context(), threatID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, notices)
}

func (s *Server) getDMCANotice(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "noticeID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid notice ID")
		return
	}

	notice, err := s.store.GetNotice(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if notice == nil {
		respondError(w, http.StatusNotFound, "not_found", "Notice not found")
		return
	}

	respondJSON(w, http.StatusOK, notice)
}

func (s *Server) markDMCANoticeSent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "noticeID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid notice ID")
		return
	}

	notice, err := s.dmca.MarkSent(r.Context(), id)
	if err != nil {
		if errors.Is(err, dmca.ErrNoticeNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "Notice not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, notice)
}

func (s *Server) schedulerStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.scheduler.Status())
}

func (s *Server) enableScheduler(w http.ResponseWriter, r *http.Request) {
	s.scheduler.Enable()
	respondJSON(w, http.StatusOK, s.scheduler.Status())
}

func (s *Server) disableScheduler(w http.ResponseWriter, r *http.Request) {
	s.scheduler.Disable()
	respondJSON(w, http.StatusOK, s.scheduler.Status())
}

func (s *Server) triggerReport(w http.ResponseWriter, r *http.Request) {
	if err := s.scheduler.TriggerReport(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "report_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

type dashboardSummary struct {
	Counts     *store.DashboardCounts `json:"counts"`
	BySeverity map[string]int         `json:"by_severity"`
	ByBrand    map[string]int         `json:"by_brand"`
}

func (s *Server) getDashboardSummary(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.GetDashboardCounts(r.Context())
	if err != nil {
		s.logger.Error("loading dashboard counts", "error", err)
		respondError(w, http.StatusInternalServerError, "db_error", "Failed to load dashboard")
		return
	}

	summary := dashboardSummary{
		Counts:     counts,
		BySeverity: make(map[string]int),
		ByBrand:    make(map[string]int),
	}

	if sevCounts, err := s.store.ActiveSeverityCounts(r.Context()); err == nil {
		for sev, n := range sevCounts {
			summary.BySeverity[string(sev)] = n
		}
	} else {
		s.logger.Warn("loading severity counts", "error", err)
	}

	if brandCounts, err := s.store.ActiveBrandCounts(r.Context()); err == nil {
		summary.ByBrand = brandCounts
	} else {
		s.logger.Warn("loading brand counts", "error", err)
	}

	respondJSON(w, http.StatusOK, summary)
}

// getStats mirrors the dashboard stats panel: per-status threat counts
// plus scan and notice activity.
func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	stats := make(map[string]interface{})

	byStatus := make(map[string]int)
	for _, status := range []models.ThreatStatus{
		models.ThreatStatusNew, models.ThreatStatusReported,
		models.ThreatStatusResolved, models.ThreatStatusIgnored,
	} {
		n, err := s.store.CountThreatsByStatus(r.Context(), status)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "db_error", err.Error())
			return
		}
		byStatus[string(status)] = n
	}
	stats["threats_by_status"] = byStatus

	suspects, err := s.store.SuspectedAccounts(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	stats["open_suspects"] = len(suspects)

	scans, err := s.store.ListScans(r.Context(), 10)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	stats["recent_scans"] = scans

	notices, err := s.store.ListNotices(r.Context(), nil)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	sent := 0
	for _, n := range notices {
		if n.Status == models.NoticeStatusSent {
			sent++
		}
	}
	stats["dmca"] = map[string]int{"total": len(notices), "sent": sent}

	respondJSON(w, http.StatusOK, stats)
}
