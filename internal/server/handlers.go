package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"cronlens/internal/engine"
	"cronlens/internal/eventbus"
	"cronlens/internal/storage"
	logx "cronlens/pkg/logx"
)

type scheduleRequest struct {
	Name            string `json:"name"`
	Expression      string `json:"expression"`
	DurationMinutes int    `json:"duration_minutes"`
	IsActive        *bool  `json:"is_active,omitempty"`
	Color           string `json:"color,omitempty"`
}

type validateRequest struct {
	Expression      string `json:"expression"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

type validateResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

type scheduleErrorDTO struct {
	ScheduleID string `json:"schedule_id"`
	Error      string `json:"error"`
}

type monthResponse struct {
	Month    string             `json:"month"`
	Timezone string             `json:"timezone"`
	Slots    []engine.Slot      `json:"slots"`
	Errors   []scheduleErrorDTO `json:"errors,omitempty"`
}

type dayResponse struct {
	Date     string             `json:"date"`
	Timezone string             `json:"timezone"`
	Slots    []engine.Slot      `json:"slots"`
	Segments []engine.Segment   `json:"segments"`
	Errors   []scheduleErrorDTO `json:"errors,omitempty"`
}

type runningResponse struct {
	ScheduleIDs []string  `json:"schedule_ids"`
	At          time.Time `json:"at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil && !s.log.IsZero() {
		s.log.Debug("response encode failed", logx.Err(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	s.writeJSON(w, code, errorResponse{Error: err.Error()})
}

// statusFor maps validation-class engine errors to 400, everything else to 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidExpression),
		errors.Is(err, engine.ErrInvalidDuration),
		errors.Is(err, engine.ErrUnknownTimezone):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func validateSchedule(expression string, durationMinutes int) error {
	if _, err := engine.ParseExpression(expression); err != nil {
		return err
	}
	if durationMinutes < engine.MinDurationMinutes || durationMinutes > engine.MaxDurationMinutes {
		return fmt.Errorf("%w: %d minutes (allowed %d..%d)",
			engine.ErrInvalidDuration, durationMinutes,
			engine.MinDurationMinutes, engine.MaxDurationMinutes)
	}
	return nil
}

func toErrorDTOs(errs []engine.ScheduleError) []scheduleErrorDTO {
	if len(errs) == 0 {
		return nil
	}
	out := make([]scheduleErrorDTO, 0, len(errs))
	for _, e := range errs {
		out = append(out, scheduleErrorDTO{ScheduleID: e.ScheduleID, Error: e.Err.Error()})
	}
	return out
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListSchedules(r.Context())
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	if list == nil {
		list = []engine.Schedule{}
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("name is required"))
		return
	}
	if err := validateSchedule(req.Expression, req.DurationMinutes); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	color := strings.TrimSpace(req.Color)
	if color == "" {
		color = s.colors.Allocate()
	} else {
		s.colors.Reserve(color)
	}

	sc := engine.Schedule{
		ID:              uuid.NewString(),
		Name:            strings.TrimSpace(req.Name),
		Expression:      strings.TrimSpace(req.Expression),
		DurationMinutes: req.DurationMinutes,
		IsActive:        active,
		Color:           color,
	}
	if err := s.store.PutSchedule(r.Context(), sc); err != nil {
		s.colors.Release(color)
		s.writeError(w, statusFor(err), err)
		return
	}
	s.recordMutation(r, "create", sc.ID, sc.Name)
	s.writeJSON(w, http.StatusCreated, sc)
}

func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := s.store.GetSchedule(r.Context(), id)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("name is required"))
		return
	}
	if err := validateSchedule(req.Expression, req.DurationMinutes); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	sc := existing
	sc.Name = strings.TrimSpace(req.Name)
	sc.Expression = strings.TrimSpace(req.Expression)
	sc.DurationMinutes = req.DurationMinutes
	if req.IsActive != nil {
		sc.IsActive = *req.IsActive
	}
	if c := strings.TrimSpace(req.Color); c != "" && c != existing.Color {
		s.colors.Release(existing.Color)
		s.colors.Reserve(c)
		sc.Color = c
	}

	if err := s.store.PutSchedule(r.Context(), sc); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.recordMutation(r, "update", sc.ID, sc.Name)
	s.writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := s.store.GetSchedule(r.Context(), id)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	if err := s.store.DeleteSchedule(r.Context(), id); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.colors.Release(existing.Color)
	s.recordMutation(r, "delete", id, existing.Name)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleValidateSchedule(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	dur := req.DurationMinutes
	if dur == 0 {
		dur = engine.MinDurationMinutes
	}
	if err := validateSchedule(req.Expression, dur); err != nil {
		s.writeJSON(w, http.StatusOK, validateResponse{Valid: false, Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, validateResponse{Valid: true})
}

// parseDateParam accepts "2006-01" or "2006-01-02" in loc.
func parseDateParam(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Now().In(loc), nil
	}
	for _, layout := range []string{"2006-01-02", "2006-01"} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM or YYYY-MM-DD)", raw)
}

func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	set := s.refresh.Settings()
	loc, err := engine.LoadTimezone(set.RunnerTimezone)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	ref, err := parseDateParam(r.URL.Query().Get("date"), loc)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	slots, evalErrs, err := s.refresh.MonthView(r.Context(), ref)
	if err != nil {
		s.metrics.ViewsTotal.WithLabelValues("month", "error").Inc()
		s.writeError(w, statusFor(err), err)
		return
	}
	s.metrics.ViewsTotal.WithLabelValues("month", "ok").Inc()
	if slots == nil {
		slots = []engine.Slot{}
	}
	s.writeJSON(w, http.StatusOK, monthResponse{
		Month:    ref.In(loc).Format("2006-01"),
		Timezone: set.RunnerTimezone,
		Slots:    slots,
		Errors:   toErrorDTOs(evalErrs),
	})
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	set := s.refresh.Settings()
	tz := strings.TrimSpace(r.URL.Query().Get("tz"))
	if tz == "" {
		tz = set.ProjectionTimezone
	}
	loc, err := engine.LoadTimezone(tz)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	day, err := parseDateParam(r.URL.Query().Get("date"), loc)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	daySlots, segments, evalErrs, err := s.refresh.DayView(r.Context(), day, tz)
	if err != nil {
		s.metrics.ViewsTotal.WithLabelValues("day", "error").Inc()
		s.writeError(w, statusFor(err), err)
		return
	}
	s.metrics.ViewsTotal.WithLabelValues("day", "ok").Inc()
	if daySlots == nil {
		daySlots = []engine.Slot{}
	}
	if segments == nil {
		segments = []engine.Segment{}
	}
	s.writeJSON(w, http.StatusOK, dayResponse{
		Date:     day.In(loc).Format("2006-01-02"),
		Timezone: tz,
		Slots:    daySlots,
		Segments: segments,
		Errors:   toErrorDTOs(evalErrs),
	})
}

func (s *Server) handleRunning(w http.ResponseWriter, r *http.Request) {
	ids := s.refresh.Running()
	sort.Strings(ids)
	s.writeJSON(w, http.StatusOK, runningResponse{ScheduleIDs: ids, At: time.Now()})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// recordMutation writes the audit entry, bumps metrics and nudges the
// refresh service. Best-effort: a failed audit write never fails the request.
func (s *Server) recordMutation(r *http.Request, action, scheduleID, detail string) {
	if s.metrics != nil {
		s.metrics.MutationsTotal.WithLabelValues(action).Inc()
	}
	if err := s.store.AppendAudit(r.Context(), storage.AuditEntry{
		At:         time.Now(),
		Action:     action,
		ScheduleID: scheduleID,
		Detail:     detail,
	}); err != nil && !s.log.IsZero() {
		s.log.Warn("audit append failed", logx.String("action", action), logx.Err(err))
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeSchedulesChanged, Data: scheduleID})
	}
	s.refresh.Invalidate()
}
