/*
handlers.go - HTTP handlers for the pay calendar engine

PURPOSE:
  Exposes the calendar Service and the per-group payroll Context over
  REST. Handles request parsing and JSON serialization, then delegates to
  the domain layer.

ENDPOINTS:
  Schedules:
    POST   /api/schedules                 Create a schedule version
    GET    /api/schedules/active          Active schedule for group+date
    GET    /api/schedules/{id}            Schedule by id
    POST   /api/schedules/{id}/periods/ensure  Materialize a window
    GET    /api/schedules/{id}/periods    Raw periods, newest first

  Periods:
    GET    /api/periods/{id}              Raw period
    POST   /api/periods/{id}/lock         OPEN -> LOCKED
    POST   /api/periods/{id}/pay          LOCKED -> PAYED
    POST   /api/periods/{id}/override     Audited admin field change
    GET    /api/periods/{id}/overrides    Audit trail

  Group context (the configured group):
    GET    /api/group/periods             Decorated periods
    GET    /api/group/periods/{id}        One decorated period
    GET    /api/group/period-for-date     Period containing a local date
    GET    /api/group/current-period      Period containing now
    POST   /api/group/ensure-window       Rolling-window materialization
    POST   /api/group/periods/{id}/distributions  Record a tip line
    POST   /api/group/bootstrap           Seed default schedule + window

ERROR HANDLING:
  Engine errors map to statuses via their classification:
  - 400: validation/configuration errors (messages surfaced verbatim)
  - 404: schedule/period not found
  - 409: rejected status transitions, duplicate starts
  - 500: everything else

SEE ALSO:
  - dto.go: wire shapes
  - server.go: router and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mattrap/TipSplit-sub000/calendar"
	"github.com/mattrap/TipSplit-sub000/payroll"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Svc     *calendar.Service
	Payroll *payroll.Context
}

// NewHandler creates a handler over the service and the group context.
func NewHandler(svc *calendar.Service, payrollCtx *payroll.Context) *Handler {
	return &Handler{Svc: svc, Payroll: payrollCtx}
}

// =============================================================================
// SCHEDULE HANDLERS
// =============================================================================

// CreateSchedule creates a new schedule version, closing the group's
// previous open-ended version.
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	sched, err := h.Svc.CreateScheduleVersion(r.Context(), calendar.ScheduleParams{
		GroupKey:          req.GroupKey,
		Name:              req.Name,
		Timezone:          req.Timezone,
		PeriodLengthDays:  req.PeriodLengthDays,
		PayDateOffsetDays: req.PayDateOffsetDays,
		AnchorStartLocal:  req.AnchorStartLocal,
		EffectiveFrom:     req.EffectiveFrom,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toScheduleDTO(sched))
}

// GetActiveSchedule resolves the schedule covering a date for a group.
// Defaults to today when no date is given.
func (h *Handler) GetActiveSchedule(w http.ResponseWriter, r *http.Request) {
	groupKey := r.URL.Query().Get("group_key")
	if groupKey == "" {
		writeError(w, http.StatusBadRequest, "group_key is required", nil)
		return
	}

	date := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		var err error
		if date, err = calendar.ParseDate(raw); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date", err)
			return
		}
	}

	sched, err := h.Svc.ActiveSchedule(r.Context(), groupKey, date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(sched))
}

// GetSchedule returns a schedule version by id.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id := calendar.ScheduleID(chi.URLParam(r, "id"))
	sched, err := h.Svc.GetSchedule(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(sched))
}

// EnsurePeriods materializes every period overlapping a local window.
func (h *Handler) EnsurePeriods(w http.ResponseWriter, r *http.Request) {
	id := calendar.ScheduleID(chi.URLParam(r, "id"))

	var req EnsurePeriodsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	from, err := calendar.ParseDate(req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date", err)
		return
	}
	to, err := calendar.ParseDate(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date", err)
		return
	}

	inserted, err := h.Svc.EnsurePeriods(r.Context(), id, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EnsurePeriodsResponse{Inserted: inserted})
}

// ListSchedulePeriods returns raw periods, most recent first.
func (h *Handler) ListSchedulePeriods(w http.ResponseWriter, r *http.Request) {
	id := calendar.ScheduleID(chi.URLParam(r, "id"))
	limit, offset := pageParams(r)

	periods, err := h.Svc.ListPeriods(r.Context(), id, limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]PeriodDTO, len(periods))
	for i := range periods {
		dtos[i] = toPeriodDTO(&periods[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PERIOD HANDLERS
// =============================================================================

// GetPeriod returns a raw period by id.
func (h *Handler) GetPeriod(w http.ResponseWriter, r *http.Request) {
	id := calendar.PeriodID(chi.URLParam(r, "id"))
	p, err := h.Svc.GetPeriod(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(p))
}

// LockPeriod transitions a period OPEN -> LOCKED.
func (h *Handler) LockPeriod(w http.ResponseWriter, r *http.Request) {
	id := calendar.PeriodID(chi.URLParam(r, "id"))
	p, err := h.Svc.LockPeriod(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(p))
}

// PayPeriod transitions a period LOCKED -> PAYED.
func (h *Handler) PayPeriod(w http.ResponseWriter, r *http.Request) {
	id := calendar.PeriodID(chi.URLParam(r, "id"))
	p, err := h.Svc.MarkPayed(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(p))
}

// OverridePeriod applies audited admin field changes.
func (h *Handler) OverridePeriod(w http.ResponseWriter, r *http.Request) {
	id := calendar.PeriodID(chi.URLParam(r, "id"))

	var req OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, audits, err := h.Svc.AdminOverridePeriod(r.Context(), id, req.Changes, req.Reason, req.Actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := OverrideResponse{Period: toPeriodDTO(p)}
	for i := range audits {
		resp.Audits = append(resp.Audits, toOverrideDTO(&audits[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListOverrides returns a period's audit trail.
func (h *Handler) ListOverrides(w http.ResponseWriter, r *http.Request) {
	id := calendar.PeriodID(chi.URLParam(r, "id"))
	overrides, err := h.Svc.Overrides(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]OverrideDTO, len(overrides))
	for i := range overrides {
		dtos[i] = toOverrideDTO(&overrides[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// GROUP CONTEXT HANDLERS
// =============================================================================

// ListGroupPeriods returns decorated periods for the configured group.
func (h *Handler) ListGroupPeriods(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)

	views, err := h.Payroll.ListPeriods(r.Context(), limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]PeriodViewDTO, len(views))
	for i := range views {
		dtos[i] = toPeriodViewDTO(&views[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetGroupPeriod returns one decorated period.
func (h *Handler) GetGroupPeriod(w http.ResponseWriter, r *http.Request) {
	id := calendar.PeriodID(chi.URLParam(r, "id"))
	view, err := h.Payroll.GetPeriod(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodViewDTO(view))
}

// PeriodForDate returns the period containing a local civil date.
func (h *Handler) PeriodForDate(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "date is required", nil)
		return
	}
	date, err := calendar.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	p, err := h.Payroll.PeriodForLocalDate(r.Context(), date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(p))
}

// CurrentPeriod returns the period containing the current instant.
func (h *Handler) CurrentPeriod(w http.ResponseWriter, r *http.Request) {
	p, err := h.Payroll.PeriodForTimestamp(r.Context(), time.Now().UTC())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(p))
}

// EnsureWindow materializes a rolling window around today.
func (h *Handler) EnsureWindow(w http.ResponseWriter, r *http.Request) {
	var req EnsureWindowRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	inserted, err := h.Payroll.EnsureWindow(r.Context(), req.MonthsBack, req.MonthsForward)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EnsurePeriodsResponse{Inserted: inserted})
}

// RecordDistribution appends a tip payout line to a period.
func (h *Handler) RecordDistribution(w http.ResponseWriter, r *http.Request) {
	id := calendar.PeriodID(chi.URLParam(r, "id"))

	var req DistributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	dist, err := h.Payroll.RecordDistribution(r.Context(), id, req.Employee, amount)
	if err != nil {
		if errors.Is(err, payroll.ErrInvalidAmount) {
			writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDistributionDTO(dist))
}

// Bootstrap seeds the group's default schedule and initial window.
func (h *Handler) Bootstrap(w http.ResponseWriter, r *http.Request) {
	sched, err := h.Payroll.EnsureDefaultSchedule(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(sched))
}

// =============================================================================
// HELPERS
// =============================================================================

func pageParams(r *http.Request) (limit, offset int) {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, _ = strconv.Atoi(raw)
	}
	return limit, offset
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := errorResponse{Error: message}
	if err != nil {
		resp.Detail = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors onto HTTP statuses, surfacing the
// engine's message verbatim.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case calendar.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case calendar.IsClientError(err):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case calendar.IsConflict(err):
		writeError(w, http.StatusConflict, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
