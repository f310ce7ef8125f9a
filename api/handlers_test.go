/*
handlers_test.go - HTTP-level tests for the pay calendar API

Tests for:
- Schedule creation and validation responses
- Period materialization and listing
- Lock/pay lifecycle status codes
- Override auditing over HTTP
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattrap/TipSplit-sub000/calendar"
	"github.com/mattrap/TipSplit-sub000/payroll"
	"github.com/mattrap/TipSplit-sub000/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := calendar.NewService(store)
	pc := payroll.NewContext(svc, store, "resto-1")

	srv := httptest.NewServer(NewRouter(NewHandler(svc, pc)))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, out.Bytes()
}

func decodeInto(t *testing.T, raw []byte, target any) {
	require.NoError(t, json.Unmarshal(raw, target), "body: %s", raw)
}

func validScheduleRequest() CreateScheduleRequest {
	return CreateScheduleRequest{
		GroupKey:          "resto-1",
		Name:              "Biweekly",
		Timezone:          "America/Montreal",
		PeriodLengthDays:  14,
		PayDateOffsetDays: 4,
		AnchorStartLocal:  "2025-01-05T06:00:00",
		EffectiveFrom:     "2024-01-01",
	}
}

func createSchedule(t *testing.T, srv *httptest.Server) ScheduleDTO {
	resp, raw := doJSON(t, http.MethodPost, srv.URL+"/api/schedules", validScheduleRequest())
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)

	var dto ScheduleDTO
	decodeInto(t, raw, &dto)
	return dto
}

func ensurePeriods(t *testing.T, srv *httptest.Server, scheduleID, from, to string) []PeriodDTO {
	resp, raw := doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/schedules/%s/periods/ensure", srv.URL, scheduleID),
		EnsurePeriodsRequest{From: from, To: to})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", raw)

	resp, raw = doJSON(t, http.MethodGet,
		fmt.Sprintf("%s/api/schedules/%s/periods", srv.URL, scheduleID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var periods []PeriodDTO
	decodeInto(t, raw, &periods)
	return periods
}

// =============================================================================
// SCHEDULES
// =============================================================================

func TestCreateSchedule_OK(t *testing.T) {
	srv := newTestServer(t)

	dto := createSchedule(t, srv)
	assert.NotEmpty(t, dto.ID)
	assert.Equal(t, "resto-1", dto.GroupKey)
	assert.Equal(t, "2025-01-05T06:00:00", dto.AnchorStartLocal)
	assert.Nil(t, dto.EffectiveTo)
}

func TestCreateSchedule_ValidationErrors(t *testing.T) {
	srv := newTestServer(t)

	// Bad period length
	req := validScheduleRequest()
	req.PeriodLengthDays = 3
	resp, raw := doJSON(t, http.MethodPost, srv.URL+"/api/schedules", req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(raw), "period_length_days")

	// Anchor on a Monday
	req = validScheduleRequest()
	req.AnchorStartLocal = "2025-01-06T06:00:00"
	resp, raw = doJSON(t, http.MethodPost, srv.URL+"/api/schedules", req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(raw), "Sunday")

	// Unknown timezone
	req = validScheduleRequest()
	req.Timezone = "Nowhere/Unknown"
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/schedules", req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetActiveSchedule(t *testing.T) {
	srv := newTestServer(t)
	created := createSchedule(t, srv)

	resp, raw := doJSON(t, http.MethodGet,
		srv.URL+"/api/schedules/active?group_key=resto-1&date=2025-03-01", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var dto ScheduleDTO
	decodeInto(t, raw, &dto)
	assert.Equal(t, created.ID, dto.ID)

	// Before the effective range
	resp, _ = doJSON(t, http.MethodGet,
		srv.URL+"/api/schedules/active?group_key=resto-1&date=2023-01-01", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Missing group key
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/schedules/active", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetSchedule_NotFound(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/schedules/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// PERIODS
// =============================================================================

func TestEnsurePeriods_OverHTTP(t *testing.T) {
	srv := newTestServer(t)
	sched := createSchedule(t, srv)

	resp, raw := doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/schedules/%s/periods/ensure", srv.URL, sched.ID),
		EnsurePeriodsRequest{From: "2024-12-20", To: "2025-02-01"})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", raw)

	var result EnsurePeriodsResponse
	decodeInto(t, raw, &result)
	assert.Equal(t, 4, result.Inserted)

	// Second pass inserts nothing.
	resp, raw = doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/schedules/%s/periods/ensure", srv.URL, sched.ID),
		EnsurePeriodsRequest{From: "2024-12-20", To: "2025-02-01"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeInto(t, raw, &result)
	assert.Equal(t, 0, result.Inserted)
}

func TestListSchedulePeriods_NewestFirst(t *testing.T) {
	srv := newTestServer(t)
	sched := createSchedule(t, srv)

	periods := ensurePeriods(t, srv, sched.ID, "2024-12-20", "2025-02-01")
	require.Len(t, periods, 4)

	assert.Equal(t, "2025-01-19T11:00:00+00:00", periods[0].StartAtUTC)
	assert.Equal(t, "2025-01", periods[1].DisplayID)
	assert.Equal(t, "OPEN", periods[0].Status)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestLockAndPayFlow(t *testing.T) {
	srv := newTestServer(t)
	sched := createSchedule(t, srv)
	periods := ensurePeriods(t, srv, sched.ID, "2025-01-01", "2025-02-01")
	require.NotEmpty(t, periods)
	id := periods[len(periods)-1].ID

	// Pay before lock -> conflict
	resp, _ := doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/periods/%s/pay", srv.URL, id), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Lock
	resp, raw := doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/periods/%s/lock", srv.URL, id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", raw)
	var dto PeriodDTO
	decodeInto(t, raw, &dto)
	assert.Equal(t, "LOCKED", dto.Status)
	assert.NotNil(t, dto.LockedAtUTC)

	// Lock again -> conflict
	resp, _ = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/periods/%s/lock", srv.URL, id), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Pay
	resp, raw = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/periods/%s/pay", srv.URL, id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeInto(t, raw, &dto)
	assert.Equal(t, "PAYED", dto.Status)
	assert.NotNil(t, dto.PayedAtUTC)
}

func TestLockPeriod_NotFound(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/periods/missing/lock", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// OVERRIDES
// =============================================================================

func TestOverridePeriod_OverHTTP(t *testing.T) {
	srv := newTestServer(t)
	sched := createSchedule(t, srv)
	periods := ensurePeriods(t, srv, sched.ID, "2025-01-01", "2025-02-01")
	require.NotEmpty(t, periods)
	id := periods[0].ID

	// Blank reason -> 400, no audit rows
	resp, _ := doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/periods/%s/override", srv.URL, id),
		OverrideRequest{Changes: map[string]string{"pay_date_local": "2025-03-01"}, Reason: "  ", Actor: "admin"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, raw := doJSON(t, http.MethodGet,
		fmt.Sprintf("%s/api/periods/%s/overrides", srv.URL, id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var trail []OverrideDTO
	decodeInto(t, raw, &trail)
	assert.Empty(t, trail)

	// Valid override -> 200 with one audit row
	resp, raw = doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/periods/%s/override", srv.URL, id),
		OverrideRequest{Changes: map[string]string{"pay_date_local": "2025-03-01"}, Reason: "bank holiday", Actor: "admin"})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", raw)

	var result OverrideResponse
	decodeInto(t, raw, &result)
	assert.Equal(t, "2025-03-01", result.Period.PayDateLocal)
	require.Len(t, result.Audits, 1)
	assert.Equal(t, "pay_date_local", result.Audits[0].Field)
	assert.Equal(t, "bank holiday", result.Audits[0].Reason)

	// Field outside the allow-list -> 400
	resp, _ = doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/periods/%s/override", srv.URL, id),
		OverrideRequest{Changes: map[string]string{"status": "PAYED"}, Reason: "why not", Actor: "admin"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// GROUP CONTEXT
// =============================================================================

func TestGroupBootstrapAndCurrentPeriod(t *testing.T) {
	srv := newTestServer(t)

	resp, raw := doJSON(t, http.MethodPost, srv.URL+"/api/group/bootstrap", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", raw)

	var sched ScheduleDTO
	decodeInto(t, raw, &sched)
	assert.Equal(t, "resto-1", sched.GroupKey)
	assert.Equal(t, "America/Montreal", sched.Timezone)

	resp, raw = doJSON(t, http.MethodGet, srv.URL+"/api/group/current-period", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", raw)

	var current PeriodDTO
	decodeInto(t, raw, &current)
	assert.Equal(t, sched.ID, current.ScheduleID)
	assert.Equal(t, "OPEN", current.Status)
}

func TestGroupPeriods_DecoratedListing(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/group/bootstrap", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, raw := doJSON(t, http.MethodGet, srv.URL+"/api/group/periods?limit=5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var views []PeriodViewDTO
	decodeInto(t, raw, &views)
	require.Len(t, views, 5)
	for _, v := range views {
		assert.Contains(t, v.RangeLabel, " au ")
		assert.NotEmpty(t, v.FolderName)
		assert.Equal(t, "EMPTY", v.StatusDisplay)
	}
}

func TestGroupDistributionFlow(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/group/bootstrap", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, raw := doJSON(t, http.MethodGet, srv.URL+"/api/group/current-period", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var current PeriodDTO
	decodeInto(t, raw, &current)

	// Non-positive amount -> 400
	resp, _ = doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/group/periods/%s/distributions", srv.URL, current.ID),
		DistributionRequest{Employee: "alice", Amount: "0"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Valid line -> 201
	resp, raw = doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/group/periods/%s/distributions", srv.URL, current.ID),
		DistributionRequest{Employee: "alice", Amount: "123.45"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)

	var dist DistributionDTO
	decodeInto(t, raw, &dist)
	assert.Equal(t, "123.45", dist.Amount)

	// The period now displays as OPEN, not EMPTY.
	resp, raw = doJSON(t, http.MethodGet,
		fmt.Sprintf("%s/api/group/periods/%s", srv.URL, current.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view PeriodViewDTO
	decodeInto(t, raw, &view)
	assert.Equal(t, "OPEN", view.StatusDisplay)
}

func TestGroupPeriodForDate(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/group/bootstrap", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Missing date -> 400
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/group/period-for-date", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	today := time.Now().UTC().Format("2006-01-02")
	resp, raw := doJSON(t, http.MethodGet, srv.URL+"/api/group/period-for-date?date="+today, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", raw)
	var p PeriodDTO
	decodeInto(t, raw, &p)
	assert.NotEmpty(t, p.ID)

	// ensure-window is POST only
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/group/ensure-window", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, raw = doJSON(t, http.MethodPost, srv.URL+"/api/group/ensure-window", EnsureWindowRequest{})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", raw)
}
