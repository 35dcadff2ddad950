package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"cronlens/internal/colors"
	"cronlens/internal/config"
	"cronlens/internal/engine"
	"cronlens/internal/eventbus"
	"cronlens/internal/services/refresh"
	"cronlens/internal/storage"
	logx "cronlens/pkg/logx"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "store")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	bus := eventbus.New()
	set := config.CalendarSettings{
		RunnerTimezone:     "UTC",
		ProjectionTimezone: "UTC",
		RefreshInterval:    time.Second,
		MaxCacheEntries:    4,
	}
	rf := refresh.New(set, st, bus, logx.Nop())

	httpSet, err := config.HTTPConfig{}.Resolve()
	if err != nil {
		t.Fatalf("resolve http settings: %v", err)
	}
	httpSet.RatePerSec = 0 // no limiter in tests
	return New(httpSet, st, rf, colors.NewAllocator(), bus, logx.Nop())
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createSchedule(t *testing.T, h http.Handler, name, expr string, duration int) engine.Schedule {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/v1/schedules", scheduleRequest{
		Name: name, Expression: expr, DurationMinutes: duration,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create %s: status %d, body %s", name, rec.Code, rec.Body.String())
	}
	var sc engine.Schedule
	if err := json.Unmarshal(rec.Body.Bytes(), &sc); err != nil {
		t.Fatalf("decode created schedule: %v", err)
	}
	return sc
}

func TestScheduleCRUD(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()

	sc := createSchedule(t, h, "Daily Backup", "0 1 * * *", 60)
	if sc.ID == "" || !sc.IsActive {
		t.Fatalf("created schedule incomplete: %+v", sc)
	}
	if sc.Color == "" {
		t.Fatal("created schedule got no color")
	}

	rec := doJSON(t, h, http.MethodGet, "/api/v1/schedules", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var list []engine.Schedule
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].ID != sc.ID {
		t.Fatalf("list = %+v", list)
	}

	rec = doJSON(t, h, http.MethodPut, "/api/v1/schedules/"+sc.ID, scheduleRequest{
		Name: "Daily Backup", Expression: "30 1 * * *", DurationMinutes: 45,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status %d, body %s", rec.Code, rec.Body.String())
	}
	var updated engine.Schedule
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode updated: %v", err)
	}
	if updated.Expression != "30 1 * * *" || updated.DurationMinutes != 45 {
		t.Fatalf("update not applied: %+v", updated)
	}
	if updated.Color != sc.Color {
		t.Fatalf("update changed color: %q -> %q", sc.Color, updated.Color)
	}

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/schedules/"+sc.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodDelete, "/api/v1/schedules/"+sc.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("double delete: status %d", rec.Code)
	}
}

func TestCreateScheduleValidation(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()

	tests := []struct {
		name string
		req  scheduleRequest
	}{
		{name: "bad expression", req: scheduleRequest{Name: "x", Expression: "nope", DurationMinutes: 10}},
		{name: "zero duration", req: scheduleRequest{Name: "x", Expression: "* * * * *", DurationMinutes: 0}},
		{name: "oversize duration", req: scheduleRequest{Name: "x", Expression: "* * * * *", DurationMinutes: engine.MaxDurationMinutes + 1}},
		{name: "missing name", req: scheduleRequest{Expression: "* * * * *", DurationMinutes: 10}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/api/v1/schedules", tt.req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestUpdateMissingSchedule(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()
	rec := doJSON(t, h, http.MethodPut, "/api/v1/schedules/nope", scheduleRequest{
		Name: "x", Expression: "* * * * *", DurationMinutes: 5,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestValidateEndpoint(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/schedules/validate", validateRequest{Expression: "0 9 * * 1-5"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var res validateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Valid {
		t.Fatalf("expected valid, got %+v", res)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/v1/schedules/validate", validateRequest{Expression: "99 * * * *"})
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Valid || res.Error == "" {
		t.Fatalf("expected invalid with message, got %+v", res)
	}
}

func TestMonthEndpoint(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()
	createSchedule(t, h, "daily", "0 9 * * *", 30)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/month?date=2025-03", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var res monthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Month != "2025-03" || res.Timezone != "UTC" {
		t.Fatalf("month header wrong: %+v", res)
	}
	if len(res.Slots) != 31 {
		t.Fatalf("slots = %d, want 31", len(res.Slots))
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/month?date=bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bogus date: status = %d", rec.Code)
	}
}

func TestDayEndpointCollisions(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()
	createSchedule(t, h, "A", "0 1 * * *", 60)
	createSchedule(t, h, "B", "30 1 * * *", 45)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/day?date=2025-03-10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var res dayResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Date != "2025-03-10" {
		t.Fatalf("date = %q", res.Date)
	}
	if len(res.Slots) != 2 {
		t.Fatalf("slots = %d, want 2", len(res.Slots))
	}
	collisions := 0
	for _, seg := range res.Segments {
		if seg.IsCollision {
			collisions++
		}
	}
	if collisions != 2 {
		t.Fatalf("collision segments = %d: %+v", collisions, res.Segments)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/day?date=2025-03-10&tz=Mars/Olympus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad tz: status = %d", rec.Code)
	}
}

func TestRunningAndHealth(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()

	rec := doJSON(t, h, http.MethodGet, "/api/v1/running", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("running: status = %d", rec.Code)
	}
	var res runningResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.ScheduleIDs) != 0 {
		t.Fatalf("running = %v, want empty", res.ScheduleIDs)
	}

	rec = doJSON(t, h, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: status = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: status = %d", rec.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	t.Parallel()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "store")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	set := config.CalendarSettings{RunnerTimezone: "UTC", ProjectionTimezone: "UTC", RefreshInterval: time.Second}
	rf := refresh.New(set, st, nil, logx.Nop())

	httpSet, _ := config.HTTPConfig{RatePerSec: 1, Burst: 1}.Resolve()
	h := New(httpSet, st, rf, colors.NewAllocator(), nil, logx.Nop()).Handler()

	limited := false
	for i := 0; i < 5; i++ {
		rec := doJSON(t, h, http.MethodGet, "/healthz", nil)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Fatal("no request was rate limited")
	}
}
