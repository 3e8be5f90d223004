package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carecenter/carecenter/internal/config"
	"github.com/carecenter/carecenter/internal/domain/attendance"
	"github.com/carecenter/carecenter/internal/domain/treatment"
	"github.com/carecenter/carecenter/internal/platform/auth"
	"github.com/carecenter/carecenter/internal/platform/cache"
	"github.com/carecenter/carecenter/internal/platform/websocket"
)

const testSigningKey = "test-signing-key-0123456789abcdef0123"

type memAttendances struct{ records []attendance.AttendanceRecord }

func (m *memAttendances) Create(_ context.Context, a *attendance.AttendanceRecord) error {
	a.ID = uuid.New()
	m.records = append(m.records, *a)
	return nil
}

func (m *memAttendances) GetByID(_ context.Context, id uuid.UUID) (*attendance.AttendanceRecord, error) {
	for i := range m.records {
		if m.records[i].ID == id {
			r := m.records[i]
			return &r, nil
		}
	}
	return nil, attendance.ErrNotFound
}

func (m *memAttendances) ListByDate(_ context.Context, date time.Time) ([]attendance.AttendanceRecord, error) {
	var out []attendance.AttendanceRecord
	for _, r := range m.records {
		if r.Date.Equal(date) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memAttendances) ListScheduledFrom(context.Context, time.Time) ([]attendance.AttendanceRecord, error) {
	return nil, nil
}

func (m *memAttendances) ApplyStatusChanges(context.Context, []attendance.StatusChange) error {
	return nil
}

func (m *memAttendances) Delete(context.Context, uuid.UUID) error { return nil }

func (m *memAttendances) ConfirmAbsences(context.Context, []attendance.Absence) error { return nil }

type memClosures struct{}

func (memClosures) Close(context.Context, *attendance.DayClosure) error { return nil }

func (memClosures) Get(context.Context, time.Time) (*attendance.DayClosure, error) {
	return nil, attendance.ErrNotFound
}

type memSessions struct{}

func (memSessions) Create(_ context.Context, s *treatment.TreatmentSession) error {
	s.ID = uuid.New()
	return nil
}

func (memSessions) GetByID(context.Context, uuid.UUID) (*treatment.TreatmentSession, error) {
	return nil, treatment.ErrNotFound
}

func (memSessions) ListByPatient(context.Context, uuid.UUID) ([]treatment.TreatmentSession, error) {
	return nil, nil
}

func (memSessions) SearchByPatient(context.Context, uuid.UUID, int, int) ([]treatment.TreatmentSession, int, error) {
	return nil, 0, nil
}

func (memSessions) FindActive(context.Context, uuid.UUID, attendance.Modality) (*treatment.TreatmentSession, error) {
	return nil, treatment.ErrNotFound
}

func (memSessions) ListEventsByPatient(context.Context, uuid.UUID) ([]treatment.SessionEvent, error) {
	return nil, nil
}

func (memSessions) RecordCompletion(context.Context, *treatment.SessionEvent) error { return nil }

func testConfig(mode string) *config.Config {
	return &config.Config{
		Env:            "test",
		AuthMode:       mode,
		AuthSigningKey: testSigningKey,
		AuthIssuer:     "carecenter",
		CORSOrigins:    []string{"*"},
		RequestTimeout: 5 * time.Second,
	}
}

func newTestServer(t *testing.T, mode string) (http.Handler, *config.Config) {
	t.Helper()
	cfg := testConfig(mode)
	logger := zerolog.Nop()
	hub := websocket.NewHub(logger)
	treatmentSvc := treatment.NewService(memSessions{}, logger)
	attendanceSvc := attendance.NewService(&memAttendances{}, memClosures{}, cache.NewLocalLocker(),
		hub, logger, attendance.Options{})
	e := newServer(cfg, logger, services{
		attendance: attendanceSvc,
		treatment:  treatmentSvc,
		hub:        hub,
	})
	return e, cfg
}

func bearer(t *testing.T, cfg *config.Config, roles ...string) string {
	t.Helper()
	token, err := auth.IssueToken(auth.JWTConfig{Issuer: cfg.AuthIssuer, SigningKey: []byte(cfg.AuthSigningKey)},
		"tester", roles, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return "Bearer " + token
}

func serve(h http.Handler, method, target, authz, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_HealthIsPublic(t *testing.T) {
	h, _ := newTestServer(t, config.AuthModeJWT)
	rec := serve(h, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
}

func TestServer_RequiresToken(t *testing.T) {
	h, _ := newTestServer(t, config.AuthModeJWT)
	rec := serve(h, http.MethodGet, "/api/v1/days/2024-01-15/attendances", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestServer_ViewerCanReadButNotClose(t *testing.T) {
	h, cfg := newTestServer(t, config.AuthModeJWT)
	viewer := bearer(t, cfg, auth.RoleViewer)

	rec := serve(h, http.MethodGet, "/api/v1/days/2024-01-15/end-of-day", viewer, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for viewer read, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = serve(h, http.MethodPost, "/api/v1/days/2024-01-15/close", viewer, "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for viewer close, got %d", rec.Code)
	}
}

func TestServer_OperatorClosesEmptyDay(t *testing.T) {
	h, cfg := newTestServer(t, config.AuthModeJWT)
	rec := serve(h, http.MethodPost, "/api/v1/days/2024-01-15/close", bearer(t, cfg, auth.RoleOperator), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"closed_by":"tester"`) {
		t.Errorf("expected closure by token subject, got %s", rec.Body.String())
	}
}

func TestServer_DevModeGrantsAdmin(t *testing.T) {
	h, _ := newTestServer(t, config.AuthModeDevelopment)
	rec := serve(h, http.MethodPost, "/api/v1/treatment-sessions", "",
		`{"patient_id":"`+uuid.NewString()+`","modality":"lightBath","planned_sessions":5,"start_date":"2024-01-01"}`)
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestServer_Routes(t *testing.T) {
	cfg := testConfig(config.AuthModeJWT)
	logger := zerolog.Nop()
	hub := websocket.NewHub(logger)
	e := newServer(cfg, logger, services{
		attendance: attendance.NewService(&memAttendances{}, memClosures{}, nil, nil, logger, attendance.Options{}),
		treatment:  treatment.NewService(memSessions{}, logger),
		hub:        hub,
	})

	routes := make(map[string]bool)
	for _, r := range e.Routes() {
		routes[r.Method+" "+r.Path] = true
	}
	expected := []string{
		"GET /health",
		"GET /ws",
		"GET /api/v1/days/:date/attendances",
		"POST /api/v1/days/:date/attendances",
		"POST /api/v1/days/:date/transitions",
		"DELETE /api/v1/attendances/:id",
		"GET /api/v1/days/:date/end-of-day",
		"POST /api/v1/days/:date/absences",
		"POST /api/v1/days/:date/close",
		"GET /api/v1/agenda",
		"GET /api/v1/patients/:id/progress",
		"GET /api/v1/patients/:id/statistics",
		"GET /api/v1/patients/:id/next-session",
		"POST /api/v1/treatment-sessions",
	}
	for _, r := range expected {
		if !routes[r] {
			t.Errorf("missing route: %s", r)
		}
	}
	if routes["GET /health/db"] {
		t.Error("db health route should not be registered without a pinger")
	}
}

func TestIssueToken(t *testing.T) {
	cfg := testConfig(config.AuthModeJWT)
	if _, err := issueToken(cfg, "", []string{auth.RoleOperator}, time.Hour); err == nil {
		t.Error("expected error for missing subject")
	}
	if _, err := issueToken(cfg, "op", []string{"superuser"}, time.Hour); err == nil {
		t.Error("expected error for unknown role")
	}
	token, err := issueToken(cfg, "op", []string{auth.RoleOperator}, time.Hour)
	if err != nil || token == "" {
		t.Fatalf("issueToken() = %q, %v", token, err)
	}
}

func TestMigrationSource(t *testing.T) {
	if migrationSource("") == nil {
		t.Fatal("expected embedded migrations")
	}
	dir := t.TempDir()
	if migrationSource(dir) == nil {
		t.Fatal("expected directory source")
	}
}

func TestPrintMigrationStatus_Empty(t *testing.T) {
	cmd := migrateCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	printMigrationStatus(cmd, nil)
	if !strings.HasPrefix(buf.String(), "VERSION") {
		t.Errorf("expected header, got %q", buf.String())
	}
}
