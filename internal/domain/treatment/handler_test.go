package treatment

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carecenter/carecenter/internal/domain/attendance"
	"github.com/carecenter/carecenter/internal/platform/auth"
	"github.com/carecenter/carecenter/internal/platform/middleware"
)

func newTestHandler(sessions ...TreatmentSession) (*Handler, *echo.Echo, *mockSessionRepo) {
	svc, repo := newTestService(sessions...)
	e := echo.New()
	e.Validator = middleware.NewValidator()
	return NewHandler(svc), e, repo
}

func newRequest(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req = req.WithContext(auth.WithUser(req.Context(), "operator-1", []string{auth.RoleOperator}))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func expectHTTPError(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d (%v)", code, httpErr.Code, httpErr.Message)
	}
}

func TestHandler_CreateSession(t *testing.T) {
	h, e, repo := newTestHandler()
	body := `{"patient_id":"` + uuid.New().String() + `","modality":"rod","planned_sessions":6,"start_date":"2024-01-01"}`
	c, rec := newRequest(e, http.MethodPost, "/api/v1/treatment-sessions", body)

	if err := h.CreateSession(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if len(repo.sessions) != 1 || repo.sessions[0].PlannedSessions != 6 {
		t.Errorf("unexpected stored sessions %+v", repo.sessions)
	}
}

func TestHandler_CreateSession_Invalid(t *testing.T) {
	h, e, _ := newTestHandler()
	tests := []struct {
		name string
		body string
	}{
		{"bad modality", `{"patient_id":"` + uuid.New().String() + `","modality":"massage","planned_sessions":6,"start_date":"2024-01-01"}`},
		{"zero planned", `{"patient_id":"` + uuid.New().String() + `","modality":"rod","planned_sessions":0,"start_date":"2024-01-01"}`},
		{"completed over planned", `{"patient_id":"` + uuid.New().String() + `","modality":"rod","planned_sessions":2,"completed_sessions":3,"start_date":"2024-01-01"}`},
		{"bad date", `{"patient_id":"` + uuid.New().String() + `","modality":"rod","planned_sessions":2,"start_date":"01/01/2024"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newRequest(e, http.MethodPost, "/api/v1/treatment-sessions", tt.body)
			expectHTTPError(t, h.CreateSession(c), http.StatusBadRequest)
		})
	}
}

func TestHandler_GetSession(t *testing.T) {
	s := newPlan(attendance.ModalityRod, 4, 1)
	h, e, _ := newTestHandler(s)

	c, rec := newRequest(e, http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(s.ID.String())
	if err := h.GetSession(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c, _ = newRequest(e, http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	expectHTTPError(t, h.GetSession(c), http.StatusNotFound)

	c, _ = newRequest(e, http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	expectHTTPError(t, h.GetSession(c), http.StatusBadRequest)
}

func TestHandler_ListSessions(t *testing.T) {
	patient := uuid.New()
	var plans []TreatmentSession
	for i := 0; i < 3; i++ {
		p := newPlan(attendance.ModalityRod, 4, i)
		p.PatientID = patient
		plans = append(plans, p)
	}
	h, e, _ := newTestHandler(plans...)

	c, rec := newRequest(e, http.MethodGet, "/api/v1/patients/"+patient.String()+"/sessions?limit=2", "")
	c.SetParamNames("id")
	c.SetParamValues(patient.String())
	if err := h.ListSessions(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Data  []TreatmentSession `json:"data"`
		Total int                `json:"total"`
		Next  string             `json:"next"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 3 || len(resp.Data) != 2 {
		t.Errorf("expected 2 of 3 sessions, got %d of %d", len(resp.Data), resp.Total)
	}
	if resp.Next == "" {
		t.Error("expected a next link")
	}
}

func TestHandler_GetProgress(t *testing.T) {
	s := newPlan(attendance.ModalityLightBath, 5, 2)
	h, e, _ := newTestHandler(s)

	c, rec := newRequest(e, http.MethodGet, "/?modality=lightBath", "")
	c.SetParamNames("id")
	c.SetParamValues(s.PatientID.String())
	if err := h.GetProgress(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got []TreatmentProgress
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ProgressPercentage != 40 || got[0].Status != ProgressInProgress {
		t.Errorf("unexpected progress %+v", got)
	}

	c, _ = newRequest(e, http.MethodGet, "/?modality=massage", "")
	c.SetParamNames("id")
	c.SetParamValues(s.PatientID.String())
	expectHTTPError(t, h.GetProgress(c), http.StatusBadRequest)
}

func TestHandler_GetStatistics(t *testing.T) {
	s := newPlan(attendance.ModalityRod, 4, 4)
	h, e, _ := newTestHandler(s)

	c, rec := newRequest(e, http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(s.PatientID.String())
	if err := h.GetStatistics(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var st TreatmentStatistics
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.CompletedPlans != 1 || st.OverallProgress != 100 {
		t.Errorf("unexpected statistics %+v", st)
	}
}

func TestHandler_GetNextSession(t *testing.T) {
	open := newPlan(attendance.ModalityRod, 4, 1)
	done := newPlan(attendance.ModalityRod, 4, 4)
	h, e, _ := newTestHandler(open, done)

	c, rec := newRequest(e, http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(open.PatientID.String())
	if err := h.GetNextSession(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c, rec = newRequest(e, http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(done.PatientID.String())
	if err := h.GetNextSession(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, e, _ := newTestHandler()
	h.RegisterRoutes(e.Group("/api/v1"))

	want := map[string]bool{
		"GET /api/v1/patients/:id/progress":     false,
		"GET /api/v1/patients/:id/statistics":   false,
		"GET /api/v1/patients/:id/next-session": false,
		"GET /api/v1/patients/:id/sessions":     false,
		"GET /api/v1/treatment-sessions/:id":    false,
		"POST /api/v1/treatment-sessions":       false,
	}
	for _, r := range e.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for route, found := range want {
		if !found {
			t.Errorf("route %s not registered", route)
		}
	}
}
