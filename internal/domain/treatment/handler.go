package treatment

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carecenter/carecenter/internal/domain/attendance"
	"github.com/carecenter/carecenter/internal/platform/auth"
	"github.com/carecenter/carecenter/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleOperator, auth.RoleViewer))
	readGroup.GET("/patients/:id/progress", h.GetProgress)
	readGroup.GET("/patients/:id/statistics", h.GetStatistics)
	readGroup.GET("/patients/:id/next-session", h.GetNextSession)
	readGroup.GET("/patients/:id/sessions", h.ListSessions)
	readGroup.GET("/treatment-sessions/:id", h.GetSession)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleOperator))
	writeGroup.POST("/treatment-sessions", h.CreateSession)
}

type createSessionRequest struct {
	PatientID         uuid.UUID           `json:"patient_id" validate:"required"`
	Modality          attendance.Modality `json:"modality" validate:"required,oneof=spiritual lightBath rod"`
	PlannedSessions   int                 `json:"planned_sessions" validate:"required,gt=0,lte=200"`
	CompletedSessions int                 `json:"completed_sessions" validate:"gte=0,ltefield=PlannedSessions"`
	StartDate         string              `json:"start_date" validate:"required,datetime=2006-01-02"`
	Notes             *string             `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

func patientParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	return id, nil
}

func (h *Handler) CreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if c.Echo().Validator != nil {
		if err := c.Validate(&req); err != nil {
			return err
		}
	}
	start, err := time.Parse(attendance.DateLayout, req.StartDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid start_date, expected YYYY-MM-DD")
	}
	ts := &TreatmentSession{
		PatientID:         req.PatientID,
		Modality:          req.Modality,
		PlannedSessions:   req.PlannedSessions,
		CompletedSessions: req.CompletedSessions,
		StartDate:         start,
		Notes:             req.Notes,
	}
	if err := h.svc.CreateSession(c.Request().Context(), ts); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, ts)
}

func (h *Handler) GetSession(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ts, err := h.svc.GetSession(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "treatment session not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ts)
}

func (h *Handler) ListSessions(c echo.Context) error {
	patientID, err := patientParam(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListSessions(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL.Path))
}

func (h *Handler) GetProgress(c echo.Context) error {
	patientID, err := patientParam(c)
	if err != nil {
		return err
	}
	var modality *attendance.Modality
	if m := attendance.Modality(c.QueryParam("modality")); m != "" {
		if !m.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid modality")
		}
		modality = &m
	}
	progress, err := h.svc.Progress(c.Request().Context(), patientID, modality)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, progress)
}

func (h *Handler) GetStatistics(c echo.Context) error {
	patientID, err := patientParam(c)
	if err != nil {
		return err
	}
	stats, err := h.svc.Statistics(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) GetNextSession(c echo.Context) error {
	patientID, err := patientParam(c)
	if err != nil {
		return err
	}
	info, ok, err := h.svc.NextSession(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, info)
}
