package attendance

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carecenter/carecenter/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleOperator, auth.RoleViewer))
	readGroup.GET("/days/:date/attendances", h.GetBoard)
	readGroup.GET("/days/:date/end-of-day", h.GetEndOfDay)
	readGroup.GET("/agenda", h.GetAgenda)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleOperator))
	writeGroup.POST("/days/:date/attendances", h.Schedule)
	writeGroup.POST("/days/:date/transitions", h.Transition)
	writeGroup.DELETE("/attendances/:id", h.Cancel)
	writeGroup.POST("/days/:date/absences", h.ConfirmAbsences)
	writeGroup.POST("/days/:date/close", h.CloseDay)
}

type scheduleRequest struct {
	PatientID   uuid.UUID `json:"patient_id" validate:"required"`
	PatientName string    `json:"patient_name" validate:"required,max=200"`
	Priority    int       `json:"priority" validate:"gte=0"`
	Modality    Modality  `json:"modality" validate:"required,oneof=spiritual lightBath rod"`
	Notes       *string   `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

type transitionRequest struct {
	Selector Selector `json:"selector" validate:"required"`
	Target   Status   `json:"target" validate:"required,oneof=scheduled checkedIn onGoing completed"`
}

type absencesRequest struct {
	AttendanceIDs []uuid.UUID `json:"attendance_ids" validate:"required,min=1,dive,required"`
}

type closeResponse struct {
	Closure *DayClosure     `json:"closure,omitempty"`
	Result  *EndOfDayResult `json:"result,omitempty"`
}

func (h *Handler) dateParam(c echo.Context) (time.Time, error) {
	d, err := ParseDate(c.Param("date"), h.svc.Location())
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
	}
	return d, nil
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if c.Echo().Validator != nil {
		if err := c.Validate(req); err != nil {
			return err
		}
	}
	return nil
}

// httpError maps service errors onto status codes.
func httpError(err error) error {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotScheduled):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "attendance not found")
	case errors.Is(err, ErrAlreadyScheduled), errors.Is(err, ErrDayClosed), errors.Is(err, ErrDayNotClosable),
		errors.Is(err, ErrClosureInProgress), errors.Is(err, ErrNotCancellable), errors.Is(err, ErrConcurrentUpdate),
		errors.Is(err, ErrFutureDay):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) GetBoard(c echo.Context) error {
	date, err := h.dateParam(c)
	if err != nil {
		return err
	}
	board, err := h.svc.Board(c.Request().Context(), date)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, board)
}

func (h *Handler) Schedule(c echo.Context) error {
	date, err := h.dateParam(c)
	if err != nil {
		return err
	}
	var req scheduleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	a := &AttendanceRecord{
		PatientID:   req.PatientID,
		PatientName: req.PatientName,
		Priority:    req.Priority,
		Modality:    req.Modality,
		Date:        date,
		Notes:       req.Notes,
	}
	if err := h.svc.Schedule(c.Request().Context(), a); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Transition(c echo.Context) error {
	date, err := h.dateParam(c)
	if err != nil {
		return err
	}
	var req transitionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	day, err := h.svc.Transition(c.Request().Context(), date, req.Selector, req.Target)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, day)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Cancel(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetEndOfDay(c echo.Context) error {
	date, err := h.dateParam(c)
	if err != nil {
		return err
	}
	result, err := h.svc.EndOfDay(c.Request().Context(), date)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) ConfirmAbsences(c echo.Context) error {
	date, err := h.dateParam(c)
	if err != nil {
		return err
	}
	var req absencesRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	result, err := h.svc.ConfirmAbsences(c.Request().Context(), date, req.AttendanceIDs,
		auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// CloseDay answers 409 with the blocking classification when the day still
// has pending attendances.
func (h *Handler) CloseDay(c echo.Context) error {
	date, err := h.dateParam(c)
	if err != nil {
		return err
	}
	closure, err := h.svc.CloseDay(c.Request().Context(), date, auth.UserIDFromContext(c.Request().Context()))
	var notClosable *NotClosableError
	if errors.As(err, &notClosable) {
		return c.JSON(http.StatusConflict, closeResponse{Result: &notClosable.Result})
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, closeResponse{Closure: closure})
}

func (h *Handler) GetAgenda(c echo.Context) error {
	var selected time.Time
	if s := c.QueryParam("selected"); s != "" {
		d, err := ParseDate(s, h.svc.Location())
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid selected date, expected YYYY-MM-DD")
		}
		selected = d
	}
	showAll := false
	if s := c.QueryParam("all"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid all flag")
		}
		showAll = b
	}
	entries, err := h.svc.Agenda(c.Request().Context(), selected, showAll)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entries)
}
