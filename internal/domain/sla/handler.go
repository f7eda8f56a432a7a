package sla

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rcm/rcm/internal/platform/auth"
	"github.com/rcm/rcm/pkg/pagination"
)

type Handler struct {
	clock *Clock
}

func NewHandler(clock *Clock) *Handler {
	return &Handler{clock: clock}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole("operator", "team_lead", "manager"))
	read.GET("/claims/:id/sla", h.GetTimer)
	read.GET("/sla/timers", h.ListTimers)

	// Freezing an SLA clock is a supervisory action.
	write := api.Group("", auth.RequireRole("team_lead", "manager"))
	write.POST("/claims/:id/sla/freeze", h.Freeze)
	write.POST("/claims/:id/sla/resume", h.Resume)
}

type timerResponse struct {
	*Timer
	EffectiveDeadline time.Time `json:"effective_deadline"`
	RemainingSeconds  int64     `json:"remaining_seconds"`
}

func present(t *Timer, now time.Time) timerResponse {
	return timerResponse{
		Timer:             t,
		EffectiveDeadline: t.EffectiveDeadline(now),
		RemainingSeconds:  int64(t.Remaining(now).Seconds()),
	}
}

func (h *Handler) GetTimer(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	t, err := h.clock.Get(c.Request().Context(), id)
	if err != nil {
		return timerError(err)
	}
	return c.JSON(http.StatusOK, present(t, time.Now().UTC()))
}

func (h *Handler) ListTimers(c echo.Context) error {
	state := TimerState(c.QueryParam("state"))
	if state == "" {
		state = TimerRunning
	}
	switch state {
	case TimerRunning, TimerFrozen, TimerBreached, TimerResolved:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "invalid state")
	}

	pg := pagination.FromContext(c)
	items, total, err := h.clock.ListByState(c.Request().Context(), state, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	now := time.Now().UTC()
	out := make([]timerResponse, len(items))
	for i, t := range items {
		out[i] = present(t, now)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(out, total, pg.Limit, pg.Offset))
}

func (h *Handler) Freeze(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	t, err := h.clock.Freeze(c.Request().Context(), id, time.Now().UTC())
	if err != nil {
		return timerError(err)
	}
	return c.JSON(http.StatusOK, present(t, time.Now().UTC()))
}

func (h *Handler) Resume(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	t, err := h.clock.Resume(c.Request().Context(), id, time.Now().UTC())
	if err != nil {
		return timerError(err)
	}
	return c.JSON(http.StatusOK, present(t, time.Now().UTC()))
}

func timerError(err error) error {
	switch {
	case errors.Is(err, ErrTimerNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "sla timer not found")
	case errors.Is(err, ErrInvalidTimerState):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
