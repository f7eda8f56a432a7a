package claim

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rcm/rcm/internal/platform/auth"
	"github.com/rcm/rcm/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole("operator", "team_lead", "manager"))
	read.GET("/claims", h.ListClaims)
	read.GET("/claims/:id", h.GetClaim)
	read.GET("/claims/:id/next-states", h.NextStates)

	write := api.Group("", auth.RequireRole("operator", "team_lead", "manager"))
	write.POST("/claims/:id/transition", h.Transition)
	write.POST("/claims/:id/assign", h.Assign)
	write.POST("/claims/:id/score", h.UpdateScore)
}

func (h *Handler) GetClaim(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cl, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "claim not found")
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) ListClaims(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()

	if state := c.QueryParam("state"); state != "" {
		if !State(state).IsValid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid state")
		}
		items, total, err := h.svc.ListByState(ctx, State(state), pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}
	if assignee := c.QueryParam("assigned_to"); assignee != "" {
		items, total, err := h.svc.ListByAssignee(ctx, assignee, pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}
	items, total, err := h.svc.List(ctx, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) NextStates(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cl, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "claim not found")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"state":       cl.State,
		"next_states": NextStates(cl.State),
	})
}

type transitionRequest struct {
	To            string  `json:"to"`
	AssignTo      *string `json:"assign_to,omitempty"`
	SetDenialFlag bool    `json:"set_denial_flag,omitempty"`
}

func (h *Handler) Transition(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cl, err := h.svc.Transition(c.Request().Context(), id, State(req.To), TransitionOptions{
		AssignTo:      req.AssignTo,
		SetDenialFlag: req.SetDenialFlag,
	})
	if err != nil {
		return transitionError(err)
	}
	return c.JSON(http.StatusOK, cl)
}

type assignRequest struct {
	Assignee string `json:"assignee"`
}

func (h *Handler) Assign(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req assignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cl, err := h.svc.Assign(c.Request().Context(), id, req.Assignee)
	if err != nil {
		return transitionError(err)
	}
	return c.JSON(http.StatusOK, cl)
}

type scoreUpdateRequest struct {
	AgingDays   *int   `json:"aging_days,omitempty"`
	AmountCents *int64 `json:"amount_cents,omitempty"`
	PayerScore  *int   `json:"payer_score,omitempty"`
	DenialFlag  *bool  `json:"denial_flag,omitempty"`
}

func (h *Handler) UpdateScore(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req scoreUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cl, err := h.svc.ApplyScoreUpdate(c.Request().Context(), id, ScoreFields{
		AgingDays:   req.AgingDays,
		AmountCents: req.AmountCents,
		PayerScore:  req.PayerScore,
		DenialFlag:  req.DenialFlag,
	})
	if err != nil {
		return transitionError(err)
	}
	return c.JSON(http.StatusOK, cl)
}

// transitionError maps engine sentinels to HTTP statuses.
func transitionError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "claim not found")
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrPreconditionNotMet):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrConcurrentModification):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
