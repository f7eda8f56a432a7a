package qa

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rcm/rcm/internal/platform/auth"
	"github.com/rcm/rcm/pkg/pagination"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole("auditor", "team_lead", "manager"))
	read.GET("/audits", h.ListAudits)
	read.GET("/claims/:id/audits", h.ClaimHistory)

	write := api.Group("", auth.RequireRole("auditor", "team_lead", "manager"))
	write.POST("/claims/:id/audits", h.OpenAudit)
	write.POST("/claims/:id/audits/start", h.StartReview)
	write.POST("/claims/:id/audits/submit", h.SubmitAudit)
}

func (h *Handler) ListAudits(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.engine.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ClaimHistory(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	items, err := h.engine.History(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

// OpenAudit flags a claim for a manual audit cycle.
func (h *Handler) OpenAudit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rec, err := h.engine.ClaimForAudit(c.Request().Context(), id, TriggerManual)
	if err != nil {
		return auditError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

type startReviewRequest struct {
	Reviewer string `json:"reviewer"`
}

func (h *Handler) StartReview(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req startReviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, err := h.engine.StartReview(c.Request().Context(), id, req.Reviewer)
	if err != nil {
		return auditError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

type submitAuditRequest struct {
	Score    int    `json:"score"`
	Remarks  string `json:"remarks"`
	Reviewer string `json:"reviewer"`
}

func (h *Handler) SubmitAudit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req submitAuditRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, err := h.engine.SubmitAudit(c.Request().Context(), id, req.Score, req.Remarks, req.Reviewer)
	if err != nil {
		return auditError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func auditError(err error) error {
	switch {
	case errors.Is(err, ErrAuditNotFound), errors.Is(err, ErrNoOpenAudit):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAuditCompleted):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
