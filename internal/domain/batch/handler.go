package batch

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rcm/rcm/internal/platform/auth"
	"github.com/rcm/rcm/pkg/pagination"
)

type Handler struct {
	assembler *Assembler
}

func NewHandler(assembler *Assembler) *Handler {
	return &Handler{assembler: assembler}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole("operator", "team_lead", "manager"))
	read.GET("/batches", h.ListBatches)
	read.GET("/batches/:id", h.GetBatch)
	read.GET("/batches/:id/validate", h.ValidateBatch)

	write := api.Group("", auth.RequireRole("team_lead", "manager"))
	write.POST("/batches/assemble", h.Assemble)
	write.POST("/batches/:id/submit", h.Submit)

	// Clearinghouse callbacks.
	write.POST("/batches/:id/acknowledge", h.Acknowledge)
	write.POST("/batches/:id/reject", h.Reject)
}

func (h *Handler) ListBatches(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()

	if status := c.QueryParam("status"); status != "" {
		switch Status(status) {
		case StatusAssembling, StatusSubmitted, StatusAcknowledged, StatusRejected:
		default:
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		items, total, err := h.assembler.ListByStatus(ctx, Status(status), pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}
	items, total, err := h.assembler.List(ctx, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetBatch(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := h.assembler.Get(c.Request().Context(), id)
	if err != nil {
		return batchError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ValidateBatch(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	verrs, err := h.assembler.Validate(c.Request().Context(), id)
	if err != nil {
		return batchError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"valid":  len(verrs) == 0,
		"errors": verrs,
	})
}

func (h *Handler) Assemble(c echo.Context) error {
	batches, err := h.assembler.AssembleCandidates(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"batches": batches,
		"count":   len(batches),
	})
}

func (h *Handler) Submit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := h.assembler.Submit(c.Request().Context(), id)
	if err != nil {
		return batchError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) Acknowledge(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := h.assembler.OnAcknowledge(c.Request().Context(), id)
	if err != nil {
		return batchError(err)
	}
	return c.JSON(http.StatusOK, b)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Reject(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req rejectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.assembler.OnReject(c.Request().Context(), id, req.Reason)
	if err != nil {
		return batchError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func batchError(err error) error {
	var vErr *ValidationFailedError
	if errors.As(err, &vErr) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]interface{}{
			"message": vErr.Error(),
			"errors":  vErr.Errors,
		})
	}
	switch {
	case errors.Is(err, ErrBatchNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "batch not found")
	case errors.Is(err, ErrInvalidBatchState):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrBatchInvalid):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
