package intake

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rcm/rcm/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("operator", "team_lead", "manager"))
	g.POST("/intake/claims", h.CreateClaim)
	g.POST("/intake/import", h.ImportRows)
}

func (h *Handler) CreateClaim(c echo.Context) error {
	var in ClaimInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id, err := h.svc.CreateClaim(c.Request().Context(), in)
	if err != nil {
		if errors.Is(err, ErrReferenceNotFound) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"id": id})
}

type importRequest struct {
	Mapping FieldMapping `json:"mapping,omitempty"`
	Rows    []Row        `json:"rows"`
}

func (h *Handler) ImportRows(c echo.Context) error {
	var req importRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Rows) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "rows must not be empty")
	}
	result, err := h.svc.ImportRows(c.Request().Context(), req.Mapping, req.Rows)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}
