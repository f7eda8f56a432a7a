package role

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/rcm/rcm/internal/platform/auth"
)

type Handler struct {
	resolver  *Resolver
	overrides OverrideRepository
}

func NewHandler(resolver *Resolver, overrides OverrideRepository) *Handler {
	return &Handler{resolver: resolver, overrides: overrides}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole("team_lead", "manager"))
	read.GET("/roles/levels", h.ListLevels)
	read.POST("/roles/resolve", h.Resolve)
	read.GET("/roles/actors/:ref", h.ResolveActor)

	// Only managers hand out or revoke overrides.
	write := api.Group("", auth.RequireRole("manager"))
	write.PUT("/roles/actors/:ref/overrides", h.SetOverride)
	write.DELETE("/roles/actors/:ref/overrides", h.ClearOverride)

	api.GET("/roles/me", h.ResolveSelf)
}

func (h *Handler) ListLevels(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"levels":     h.resolver.Levels(),
		"categories": Categories,
		"actions":    Actions,
	})
}

type resolveRequest struct {
	Level     int       `json:"level"`
	Overrides Overrides `json:"overrides,omitempty"`
}

// Resolve answers an ad-hoc "what would level N with these overrides see".
func (h *Handler) Resolve(c echo.Context) error {
	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Level < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "level must not be negative")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"level":       req.Level,
		"permissions": h.resolver.Resolve(req.Level, req.Overrides),
	})
}

// ResolveActor resolves an actor's effective permissions: level from the
// query, stored overrides from the repository.
func (h *Handler) ResolveActor(c echo.Context) error {
	level, err := strconv.Atoi(c.QueryParam("level"))
	if err != nil || level < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "level query parameter is required")
	}
	overrides, err := h.overrides.GetForActor(c.Request().Context(), c.Param("ref"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"actor_ref":   c.Param("ref"),
		"level":       level,
		"overrides":   overrides,
		"permissions": h.resolver.Resolve(level, overrides),
	})
}

// ResolveSelf resolves the caller's own level from the auth token.
func (h *Handler) ResolveSelf(c echo.Context) error {
	ctx := c.Request().Context()
	level := auth.RoleLevelFromContext(ctx)
	overrides, err := h.overrides.GetForActor(ctx, auth.ActorFromContext(ctx))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"level":       level,
		"permissions": h.resolver.Resolve(level, overrides),
	})
}

type overrideRequest struct {
	Category string `json:"category"`
	Action   string `json:"action"`
	Allowed  bool   `json:"allowed"`
}

func (req *overrideRequest) validate() error {
	known := func(list []string, v string) bool {
		for _, item := range list {
			if item == v {
				return true
			}
		}
		return false
	}
	if !known(Categories, req.Category) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown category")
	}
	if !known(Actions, req.Action) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown action")
	}
	return nil
}

func (h *Handler) SetOverride(c echo.Context) error {
	var req overrideRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := req.validate(); err != nil {
		return err
	}
	if err := h.overrides.Set(c.Request().Context(), c.Param("ref"), req.Category, req.Action, req.Allowed); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ClearOverride(c echo.Context) error {
	var req overrideRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := req.validate(); err != nil {
		return err
	}
	if err := h.overrides.Clear(c.Request().Context(), c.Param("ref"), req.Category, req.Action); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
