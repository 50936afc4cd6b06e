package rbac

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc      *Service
	resolver *Resolver
}

func NewHandler(svc *Service, resolver *Resolver) *Handler {
	return &Handler{svc: svc, resolver: resolver}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("/admin", auth.RequirePermission(h.resolver, auth.AdminComponent, auth.OpRead))
	read.GET("/roles", h.ListRoles)
	read.GET("/roles/:id", h.GetRole)
	read.GET("/components", h.ListComponents)
	read.GET("/components/:id", h.GetComponent)
	read.GET("/operations", h.ListOperations)
	read.GET("/operations/:id", h.GetOperation)
	read.GET("/role-permissions", h.ListPermissions)
	read.GET("/role-permissions/:id", h.GetPermission)
	read.GET("/role-assignments/:id", h.GetAssignment)
	read.GET("/users/:user_id/role-assignments", h.ListUserAssignments)
	read.GET("/users/:user_id/permissions", h.GetUserPermissions)
	read.GET("/users/:user_id/roles", h.GetUserRoles)

	write := api.Group("/admin", auth.RequirePermission(h.resolver, auth.AdminComponent, auth.OpWrite))
	write.POST("/roles", h.CreateRole)
	write.PUT("/roles/:id", h.UpdateRole)
	write.DELETE("/roles/:id", h.DeleteRole)
	write.POST("/components", h.CreateComponent)
	write.PUT("/components/:id", h.UpdateComponent)
	write.DELETE("/components/:id", h.DeleteComponent)
	write.POST("/operations", h.CreateOperation)
	write.PUT("/operations/:id", h.UpdateOperation)
	write.DELETE("/operations/:id", h.DeleteOperation)
	write.POST("/role-permissions", h.CreatePermission)
	write.PUT("/role-permissions/:id", h.UpdatePermission)
	write.DELETE("/role-permissions/:id", h.DeletePermission)
	write.POST("/role-assignments", h.AssignRole)
	write.PUT("/role-assignments/:id", h.UpdateAssignment)
	write.DELETE("/role-assignments/:id", h.UnassignRole)

	me := api.Group("/me", auth.RequireAuthenticated())
	me.GET("/permissions", h.MyPermissions)
	me.POST("/permissions/check", h.CheckMyPermissions)
	me.GET("/roles", h.MyRoles)
	me.GET("/roles/:role", h.HasMyRole)
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

// -- Role Handlers --

func (h *Handler) CreateRole(c echo.Context) error {
	var r Role
	if err := bind(c, &r); err != nil {
		return err
	}
	r.ID = 0
	if err := h.svc.CreateRole(c.Request().Context(), &r); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) GetRole(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.GetRole(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ListRoles(c echo.Context) error {
	p := pagination.FromContext(c)
	roles, total, err := h.svc.ListRoles(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(roles, total, p.Limit, p.Offset))
}

func (h *Handler) UpdateRole(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var r Role
	if err := bind(c, &r); err != nil {
		return err
	}
	r.ID = id
	if err := h.svc.UpdateRole(c.Request().Context(), &r); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) DeleteRole(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteRole(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Component Handlers --

func (h *Handler) CreateComponent(c echo.Context) error {
	var comp Component
	if err := bind(c, &comp); err != nil {
		return err
	}
	comp.ID = 0
	if err := h.svc.CreateComponent(c.Request().Context(), &comp); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, comp)
}

func (h *Handler) GetComponent(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	comp, err := h.svc.GetComponent(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, comp)
}

func (h *Handler) ListComponents(c echo.Context) error {
	p := pagination.FromContext(c)
	comps, total, err := h.svc.ListComponents(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(comps, total, p.Limit, p.Offset))
}

func (h *Handler) UpdateComponent(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var comp Component
	if err := bind(c, &comp); err != nil {
		return err
	}
	comp.ID = id
	if err := h.svc.UpdateComponent(c.Request().Context(), &comp); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, comp)
}

func (h *Handler) DeleteComponent(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteComponent(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Operation Handlers --

func (h *Handler) CreateOperation(c echo.Context) error {
	var op Operation
	if err := bind(c, &op); err != nil {
		return err
	}
	op.ID = 0
	if err := h.svc.CreateOperation(c.Request().Context(), &op); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, op)
}

func (h *Handler) GetOperation(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	op, err := h.svc.GetOperation(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, op)
}

func (h *Handler) ListOperations(c echo.Context) error {
	p := pagination.FromContext(c)
	ops, total, err := h.svc.ListOperations(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(ops, total, p.Limit, p.Offset))
}

func (h *Handler) UpdateOperation(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var op Operation
	if err := bind(c, &op); err != nil {
		return err
	}
	op.ID = id
	if err := h.svc.UpdateOperation(c.Request().Context(), &op); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, op)
}

func (h *Handler) DeleteOperation(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteOperation(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Role Permission Handlers --

func (h *Handler) CreatePermission(c echo.Context) error {
	var p RolePermission
	if err := bind(c, &p); err != nil {
		return err
	}
	if err := h.svc.CreatePermission(c.Request().Context(), &p); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPermission(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPermission(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPermissions(c echo.Context) error {
	var roleID int64
	if v := c.QueryParam("role_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid role_id")
		}
		roleID = id
	}
	p := pagination.FromContext(c)
	perms, total, err := h.svc.ListPermissions(c.Request().Context(), roleID, p.Limit, p.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(perms, total, p.Limit, p.Offset))
}

func (h *Handler) UpdatePermission(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var p RolePermission
	if err := bind(c, &p); err != nil {
		return err
	}
	p.ID = id
	if err := h.svc.UpdatePermission(c.Request().Context(), &p); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePermission(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePermission(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Role Assignment Handlers --

func (h *Handler) AssignRole(c echo.Context) error {
	var a RoleAssignment
	if err := bind(c, &a); err != nil {
		return err
	}
	if err := h.svc.AssignRole(c.Request().Context(), &a); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAssignment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAssignment(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateAssignment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var a RoleAssignment
	if err := bind(c, &a); err != nil {
		return err
	}
	a.ID = id
	if err := h.svc.UpdateAssignment(c.Request().Context(), &a); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UnassignRole(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.UnassignRole(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListUserAssignments(c echo.Context) error {
	list, err := h.svc.ListUserAssignments(c.Request().Context(), c.Param("user_id"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if list == nil {
		list = []*RoleAssignmentView{}
	}
	return c.JSON(http.StatusOK, list)
}

// -- Resolver Handlers --

func (h *Handler) GetUserPermissions(c echo.Context) error {
	return c.JSON(http.StatusOK, h.resolver.GetUserPermissions(c.Request().Context(), c.Param("user_id")))
}

func (h *Handler) GetUserRoles(c echo.Context) error {
	return c.JSON(http.StatusOK, h.resolver.GetUserRoles(c.Request().Context(), c.Param("user_id")))
}

func (h *Handler) MyPermissions(c echo.Context) error {
	ctx := c.Request().Context()
	return c.JSON(http.StatusOK, h.resolver.GetUserPermissions(ctx, auth.UserIDFromContext(ctx)))
}

func (h *Handler) MyRoles(c echo.Context) error {
	ctx := c.Request().Context()
	return c.JSON(http.StatusOK, h.resolver.GetUserRoles(ctx, auth.UserIDFromContext(ctx)))
}

func (h *Handler) HasMyRole(c echo.Context) error {
	ctx := c.Request().Context()
	role := c.Param("role")
	return c.JSON(http.StatusOK, map[string]interface{}{
		"role":     role,
		"has_role": h.resolver.HasRole(ctx, auth.UserIDFromContext(ctx), role),
	})
}

// CheckRequest asks whether the caller holds one, any, or all of Checks.
type CheckRequest struct {
	Mode   string  `json:"mode"`
	Checks []Check `json:"checks"`
}

type CheckResponse struct {
	Mode    string `json:"mode"`
	Allowed bool   `json:"allowed"`
}

func (h *Handler) CheckMyPermissions(c echo.Context) error {
	var req CheckRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	userID := auth.UserIDFromContext(ctx)

	var allowed bool
	switch req.Mode {
	case "", "one":
		if len(req.Checks) != 1 {
			return echo.NewHTTPError(http.StatusBadRequest, `mode "one" takes exactly one check`)
		}
		req.Mode = "one"
		allowed = h.resolver.HasPermission(ctx, userID, req.Checks[0].Component, req.Checks[0].Operation)
	case "any":
		allowed = h.resolver.HasAnyPermission(ctx, userID, req.Checks)
	case "all":
		allowed = h.resolver.HasAllPermissions(ctx, userID, req.Checks)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, `mode must be one of "one", "any", "all"`)
	}
	return c.JSON(http.StatusOK, CheckResponse{Mode: req.Mode, Allowed: allowed})
}
