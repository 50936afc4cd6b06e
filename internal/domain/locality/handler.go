package locality

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
	selector *Selector
	checker  auth.PermissionChecker
}

func NewHandler(svc *Service, selector *Selector, checker auth.PermissionChecker) *Handler {
	return &Handler{svc: svc, selector: selector, checker: checker}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("/admin", auth.RequirePermission(h.checker, auth.AdminComponent, auth.OpRead))
	read.GET("/organizations", h.ListOrganizations)
	read.GET("/organizations/:id", h.GetOrganization)
	read.GET("/departments", h.ListDepartments)
	read.GET("/departments/:id", h.GetDepartment)
	read.GET("/rooms", h.ListRooms)
	read.GET("/rooms/:id", h.GetRoom)
	read.GET("/locals", h.ListLocals)
	read.GET("/locals/:id", h.GetLocal)
	read.GET("/assignments", h.ListAssignments)
	read.GET("/assignments/:id", h.GetAssignment)
	read.GET("/users/:user_id/assignments", h.ListUserAssignments)

	write := api.Group("/admin", auth.RequirePermission(h.checker, auth.AdminComponent, auth.OpWrite))
	write.POST("/organizations", h.CreateOrganization)
	write.PUT("/organizations/:id", h.UpdateOrganization)
	write.DELETE("/organizations/:id", h.DeleteOrganization)
	write.POST("/departments", h.CreateDepartment)
	write.PUT("/departments/:id", h.UpdateDepartment)
	write.DELETE("/departments/:id", h.DeleteDepartment)
	write.POST("/rooms", h.CreateRoom)
	write.PUT("/rooms/:id", h.UpdateRoom)
	write.DELETE("/rooms/:id", h.DeleteRoom)
	write.POST("/locals", h.CreateLocal)
	write.PUT("/locals/:id", h.UpdateLocal)
	write.DELETE("/locals/:id", h.DeleteLocal)
	write.POST("/assignments", h.CreateAssignment)
	write.PUT("/assignments/:id", h.UpdateAssignment)
	write.DELETE("/assignments/:id", h.DeleteAssignment)

	me := api.Group("/me", auth.RequireAuthenticated())
	me.GET("/assignments", h.MyAssignments)
	me.GET("/context", h.GetContext)
	me.PUT("/context", h.SetContext)
	me.DELETE("/context", h.ClearContext)
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// queryID reads an optional positive id filter; absent means 0.
func queryID(c echo.Context, name string) (int64, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

// -- Organization Handlers --

func (h *Handler) CreateOrganization(c echo.Context) error {
	var o Organization
	if err := bind(c, &o); err != nil {
		return err
	}
	o.ID = 0
	if err := h.svc.CreateOrganization(c.Request().Context(), &o); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) GetOrganization(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	o, err := h.svc.GetOrganization(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) ListOrganizations(c echo.Context) error {
	p := pagination.FromContext(c)
	orgs, total, err := h.svc.ListOrganizations(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(orgs, total, p.Limit, p.Offset))
}

func (h *Handler) UpdateOrganization(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var o Organization
	if err := bind(c, &o); err != nil {
		return err
	}
	o.ID = id
	if err := h.svc.UpdateOrganization(c.Request().Context(), &o); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) DeleteOrganization(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteOrganization(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Department Handlers --

func (h *Handler) CreateDepartment(c echo.Context) error {
	var d Department
	if err := bind(c, &d); err != nil {
		return err
	}
	d.ID = 0
	if err := h.svc.CreateDepartment(c.Request().Context(), &d); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDepartment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDepartment(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDepartments(c echo.Context) error {
	p := pagination.FromContext(c)
	depts, total, err := h.svc.ListDepartments(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(depts, total, p.Limit, p.Offset))
}

func (h *Handler) UpdateDepartment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var d Department
	if err := bind(c, &d); err != nil {
		return err
	}
	d.ID = id
	if err := h.svc.UpdateDepartment(c.Request().Context(), &d); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDepartment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDepartment(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Room Handlers --

func (h *Handler) CreateRoom(c echo.Context) error {
	var r Room
	if err := bind(c, &r); err != nil {
		return err
	}
	r.ID = 0
	if err := h.svc.CreateRoom(c.Request().Context(), &r); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) GetRoom(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.GetRoom(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ListRooms(c echo.Context) error {
	p := pagination.FromContext(c)
	rooms, total, err := h.svc.ListRooms(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(rooms, total, p.Limit, p.Offset))
}

func (h *Handler) UpdateRoom(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var r Room
	if err := bind(c, &r); err != nil {
		return err
	}
	r.ID = id
	if err := h.svc.UpdateRoom(c.Request().Context(), &r); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) DeleteRoom(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteRoom(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Local Handlers --

func (h *Handler) CreateLocal(c echo.Context) error {
	var l Local
	if err := bind(c, &l); err != nil {
		return err
	}
	l.ID = 0
	ctx := c.Request().Context()
	if err := h.svc.CreateLocal(ctx, &l); err != nil {
		return apperr.ToHTTP(err)
	}
	v, err := h.svc.GetLocal(ctx, l.ID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) GetLocal(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	v, err := h.svc.GetLocal(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) ListLocals(c echo.Context) error {
	orgID, err := queryID(c, "organization_id")
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	locals, total, err := h.svc.ListLocals(c.Request().Context(), orgID, p.Limit, p.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(locals, total, p.Limit, p.Offset))
}

func (h *Handler) UpdateLocal(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var l Local
	if err := bind(c, &l); err != nil {
		return err
	}
	l.ID = id
	ctx := c.Request().Context()
	if err := h.svc.UpdateLocal(ctx, &l); err != nil {
		return apperr.ToHTTP(err)
	}
	v, err := h.svc.GetLocal(ctx, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) DeleteLocal(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteLocal(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Assignment Handlers --

func (h *Handler) CreateAssignment(c echo.Context) error {
	var a Assignment
	if err := bind(c, &a); err != nil {
		return err
	}
	if err := h.svc.CreateAssignment(c.Request().Context(), &a); err != nil {
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

func (h *Handler) ListAssignments(c echo.Context) error {
	localsID, err := queryID(c, "locals_id")
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	list, total, err := h.svc.ListAssignments(c.Request().Context(), localsID, p.Limit, p.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(list, total, p.Limit, p.Offset))
}

func (h *Handler) UpdateAssignment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var a Assignment
	if err := bind(c, &a); err != nil {
		return err
	}
	a.ID = id
	if err := h.svc.UpdateAssignment(c.Request().Context(), &a); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAssignment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteAssignment(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListUserAssignments(c echo.Context) error {
	list, err := h.svc.ListAssignmentsForUser(c.Request().Context(), c.Param("user_id"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, list)
}

// -- Current Context Handlers --

func (h *Handler) MyAssignments(c echo.Context) error {
	ctx := c.Request().Context()
	list, err := h.svc.ListAssignmentsForUser(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) GetContext(c echo.Context) error {
	ctx := c.Request().Context()
	cc, err := h.selector.ResolveCurrentContext(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, cc)
}

// SelectRequest picks the active locality.
type SelectRequest struct {
	LocalsID int64 `json:"locals_id"`
}

func (h *Handler) SetContext(c echo.Context) error {
	var req SelectRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.LocalsID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "locals_id is required")
	}
	ctx := c.Request().Context()
	cc, err := h.selector.SetCurrentContext(ctx, auth.UserIDFromContext(ctx), req.LocalsID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, cc)
}

func (h *Handler) ClearContext(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.selector.ClearCurrentContext(ctx, auth.UserIDFromContext(ctx)); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
