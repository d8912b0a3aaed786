package emergency

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medsos/medsos/internal/platform/auth"
	"github.com/medsos/medsos/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	sos := api.Group("/sos", auth.RequireRole(auth.RolePatient))
	sos.POST("", h.Trigger, auth.RequireExactRole(auth.RolePatient))
	sos.GET("", h.ListMine)
	sos.GET("/:id/status", h.CheckStatus)

	driver := api.Group("/driver/calls", auth.RequireRole(auth.RoleDriver))
	driver.GET("", h.ListDriverCalls)
	driver.PUT("/:id/status", h.UpdateDriverStatus)

	admin := api.Group("/calls", auth.RequireRole(auth.RoleAdmin))
	admin.GET("", h.ListCalls)
	admin.POST("/:id/assign", h.Assign)
	admin.POST("/:id/resolve", h.Resolve)
	admin.GET("/:id/driver-suggestions", h.DriverSuggestions)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrCallNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "emergency call not found")
	case errors.Is(err, ErrDriverNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "driver not found")
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrWorkerUnavailable):
		return echo.NewHTTPError(http.StatusConflict, "driver is not available")
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, ErrForbidden.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}

func callID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid call id")
	}
	return id, nil
}

func listResponse(c echo.Context, items []*EmergencyCall, total int, pg pagination.Params) error {
	if items == nil {
		items = []*EmergencyCall{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Trigger(c echo.Context) error {
	patientID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	var req TriggerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Latitude == nil || req.Longitude == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "latitude and longitude are required")
	}
	call, err := h.svc.TriggerSOS(c.Request().Context(), &patientID, *req.Latitude, *req.Longitude)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, TriggerResponse{CallID: call.ID, Status: call.Status})
}

func (h *Handler) ListMine(c echo.Context) error {
	patientID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatientCalls(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return listResponse(c, items, total, pg)
}

func (h *Handler) CheckStatus(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	id, err := callID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	st, err := h.svc.CheckStatus(ctx, id, userID, auth.RoleFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) ListDriverCalls(c echo.Context) error {
	driverID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDriverCalls(c.Request().Context(), driverID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return listResponse(c, items, total, pg)
}

func (h *Handler) UpdateDriverStatus(c echo.Context) error {
	driverID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	id, err := callID(c)
	if err != nil {
		return err
	}
	var req DriverStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	call, err := h.svc.UpdateDriverStatus(c.Request().Context(), id, driverID, req.DriverStatus)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, call)
}

func (h *Handler) ListCalls(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListCalls(c.Request().Context(), c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return listResponse(c, items, total, pg)
}

func (h *Handler) Assign(c echo.Context) error {
	id, err := callID(c)
	if err != nil {
		return err
	}
	var req AssignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	driverID, err := uuid.Parse(req.DriverID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid driver_id")
	}
	call, err := h.svc.AssignDriver(c.Request().Context(), id, driverID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, call)
}

func (h *Handler) Resolve(c echo.Context) error {
	id, err := callID(c)
	if err != nil {
		return err
	}
	call, err := h.svc.ResolveCall(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, call)
}

func (h *Handler) DriverSuggestions(c echo.Context) error {
	id, err := callID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.DriverSuggestions(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}
