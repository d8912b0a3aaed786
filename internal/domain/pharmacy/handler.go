package pharmacy

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
	admin := auth.RequireRole(auth.RoleAdmin)
	patient := auth.RequireRole(auth.RolePatient)

	api.GET("/medicines", h.ListMedicines)
	api.GET("/medicines/:id", h.GetMedicine)
	api.POST("/medicines", h.CreateMedicine, admin)
	api.PUT("/medicines/:id", h.UpdateMedicine, admin)
	api.DELETE("/medicines/:id", h.DeleteMedicine, admin)

	api.POST("/orders", h.PlaceOrder, auth.RequireExactRole(auth.RolePatient))
	api.GET("/orders/mine", h.ListMine, patient)
	api.GET("/orders/:id", h.GetOrder)
	api.GET("/orders", h.ListOrders, admin)
	api.POST("/orders/:id/assign", h.Assign, admin)

	delivery := api.Group("/delivery/orders", auth.RequireRole(auth.RoleDeliveryMan))
	delivery.GET("", h.ListDeliveries)
	delivery.PUT("/:id/status", h.UpdateDeliveryStatus)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrMedicineNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "medicine not found")
	case errors.Is(err, ErrOrderNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "order not found")
	case errors.Is(err, ErrDeliveryManNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "delivery man not found")
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrWorkerUnavailable):
		return echo.NewHTTPError(http.StatusConflict, "delivery man is not available")
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, ErrForbidden.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}

func pathID(c echo.Context, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+what+" id")
	}
	return id, nil
}

func orderList(c echo.Context, items []*Order, total int, pg pagination.Params) error {
	if items == nil {
		items = []*Order{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

// -- Medicine Handlers --

func (h *Handler) ListMedicines(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListMedicines(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Medicine{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetMedicine(c echo.Context) error {
	id, err := pathID(c, "medicine")
	if err != nil {
		return err
	}
	m, err := h.svc.GetMedicine(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) CreateMedicine(c echo.Context) error {
	var req MedicineRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	m, err := h.svc.CreateMedicine(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) UpdateMedicine(c echo.Context) error {
	id, err := pathID(c, "medicine")
	if err != nil {
		return err
	}
	var req MedicineRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	m, err := h.svc.UpdateMedicine(c.Request().Context(), id, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) DeleteMedicine(c echo.Context) error {
	id, err := pathID(c, "medicine")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteMedicine(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Order Handlers --

func (h *Handler) PlaceOrder(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	var req PlaceOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	o, err := h.svc.PlaceOrder(c.Request().Context(), userID, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) ListMine(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListUserOrders(c.Request().Context(), userID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return orderList(c, items, total, pg)
}

func (h *Handler) GetOrder(c echo.Context) error {
	userID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "order")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	o, err := h.svc.GetOrder(ctx, id, userID, auth.RoleFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) ListOrders(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListOrders(c.Request().Context(), c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return orderList(c, items, total, pg)
}

func (h *Handler) Assign(c echo.Context) error {
	id, err := pathID(c, "order")
	if err != nil {
		return err
	}
	var req AssignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	dmID, err := uuid.Parse(req.DeliveryManID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid delivery_man_id")
	}
	o, err := h.svc.AssignDeliveryMan(c.Request().Context(), id, dmID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, o)
}

// -- Delivery Handlers --

func (h *Handler) ListDeliveries(c echo.Context) error {
	dmID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDeliveryOrders(c.Request().Context(), dmID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return orderList(c, items, total, pg)
}

func (h *Handler) UpdateDeliveryStatus(c echo.Context) error {
	dmID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "order")
	if err != nil {
		return err
	}
	var req DeliveryStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	o, err := h.svc.UpdateDeliveryStatus(c.Request().Context(), id, dmID, req.DeliveryStatus)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, o)
}
