package healthcard

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medsos/medsos/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	own := api.Group("/healthcard", auth.RequireRole(auth.RolePatient))
	own.GET("", h.GetMine)
	own.PUT("", h.SaveMine, auth.RequireExactRole(auth.RolePatient))

	api.GET("/patients/:id/healthcard", h.GetForPatient, auth.RequireRole(auth.RoleDoctor))
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}

func (h *Handler) GetMine(c echo.Context) error {
	patientID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	card, err := h.svc.Get(c.Request().Context(), patientID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, card)
}

func (h *Handler) SaveMine(c echo.Context) error {
	patientID, err := auth.CurrentUserID(c)
	if err != nil {
		return err
	}
	var req HealthCard
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	card, err := h.svc.Save(c.Request().Context(), patientID, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, card)
}

// GetForPatient lets doctors read a patient's card.
func (h *Handler) GetForPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	card, err := h.svc.GetForPatient(c.Request().Context(), patientID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, card)
}
