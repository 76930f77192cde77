package invoice

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medimart/medimart/internal/domain/order"
	"github.com/medimart/medimart/internal/platform/apperr"
	"github.com/medimart/medimart/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RolePatient, auth.RoleProvider))
	g.POST("/orders/:id/invoice", h.Generate)
	g.GET("/orders/:id/invoice", h.GetForOrder)
	g.GET("/invoices/:id", h.Get)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid id")
	}
	return id, nil
}

func (h *Handler) Generate(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	inv, err := h.svc.Generate(c.Request().Context(), order.ActorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apperr.OK(inv))
}

func (h *Handler) GetForOrder(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	inv, err := h.svc.GetForOrder(c.Request().Context(), order.ActorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apperr.OK(inv))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	inv, err := h.svc.Get(c.Request().Context(), order.ActorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apperr.OK(inv))
}
