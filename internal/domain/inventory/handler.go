package inventory

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medimart/medimart/internal/platform/apperr"
	"github.com/medimart/medimart/internal/platform/auth"
	"github.com/medimart/medimart/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/inventory", auth.RequireRole(auth.RoleProvider))
	g.POST("/batches", h.CreateBatch)
	g.GET("/batches", h.ListBatches)
	g.PATCH("/batches/:id", h.UpdateBatch)
	g.DELETE("/batches/:id", h.DeleteBatch)
	g.GET("/expiring", h.Expiring)
	g.GET("/low-stock", h.LowStock)
	g.GET("/logs", h.Logs)
	g.GET("/totals/:itemId", h.ItemTotal)
	g.GET("/report.xlsx", h.Report)
}

func callerFrom(c echo.Context) Caller {
	ctx := c.Request().Context()
	return Caller{
		UserID: auth.UserIDFromContext(ctx),
		Admin:  auth.HasRole(ctx, auth.RoleAdmin),
	}
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid %s", name)
	}
	return id, nil
}

func queryID(c echo.Context, name string) (*uuid.UUID, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, apperr.Validation("invalid %s", name)
	}
	return &id, nil
}

func queryInt(c echo.Context, name string) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperr.Validation("%s must be a non-negative integer", name)
	}
	return n, nil
}

type batchResponse struct {
	Batch *Batch `json:"batch"`
	Total *Total `json:"total"`
}

func (h *Handler) CreateBatch(c echo.Context) error {
	var req CreateBatchRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	b, t, err := h.svc.CreateBatch(c.Request().Context(), callerFrom(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, apperr.OK(batchResponse{Batch: b, Total: t}))
}

func (h *Handler) UpdateBatch(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req UpdateBatchRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	b, t, err := h.svc.UpdateBatch(c.Request().Context(), callerFrom(c), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apperr.OK(batchResponse{Batch: b, Total: t}))
}

func (h *Handler) DeleteBatch(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	t, err := h.svc.DeleteBatch(c.Request().Context(), callerFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apperr.OK(t))
}

func (h *Handler) ListBatches(c echo.Context) error {
	providerID, err := queryID(c, "provider_id")
	if err != nil {
		return err
	}
	itemID, err := queryID(c, "item_id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListBatches(c.Request().Context(), callerFrom(c), providerID, itemID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apperr.OK(pagination.NewResponse(items, total, pg)))
}

func (h *Handler) Expiring(c echo.Context) error {
	providerID, err := queryID(c, "provider_id")
	if err != nil {
		return err
	}
	days, err := queryInt(c, "days")
	if err != nil {
		return err
	}
	items, err := h.svc.Expiring(c.Request().Context(), callerFrom(c), providerID, days)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apperr.OK(items))
}

func (h *Handler) LowStock(c echo.Context) error {
	providerID, err := queryID(c, "provider_id")
	if err != nil {
		return err
	}
	threshold, err := queryInt(c, "threshold")
	if err != nil {
		return err
	}
	items, err := h.svc.LowStock(c.Request().Context(), callerFrom(c), providerID, threshold)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apperr.OK(items))
}

func (h *Handler) Logs(c echo.Context) error {
	providerID, err := queryID(c, "provider_id")
	if err != nil {
		return err
	}
	itemID, err := queryID(c, "item_id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Logs(c.Request().Context(), callerFrom(c), providerID, itemID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apperr.OK(pagination.NewResponse(items, total, pg)))
}

func (h *Handler) ItemTotal(c echo.Context) error {
	itemID, err := parseID(c, "itemId")
	if err != nil {
		return err
	}
	providerID, err := queryID(c, "provider_id")
	if err != nil {
		return err
	}
	t, err := h.svc.ItemTotal(c.Request().Context(), callerFrom(c), providerID, itemID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apperr.OK(t))
}

func (h *Handler) Report(c echo.Context) error {
	providerID, err := queryID(c, "provider_id")
	if err != nil {
		return err
	}
	data, err := h.svc.Report(c.Request().Context(), callerFrom(c), providerID)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="inventory-report.xlsx"`)
	return c.Blob(http.StatusOK, ContentTypeXLSX, data)
}
