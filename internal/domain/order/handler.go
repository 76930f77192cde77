package order

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medimart/medimart/internal/platform/apperr"
	"github.com/medimart/medimart/internal/platform/auth"
	"github.com/medimart/medimart/internal/platform/blobstore"
	"github.com/medimart/medimart/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Either party
	shared := api.Group("", auth.RequireRole(auth.RolePatient, auth.RoleProvider))
	shared.GET("/orders", h.ListOrders)
	shared.GET("/orders/:id", h.GetOrder)
	shared.POST("/orders/:id/cancel", h.CancelOrder)
	shared.POST("/orders/:id/items", h.AddItem)
	shared.GET("/orders/:id/payments", h.ListPayments)

	// Patient
	patient := api.Group("", auth.RequireRole(auth.RolePatient))
	patient.POST("/orders", h.CreateOrder)
	patient.POST("/orders/:id/assign", h.AssignProvider)
	patient.POST("/orders/:id/payment/proof", h.UploadProof)

	// Provider
	provider := api.Group("", auth.RequireRole(auth.RoleProvider))
	provider.PATCH("/orders/:id/items/:itemId", h.UpdateItem)
	provider.POST("/orders/:id/review/finalize", h.FinalizeReview)
	provider.POST("/orders/:id/payment/request", h.RequestPayment)
	provider.POST("/orders/:id/payment/decline", h.DeclinePayment)
	provider.POST("/orders/:id/payment/verify", h.VerifyPayment)
}

// ActorFrom builds the service actor from the authenticated request.
func ActorFrom(c echo.Context) Actor {
	ctx := c.Request().Context()
	return Actor{
		UserID:   auth.UserIDFromContext(ctx),
		Admin:    auth.HasRole(ctx, auth.RoleAdmin),
		Provider: auth.HasRole(ctx, auth.RoleProvider),
	}
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid %s", name)
	}
	return id, nil
}

func bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return apperr.Validation("invalid request body")
	}
	return nil
}

func (h *Handler) CreateOrder(c echo.Context) error {
	var req CreateOrderRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	o, err := h.svc.CreateOrder(c.Request().Context(), ActorFrom(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, apperr.OK(o))
}

func (h *Handler) GetOrder(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	o, err := h.svc.GetOrder(c.Request().Context(), ActorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apperr.OK(o))
}

func (h *Handler) ListOrders(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := ListFilter{Status: Status(c.QueryParam("status"))}
	for name, dst := range map[string]**uuid.UUID{"patient_id": &f.PatientID, "provider_id": &f.ProviderID} {
		if v := c.QueryParam(name); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				return apperr.Validation("invalid %s", name)
			}
			*dst = &id
		}
	}
	items, total, err := h.svc.ListOrders(c.Request().Context(), ActorFrom(c), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apperr.OK(pagination.NewResponse(items, total, pg)))
}

type assignRequest struct {
	ProviderID uuid.UUID `json:"provider_id"`
}

func (h *Handler) AssignProvider(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req assignRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	o, err := h.svc.AssignProvider(c.Request().Context(), ActorFrom(c), id, req.ProviderID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apperr.OK(o))
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) CancelOrder(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	o, err := h.svc.Cancel(c.Request().Context(), ActorFrom(c), id, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apperr.OK(o))
}

func (h *Handler) AddItem(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req AddItemRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	it, err := h.svc.AddItem(c.Request().Context(), ActorFrom(c), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, apperr.OK(it))
}

func (h *Handler) UpdateItem(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	itemID, err := parseID(c, "itemId")
	if err != nil {
		return err
	}
	var req UpdateItemRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	it, o, err := h.svc.UpdateItem(c.Request().Context(), ActorFrom(c), id, itemID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apperr.OK(map[string]interface{}{
		"item":         it,
		"total_amount": o.TotalAmount,
	}))
}

type finalizeRequest struct {
	ProviderNotes *string `json:"provider_notes"`
}

func (h *Handler) FinalizeReview(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req finalizeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	o, err := h.svc.FinalizeReview(c.Request().Context(), ActorFrom(c), id, req.ProviderNotes)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apperr.OK(o))
}

// -- Payment --

func isMultipart(c echo.Context) bool {
	return strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}

func readUpload(fh *multipart.FileHeader) (*Upload, error) {
	if fh.Size > blobstore.MaxFileSize {
		return nil, apperr.Validation("%s exceeds %d bytes", fh.Filename, blobstore.MaxFileSize)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, apperr.Validation("cannot read %s", fh.Filename)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, blobstore.MaxFileSize+1))
	if err != nil {
		return nil, apperr.Validation("cannot read %s", fh.Filename)
	}
	ct := fh.Header.Get(echo.HeaderContentType)
	if ct == "" || ct == echo.MIMEOctetStream {
		ct = http.DetectContentType(data)
	}
	return &Upload{Data: data, ContentType: ct}, nil
}

func formBool(c echo.Context, name string) (bool, error) {
	v := c.FormValue(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, apperr.Validation("%s must be a boolean", name)
	}
	return b, nil
}

// RequestPayment accepts JSON or a multipart form carrying an optional
// qr_image file.
func (h *Handler) RequestPayment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req RequestPaymentRequest
	if isMultipart(c) {
		req.QRPayload = c.FormValue("qr_payload")
		if req.UseSavedQR, err = formBool(c, "use_saved_qr"); err != nil {
			return err
		}
		if req.SaveQR, err = formBool(c, "save_qr"); err != nil {
			return err
		}
		if fh, err := c.FormFile("qr_image"); err == nil {
			if req.QRImage, err = readUpload(fh); err != nil {
				return err
			}
		} else if err != http.ErrMissingFile {
			return apperr.Validation("invalid qr_image")
		}
	} else if err := bind(c, &req); err != nil {
		return err
	}

	o, err := h.svc.RequestPayment(c.Request().Context(), ActorFrom(c), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apperr.OK(o))
}

func (h *Handler) UploadProof(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	fh, err := c.FormFile("proof")
	if err != nil {
		return apperr.Validation("proof image is required")
	}
	up, err := readUpload(fh)
	if err != nil {
		return err
	}
	p, err := h.svc.UploadProof(c.Request().Context(), ActorFrom(c), id, *up)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, apperr.OK(p))
}

func (h *Handler) DeclinePayment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req reasonRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	o, err := h.svc.DeclinePayment(c.Request().Context(), ActorFrom(c), id, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apperr.OK(o))
}

func (h *Handler) VerifyPayment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	o, err := h.svc.VerifyPayment(c.Request().Context(), ActorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apperr.OK(o))
}

func (h *Handler) ListPayments(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	items, err := h.svc.ListPayments(c.Request().Context(), ActorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apperr.OK(items))
}
