package order

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/medimart/medimart/internal/platform/apperr"
	"github.com/medimart/medimart/internal/platform/blobstore"
	"github.com/medimart/medimart/internal/platform/db"
	"github.com/medimart/medimart/internal/platform/lock"
	"github.com/medimart/medimart/internal/platform/notification"
)

type Service struct {
	orders   OrderRepository
	payments PaymentRepository
	tx       db.TxManager
	locks    lock.Locker
	blobs    blobstore.Store
	notifier notification.Notifier
	logger   zerolog.Logger
}

func NewService(orders OrderRepository, payments PaymentRepository, tx db.TxManager, locks lock.Locker,
	blobs blobstore.Store, notifier notification.Notifier, logger zerolog.Logger) *Service {
	return &Service{
		orders:   orders,
		payments: payments,
		tx:       tx,
		locks:    locks,
		blobs:    blobs,
		notifier: notifier,
		logger:   logger.With().Str("component", "order").Logger(),
	}
}

func orderKey(id uuid.UUID) string { return "order:" + id.String() }

// withOrder runs fn in a transaction while holding the order's key lock.
// fn receives the order row-locked with FOR UPDATE.
func (s *Service) withOrder(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, o *Order) error) error {
	release, err := s.locks.Acquire(ctx, orderKey(id))
	if err != nil {
		return err
	}
	defer release()

	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		return fn(ctx, o)
	})
}

// recompute rewrites total_amount from the current items. It must run inside
// the transaction that holds the order row.
func (s *Service) recompute(ctx context.Context, o *Order) error {
	items, err := s.orders.ListItems(ctx, o.ID)
	if err != nil {
		return err
	}
	total := ComputeTotal(items)
	if total.GreaterThan(MaxAmount) {
		return apperr.Validation("order total must not exceed %s", MaxAmount.StringFixed(2))
	}
	if err := s.orders.UpdateTotal(ctx, o.ID, total); err != nil {
		return err
	}
	o.TotalAmount = total
	o.Items = items
	return nil
}

func (s *Service) notify(ctx context.Context, tpl string, userID uuid.UUID, o *Order, extra map[string]string) {
	if userID == uuid.Nil {
		return
	}
	data := map[string]string{
		"order":    o.ShortID(),
		"order_id": o.ID.String(),
		"status":   string(o.Status),
		"amount":   o.TotalAmount.StringFixed(2),
	}
	for k, v := range extra {
		data[k] = v
	}
	msg, err := notification.Build(tpl, userID, data)
	if err != nil {
		s.logger.Error().Err(err).Str("template", tpl).Msg("build notification")
		return
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.logger.Warn().Err(err).Str("template", tpl).Str("order_id", o.ID.String()).Msg("notification delivery failed")
	}
}

func canView(a Actor, o *Order) bool {
	return a.Admin || (a.UserID != uuid.Nil && o.PatientID == a.UserID) || o.IsProvider(a.UserID)
}

func requireProvider(a Actor, o *Order) error {
	if !o.IsProvider(a.UserID) {
		return apperr.Forbidden("only the order's provider may do this")
	}
	return nil
}

// -- Orders --

// MaxQuantity bounds item quantities; amounts are bounded by MaxAmount.
const MaxQuantity = 100000

// MaxAmount is the largest value a NUMERIC(12,2) money column holds.
var MaxAmount = decimal.RequireFromString("9999999999.99")

type NewItem struct {
	Name     string `json:"name" validate:"required,max=255"`
	Quantity int    `json:"quantity" validate:"gt=0,lte=100000"`
}

type CreateOrderRequest struct {
	PrescriptionID *uuid.UUID `json:"prescription_id"`
	// PatientID is honoured for admins only; patients always order for
	// themselves.
	PatientID *uuid.UUID `json:"patient_id"`
	// ProviderID routes the order straight to a chemist or lab.
	ProviderID   *uuid.UUID `json:"provider_id"`
	OrderType    Type       `json:"order_type" validate:"required,oneof=medicine lab_test"`
	PatientNotes string     `json:"patient_notes" validate:"max=2000"`
	Items        []NewItem  `json:"items" validate:"dive"`
}

func (s *Service) CreateOrder(ctx context.Context, a Actor, req CreateOrderRequest) (*Order, error) {
	if err := apperr.ValidateStruct(req); err != nil {
		return nil, err
	}
	patientID := a.UserID
	if a.Admin && req.PatientID != nil {
		patientID = *req.PatientID
	}
	if patientID == uuid.Nil {
		return nil, apperr.Validation("patient_id is required")
	}
	if req.ProviderID != nil && *req.ProviderID == uuid.Nil {
		return nil, apperr.Validation("provider_id must not be empty")
	}

	o := &Order{
		PrescriptionID: req.PrescriptionID,
		PatientID:      patientID,
		OrderType:      req.OrderType,
		Status:         StatusPending,
		TotalAmount:    decimal.Zero,
		PatientNotes:   strings.TrimSpace(req.PatientNotes),
	}
	if req.ProviderID != nil {
		to, err := Transition(o.Status, EventAssignProvider)
		if err != nil {
			return nil, err
		}
		providerID := *req.ProviderID
		o.ProviderID = &providerID
		o.Status = to
	}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.orders.Create(ctx, o); err != nil {
			return err
		}
		for _, ni := range req.Items {
			it := &Item{OrderID: o.ID, Name: strings.TrimSpace(ni.Name), Quantity: ni.Quantity, Status: ItemPending}
			if err := s.orders.AddItem(ctx, it); err != nil {
				return err
			}
			o.Items = append(o.Items, it)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("order_id", o.ID.String()).Str("type", string(o.OrderType)).
		Str("status", string(o.Status)).Msg("order created")
	if o.ProviderID != nil {
		s.notify(ctx, notification.TplOrderAssigned, *o.ProviderID, o, nil)
	}
	return o, nil
}

// GetOrder returns the order with its items.
func (s *Service) GetOrder(ctx context.Context, a Actor, id uuid.UUID) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(a, o) {
		return nil, apperr.Forbidden("order %s belongs to another party", o.ShortID())
	}
	if o.Items, err = s.orders.ListItems(ctx, id); err != nil {
		return nil, err
	}
	return o, nil
}

// ListOrders scopes non-admin callers to their own orders.
func (s *Service) ListOrders(ctx context.Context, a Actor, f ListFilter, limit, offset int) ([]*Order, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.Validation("unknown order status %q", f.Status)
	}
	if !a.Admin {
		uid := a.UserID
		if a.Provider {
			f.ProviderID, f.PatientID = &uid, nil
		} else {
			f.PatientID, f.ProviderID = &uid, nil
		}
	}
	return s.orders.List(ctx, f, limit, offset)
}

// AssignProvider routes a pending order to a chemist or lab.
func (s *Service) AssignProvider(ctx context.Context, a Actor, id, providerID uuid.UUID) (*Order, error) {
	if providerID == uuid.Nil {
		return nil, apperr.Validation("provider_id is required")
	}
	var out *Order
	err := s.withOrder(ctx, id, func(ctx context.Context, o *Order) error {
		if !a.Admin && o.PatientID != a.UserID {
			return apperr.Forbidden("only the order's patient may assign a provider")
		}
		to, err := Transition(o.Status, EventAssignProvider)
		if err != nil {
			return err
		}
		o.ProviderID = &providerID
		o.Status = to
		if err := s.orders.Update(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, notification.TplOrderAssigned, providerID, out, nil)
	return out, nil
}

// Cancel moves any non-terminal order to cancelled.
func (s *Service) Cancel(ctx context.Context, a Actor, id uuid.UUID, reason string) (*Order, error) {
	reason = strings.TrimSpace(reason)
	var out *Order
	err := s.withOrder(ctx, id, func(ctx context.Context, o *Order) error {
		if !canView(a, o) {
			return apperr.Forbidden("order %s belongs to another party", o.ShortID())
		}
		to, err := Transition(o.Status, EventCancel)
		if err != nil {
			return err
		}
		o.Status = to
		if reason != "" {
			o.CancelReason = &reason
		}
		if err := s.orders.Update(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	recipient := out.PatientID
	if a.UserID == out.PatientID && out.ProviderID != nil {
		recipient = *out.ProviderID
	}
	s.notify(ctx, notification.TplOrderCancelled, recipient, out, map[string]string{"reason": reason})
	return out, nil
}

// -- Items --

type AddItemRequest struct {
	Name     string           `json:"name" validate:"required,max=255"`
	Quantity int              `json:"quantity" validate:"gt=0,lte=100000"`
	Price    *decimal.Decimal `json:"price"`
	Status   ItemStatus       `json:"status" validate:"omitempty,oneof=pending approved rejected"`
}

func (s *Service) AddItem(ctx context.Context, a Actor, orderID uuid.UUID, req AddItemRequest) (*Item, error) {
	if err := apperr.ValidateStruct(req); err != nil {
		return nil, err
	}
	if err := checkPrice(req.Price); err != nil {
		return nil, err
	}
	if req.Status == "" {
		req.Status = ItemPending
	}
	if req.Status == ItemApproved && req.Price == nil {
		return nil, apperr.Validation("an approved item needs a price")
	}

	it := &Item{OrderID: orderID, Name: strings.TrimSpace(req.Name), Quantity: req.Quantity, Price: req.Price, Status: req.Status}
	err := s.withOrder(ctx, orderID, func(ctx context.Context, o *Order) error {
		if !canView(a, o) {
			return apperr.Forbidden("order %s belongs to another party", o.ShortID())
		}
		// Patients may list what they need; pricing and decisions belong to the provider.
		if !a.Admin && !o.IsProvider(a.UserID) && (it.Price != nil || it.Status != ItemPending) {
			return apperr.Forbidden("only the order's provider may price or review items")
		}
		if !ItemsMutable(o.Status) {
			return apperr.Conflict("cannot add items: order is %s", o.Status)
		}
		if err := s.orders.AddItem(ctx, it); err != nil {
			return err
		}
		return s.recompute(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	return it, nil
}

type UpdateItemRequest struct {
	Name     *string          `json:"name" validate:"omitempty,min=1,max=255"`
	Quantity *int             `json:"quantity" validate:"omitempty,gt=0,lte=100000"`
	Price    *decimal.Decimal `json:"price"`
	Status   *ItemStatus      `json:"status" validate:"omitempty,oneof=pending approved rejected"`
}

func (r UpdateItemRequest) empty() bool {
	return r.Name == nil && r.Quantity == nil && r.Price == nil && r.Status == nil
}

// UpdateItem applies a provider's pricing or review decision and recomputes
// the order total in the same transaction.
func (s *Service) UpdateItem(ctx context.Context, a Actor, orderID, itemID uuid.UUID, req UpdateItemRequest) (*Item, *Order, error) {
	if err := apperr.ValidateStruct(req); err != nil {
		return nil, nil, err
	}
	if req.empty() {
		return nil, nil, apperr.Validation("nothing to update")
	}
	if err := checkPrice(req.Price); err != nil {
		return nil, nil, err
	}

	var (
		it  *Item
		out *Order
	)
	err := s.withOrder(ctx, orderID, func(ctx context.Context, o *Order) error {
		if !a.Admin {
			if err := requireProvider(a, o); err != nil {
				return err
			}
		}
		if !ItemsMutable(o.Status) {
			return apperr.Conflict("cannot change items: order is %s", o.Status)
		}
		var err error
		if it, err = s.orders.GetItem(ctx, orderID, itemID); err != nil {
			return err
		}
		if req.Name != nil {
			it.Name = strings.TrimSpace(*req.Name)
		}
		if req.Quantity != nil {
			it.Quantity = *req.Quantity
		}
		if req.Price != nil {
			p := *req.Price
			it.Price = &p
		}
		if req.Status != nil {
			it.Status = *req.Status
		}
		if it.Status == ItemApproved && it.Price == nil {
			return apperr.Validation("an approved item needs a price")
		}
		if err := s.orders.UpdateItem(ctx, it); err != nil {
			return err
		}
		if err := s.recompute(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return it, out, nil
}

func checkPrice(p *decimal.Decimal) error {
	if p == nil {
		return nil
	}
	if p.IsNegative() {
		return apperr.Validation("price must not be negative")
	}
	if p.GreaterThan(MaxAmount) {
		return apperr.Validation("price must not exceed %s", MaxAmount.StringFixed(2))
	}
	return nil
}

// FinalizeReview closes the provider's review. The resulting status follows
// from the item decisions.
func (s *Service) FinalizeReview(ctx context.Context, a Actor, id uuid.UUID, notes *string) (*Order, error) {
	var out *Order
	err := s.withOrder(ctx, id, func(ctx context.Context, o *Order) error {
		if err := requireProvider(a, o); err != nil {
			return err
		}
		items, err := s.orders.ListItems(ctx, id)
		if err != nil {
			return err
		}
		ev, err := ReviewEvent(items)
		if err != nil {
			return err
		}
		to, err := Transition(o.Status, ev)
		if err != nil {
			return err
		}
		if err := s.recompute(ctx, o); err != nil {
			return err
		}
		o.Status = to
		if notes != nil {
			o.ProviderNotes = strings.TrimSpace(*notes)
		}
		if err := s.orders.Update(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, notification.TplOrderReviewed, out.PatientID, out, nil)
	return out, nil
}

// RecomputeTotal re-derives total_amount from the order's items.
func (s *Service) RecomputeTotal(ctx context.Context, id uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.withOrder(ctx, id, func(ctx context.Context, o *Order) error {
		if err := s.recompute(ctx, o); err != nil {
			return err
		}
		total = o.TotalAmount
		return nil
	})
	return total, err
}

// discardBlob deletes a blob whose database write failed. The caller's
// context may already be gone.
func (s *Service) discardBlob(ctx context.Context, path string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.blobs.Delete(ctx, path); err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("orphaned blob could not be removed")
		return
	}
	s.logger.Warn().Str("path", path).Msg("removed blob after failed write")
}
