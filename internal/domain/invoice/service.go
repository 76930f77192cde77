package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/medimart/medimart/internal/domain/order"
	"github.com/medimart/medimart/internal/platform/apperr"
	"github.com/medimart/medimart/internal/platform/renderer"
)

const (
	// numberAttempts bounds the suffixes tried when two orders share a number.
	numberAttempts = 5
	recordTimeout  = 10 * time.Second
)

// OrderReader loads an order with its items on behalf of a caller.
type OrderReader interface {
	GetOrder(ctx context.Context, a order.Actor, id uuid.UUID) (*order.Order, error)
}

type Service struct {
	repo      Repository
	orders    OrderReader
	directory Directory
	renderer  renderer.Renderer
	currency  string
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(repo Repository, orders OrderReader, directory Directory, r renderer.Renderer, currency string, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		orders:    orders,
		directory: directory,
		renderer:  r,
		currency:  currency,
		logger:    logger.With().Str("component", "invoice").Logger(),
		now:       time.Now,
	}
}

// Generate returns the order's invoice, creating it on first call and
// rendering its document while no download URL is recorded. Concurrent calls
// for one order yield one row and one invoice number.
func (s *Service) Generate(ctx context.Context, a order.Actor, orderID uuid.UUID) (*Invoice, error) {
	o, err := s.orders.GetOrder(ctx, a, orderID)
	if err != nil {
		return nil, err
	}

	inv, err := s.repo.GetByOrder(ctx, orderID)
	switch {
	case err == nil:
		if inv.DownloadURL != nil {
			return inv, nil
		}
	case errors.Is(err, apperr.ErrNotFound):
		if inv, err = s.create(ctx, o); err != nil {
			return nil, err
		}
		if inv.DownloadURL != nil {
			return inv, nil
		}
	default:
		return nil, err
	}

	return s.render(ctx, inv)
}

func (s *Service) create(ctx context.Context, o *order.Order) (*Invoice, error) {
	if o.Status != order.StatusCompleted {
		return nil, apperr.Conflict("cannot invoice order %s: order is %s", o.ShortID(), o.Status)
	}
	if o.ProviderID == nil {
		return nil, apperr.Conflict("cannot invoice order %s: no provider", o.ShortID())
	}
	snap, err := s.snapshot(ctx, o)
	if err != nil {
		return nil, err
	}
	number := Number(*o.ProviderID, o.ID, snap.IssuedAt)
	inv := &Invoice{
		OrderID:  o.ID,
		Snapshot: *snap,
		Status:   StatusGenerated,
	}
	var created bool
	for attempt := 1; ; attempt++ {
		inv.InvoiceNumber = number
		if attempt > 1 {
			inv.InvoiceNumber = fmt.Sprintf("%s-%d", number, attempt)
		}
		created, err = s.repo.InsertIfAbsent(ctx, inv)
		// A conflict here is a number shared with another order's invoice.
		if apperr.KindOf(err) == apperr.KindConflict && attempt < numberAttempts {
			s.logger.Warn().Str("order_id", o.ID.String()).Str("invoice_number", inv.InvoiceNumber).
				Msg("invoice number taken, retrying with suffix")
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}
	if !created {
		// Another caller won the insert.
		return s.repo.GetByOrder(ctx, o.ID)
	}
	s.logger.Info().Str("order_id", o.ID.String()).Str("invoice_number", inv.InvoiceNumber).Msg("invoice created")
	return inv, nil
}

func (s *Service) snapshot(ctx context.Context, o *order.Order) (*Snapshot, error) {
	seller, err := s.directory.Provider(ctx, *o.ProviderID)
	if err != nil {
		return nil, err
	}
	buyer, err := s.directory.Patient(ctx, o.PatientID)
	if err != nil {
		return nil, err
	}
	var doctor *Doctor
	if o.PrescriptionID != nil {
		if doctor, err = s.directory.PrescriptionDoctor(ctx, *o.PrescriptionID); err != nil {
			return nil, err
		}
	}

	snap := &Snapshot{
		OrderID:      o.ID,
		OrderShortID: o.ShortID(),
		OrderType:    string(o.OrderType),
		Seller:       *seller,
		Buyer:        *buyer,
		Doctor:       doctor,
		Items:        []Line{},
		Tax:          decimal.Zero,
		Currency:     s.currency,
		IssuedAt:     s.now().UTC(),
	}
	for _, it := range o.Items {
		if it.Status != order.ItemApproved || it.Price == nil {
			continue
		}
		snap.Items = append(snap.Items, Line{
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: *it.Price,
			LineTotal: it.LineTotal(),
		})
	}
	snap.Subtotal = order.ComputeTotal(o.Items)
	snap.GrandTotal = snap.Subtotal.Add(snap.Tax)
	return snap, nil
}

// render produces the document outside any lock or transaction. A failure
// leaves the invoice row as it was.
func (s *Service) render(ctx context.Context, inv *Invoice) (*Invoice, error) {
	markup, err := Markup(inv)
	if err != nil {
		return nil, err
	}
	detached := context.WithoutCancel(ctx)
	url, err := s.renderer.Render(detached, renderer.Request{
		FileName: inv.InvoiceNumber + ".pdf",
		Markup:   markup,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("invoice_number", inv.InvoiceNumber).Msg("invoice render failed")
		return nil, apperr.Upstream(err, "render invoice %s", inv.InvoiceNumber)
	}

	// The rendered document is recorded even if the caller has gone away.
	rctx, cancel := context.WithTimeout(detached, recordTimeout)
	defer cancel()
	set, err := s.repo.MarkRendered(rctx, inv.ID, url)
	if err != nil {
		return nil, err
	}
	if !set {
		// A concurrent render already recorded its URL; keep that one.
		return s.repo.GetByOrder(rctx, inv.OrderID)
	}
	inv.DownloadURL = &url
	inv.Status = StatusPDFGenerated
	return inv, nil
}

// GetForOrder returns the invoice of an order without creating it.
func (s *Service) GetForOrder(ctx context.Context, a order.Actor, orderID uuid.UUID) (*Invoice, error) {
	if _, err := s.orders.GetOrder(ctx, a, orderID); err != nil {
		return nil, err
	}
	return s.repo.GetByOrder(ctx, orderID)
}

func (s *Service) Get(ctx context.Context, a order.Actor, id uuid.UUID) (*Invoice, error) {
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.orders.GetOrder(ctx, a, inv.OrderID); err != nil {
		return nil, err
	}
	return inv, nil
}
