package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/medimart/medimart/internal/platform/apperr"
	"github.com/medimart/medimart/internal/platform/db"
	"github.com/medimart/medimart/internal/platform/lock"
)

type Service struct {
	repo              Repository
	tx                db.TxManager
	locks             lock.Locker
	expiryWindowDays  int
	lowStockThreshold int
	logger            zerolog.Logger
	now               func() time.Time
}

func NewService(repo Repository, tx db.TxManager, locks lock.Locker, expiryWindowDays, lowStockThreshold int, logger zerolog.Logger) *Service {
	return &Service{
		repo:              repo,
		tx:                tx,
		locks:             locks,
		expiryWindowDays:  expiryWindowDays,
		lowStockThreshold: lowStockThreshold,
		logger:            logger.With().Str("component", "inventory").Logger(),
		now:               time.Now,
	}
}

func stockKey(providerID, itemID uuid.UUID) string {
	return "inventory:" + providerID.String() + ":" + itemID.String()
}

// withStock runs fn in a transaction while holding the (provider, item) key
// lock, then recomputes the item total in the same transaction.
func (s *Service) withStock(ctx context.Context, providerID, itemID uuid.UUID, fn func(ctx context.Context) error) (*Total, error) {
	release, err := s.locks.Acquire(ctx, stockKey(providerID, itemID))
	if err != nil {
		return nil, err
	}
	defer release()

	var total *Total
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return err
		}
		t, err := s.repo.RecomputeTotal(ctx, providerID, itemID)
		if err != nil {
			return err
		}
		total = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return total, nil
}

// scope resolves whose inventory a call addresses. Providers always act on
// their own stock; admins must name the provider.
func scope(c Caller, requested *uuid.UUID) (uuid.UUID, error) {
	if c.Admin {
		if requested == nil || *requested == uuid.Nil {
			return uuid.Nil, apperr.Validation("provider_id is required")
		}
		return *requested, nil
	}
	if c.UserID == uuid.Nil {
		return uuid.Nil, apperr.Forbidden("no provider identity")
	}
	if requested != nil && *requested != c.UserID {
		return uuid.Nil, apperr.Forbidden("cannot access another provider's inventory")
	}
	return c.UserID, nil
}

func owns(c Caller, b *Batch) bool {
	return c.Admin || (c.UserID != uuid.Nil && b.ProviderID == c.UserID)
}

func parseDate(field, v string) (time.Time, error) {
	t, err := time.Parse(DateLayout, v)
	if err != nil {
		return time.Time{}, apperr.Validation("%s must be YYYY-MM-DD", field)
	}
	return t, nil
}

// MaxStockQty bounds a single batch so per-item totals stay within INTEGER.
const MaxStockQty = 1000000

// MaxPrice is the largest value a NUMERIC(12,2) price column holds.
var MaxPrice = decimal.RequireFromString("9999999999.99")

func checkPrice(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return apperr.Validation("%s must not be negative", field)
	}
	if d.GreaterThan(MaxPrice) {
		return apperr.Validation("%s must not exceed %s", field, MaxPrice.StringFixed(2))
	}
	return nil
}

// -- Batches --

type CreateBatchRequest struct {
	// ProviderID is honoured for admins only.
	ProviderID    *uuid.UUID      `json:"provider_id"`
	ItemID        uuid.UUID       `json:"item_id" validate:"required"`
	BatchNo       string          `json:"batch_no" validate:"required,max=64"`
	ExpiryDate    string          `json:"expiry_date" validate:"required"`
	StockQty      int             `json:"stock_qty" validate:"gte=0,lte=1000000"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
}

func (s *Service) CreateBatch(ctx context.Context, c Caller, req CreateBatchRequest) (*Batch, *Total, error) {
	req.BatchNo = strings.TrimSpace(req.BatchNo)
	if err := apperr.ValidateStruct(req); err != nil {
		return nil, nil, err
	}
	if req.ItemID == uuid.Nil {
		return nil, nil, apperr.Validation("item_id is required")
	}
	providerID, err := scope(c, req.ProviderID)
	if err != nil {
		return nil, nil, err
	}
	expiry, err := parseDate("expiry_date", req.ExpiryDate)
	if err != nil {
		return nil, nil, err
	}
	if err := checkPrice("purchase_price", req.PurchasePrice); err != nil {
		return nil, nil, err
	}
	if err := checkPrice("selling_price", req.SellingPrice); err != nil {
		return nil, nil, err
	}

	b := &Batch{
		ProviderID:    providerID,
		ItemID:        req.ItemID,
		BatchNo:       req.BatchNo,
		ExpiryDate:    expiry,
		StockQty:      req.StockQty,
		PurchasePrice: req.PurchasePrice,
		SellingPrice:  req.SellingPrice,
	}
	total, err := s.withStock(ctx, providerID, req.ItemID, func(ctx context.Context) error {
		if err := s.repo.CreateBatch(ctx, b); err != nil {
			return err
		}
		if b.StockQty == 0 {
			return nil
		}
		return s.repo.AppendLog(ctx, &LogEntry{
			ProviderID: providerID,
			ItemID:     b.ItemID,
			BatchID:    &b.ID,
			ChangeType: ChangeStockIn,
			QtyChanged: b.StockQty,
			Reason:     ReasonInitialStock,
		})
	})
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info().Str("batch_id", b.ID.String()).Str("item_id", b.ItemID.String()).
		Int("qty", b.StockQty).Msg("batch created")
	return b, total, nil
}

type UpdateBatchRequest struct {
	BatchNo       *string          `json:"batch_no" validate:"omitempty,min=1,max=64"`
	ExpiryDate    *string          `json:"expiry_date"`
	StockQty      *int             `json:"stock_qty"`
	PurchasePrice *decimal.Decimal `json:"purchase_price"`
	SellingPrice  *decimal.Decimal `json:"selling_price"`
	Reason        string           `json:"reason" validate:"max=255"`
}

func (r UpdateBatchRequest) empty() bool {
	return r.BatchNo == nil && r.ExpiryDate == nil && r.StockQty == nil &&
		r.PurchasePrice == nil && r.SellingPrice == nil
}

func (r UpdateBatchRequest) validate() error {
	if err := apperr.ValidateStruct(r); err != nil {
		return err
	}
	if r.empty() {
		return apperr.Validation("nothing to update")
	}
	if r.StockQty != nil && *r.StockQty < 0 {
		return apperr.Validation("stock_qty must not be negative")
	}
	if r.StockQty != nil && *r.StockQty > MaxStockQty {
		return apperr.Validation("stock_qty must not exceed %d", MaxStockQty)
	}
	if r.PurchasePrice != nil {
		if err := checkPrice("purchase_price", *r.PurchasePrice); err != nil {
			return err
		}
	}
	if r.SellingPrice != nil {
		if err := checkPrice("selling_price", *r.SellingPrice); err != nil {
			return err
		}
	}
	return nil
}

// loadOwned reads a batch outside any transaction to learn its lock key.
func (s *Service) loadOwned(ctx context.Context, c Caller, id uuid.UUID) (*Batch, error) {
	b, err := s.repo.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	if !owns(c, b) {
		return nil, apperr.Forbidden("cannot access another provider's inventory")
	}
	return b, nil
}

func (s *Service) UpdateBatch(ctx context.Context, c Caller, id uuid.UUID, req UpdateBatchRequest) (*Batch, *Total, error) {
	if err := req.validate(); err != nil {
		return nil, nil, err
	}
	var expiry *time.Time
	if req.ExpiryDate != nil {
		t, err := parseDate("expiry_date", *req.ExpiryDate)
		if err != nil {
			return nil, nil, err
		}
		expiry = &t
	}
	cur, err := s.loadOwned(ctx, c, id)
	if err != nil {
		return nil, nil, err
	}

	var updated *Batch
	total, err := s.withStock(ctx, cur.ProviderID, cur.ItemID, func(ctx context.Context) error {
		b, err := s.repo.GetBatchForUpdate(ctx, id)
		if err != nil {
			return err
		}
		old := b.StockQty
		if req.BatchNo != nil {
			b.BatchNo = strings.TrimSpace(*req.BatchNo)
		}
		if expiry != nil {
			b.ExpiryDate = *expiry
		}
		if req.StockQty != nil {
			b.StockQty = *req.StockQty
		}
		if req.PurchasePrice != nil {
			b.PurchasePrice = *req.PurchasePrice
		}
		if req.SellingPrice != nil {
			b.SellingPrice = *req.SellingPrice
		}
		if err := s.repo.UpdateBatch(ctx, b); err != nil {
			return err
		}
		updated = b

		delta := b.StockQty - old
		if delta == 0 {
			return nil
		}
		entry := &LogEntry{
			ProviderID: b.ProviderID,
			ItemID:     b.ItemID,
			BatchID:    &b.ID,
			ChangeType: ChangeStockIn,
			QtyChanged: delta,
			Reason:     strings.TrimSpace(req.Reason),
		}
		if delta < 0 {
			entry.ChangeType = ChangeStockOut
			entry.QtyChanged = -delta
		}
		if entry.Reason == "" {
			entry.Reason = ReasonManualUpdate
		}
		return s.repo.AppendLog(ctx, entry)
	})
	if err != nil {
		return nil, nil, err
	}
	return updated, total, nil
}

func (s *Service) DeleteBatch(ctx context.Context, c Caller, id uuid.UUID) (*Total, error) {
	cur, err := s.loadOwned(ctx, c, id)
	if err != nil {
		return nil, err
	}
	total, err := s.withStock(ctx, cur.ProviderID, cur.ItemID, func(ctx context.Context) error {
		b, err := s.repo.GetBatchForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if b.StockQty > 0 {
			if err := s.repo.AppendLog(ctx, &LogEntry{
				ProviderID: b.ProviderID,
				ItemID:     b.ItemID,
				BatchID:    &b.ID,
				ChangeType: ChangeAdjustment,
				QtyChanged: b.StockQty,
				Reason:     ReasonBatchDeleted,
			}); err != nil {
				return err
			}
		}
		return s.repo.DeleteBatch(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("batch_id", id.String()).Msg("batch deleted")
	return total, nil
}

// -- Queries --

func (s *Service) ListBatches(ctx context.Context, c Caller, providerID, itemID *uuid.UUID, limit, offset int) ([]*Batch, int, error) {
	pid, err := scope(c, providerID)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.ListBatches(ctx, pid, itemID, limit, offset)
}

// Expiring lists stocked batches expiring within days; days <= 0 uses the
// configured window.
func (s *Service) Expiring(ctx context.Context, c Caller, providerID *uuid.UUID, days int) ([]*Batch, error) {
	pid, err := scope(c, providerID)
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		days = s.expiryWindowDays
	}
	return s.repo.ExpiringBatches(ctx, pid, s.now().UTC().AddDate(0, 0, days))
}

// LowStock lists item totals below threshold; threshold <= 0 uses the
// configured default.
func (s *Service) LowStock(ctx context.Context, c Caller, providerID *uuid.UUID, threshold int) ([]*Total, error) {
	pid, err := scope(c, providerID)
	if err != nil {
		return nil, err
	}
	if threshold <= 0 {
		threshold = s.lowStockThreshold
	}
	return s.repo.LowStock(ctx, pid, threshold)
}

func (s *Service) Logs(ctx context.Context, c Caller, providerID, itemID *uuid.UUID, limit, offset int) ([]*LogEntry, int, error) {
	pid, err := scope(c, providerID)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.ListLogs(ctx, pid, itemID, limit, offset)
}

// ItemTotal returns the stored total; an item with no batches has zero stock.
func (s *Service) ItemTotal(ctx context.Context, c Caller, providerID *uuid.UUID, itemID uuid.UUID) (*Total, error) {
	pid, err := scope(c, providerID)
	if err != nil {
		return nil, err
	}
	t, err := s.repo.GetTotal(ctx, pid, itemID)
	if errors.Is(err, apperr.ErrNotFound) {
		return &Total{ProviderID: pid, ItemID: itemID}, nil
	}
	return t, err
}

// Report renders the expiring and low-stock views as an XLSX workbook.
func (s *Service) Report(ctx context.Context, c Caller, providerID *uuid.UUID) ([]byte, error) {
	expiring, err := s.Expiring(ctx, c, providerID, 0)
	if err != nil {
		return nil, err
	}
	low, err := s.LowStock(ctx, c, providerID, 0)
	if err != nil {
		return nil, err
	}
	return BuildReport(expiring, low, s.now())
}
