package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ChangeType string

const (
	ChangeStockIn    ChangeType = "stock_in"
	ChangeStockOut   ChangeType = "stock_out"
	ChangeAdjustment ChangeType = "adjustment"
)

// Default log reasons.
const (
	ReasonInitialStock = "initial_stock"
	ReasonManualUpdate = "manual_update"
	ReasonBatchDeleted = "batch_deleted"
)

// DateLayout is the wire format of expiry dates.
const DateLayout = "2006-01-02"

// Batch maps to stock_batches.
type Batch struct {
	ID            uuid.UUID       `json:"id"`
	ProviderID    uuid.UUID       `json:"provider_id"`
	ItemID        uuid.UUID       `json:"item_id"`
	BatchNo       string          `json:"batch_no"`
	ExpiryDate    time.Time       `json:"expiry_date"`
	StockQty      int             `json:"stock_qty"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// DaysToExpiry counts whole days from now until the batch expires.
func (b *Batch) DaysToExpiry(now time.Time) int {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	exp := time.Date(b.ExpiryDate.Year(), b.ExpiryDate.Month(), b.ExpiryDate.Day(), 0, 0, 0, 0, time.UTC)
	return int(exp.Sub(today).Hours() / 24)
}

// LogEntry maps to stock_logs. Entries are never updated or deleted.
type LogEntry struct {
	ID         uuid.UUID  `json:"id"`
	ProviderID uuid.UUID  `json:"provider_id"`
	ItemID     uuid.UUID  `json:"item_id"`
	BatchID    *uuid.UUID `json:"batch_id,omitempty"`
	ChangeType ChangeType `json:"change_type"`
	QtyChanged int        `json:"qty_changed"`
	Reason     string     `json:"reason"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Total maps to inventory_totals: the stock of one item across all of a
// provider's batches.
type Total struct {
	ProviderID uuid.UUID `json:"provider_id"`
	ItemID     uuid.UUID `json:"item_id"`
	TotalStock int       `json:"total_stock"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Caller is the authenticated user acting on inventory.
type Caller struct {
	UserID uuid.UUID
	Admin  bool
}
