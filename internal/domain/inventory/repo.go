package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	CreateBatch(ctx context.Context, b *Batch) error
	GetBatch(ctx context.Context, id uuid.UUID) (*Batch, error)
	// GetBatchForUpdate row-locks the batch until the transaction ends.
	GetBatchForUpdate(ctx context.Context, id uuid.UUID) (*Batch, error)
	UpdateBatch(ctx context.Context, b *Batch) error
	DeleteBatch(ctx context.Context, id uuid.UUID) error
	ListBatches(ctx context.Context, providerID uuid.UUID, itemID *uuid.UUID, limit, offset int) ([]*Batch, int, error)
	// ExpiringBatches lists batches with stock expiring on or before the date.
	ExpiringBatches(ctx context.Context, providerID uuid.UUID, before time.Time) ([]*Batch, error)

	AppendLog(ctx context.Context, e *LogEntry) error
	ListLogs(ctx context.Context, providerID uuid.UUID, itemID *uuid.UUID, limit, offset int) ([]*LogEntry, int, error)

	// RecomputeTotal re-sums stock_qty for the pair and stores the result.
	RecomputeTotal(ctx context.Context, providerID, itemID uuid.UUID) (*Total, error)
	GetTotal(ctx context.Context, providerID, itemID uuid.UUID) (*Total, error)
	LowStock(ctx context.Context, providerID uuid.UUID, threshold int) ([]*Total, error)
}
