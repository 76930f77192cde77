package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medimart/medimart/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

// -- Batches --

const batchCols = `id, provider_id, item_id, batch_no, expiry_date, stock_qty,
	purchase_price, selling_price, created_at, updated_at`

func scanBatch(row pgx.Row) (*Batch, error) {
	var b Batch
	err := row.Scan(&b.ID, &b.ProviderID, &b.ItemID, &b.BatchNo, &b.ExpiryDate, &b.StockQty,
		&b.PurchasePrice, &b.SellingPrice, &b.CreatedAt, &b.UpdatedAt)
	return &b, err
}

func (r *repoPG) CreateBatch(ctx context.Context, b *Batch) error {
	b.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO stock_batches (id, provider_id, item_id, batch_no, expiry_date, stock_qty, purchase_price, selling_price)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		b.ID, b.ProviderID, b.ItemID, b.BatchNo, b.ExpiryDate, b.StockQty, b.PurchasePrice, b.SellingPrice,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	return db.TranslateError(err, "batch "+b.BatchNo)
}

func (r *repoPG) GetBatch(ctx context.Context, id uuid.UUID) (*Batch, error) {
	b, err := scanBatch(r.conn(ctx).QueryRow(ctx, `SELECT `+batchCols+` FROM stock_batches WHERE id = $1`, id))
	if err != nil {
		return nil, db.TranslateError(err, "batch "+id.String())
	}
	return b, nil
}

func (r *repoPG) GetBatchForUpdate(ctx context.Context, id uuid.UUID) (*Batch, error) {
	b, err := scanBatch(r.conn(ctx).QueryRow(ctx, `SELECT `+batchCols+` FROM stock_batches WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, db.TranslateError(err, "batch "+id.String())
	}
	return b, nil
}

func (r *repoPG) UpdateBatch(ctx context.Context, b *Batch) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE stock_batches SET batch_no=$2, expiry_date=$3, stock_qty=$4,
			purchase_price=$5, selling_price=$6, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		b.ID, b.BatchNo, b.ExpiryDate, b.StockQty, b.PurchasePrice, b.SellingPrice,
	).Scan(&b.UpdatedAt)
	return db.TranslateError(err, "batch "+b.ID.String())
}

func (r *repoPG) DeleteBatch(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM stock_batches WHERE id = $1`, id)
	if err != nil {
		return db.TranslateError(err, "batch "+id.String())
	}
	if tag.RowsAffected() == 0 {
		return db.TranslateError(pgx.ErrNoRows, "batch "+id.String())
	}
	return nil
}

func (r *repoPG) ListBatches(ctx context.Context, providerID uuid.UUID, itemID *uuid.UUID, limit, offset int) ([]*Batch, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM stock_batches
		WHERE provider_id = $1 AND ($2::uuid IS NULL OR item_id = $2)`,
		providerID, itemID,
	).Scan(&total); err != nil {
		return nil, 0, db.TranslateError(err, "batches")
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+batchCols+` FROM stock_batches
		WHERE provider_id = $1 AND ($2::uuid IS NULL OR item_id = $2)
		ORDER BY expiry_date, batch_no
		LIMIT $3 OFFSET $4`,
		providerID, itemID, limit, offset)
	if err != nil {
		return nil, 0, db.TranslateError(err, "batches")
	}
	items, err := collectBatches(rows)
	return items, total, err
}

func (r *repoPG) ExpiringBatches(ctx context.Context, providerID uuid.UUID, before time.Time) ([]*Batch, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+batchCols+` FROM stock_batches
		WHERE provider_id = $1 AND stock_qty > 0 AND expiry_date <= $2::date
		ORDER BY expiry_date, batch_no`,
		providerID, before)
	if err != nil {
		return nil, db.TranslateError(err, "batches")
	}
	return collectBatches(rows)
}

func collectBatches(rows pgx.Rows) ([]*Batch, error) {
	defer rows.Close()
	var items []*Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, db.TranslateError(err, "batches")
		}
		items = append(items, b)
	}
	return items, db.TranslateError(rows.Err(), "batches")
}

// -- Logs --

func (r *repoPG) AppendLog(ctx context.Context, e *LogEntry) error {
	e.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO stock_logs (id, provider_id, item_id, batch_id, change_type, qty_changed, reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		e.ID, e.ProviderID, e.ItemID, e.BatchID, e.ChangeType, e.QtyChanged, e.Reason,
	).Scan(&e.CreatedAt)
	return db.TranslateError(err, "stock log entry")
}

func (r *repoPG) ListLogs(ctx context.Context, providerID uuid.UUID, itemID *uuid.UUID, limit, offset int) ([]*LogEntry, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM stock_logs
		WHERE provider_id = $1 AND ($2::uuid IS NULL OR item_id = $2)`,
		providerID, itemID,
	).Scan(&total); err != nil {
		return nil, 0, db.TranslateError(err, "stock logs")
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, provider_id, item_id, batch_id, change_type, qty_changed, reason, created_at
		FROM stock_logs
		WHERE provider_id = $1 AND ($2::uuid IS NULL OR item_id = $2)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4`,
		providerID, itemID, limit, offset)
	if err != nil {
		return nil, 0, db.TranslateError(err, "stock logs")
	}
	defer rows.Close()

	var items []*LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.ProviderID, &e.ItemID, &e.BatchID, &e.ChangeType, &e.QtyChanged, &e.Reason, &e.CreatedAt); err != nil {
			return nil, 0, db.TranslateError(err, "stock logs")
		}
		items = append(items, &e)
	}
	return items, total, db.TranslateError(rows.Err(), "stock logs")
}

// -- Totals --

func (r *repoPG) RecomputeTotal(ctx context.Context, providerID, itemID uuid.UUID) (*Total, error) {
	t := Total{ProviderID: providerID, ItemID: itemID}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO inventory_totals (provider_id, item_id, total_stock)
		SELECT $1, $2, COALESCE(SUM(stock_qty), 0)
		FROM stock_batches WHERE provider_id = $1 AND item_id = $2
		ON CONFLICT (provider_id, item_id) DO UPDATE
			SET total_stock = EXCLUDED.total_stock, updated_at = NOW()
		RETURNING total_stock, updated_at`,
		providerID, itemID,
	).Scan(&t.TotalStock, &t.UpdatedAt)
	if err != nil {
		return nil, db.TranslateError(err, "inventory total")
	}
	return &t, nil
}

func (r *repoPG) GetTotal(ctx context.Context, providerID, itemID uuid.UUID) (*Total, error) {
	t := Total{ProviderID: providerID, ItemID: itemID}
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT total_stock, updated_at FROM inventory_totals
		WHERE provider_id = $1 AND item_id = $2`,
		providerID, itemID,
	).Scan(&t.TotalStock, &t.UpdatedAt)
	if err != nil {
		return nil, db.TranslateError(err, "inventory total for item "+itemID.String())
	}
	return &t, nil
}

func (r *repoPG) LowStock(ctx context.Context, providerID uuid.UUID, threshold int) ([]*Total, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT provider_id, item_id, total_stock, updated_at FROM inventory_totals
		WHERE provider_id = $1 AND total_stock < $2
		ORDER BY total_stock, item_id`,
		providerID, threshold)
	if err != nil {
		return nil, db.TranslateError(err, "inventory totals")
	}
	defer rows.Close()

	var items []*Total
	for rows.Next() {
		var t Total
		if err := rows.Scan(&t.ProviderID, &t.ItemID, &t.TotalStock, &t.UpdatedAt); err != nil {
			return nil, db.TranslateError(err, "inventory totals")
		}
		items = append(items, &t)
	}
	return items, db.TranslateError(rows.Err(), "inventory totals")
}
