package invoice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medimart/medimart/internal/platform/db"
)

type invoiceRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &invoiceRepoPG{pool: pool} }

func (r *invoiceRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const invoiceCols = `id, order_id, invoice_number, snapshot, download_url, status, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var (
		inv Invoice
		raw []byte
	)
	if err := row.Scan(&inv.ID, &inv.OrderID, &inv.InvoiceNumber, &raw, &inv.DownloadURL, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &inv.Snapshot); err != nil {
		return nil, fmt.Errorf("decode invoice snapshot: %w", err)
	}
	return &inv, nil
}

func (r *invoiceRepoPG) InsertIfAbsent(ctx context.Context, inv *Invoice) (bool, error) {
	snap, err := json.Marshal(inv.Snapshot)
	if err != nil {
		return false, fmt.Errorf("encode invoice snapshot: %w", err)
	}
	inv.ID = uuid.New()
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO invoices (id, order_id, invoice_number, snapshot, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id) DO NOTHING
		RETURNING created_at, updated_at`,
		inv.ID, inv.OrderID, inv.InvoiceNumber, snap, inv.Status,
	).Scan(&inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, db.TranslateError(err, "invoice "+inv.InvoiceNumber)
	}
	return true, nil
}

func (r *invoiceRepoPG) GetByOrder(ctx context.Context, orderID uuid.UUID) (*Invoice, error) {
	inv, err := scanInvoice(r.conn(ctx).QueryRow(ctx, `SELECT `+invoiceCols+` FROM invoices WHERE order_id = $1`, orderID))
	if err != nil {
		return nil, db.TranslateError(err, "invoice for order "+orderID.String())
	}
	return inv, nil
}

func (r *invoiceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	inv, err := scanInvoice(r.conn(ctx).QueryRow(ctx, `SELECT `+invoiceCols+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		return nil, db.TranslateError(err, "invoice "+id.String())
	}
	return inv, nil
}

func (r *invoiceRepoPG) MarkRendered(ctx context.Context, id uuid.UUID, url string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE invoices SET download_url = $2, status = $3, updated_at = NOW()
		WHERE id = $1 AND download_url IS NULL`,
		id, url, StatusPDFGenerated)
	if err != nil {
		return false, db.TranslateError(err, "invoice "+id.String())
	}
	return tag.RowsAffected() == 1, nil
}
