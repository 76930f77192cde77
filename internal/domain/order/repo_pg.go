package order

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/medimart/medimart/internal/platform/db"
)

// =========== Order Repository ===========

type orderRepoPG struct{ pool *pgxpool.Pool }

func NewOrderRepoPG(pool *pgxpool.Pool) OrderRepository { return &orderRepoPG{pool: pool} }

func (r *orderRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const orderCols = `id, prescription_id, patient_id, provider_id, order_type, status, total_amount,
	payment_qr_url, payment_qr_payload, payment_decline_reason,
	patient_notes, provider_notes, cancel_reason, created_at, updated_at`

func (r *orderRepoPG) scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.PrescriptionID, &o.PatientID, &o.ProviderID, &o.OrderType, &o.Status, &o.TotalAmount,
		&o.PaymentQRURL, &o.PaymentQRPayload, &o.PaymentDeclineReason,
		&o.PatientNotes, &o.ProviderNotes, &o.CancelReason, &o.CreatedAt, &o.UpdatedAt)
	return &o, err
}

func (r *orderRepoPG) Create(ctx context.Context, o *Order) error {
	o.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO orders (id, prescription_id, patient_id, provider_id, order_type, status, total_amount, patient_notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		o.ID, o.PrescriptionID, o.PatientID, o.ProviderID, o.OrderType, o.Status, o.TotalAmount, o.PatientNotes,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	return db.TranslateError(err, "order")
}

func (r *orderRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := r.scanOrder(r.conn(ctx).QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, db.TranslateError(err, "order "+id.String())
	}
	return o, nil
}

func (r *orderRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := r.scanOrder(r.conn(ctx).QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, db.TranslateError(err, "order "+id.String())
	}
	return o, nil
}

func (r *orderRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Order, int, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.ProviderID != nil {
		add("provider_id = $%d", *f.ProviderID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM orders`+clause, args...).Scan(&total); err != nil {
		return nil, 0, db.TranslateError(err, "orders")
	}

	args = append(args, limit, offset)
	q := fmt.Sprintf(`SELECT `+orderCols+` FROM orders%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		clause, len(args)-1, len(args))
	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, db.TranslateError(err, "orders")
	}
	defer rows.Close()

	var items []*Order
	for rows.Next() {
		o, err := r.scanOrder(rows)
		if err != nil {
			return nil, 0, db.TranslateError(err, "orders")
		}
		items = append(items, o)
	}
	return items, total, db.TranslateError(rows.Err(), "orders")
}

func (r *orderRepoPG) Update(ctx context.Context, o *Order) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE orders SET provider_id=$2, status=$3, payment_qr_url=$4, payment_qr_payload=$5,
			payment_decline_reason=$6, provider_notes=$7, cancel_reason=$8, updated_at=NOW()
		WHERE id = $1`,
		o.ID, o.ProviderID, o.Status, o.PaymentQRURL, o.PaymentQRPayload,
		o.PaymentDeclineReason, o.ProviderNotes, o.CancelReason)
	if err != nil {
		return db.TranslateError(err, "order "+o.ID.String())
	}
	if tag.RowsAffected() == 0 {
		return db.TranslateError(pgx.ErrNoRows, "order "+o.ID.String())
	}
	return nil
}

func (r *orderRepoPG) UpdateTotal(ctx context.Context, id uuid.UUID, total decimal.Decimal) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE orders SET total_amount=$2, updated_at=NOW() WHERE id = $1`, id, total)
	if err != nil {
		return db.TranslateError(err, "order "+id.String())
	}
	if tag.RowsAffected() == 0 {
		return db.TranslateError(pgx.ErrNoRows, "order "+id.String())
	}
	return nil
}

// -- Items --

const itemCols = `id, order_id, name, quantity, price, status, created_at, updated_at`

func scanItem(row pgx.Row) (*Item, error) {
	var (
		it    Item
		price decimal.NullDecimal
	)
	if err := row.Scan(&it.ID, &it.OrderID, &it.Name, &it.Quantity, &price, &it.Status, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return nil, err
	}
	if price.Valid {
		p := price.Decimal
		it.Price = &p
	}
	return &it, nil
}

func nullPrice(p *decimal.Decimal) decimal.NullDecimal {
	if p == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *p, Valid: true}
}

func (r *orderRepoPG) AddItem(ctx context.Context, it *Item) error {
	it.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO order_items (id, order_id, name, quantity, price, status)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		it.ID, it.OrderID, it.Name, it.Quantity, nullPrice(it.Price), it.Status,
	).Scan(&it.CreatedAt, &it.UpdatedAt)
	return db.TranslateError(err, "order item")
}

func (r *orderRepoPG) GetItem(ctx context.Context, orderID, itemID uuid.UUID) (*Item, error) {
	it, err := scanItem(r.conn(ctx).QueryRow(ctx,
		`SELECT `+itemCols+` FROM order_items WHERE id = $1 AND order_id = $2`, itemID, orderID))
	if err != nil {
		return nil, db.TranslateError(err, "order item "+itemID.String())
	}
	return it, nil
}

func (r *orderRepoPG) UpdateItem(ctx context.Context, it *Item) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE order_items SET name=$3, quantity=$4, price=$5, status=$6, updated_at=NOW()
		WHERE id = $1 AND order_id = $2
		RETURNING updated_at`,
		it.ID, it.OrderID, it.Name, it.Quantity, nullPrice(it.Price), it.Status,
	).Scan(&it.UpdatedAt)
	return db.TranslateError(err, "order item "+it.ID.String())
}

func (r *orderRepoPG) ListItems(ctx context.Context, orderID uuid.UUID) ([]*Item, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+itemCols+` FROM order_items WHERE order_id = $1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, db.TranslateError(err, "order items")
	}
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, db.TranslateError(err, "order items")
		}
		items = append(items, it)
	}
	return items, db.TranslateError(rows.Err(), "order items")
}

// =========== Payment Repository ===========

type paymentRepoPG struct{ pool *pgxpool.Pool }

func NewPaymentRepoPG(pool *pgxpool.Pool) PaymentRepository { return &paymentRepoPG{pool: pool} }

func (r *paymentRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const paymentCols = `id, order_id, patient_id, amount, proof_url, proof_path, status, created_at, updated_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.PatientID, &p.Amount, &p.ProofURL, &p.ProofPath, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *paymentRepoPG) Create(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO payments (id, order_id, patient_id, amount, proof_url, proof_path, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		p.ID, p.OrderID, p.PatientID, p.Amount, p.ProofURL, p.ProofPath, p.Status,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return db.TranslateError(err, "payment")
}

func (r *paymentRepoPG) LatestSubmitted(ctx context.Context, orderID uuid.UUID) (*Payment, error) {
	p, err := scanPayment(r.conn(ctx).QueryRow(ctx, `
		SELECT `+paymentCols+` FROM payments
		WHERE order_id = $1 AND status = $2
		ORDER BY created_at DESC LIMIT 1`, orderID, PaymentSubmitted))
	if err != nil {
		return nil, db.TranslateError(err, "submitted payment for order "+orderID.String())
	}
	return p, nil
}

func (r *paymentRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status PaymentStatus) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE payments SET status=$2, updated_at=NOW() WHERE id = $1`, id, status)
	if err != nil {
		return db.TranslateError(err, "payment "+id.String())
	}
	if tag.RowsAffected() == 0 {
		return db.TranslateError(pgx.ErrNoRows, "payment "+id.String())
	}
	return nil
}

func (r *paymentRepoPG) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Payment, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE order_id = $1 ORDER BY created_at DESC`, orderID)
	if err != nil {
		return nil, db.TranslateError(err, "payments")
	}
	defer rows.Close()
	var items []*Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, db.TranslateError(err, "payments")
		}
		items = append(items, p)
	}
	return items, db.TranslateError(rows.Err(), "payments")
}

func (r *paymentRepoPG) GetProfile(ctx context.Context, providerID uuid.UUID) (*PaymentProfile, error) {
	var p PaymentProfile
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT provider_id, qr_payload, qr_url, updated_at
		FROM provider_payment_profiles WHERE provider_id = $1`, providerID,
	).Scan(&p.ProviderID, &p.QRPayload, &p.QRURL, &p.UpdatedAt)
	if err != nil {
		return nil, db.TranslateError(err, "payment profile")
	}
	return &p, nil
}

func (r *paymentRepoPG) SaveProfile(ctx context.Context, p *PaymentProfile) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO provider_payment_profiles (provider_id, qr_payload, qr_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider_id) DO UPDATE
			SET qr_payload = EXCLUDED.qr_payload, qr_url = EXCLUDED.qr_url, updated_at = NOW()
		RETURNING updated_at`,
		p.ProviderID, p.QRPayload, p.QRURL,
	).Scan(&p.UpdatedAt)
	return db.TranslateError(err, "payment profile")
}
