package order

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderRepository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	// GetForUpdate row-locks the order until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Order, error)
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Order, int, error)
	Update(ctx context.Context, o *Order) error
	UpdateTotal(ctx context.Context, id uuid.UUID, total decimal.Decimal) error

	AddItem(ctx context.Context, it *Item) error
	GetItem(ctx context.Context, orderID, itemID uuid.UUID) (*Item, error)
	UpdateItem(ctx context.Context, it *Item) error
	ListItems(ctx context.Context, orderID uuid.UUID) ([]*Item, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	// LatestSubmitted returns the newest payment still in status submitted.
	LatestSubmitted(ctx context.Context, orderID uuid.UUID) (*Payment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status PaymentStatus) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Payment, error)

	GetProfile(ctx context.Context, providerID uuid.UUID) (*PaymentProfile, error)
	SaveProfile(ctx context.Context, p *PaymentProfile) error
}
