package invoice

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// InsertIfAbsent stores inv unless the order already has an invoice and
	// reports whether a row was written.
	InsertIfAbsent(ctx context.Context, inv *Invoice) (bool, error)
	GetByOrder(ctx context.Context, orderID uuid.UUID) (*Invoice, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	// MarkRendered sets the download URL only if none is set yet and reports
	// whether it did.
	MarkRendered(ctx context.Context, id uuid.UUID, url string) (bool, error)
}
