package order

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a fulfillment order.
type Status string

const (
	StatusPending           Status = "pending"
	StatusSentToProvider    Status = "sent_to_provider"
	StatusApproved          Status = "approved"
	StatusPartiallyApproved Status = "partially_approved"
	StatusPaymentDeclined   Status = "payment_declined"
	StatusPaymentPending    Status = "payment_pending"
	StatusPaymentSubmitted  Status = "payment_submitted"
	StatusCompleted         Status = "completed"
	StatusCancelled         Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending, StatusSentToProvider, StatusApproved, StatusPartiallyApproved,
	StatusPaymentDeclined, StatusPaymentPending, StatusPaymentSubmitted,
	StatusCompleted, StatusCancelled,
}

func (s Status) Valid() bool {
	for _, v := range allStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Type string

const (
	TypeMedicine Type = "medicine"
	TypeLabTest  Type = "lab_test"
)

func (t Type) Valid() bool { return t == TypeMedicine || t == TypeLabTest }

type ItemStatus string

const (
	ItemPending  ItemStatus = "pending"
	ItemApproved ItemStatus = "approved"
	ItemRejected ItemStatus = "rejected"
)

func (s ItemStatus) Valid() bool {
	return s == ItemPending || s == ItemApproved || s == ItemRejected
}

type PaymentStatus string

const (
	PaymentSubmitted PaymentStatus = "submitted"
	PaymentAccepted  PaymentStatus = "accepted"
	PaymentRejected  PaymentStatus = "rejected"
)

// Order maps to the orders table.
type Order struct {
	ID                   uuid.UUID       `json:"id"`
	PrescriptionID       *uuid.UUID      `json:"prescription_id,omitempty"`
	PatientID            uuid.UUID       `json:"patient_id"`
	ProviderID           *uuid.UUID      `json:"provider_id,omitempty"`
	OrderType            Type            `json:"order_type"`
	Status               Status          `json:"status"`
	TotalAmount          decimal.Decimal `json:"total_amount"`
	PaymentQRURL         *string         `json:"payment_qr_url,omitempty"`
	PaymentQRPayload     *string         `json:"payment_qr_payload,omitempty"`
	PaymentDeclineReason *string         `json:"payment_decline_reason,omitempty"`
	PatientNotes         string          `json:"patient_notes"`
	ProviderNotes        string          `json:"provider_notes"`
	CancelReason         *string         `json:"cancel_reason,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	Items                []*Item         `json:"items,omitempty"`
}

// ShortID is the first eight hex digits of the order id, upper-cased. It is
// shown to users and embedded in invoice numbers.
func (o *Order) ShortID() string { return ShortID(o.ID) }

func ShortID(id uuid.UUID) string {
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
}

// IsProvider reports whether userID is the provider assigned to the order.
func (o *Order) IsProvider(userID uuid.UUID) bool {
	return o.ProviderID != nil && *o.ProviderID == userID && userID != uuid.Nil
}

// Item maps to the order_items table. Price stays nil until the provider
// prices the item.
type Item struct {
	ID        uuid.UUID        `json:"id"`
	OrderID   uuid.UUID        `json:"order_id"`
	Name      string           `json:"name"`
	Quantity  int              `json:"quantity"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Status    ItemStatus       `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// LineTotal is price × quantity, or zero when unpriced.
func (it *Item) LineTotal() decimal.Decimal {
	if it.Price == nil {
		return decimal.Zero
	}
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// Payment maps to the payments table. Only Status changes after insert.
type Payment struct {
	ID        uuid.UUID       `json:"id"`
	OrderID   uuid.UUID       `json:"order_id"`
	PatientID uuid.UUID       `json:"patient_id"`
	Amount    decimal.Decimal `json:"amount"`
	ProofURL  string          `json:"proof_url"`
	ProofPath string          `json:"-"`
	Status    PaymentStatus   `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// PaymentProfile is a provider's saved payment QR.
type PaymentProfile struct {
	ProviderID uuid.UUID `json:"provider_id"`
	QRPayload  string    `json:"qr_payload"`
	QRURL      *string   `json:"qr_url,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID   uuid.UUID
	Admin    bool
	Provider bool
}

// ListFilter narrows order listings. Zero values match everything.
type ListFilter struct {
	PatientID  *uuid.UUID
	ProviderID *uuid.UUID
	Status     Status
}
