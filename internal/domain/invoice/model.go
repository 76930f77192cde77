package invoice

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusGenerated    Status = "generated"
	StatusPDFGenerated Status = "pdf_generated"
)

// Invoice maps to the invoices table. InvoiceNumber never changes once
// assigned and DownloadURL is written at most once.
type Invoice struct {
	ID            uuid.UUID `json:"id"`
	OrderID       uuid.UUID `json:"order_id"`
	InvoiceNumber string    `json:"invoice_number"`
	Snapshot      Snapshot  `json:"snapshot"`
	DownloadURL   *string   `json:"download_url,omitempty"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Party is a seller or buyer as printed on the invoice.
type Party struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	LicenseNo string    `json:"license_no,omitempty"`
}

type Doctor struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	RegistrationNo string    `json:"registration_no,omitempty"`
	Clinic         string    `json:"clinic,omitempty"`
}

type Line struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Snapshot is a point-in-time copy of everything printed on the invoice.
// Later changes to the order or the parties do not affect it.
type Snapshot struct {
	OrderID      uuid.UUID       `json:"order_id"`
	OrderShortID string          `json:"order_short_id"`
	OrderType    string          `json:"order_type"`
	Seller       Party           `json:"seller"`
	Buyer        Party           `json:"buyer"`
	Doctor       *Doctor         `json:"doctor,omitempty"`
	Items        []Line          `json:"items"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Tax          decimal.Decimal `json:"tax"`
	GrandTotal   decimal.Decimal `json:"grand_total"`
	Currency     string          `json:"currency"`
	IssuedAt     time.Time       `json:"issued_at"`
}
