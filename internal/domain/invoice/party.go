package invoice

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/ttacon/libphonenumber"
)

// Directory reads parties from the profile tables.
type Directory interface {
	Provider(ctx context.Context, id uuid.UUID) (*Party, error)
	Patient(ctx context.Context, id uuid.UUID) (*Party, error)
	// PrescriptionDoctor returns nil when the prescription names no doctor.
	PrescriptionDoctor(ctx context.Context, prescriptionID uuid.UUID) (*Doctor, error)
}

// FormatPhone renders raw in E.164 using region for national numbers.
// Numbers that do not parse as valid are returned trimmed but unchanged.
func FormatPhone(raw, region string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	num, err := libphonenumber.Parse(raw, region)
	if err != nil || !libphonenumber.IsValidNumber(num) {
		return raw
	}
	return libphonenumber.Format(num, libphonenumber.E164)
}
