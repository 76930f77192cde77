package invoice

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medimart/medimart/internal/platform/db"
)

type directoryPG struct {
	pool   *pgxpool.Pool
	region string
}

// NewDirectoryPG reads parties from the directory tables. region is the
// default phone region, e.g. "MM".
func NewDirectoryPG(pool *pgxpool.Pool, region string) Directory {
	return &directoryPG{pool: pool, region: region}
}

func (r *directoryPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *directoryPG) Provider(ctx context.Context, id uuid.UUID) (*Party, error) {
	var p Party
	var address, phone, email, licenseNo *string
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, name, address, phone, email, license_no FROM providers WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &address, &phone, &email, &licenseNo)
	if err != nil {
		return nil, db.TranslateError(err, "provider "+id.String())
	}
	p.Address, p.Email, p.LicenseNo = deref(address), deref(email), deref(licenseNo)
	p.Phone = FormatPhone(deref(phone), r.region)
	return &p, nil
}

func (r *directoryPG) Patient(ctx context.Context, id uuid.UUID) (*Party, error) {
	var p Party
	var address, phone, email *string
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, name, address, phone, email FROM patients WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &address, &phone, &email)
	if err != nil {
		return nil, db.TranslateError(err, "patient "+id.String())
	}
	p.Address, p.Email = deref(address), deref(email)
	p.Phone = FormatPhone(deref(phone), r.region)
	return &p, nil
}

func (r *directoryPG) PrescriptionDoctor(ctx context.Context, prescriptionID uuid.UUID) (*Doctor, error) {
	var id *uuid.UUID
	var name, regNo, clinic *string
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT d.id, d.name, d.registration_no, d.clinic
		FROM prescriptions rx
		LEFT JOIN doctors d ON d.id = rx.doctor_id
		WHERE rx.id = $1`, prescriptionID,
	).Scan(&id, &name, &regNo, &clinic)
	if err != nil {
		return nil, db.TranslateError(err, "prescription "+prescriptionID.String())
	}
	if id == nil {
		return nil, nil
	}
	return &Doctor{ID: *id, Name: deref(name), RegistrationNo: deref(regNo), Clinic: deref(clinic)}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
