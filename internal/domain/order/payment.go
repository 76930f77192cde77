package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/medimart/medimart/internal/platform/apperr"
	"github.com/medimart/medimart/internal/platform/notification"
)

type RequestPaymentRequest struct {
	QRPayload  string  `json:"qr_payload" validate:"max=4096"`
	UseSavedQR bool    `json:"use_saved_qr"`
	SaveQR     bool    `json:"save_qr"`
	QRImage    *Upload `json:"-"`
}

func (r *RequestPaymentRequest) validate() error {
	r.QRPayload = strings.TrimSpace(r.QRPayload)
	if err := apperr.ValidateStruct(r); err != nil {
		return err
	}
	if r.QRPayload == "" && !r.UseSavedQR {
		return apperr.Validation("qr_payload is required unless use_saved_qr is set")
	}
	if r.SaveQR && r.QRPayload == "" {
		return apperr.Validation("save_qr needs an explicit qr_payload")
	}
	if r.QRImage != nil {
		if len(r.QRImage.Data) == 0 {
			return apperr.Validation("qr_image is empty")
		}
		if _, ok := qrImageExt[r.QRImage.ContentType]; !ok {
			return apperr.Validation("qr_image must be PNG or JPEG, got %q", r.QRImage.ContentType)
		}
	}
	return nil
}

// reusesQR reports whether a request against an order already awaiting
// payment would hand out the same QR again.
func (r *RequestPaymentRequest) reusesQR(o *Order) bool {
	if o.Status != StatusPaymentPending || o.PaymentQRPayload == nil {
		return false
	}
	if r.QRPayload == "" {
		return r.UseSavedQR
	}
	return r.QRPayload == *o.PaymentQRPayload
}

// RequestPayment issues a payment QR to the patient. Repeating the request
// while payment is pending with the same QR returns the order unchanged.
func (s *Service) RequestPayment(ctx context.Context, a Actor, id uuid.UUID, req RequestPaymentRequest) (*Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	release, err := s.locks.Acquire(ctx, orderKey(id))
	if err != nil {
		return nil, err
	}
	defer release()

	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireProvider(a, o); err != nil {
		return nil, err
	}
	if req.reusesQR(o) {
		if o.Items, err = s.orders.ListItems(ctx, id); err != nil {
			return nil, err
		}
		return o, nil
	}
	if err := checkPayable(o); err != nil {
		return nil, err
	}

	payload := req.QRPayload
	var qrURL *string
	if payload == "" {
		prof, err := s.payments.GetProfile(ctx, *o.ProviderID)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Validation("no saved payment QR; supply qr_payload")
		}
		if err != nil {
			return nil, err
		}
		payload, qrURL = prof.QRPayload, prof.QRURL
	}

	var imgPath string
	if req.QRImage != nil {
		imgPath = fmt.Sprintf("payment-qr/%s/%s%s", *o.ProviderID, uuid.New(), qrImageExt[req.QRImage.ContentType])
		url, err := s.blobs.Put(ctx, imgPath, req.QRImage.Data, req.QRImage.ContentType)
		if err != nil {
			return nil, blobError(err, "payment QR image")
		}
		qrURL = &url
	}

	var out *Order
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		cur, err := s.orders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := checkPayable(cur); err != nil {
			return err
		}
		cur.Status = StatusPaymentPending
		cur.PaymentQRPayload = &payload
		cur.PaymentQRURL = qrURL
		cur.PaymentDeclineReason = nil
		if err := s.orders.Update(ctx, cur); err != nil {
			return err
		}
		if req.SaveQR {
			if err := s.payments.SaveProfile(ctx, &PaymentProfile{ProviderID: *cur.ProviderID, QRPayload: payload, QRURL: qrURL}); err != nil {
				return err
			}
		}
		out = cur
		return nil
	})
	if err != nil {
		if imgPath != "" {
			s.discardBlob(ctx, imgPath)
		}
		return nil, err
	}

	s.notify(ctx, notification.TplPaymentRequested, out.PatientID, out, nil)
	return out, nil
}

func checkPayable(o *Order) error {
	if _, err := Transition(o.Status, EventRequestPayment); err != nil {
		return err
	}
	if !o.TotalAmount.IsPositive() {
		return apperr.Conflict("cannot request payment: order %s has no payable total", o.ShortID())
	}
	return nil
}

// UploadProof stores the patient's payment proof and records a Payment for
// the current total. The stored blob is removed if the record cannot be
// written.
func (s *Service) UploadProof(ctx context.Context, a Actor, id uuid.UUID, proof Upload) (*Payment, error) {
	if len(proof.Data) == 0 {
		return nil, apperr.Validation("proof image is required")
	}

	release, err := s.locks.Acquire(ctx, orderKey(id))
	if err != nil {
		return nil, err
	}
	defer release()

	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.UserID == uuid.Nil || o.PatientID != a.UserID {
		return nil, apperr.Forbidden("only the order's patient may upload a payment proof")
	}
	if _, err := Transition(o.Status, EventSubmitProof); err != nil {
		return nil, err
	}

	data, err := normalizeProof(proof.Data)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("payment-proofs/%s/%s.jpg", o.ID, uuid.New())
	url, err := s.blobs.Put(ctx, path, data, "image/jpeg")
	if err != nil {
		return nil, blobError(err, "payment proof")
	}

	var (
		pay *Payment
		cur *Order
	)
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if cur, err = s.orders.GetForUpdate(ctx, id); err != nil {
			return err
		}
		to, err := Transition(cur.Status, EventSubmitProof)
		if err != nil {
			return err
		}
		pay = &Payment{
			OrderID:   cur.ID,
			PatientID: cur.PatientID,
			Amount:    cur.TotalAmount,
			ProofURL:  url,
			ProofPath: path,
			Status:    PaymentSubmitted,
		}
		if err := s.payments.Create(ctx, pay); err != nil {
			return err
		}
		cur.Status = to
		return s.orders.Update(ctx, cur)
	})
	if err != nil {
		s.discardBlob(ctx, path)
		return nil, err
	}

	if cur.ProviderID != nil {
		s.notify(ctx, notification.TplProofSubmitted, *cur.ProviderID, cur, nil)
	}
	return pay, nil
}

// DeclinePayment rejects the outstanding QR or proof. A new payment request
// moves the order back to payment_pending.
func (s *Service) DeclinePayment(ctx context.Context, a Actor, id uuid.UUID, reason string) (*Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("reason is required")
	}

	var out *Order
	err := s.withOrder(ctx, id, func(ctx context.Context, o *Order) error {
		if err := requireProvider(a, o); err != nil {
			return err
		}
		to, err := Transition(o.Status, EventDeclinePayment)
		if err != nil {
			return err
		}
		pay, err := s.payments.LatestSubmitted(ctx, id)
		switch {
		case err == nil:
			if err := s.payments.UpdateStatus(ctx, pay.ID, PaymentRejected); err != nil {
				return err
			}
		case !errors.Is(err, apperr.ErrNotFound):
			return err
		}
		o.Status = to
		o.PaymentQRPayload = nil
		o.PaymentQRURL = nil
		o.PaymentDeclineReason = &reason
		if err := s.orders.Update(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, notification.TplPaymentDeclined, out.PatientID, out, map[string]string{"reason": reason})
	return out, nil
}

// VerifyPayment accepts the submitted proof and completes the order.
func (s *Service) VerifyPayment(ctx context.Context, a Actor, id uuid.UUID) (*Order, error) {
	var out *Order
	err := s.withOrder(ctx, id, func(ctx context.Context, o *Order) error {
		if err := requireProvider(a, o); err != nil {
			return err
		}
		to, err := Transition(o.Status, EventVerifyPayment)
		if err != nil {
			return err
		}
		pay, err := s.payments.LatestSubmitted(ctx, id)
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.Conflict("order %s has no submitted payment", o.ShortID())
		}
		if err != nil {
			return err
		}
		if err := s.payments.UpdateStatus(ctx, pay.ID, PaymentAccepted); err != nil {
			return err
		}
		o.Status = to
		if err := s.orders.Update(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, notification.TplPaymentVerified, out.PatientID, out, nil)
	return out, nil
}

func (s *Service) ListPayments(ctx context.Context, a Actor, id uuid.UUID) ([]*Payment, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(a, o) {
		return nil, apperr.Forbidden("order %s belongs to another party", o.ShortID())
	}
	return s.payments.ListByOrder(ctx, id)
}
