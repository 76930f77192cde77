package order

import (
	"github.com/medimart/medimart/internal/platform/apperr"
)

// Event is an input to the order state machine.
type Event string

const (
	EventAssignProvider Event = "assign_provider"
	// Review outcomes. FinalizeReview picks one from the item decisions.
	EventReviewApproved Event = "review_approved"
	EventReviewPartial  Event = "review_partial"
	EventReviewRejected Event = "review_rejected"
	EventRequestPayment Event = "request_payment"
	EventSubmitProof    Event = "submit_proof"
	EventDeclinePayment Event = "decline_payment"
	EventVerifyPayment  Event = "verify_payment"
	EventCancel         Event = "cancel"
)

func in(s Status, set ...Status) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

// reviewable lists the states from which a review may be (re)finalized.
var reviewable = []Status{StatusSentToProvider, StatusApproved, StatusPartiallyApproved, StatusPaymentDeclined}

// Transition returns the state reached by applying ev in from. An illegal
// pair yields a conflict error and no state.
func Transition(from Status, ev Event) (Status, error) {
	if !from.Valid() {
		return "", apperr.Validation("unknown order status %q", from)
	}

	var (
		to    Status
		legal bool
	)
	switch ev {
	case EventAssignProvider:
		to, legal = StatusSentToProvider, from == StatusPending
	case EventReviewApproved:
		to, legal = StatusApproved, in(from, reviewable...)
	case EventReviewPartial:
		to, legal = StatusPartiallyApproved, in(from, reviewable...)
	case EventReviewRejected:
		to, legal = StatusPaymentDeclined, in(from, reviewable...)
	case EventRequestPayment:
		// A pending request may be replaced with a new QR.
		to, legal = StatusPaymentPending, in(from, StatusApproved, StatusPartiallyApproved, StatusPaymentDeclined, StatusPaymentPending)
	case EventSubmitProof:
		to, legal = StatusPaymentSubmitted, from == StatusPaymentPending
	case EventDeclinePayment:
		to, legal = StatusPaymentDeclined, in(from, StatusPaymentPending, StatusPaymentSubmitted)
	case EventVerifyPayment:
		to, legal = StatusCompleted, from == StatusPaymentSubmitted
	case EventCancel:
		to, legal = StatusCancelled, !from.Terminal()
	default:
		return "", apperr.Validation("unknown order event %q", ev)
	}

	if !legal {
		return "", apperr.Conflict("cannot %s: order is %s", ev, from)
	}
	return to, nil
}

// ReviewEvent derives the review outcome from item decisions. Every item must
// be decided; an item still pending is a conflict.
func ReviewEvent(items []*Item) (Event, error) {
	if len(items) == 0 {
		return "", apperr.Conflict("order has no items to review")
	}
	var approved, rejected int
	for _, it := range items {
		switch it.Status {
		case ItemApproved:
			if it.Price == nil {
				return "", apperr.Conflict("item %q is approved but has no price", it.Name)
			}
			approved++
		case ItemRejected:
			rejected++
		default:
			return "", apperr.Conflict("item %q has not been reviewed", it.Name)
		}
	}
	switch {
	case rejected == 0:
		return EventReviewApproved, nil
	case approved == 0:
		return EventReviewRejected, nil
	default:
		return EventReviewPartial, nil
	}
}

// ItemsMutable reports whether items may still be added or changed.
func ItemsMutable(s Status) bool { return !s.Terminal() }
