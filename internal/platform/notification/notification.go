// Package notification delivers short user-facing messages about order
// progress. Delivery is fire-and-forget: a failed send is logged and never
// fails the operation that triggered it.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Message is a single notification addressed to one user.
type Message struct {
	UserID   uuid.UUID         `json:"user_id"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Notifier sends a message to its recipient.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Template IDs used by the order flow.
const (
	TplOrderAssigned    = "order-assigned"
	TplOrderReviewed    = "order-reviewed"
	TplOrderCancelled   = "order-cancelled"
	TplPaymentRequested = "payment-requested"
	TplProofSubmitted   = "payment-proof-submitted"
	TplPaymentDeclined  = "payment-declined"
	TplPaymentVerified  = "payment-verified"
)

// Template is a title/body pair with {{key}} placeholders.
type Template struct {
	ID    string
	Title string
	Body  string
}

// TemplateEngine renders registered templates.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:    TplOrderAssigned,
			Title: "New order received",
			Body:  "Order {{order}} has been sent to you for review.",
		},
		{
			ID:    TplOrderReviewed,
			Title: "Your order has been reviewed",
			Body:  "Order {{order}} is now {{status}}. Total: {{amount}}.",
		},
		{
			ID:    TplOrderCancelled,
			Title: "Order cancelled",
			Body:  "Order {{order}} was cancelled.",
		},
		{
			ID:    TplPaymentRequested,
			Title: "Payment requested",
			Body:  "Please pay {{amount}} for order {{order}} using the QR code provided.",
		},
		{
			ID:    TplProofSubmitted,
			Title: "Payment proof submitted",
			Body:  "The patient uploaded a payment proof for order {{order}}.",
		},
		{
			ID:    TplPaymentDeclined,
			Title: "Payment declined",
			Body:  "Your payment for order {{order}} was declined: {{reason}}",
		},
		{
			ID:    TplPaymentVerified,
			Title: "Payment verified",
			Body:  "Your payment for order {{order}} was verified. Your invoice is available.",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render performs {{key}} replacement. Keys absent from data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (title, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	title = t.Title
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		title = strings.ReplaceAll(title, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return title, body, nil
}

var defaultEngine = NewTemplateEngine()

// Build renders a built-in template into a Message. data doubles as the
// message metadata.
func Build(templateID string, userID uuid.UUID, data map[string]string) (Message, error) {
	title, body, err := defaultEngine.Render(templateID, data)
	if err != nil {
		return Message{}, err
	}
	meta := make(map[string]string, len(data)+1)
	for k, v := range data {
		meta[k] = v
	}
	meta["template"] = templateID
	return Message{UserID: userID, Title: title, Body: body, Metadata: meta}, nil
}

// MemoryNotifier records messages. It is used by tests and delivers
// synchronously.
type MemoryNotifier struct {
	mu         sync.Mutex
	calls      []Message
	ShouldFail bool
	FailError  string
}

func (m *MemoryNotifier) Notify(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, msg)
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded messages.
func (m *MemoryNotifier) Calls() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.calls))
	copy(out, m.calls)
	return out
}

// Reset forgets recorded messages.
func (m *MemoryNotifier) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}
