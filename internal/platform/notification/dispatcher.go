package notification

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Dispatcher hands each message to the underlying Notifier on its own
// goroutine and returns immediately. The send is detached from the caller's
// cancellation and bounded by timeout.
type Dispatcher struct {
	next    Notifier
	timeout time.Duration
	logger  zerolog.Logger
	wg      sync.WaitGroup
}

func NewDispatcher(next Notifier, timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{next: next, timeout: timeout, logger: logger}
}

// Notify never returns an error; failures are logged.
func (d *Dispatcher) Notify(ctx context.Context, msg Message) error {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error().Interface("panic", r).Str("user_id", msg.UserID.String()).Msg("notification sender panicked")
			}
		}()
		if err := d.next.Notify(sendCtx, msg); err != nil {
			d.logger.Warn().Err(err).
				Str("user_id", msg.UserID.String()).
				Str("title", msg.Title).
				Msg("notification delivery failed")
		}
	}()
	return nil
}

// Wait blocks until in-flight sends finish. Used on shutdown.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// LogNotifier writes messages to the logger. It is the development default.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, msg Message) error {
	l.logger.Info().
		Str("user_id", msg.UserID.String()).
		Str("title", msg.Title).
		Str("body", msg.Body).
		Interface("metadata", msg.Metadata).
		Msg("notification")
	return nil
}
