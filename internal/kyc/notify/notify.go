// Package notify delivers KYC decisions to applicants and downstream systems.
// Delivery is best-effort: each channel sits behind its own circuit breaker
// and a failing channel never blocks the others.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"securekyc/internal/kyc/metrics"
	"securekyc/internal/kyc/models"
	"securekyc/pkg/platform/circuit"
	"securekyc/pkg/requestcontext"
)

// ErrCircuitOpen is returned for a channel skipped because its breaker is open.
var ErrCircuitOpen = errors.New("notification channel circuit open")

// Channel is one delivery route (email, kafka).
type Channel interface {
	Name() string
	Send(ctx context.Context, notice models.DecisionNotice) error
}

type guardedChannel struct {
	Channel
	breaker *circuit.Breaker
}

// Multi fans a notice out to every configured channel concurrently.
type Multi struct {
	channels []guardedChannel
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Multi)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Multi) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Multi) {
		m.metrics = mt
	}
}

// NewMulti guards each channel with a breaker built from breakerOpts.
func NewMulti(channels []Channel, breakerOpts []circuit.Option, opts ...Option) *Multi {
	m := &Multi{logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	for _, ch := range channels {
		if ch == nil {
			continue
		}
		m.channels = append(m.channels, guardedChannel{
			Channel: ch,
			breaker: circuit.New(ch.Name(), breakerOpts...),
		})
	}
	return m
}

// Len is the number of active channels.
func (m *Multi) Len() int {
	return len(m.channels)
}

// Notify sends notice on every channel and waits for all of them. The
// returned error joins every channel failure.
func (m *Multi) Notify(ctx context.Context, notice models.DecisionNotice) error {
	errs := make([]error, len(m.channels))

	var g errgroup.Group
	for i, ch := range m.channels {
		g.Go(func() error {
			errs[i] = m.send(ctx, ch, notice)
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

func (m *Multi) send(ctx context.Context, ch guardedChannel, notice models.DecisionNotice) error {
	if !ch.breaker.Allow() {
		m.logger.DebugContext(ctx, "notification channel skipped, circuit open",
			"channel", ch.Name(),
			"submission_id", notice.SubmissionID,
		)
		return fmt.Errorf("%s: %w", ch.Name(), ErrCircuitOpen)
	}

	if err := ch.Send(ctx, notice); err != nil {
		m.metrics.IncrementNotifyFailure(ch.Name())
		if _, change := ch.breaker.RecordFailure(); change.Opened {
			m.logger.WarnContext(ctx, "notification circuit opened",
				"channel", ch.Name(),
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		return fmt.Errorf("%s: %w", ch.Name(), err)
	}

	if _, change := ch.breaker.RecordSuccess(); change.Closed {
		m.logger.InfoContext(ctx, "notification circuit closed", "channel", ch.Name())
	}
	return nil
}
