package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"securekyc/internal/ratelimit/models"
	dErrors "securekyc/pkg/domain-errors"
	"securekyc/pkg/platform/httputil"
	"securekyc/pkg/requestcontext"
)

// BucketStore is a sliding-window counter keyed by caller.
type BucketStore interface {
	AllowN(ctx context.Context, key string, cost, limit int, window time.Duration) (*models.RateLimitResult, error)
}

type Metrics interface {
	IncrementRateLimited(class string)
}

type Middleware struct {
	store    BucketStore
	policies map[models.Class]models.Policy
	logger   *slog.Logger
	metrics  Metrics
	disabled bool
	now      func() time.Time
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

// WithPolicy sets the allowance for class. Classes without a policy, or with
// a non-positive limit or window, are not limited.
func WithPolicy(class models.Class, limit int, window time.Duration) Option {
	return func(m *Middleware) {
		if limit <= 0 || window <= 0 {
			delete(m.policies, class)
			return
		}
		m.policies[class] = models.Policy{Limit: limit, Window: window}
	}
}

func WithMetrics(metrics Metrics) Option {
	return func(m *Middleware) {
		m.metrics = metrics
	}
}

func New(store BucketStore, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		store:    store,
		policies: make(map[models.Class]models.Policy),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit limits requests per client IP. ClientMetadata must run first.
func (m *Middleware) RateLimit(class models.Class) func(http.Handler) http.Handler {
	return m.limit(class, func(ctx context.Context) string {
		return "ip:" + string(class) + ":" + requestcontext.ClientIP(ctx)
	})
}

// RateLimitAuthenticated limits requests per authenticated user, falling
// back to the client IP when no user is on the context.
func (m *Middleware) RateLimitAuthenticated(class models.Class) func(http.Handler) http.Handler {
	return m.limit(class, func(ctx context.Context) string {
		if userID := requestcontext.UserID(ctx); !userID.IsNil() {
			return "user:" + string(class) + ":" + userID.String()
		}
		return "ip:" + string(class) + ":" + requestcontext.ClientIP(ctx)
	})
}

func (m *Middleware) limit(class models.Class, keyFor func(ctx context.Context) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy, ok := m.policies[class]
			if m.disabled || !ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			result, err := m.store.AllowN(ctx, keyFor(ctx), 1, policy.Limit, policy.Window)
			if err != nil {
				m.logger.ErrorContext(ctx, "failed to check rate limit",
					"request_id", requestcontext.RequestID(ctx),
					"class", class,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			addRateLimitHeaders(w, result)

			if !result.Allowed {
				if m.metrics != nil {
					m.metrics.IncrementRateLimited(string(class))
				}
				m.logger.WarnContext(ctx, "rate limit exceeded",
					"request_id", requestcontext.RequestID(ctx),
					"class", class,
				)
				m.writeRateLimitExceeded(w, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func (m *Middleware) writeRateLimitExceeded(w http.ResponseWriter, result *models.RateLimitResult) {
	retryAfter := result.RetryAfter(m.now())
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	httputil.WriteJSON(w, dErrors.HTTPStatus(dErrors.CodeRateLimited), &models.RateLimitExceededResponse{
		Error:       string(dErrors.CodeRateLimited),
		Description: "Too many requests. Please try again later.",
		RetryAfter:  retryAfter,
	})
}
