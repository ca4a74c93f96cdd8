package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securekyc/internal/ratelimit/models"
	"securekyc/internal/ratelimit/store/bucket"
	id "securekyc/pkg/domain"
	"securekyc/pkg/platform/middleware/metadata"
	"securekyc/pkg/requestcontext"
	"securekyc/pkg/testutil"
)

type failingStore struct{}

func (failingStore) AllowN(context.Context, string, int, int, time.Duration) (*models.RateLimitResult, error) {
	return nil, errors.New("redis down")
}

type countingMetrics struct{ refused map[string]int }

func (c *countingMetrics) IncrementRateLimited(class string) { c.refused[class]++ }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func requestFrom(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = ip + ":5555"
	return req
}

func TestRateLimit_ByClientIP(t *testing.T) {
	metrics := &countingMetrics{refused: map[string]int{}}
	m := New(bucket.NewInMemoryBucketStore(), discard(),
		WithPolicy(models.ClassAuth, 2, time.Minute),
		WithMetrics(metrics),
	)
	h := metadata.ClientMetadata(m.RateLimit(models.ClassAuth)(okHandler))

	for range 2 {
		rr := testutil.DoRequest(h, requestFrom("10.0.0.1"))
		require.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "2", rr.Header().Get("X-RateLimit-Limit"))
	}

	rr := testutil.DoRequest(h, requestFrom("10.0.0.1"))
	testutil.AssertStatusAndError(t, rr, http.StatusTooManyRequests, "rate_limit_exceeded")
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	resp := testutil.UnmarshalResponse[models.RateLimitExceededResponse](t, rr)
	assert.Positive(t, resp.RetryAfter)
	assert.Equal(t, 1, metrics.refused["auth"])

	rr = testutil.DoRequest(h, requestFrom("10.0.0.2"))
	assert.Equal(t, http.StatusNoContent, rr.Code, "other clients keep their own bucket")
}

func TestRateLimitAuthenticated_ByUser(t *testing.T) {
	m := New(bucket.NewInMemoryBucketStore(), discard(), WithPolicy(models.ClassKYC, 1, time.Minute))
	h := m.RateLimitAuthenticated(models.ClassKYC)(okHandler)

	alice, bob := id.NewUserID(), id.NewUserID()
	asUser := func(userID id.UserID) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/kyc/submit", nil)
		ctx := requestcontext.WithClientMetadata(req.Context(), "10.0.0.1", "", "")
		return req.WithContext(requestcontext.WithUserID(ctx, userID))
	}

	assert.Equal(t, http.StatusNoContent, testutil.DoRequest(h, asUser(alice)).Code)
	assert.Equal(t, http.StatusTooManyRequests, testutil.DoRequest(h, asUser(alice)).Code)
	assert.Equal(t, http.StatusNoContent, testutil.DoRequest(h, asUser(bob)).Code,
		"users behind the same IP are limited separately")
}

func TestRateLimit_PassThrough(t *testing.T) {
	tests := []struct {
		name string
		m    *Middleware
	}{
		{"disabled", New(bucket.NewInMemoryBucketStore(), discard(),
			WithPolicy(models.ClassAuth, 1, time.Minute), WithDisabled(true))},
		{"no policy for class", New(bucket.NewInMemoryBucketStore(), discard())},
		{"zero limit means unlimited", New(bucket.NewInMemoryBucketStore(), discard(),
			WithPolicy(models.ClassAuth, 0, time.Minute))},
		{"store failure fails open", New(failingStore{}, discard(),
			WithPolicy(models.ClassAuth, 1, time.Minute))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := metadata.ClientMetadata(tt.m.RateLimit(models.ClassAuth)(okHandler))
			for range 3 {
				assert.Equal(t, http.StatusNoContent, testutil.DoRequest(h, requestFrom("10.0.0.1")).Code)
			}
		})
	}
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		reset time.Time
		want  int
	}{
		{now.Add(30 * time.Second), 30},
		{now.Add(1500 * time.Millisecond), 2},
		{now, 1},
		{now.Add(-time.Second), 1},
	}
	for _, tt := range tests {
		r := &models.RateLimitResult{ResetAt: tt.reset}
		assert.Equal(t, tt.want, r.RetryAfter(now))
	}
}
