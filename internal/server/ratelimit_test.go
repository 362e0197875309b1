package server

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives a RateLimiter deterministically.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClockedLimiter(perMinute, perHour, perDay int, dataPerDay int64) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(perMinute, perHour, perDay, dataPerDay)
	rl.now = clock.now
	return rl, clock
}

func TestNewRateLimiter(t *testing.T) {
	rl := NewRateLimiterFromConfig(RateLimitConfig{
		Enabled:           true,
		RequestsPerMinute: 10,
		RequestsPerHour:   100,
		MaxRequestsPerDay: 1000,
		MaxDataPerDay:     1024 * 1024,
	})

	assert.NotNil(t, rl)
	assert.Equal(t, 10, rl.requestsPerMinute)
	assert.Equal(t, 100, rl.requestsPerHour)
	assert.Equal(t, 1000, rl.maxRequestsPerDay)
	assert.Equal(t, int64(1024*1024), rl.maxDataPerDay)
	assert.NotNil(t, rl.clients)
}

func TestRateLimiter_CheckRateLimit_NoLimits(t *testing.T) {
	rl := NewRateLimiter(0, 0, 0, 0)

	err := rl.CheckRateLimit("10.0.0.1", 100)
	assert.NoError(t, err)

	usage := rl.Usage("10.0.0.1")
	assert.Equal(t, 1, usage.RequestsToday)
	assert.Equal(t, int64(100), usage.DataToday)
}

func TestRateLimiter_CheckRateLimit_RequestsPerMinute(t *testing.T) {
	rl, clock := newClockedLimiter(2, 0, 0, 0)

	require.NoError(t, rl.CheckRateLimit("c1", 0))
	clock.advance(10 * time.Second)
	require.NoError(t, rl.CheckRateLimit("c1", 0))

	clock.advance(10 * time.Second)
	err := rl.CheckRateLimit("c1", 0)
	var rateLimitErr *RateLimitError
	require.True(t, errors.As(err, &rateLimitErr))
	assert.Equal(t, "minute", rateLimitErr.Type)
	assert.Equal(t, 2, rateLimitErr.Limit)
	assert.Equal(t, 40*time.Second, rateLimitErr.RetryAfter)
}

func TestRateLimiter_FixedWindowDoesNotSlide(t *testing.T) {
	rl, clock := newClockedLimiter(1, 0, 0, 0)

	require.NoError(t, rl.CheckRateLimit("c1", 0))
	// Rejected requests must not extend the window.
	for range 5 {
		clock.advance(15 * time.Second)
		if clock.t.Sub(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)) < time.Minute {
			assert.Error(t, rl.CheckRateLimit("c1", 0))
		}
	}
	assert.NoError(t, rl.CheckRateLimit("c1", 0))
}

func TestRateLimiter_CheckRateLimit_RequestsPerHour(t *testing.T) {
	rl, clock := newClockedLimiter(0, 3, 0, 0)

	for range 3 {
		require.NoError(t, rl.CheckRateLimit("c1", 0))
		clock.advance(5 * time.Minute)
	}

	err := rl.CheckRateLimit("c1", 0)
	var rateLimitErr *RateLimitError
	require.True(t, errors.As(err, &rateLimitErr))
	assert.Equal(t, "hour", rateLimitErr.Type)
	assert.Equal(t, 3, rateLimitErr.Limit)

	clock.advance(time.Hour)
	assert.NoError(t, rl.CheckRateLimit("c1", 0))
}

func TestRateLimiter_CheckRateLimit_MaxRequestsPerDay(t *testing.T) {
	rl, clock := newClockedLimiter(0, 0, 2, 0)

	require.NoError(t, rl.CheckRateLimit("c1", 0))
	require.NoError(t, rl.CheckRateLimit("c1", 0))

	err := rl.CheckRateLimit("c1", 0)
	var quotaErr *QuotaExceededError
	require.True(t, errors.As(err, &quotaErr))
	assert.Equal(t, "requests", quotaErr.Type)
	assert.Equal(t, int64(2), quotaErr.Limit)
	assert.Equal(t, int64(2), quotaErr.Used)
	assert.Equal(t, time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC), quotaErr.Resets)

	clock.advance(12 * time.Hour)
	assert.NoError(t, rl.CheckRateLimit("c1", 0))
}

func TestRateLimiter_DayResetAcrossMonths(t *testing.T) {
	rl := NewRateLimiter(0, 0, 1, 0)
	clock := &fakeClock{t: time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)}
	rl.now = clock.now

	require.NoError(t, rl.CheckRateLimit("c1", 0))
	// Same day-of-month one month later is a different day.
	clock.t = time.Date(2025, 2, 10, 8, 0, 0, 0, time.UTC)
	assert.NoError(t, rl.CheckRateLimit("c1", 0))
	// Same month and day one year later too.
	clock.t = time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)
	assert.NoError(t, rl.CheckRateLimit("c1", 0))
}

func TestRateLimiter_CheckRateLimit_MaxDataPerDay(t *testing.T) {
	rl := NewRateLimiter(0, 0, 0, 1000)

	require.NoError(t, rl.CheckRateLimit("c1", 500))
	require.NoError(t, rl.CheckRateLimit("c1", 400))

	err := rl.CheckRateLimit("c1", 200)
	var quotaErr *QuotaExceededError
	require.True(t, errors.As(err, &quotaErr))
	assert.Equal(t, "data", quotaErr.Type)
	assert.Equal(t, int64(1000), quotaErr.Limit)
	assert.Equal(t, int64(900), quotaErr.Used)
}

func TestRateLimiter_Usage(t *testing.T) {
	rl := NewRateLimiter(10, 100, 1000, 10000)

	usage := rl.Usage("c1")
	assert.Zero(t, usage.RequestsToday)

	require.NoError(t, rl.CheckRateLimit("c1", 500))
	require.NoError(t, rl.CheckRateLimit("c1", 300))

	usage = rl.Usage("c1")
	assert.Equal(t, 2, usage.RequestsLastMinute)
	assert.Equal(t, 2, usage.RequestsLastHour)
	assert.Equal(t, 2, usage.RequestsToday)
	assert.Equal(t, int64(800), usage.DataToday)
}

func TestRateLimiter_MultipleClients(t *testing.T) {
	rl := NewRateLimiter(2, 0, 0, 0)

	require.NoError(t, rl.CheckRateLimit("c1", 0))
	require.NoError(t, rl.CheckRateLimit("c1", 0))
	assert.Error(t, rl.CheckRateLimit("c1", 0))

	require.NoError(t, rl.CheckRateLimit("c2", 0))
	require.NoError(t, rl.CheckRateLimit("c2", 0))
	assert.Error(t, rl.CheckRateLimit("c2", 0))
}

func TestRateLimiter_Prune(t *testing.T) {
	rl, clock := newClockedLimiter(0, 0, 0, 0)

	require.NoError(t, rl.CheckRateLimit("old", 0))
	clock.advance(2 * time.Hour)
	require.NoError(t, rl.CheckRateLimit("fresh", 0))

	assert.Equal(t, 1, rl.Prune(time.Hour))
	assert.Zero(t, rl.Usage("old").RequestsToday)
	assert.Equal(t, 1, rl.Usage("fresh").RequestsToday)
}

func TestRateLimitError_Error(t *testing.T) {
	err := &RateLimitError{Type: "minute", Limit: 10, RetryAfter: time.Minute * 5}
	assert.Equal(t, "rate limit exceeded for minute (limit: 10, retry after: 5m0s)", err.Error())
}

func TestQuotaExceededError_Error(t *testing.T) {
	err := &QuotaExceededError{
		Type:   "data",
		Limit:  1000,
		Used:   950,
		Resets: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, "quota exceeded for data (used: 950, limit: 1000, resets: 2024-01-02T00:00:00Z)", err.Error())
}

func BenchmarkRateLimiter_CheckRateLimit(b *testing.B) {
	rl := NewRateLimiter(100, 1000, 10000, 1024*1024)

	b.ResetTimer()
	for range b.N {
		_ = rl.CheckRateLimit("benchuser", 100)
	}
}
