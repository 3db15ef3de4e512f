package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestLimiter returns a limiter on a frozen clock the test can advance.
func newTestLimiter(cfg *Config) (*Limiter, *time.Time) {
	l := NewLimiter(cfg)
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLimiter_BurstThenDeny(t *testing.T) {
	l, _ := newTestLimiter(&Config{Enabled: true, DefaultRate: 1, DefaultBurst: 3})
	defer l.Stop()

	for i := 0; i < 3; i++ {
		allowed, info := l.Allow("10.0.0.1", "/api/v1/counts", "GET")
		require.True(t, allowed, "request %d", i+1)
		assert.Equal(t, 3, info.Limit)
		assert.Equal(t, 2-i, info.Remaining)
	}

	allowed, info := l.Allow("10.0.0.1", "/api/v1/counts", "GET")
	assert.False(t, allowed)
	assert.Equal(t, 0, info.Remaining)
	assert.Equal(t, time.Second, info.RetryAfter)
}

func TestLimiter_Refill(t *testing.T) {
	l, now := newTestLimiter(&Config{Enabled: true, DefaultRate: 2, DefaultBurst: 1})
	defer l.Stop()

	allowed, _ := l.Allow("c", "/api/v1/counts", "GET")
	require.True(t, allowed)
	allowed, _ = l.Allow("c", "/api/v1/counts", "GET")
	require.False(t, allowed)

	*now = now.Add(500 * time.Millisecond)
	allowed, _ = l.Allow("c", "/api/v1/counts", "GET")
	assert.True(t, allowed)
}

func TestLimiter_DeniedRequestsDoNotConsume(t *testing.T) {
	l, now := newTestLimiter(&Config{Enabled: true, DefaultRate: 1, DefaultBurst: 1})
	defer l.Stop()

	allowed, _ := l.Allow("c", "/x", "GET")
	require.True(t, allowed)
	for i := 0; i < 5; i++ {
		allowed, _ = l.Allow("c", "/x", "GET")
		require.False(t, allowed)
	}

	*now = now.Add(time.Second)
	allowed, _ = l.Allow("c", "/x", "GET")
	assert.True(t, allowed)
}

func TestLimiter_ClientsAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(&Config{Enabled: true, DefaultRate: 1, DefaultBurst: 1})
	defer l.Stop()

	allowed, _ := l.Allow("a", "/x", "GET")
	require.True(t, allowed)
	allowed, _ = l.Allow("a", "/x", "GET")
	require.False(t, allowed)

	allowed, _ = l.Allow("b", "/x", "GET")
	assert.True(t, allowed)
}

func TestLimiter_Lists(t *testing.T) {
	l, _ := newTestLimiter(&Config{
		Enabled:      true,
		DefaultRate:  1,
		DefaultBurst: 1,
		Whitelist:    map[string]bool{"trusted": true},
		Blacklist:    map[string]bool{"blocked": true},
	})
	defer l.Stop()

	for i := 0; i < 10; i++ {
		allowed, _ := l.Allow("trusted", "/x", "GET")
		require.True(t, allowed)
	}

	allowed, _ := l.Allow("blocked", "/x", "GET")
	assert.False(t, allowed)
}

func TestLimiter_Disabled(t *testing.T) {
	l := NewLimiter(nil)
	defer l.Stop()

	for i := 0; i < 100; i++ {
		allowed, info := l.Allow("c", "/x", "GET")
		require.True(t, allowed)
		assert.Zero(t, info.Limit)
	}
	assert.Zero(t, l.Len())
}

func TestLimiter_EndpointConfigs(t *testing.T) {
	l, _ := newTestLimiter(&Config{
		Enabled:         true,
		DefaultRate:     100,
		DefaultBurst:    100,
		EndpointConfigs: []EndpointConfig{{Path: "/api/v1/correlation", Method: "GET", Rate: 1, Burst: 1}},
	})
	defer l.Stop()

	allowed, info := l.Allow("c", "/api/v1/correlation", "GET")
	require.True(t, allowed)
	assert.Equal(t, 1, info.Limit)
	allowed, _ = l.Allow("c", "/api/v1/correlation", "GET")
	assert.False(t, allowed)

	allowed, _ = l.Allow("c", "/api/v1/counts", "GET")
	assert.True(t, allowed)

	for i := 0; i < 50; i++ {
		allowed, _ = l.Allow("c", "/health", "GET")
		require.True(t, allowed)
	}
}

func TestLimiter_CleanupIdleBuckets(t *testing.T) {
	l, now := newTestLimiter(&Config{Enabled: true, DefaultRate: 1, DefaultBurst: 1, IdleTimeout: time.Minute})
	defer l.Stop()

	l.Allow("old", "/x", "GET")
	*now = now.Add(2 * time.Minute)
	l.Allow("fresh", "/x", "GET")
	require.Equal(t, 2, l.Len())

	l.cleanupBuckets()
	assert.Equal(t, 1, l.Len())
}

func TestLimiter_Concurrent(t *testing.T) {
	l, _ := newTestLimiter(&Config{Enabled: true, DefaultRate: 1, DefaultBurst: 20})
	defer l.Stop()

	var mu sync.Mutex
	allowedCount := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow("c", "/x", "GET"); ok {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, allowedCount)
}

func TestMatchEndpoint(t *testing.T) {
	configs := []EndpointConfig{
		{Path: "/api/v1/recent-postings", Method: "GET", Rate: 1},
		{Path: "/api/v1/distribution/", Method: "GET", Rate: 2},
		{Path: "/api/v1/", Method: "GET", Rate: 3},
		{Path: "/api/v1/counts", Method: "GET", Rate: 4},
	}

	tests := []struct {
		path     string
		method   string
		wantRate float64
		wantNil  bool
	}{
		{path: "/api/v1/recent-postings", method: "GET", wantRate: 1},
		{path: "/api/v1/distribution/sector", method: "GET", wantRate: 2},
		{path: "/health", method: "GET", wantRate: 0},
		{path: "/metrics", method: "GET", wantRate: 0},
		{path: "/api/v1/recent-postings", method: "POST", wantNil: true},
		{path: "/api/v1/counts", method: "GET", wantRate: 4},
		{path: "/api/v1/averages", method: "GET", wantRate: 3},
		{path: "/metrics", method: "POST", wantNil: true},
		{path: "/other", method: "GET", wantNil: true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s %s", tt.method, tt.path), func(t *testing.T) {
			got := MatchEndpoint(tt.path, tt.method, configs)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantRate, got.Rate)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_WHITELIST", "127.0.0.1, 10.0.0.2")
	t.Setenv("RATE_LIMIT_CLEANUP_INTERVAL", "30s")

	cfg := LoadConfig(8, 16)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 8.0, cfg.DefaultRate)
	assert.Equal(t, 16, cfg.DefaultBurst)
	assert.Equal(t, 30*time.Second, cfg.CleanupInterval)
	assert.True(t, cfg.Whitelist["10.0.0.2"])
	require.Len(t, cfg.EndpointConfigs, 2)
	assert.Equal(t, 2.0, cfg.EndpointConfigs[0].Rate)
	assert.Equal(t, 4, cfg.EndpointConfigs[0].Burst)

	t.Setenv("RATE_LIMIT_ENABLED", "false")
	assert.False(t, LoadConfig(8, 16).Enabled)
}

func TestLoadConfig_ZeroRateDisables(t *testing.T) {
	assert.False(t, LoadConfig(0, 0).Enabled)
}
