package exchange

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	rate  float64
	err   error
	calls int32
}

func (s *countingSource) GetRate(context.Context, string, string) (float64, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.rate, s.err
}

func TestWiseClientGetRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rates", r.URL.Path)
		assert.Equal(t, "USD", r.URL.Query().Get("source"))
		assert.Equal(t, "GBP", r.URL.Query().Get("target"))
		assert.Equal(t, "Basic secret", r.Header.Get("Authorization"))
		w.Write([]byte(`[{"rate":0.7912345678,"source":"USD","target":"GBP","time":"2025-01-01T00:00:00+0000"}]`))
	}))
	defer srv.Close()

	c := NewWiseClient(Config{BaseURL: srv.URL + "/v1/", Token: "secret"})
	c.SetHTTPClient(srv.Client())

	rate, err := c.GetRate(context.Background(), "USD", "GBP")
	require.NoError(t, err)
	assert.Equal(t, 0.7912345678, rate)
}

func TestWiseClientFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"non-200", http.StatusUnauthorized, `{"error":"bad token"}`},
		{"malformed", http.StatusOK, `{"rate":0.8}`},
		{"empty array", http.StatusOK, `[]`},
		{"zero rate", http.StatusOK, `[{"rate":0}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewWiseClient(Config{BaseURL: srv.URL, Token: "t", AuthScheme: "Bearer"})
			c.SetHTTPClient(srv.Client())
			_, err := c.GetRate(context.Background(), "USD", "GBP")
			assert.Error(t, err)
		})
	}
}

func TestConverterFetchesOnce(t *testing.T) {
	src := &countingSource{rate: 0.7912345678}
	conv := NewConverter(src, "USD", "GBP", 0.74)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.Equal(t, 0.791235, conv.Rate(ctx))
	}
	conv.Convert(ctx, 10)
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.calls))
	assert.False(t, conv.UsedFallback())
}

func TestConverterFallback(t *testing.T) {
	tests := []struct {
		name string
		src  RateSource
	}{
		{"lookup error", &countingSource{err: errors.New("network down")}},
		{"non-positive rate", &countingSource{rate: -1}},
		{"nan rate", &countingSource{rate: math.NaN()}},
		{"no source", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := NewConverter(tt.src, "USD", "GBP", 0.74)
			assert.Equal(t, 0.74, conv.Rate(context.Background()))
			assert.True(t, conv.UsedFallback())
		})
	}

	src := &countingSource{err: errors.New("down")}
	conv := NewConverter(src, "USD", "GBP", 0.74)
	conv.Rate(context.Background())
	conv.Rate(context.Background())
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.calls), "fallback is cached too")
}

func TestConvertIsLinear(t *testing.T) {
	conv := NewConverter(&countingSource{rate: 0.79}, "USD", "GBP", 0.74)
	ctx := context.Background()

	pairs := [][2]float64{{1, 2}, {100.25, 0.75}, {-5, 5}, {1e6, 3.33}}
	for _, p := range pairs {
		assert.InDelta(t, conv.Convert(ctx, p[0]+p[1]), conv.Convert(ctx, p[0])+conv.Convert(ctx, p[1]), 1e-6)
	}
}

func TestConvertNaN(t *testing.T) {
	conv := NewConverter(&countingSource{rate: 0.79}, "USD", "GBP", 0.74)
	assert.Equal(t, 0.0, conv.Convert(context.Background(), math.NaN()))
	assert.Equal(t, 0.0, conv.Convert(context.Background(), math.Inf(1)))
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestSharedCache(t *testing.T) {
	mr, client := setupTestRedis(t)
	src := &countingSource{rate: 0.8}
	cache := NewSharedCache(src, client, time.Hour)
	ctx := context.Background()

	r, err := cache.GetRate(ctx, "usd", "gbp")
	require.NoError(t, err)
	assert.Equal(t, 0.8, r)

	r, err = cache.GetRate(ctx, "USD", "GBP")
	require.NoError(t, err)
	assert.Equal(t, 0.8, r)
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.calls))

	got, err := mr.Get("exchange:rate:USD:GBP")
	require.NoError(t, err)
	assert.Equal(t, "0.8", got)

	mr.FastForward(2 * time.Hour)
	_, err = cache.GetRate(ctx, "USD", "GBP")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&src.calls))
}

func TestSharedCacheIgnoresMalformedValue(t *testing.T) {
	mr, client := setupTestRedis(t)
	require.NoError(t, mr.Set("exchange:rate:USD:GBP", "garbage"))

	src := &countingSource{rate: 0.81}
	r, err := NewSharedCache(src, client, time.Minute).GetRate(context.Background(), "USD", "GBP")
	require.NoError(t, err)
	assert.Equal(t, 0.81, r)
}

func TestSharedCachePropagatesSourceError(t *testing.T) {
	_, client := setupTestRedis(t)
	src := &countingSource{err: errors.New("down")}

	conv := NewConverter(NewSharedCache(src, client, time.Minute), "USD", "GBP", 0.74)
	assert.Equal(t, 0.74, conv.Rate(context.Background()))
}
