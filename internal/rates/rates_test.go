package rates

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/multiwallet/internal/logging"
	"github.com/congo-pay/multiwallet/internal/money"
)

func newRateServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		switch r.URL.Path {
		case "/USD":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"base":"USD","rates":{"USD":1,"EUR":0.92,"NGN":1550.25,"GBP":0}}`))
		case "/EUR":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPSourceRate(t *testing.T) {
	srv := newRateServer(t, nil)
	src := NewHTTPSource(srv.URL, time.Second)
	ctx := context.Background()

	rate, err := src.Rate(ctx, money.USD, money.NGN)
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if !rate.Equal(decimal.RequireFromString("1550.25")) {
		t.Fatalf("expected exact decimal rate, got %s", rate)
	}

	if _, err := src.Rate(ctx, money.USD, money.GBP); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("zero rate must be rejected, got %v", err)
	}
	if _, err := src.Rate(ctx, money.EUR, money.USD); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("provider failure must map to unavailable, got %v", err)
	}
	if _, err := src.Rate(ctx, money.GBP, money.USD); !errors.Is(err, ErrUnknownCurrency) {
		t.Fatalf("unknown base must map to unknown currency, got %v", err)
	}
	if rate, _ := src.Rate(ctx, money.EUR, money.EUR); !rate.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("same currency rate must be 1, got %s", rate)
	}
}

func TestHTTPSourceUnreachable(t *testing.T) {
	srv := newRateServer(t, nil)
	url := srv.URL
	srv.Close()

	if _, err := NewHTTPSource(url, time.Second).Rate(context.Background(), money.USD, money.NGN); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestCachedSourceServesFromRedis(t *testing.T) {
	var hits int32
	srv := newRateServer(t, &hits)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	src := NewCachedSource(NewHTTPSource(srv.URL, time.Second), client, time.Minute, logging.Discard())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rate, err := src.Rate(ctx, money.USD, money.EUR)
		if err != nil {
			t.Fatalf("rate: %v", err)
		}
		if !rate.Equal(decimal.RequireFromString("0.92")) {
			t.Fatalf("unexpected rate %s", rate)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected one upstream call, got %d", got)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := src.Rate(ctx, money.USD, money.EUR); err != nil {
		t.Fatalf("rate after expiry: %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Fatalf("expected refetch after ttl, got %d calls", got)
	}
}

func TestCachedSourceDoesNotCacheErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	src := NewCachedSource(StaticSource{}, client, time.Minute, logging.Discard())
	if _, err := src.Rate(context.Background(), money.USD, money.EUR); !errors.Is(err, ErrUnknownCurrency) {
		t.Fatalf("expected unknown currency, got %v", err)
	}
	if mr.Exists(cacheKey(money.USD, money.EUR)) {
		t.Fatalf("errors must not be cached")
	}
}
