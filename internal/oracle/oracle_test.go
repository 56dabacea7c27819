package oracle

import (
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/nadsniper/pkg/clock"
	sdkhttp "github.com/betbot/nadsniper/pkg/sdk/http"
)

type fixedRand float64

func (f fixedRand) Float64() float64 { return float64(f) }

func newTestClient(t *testing.T, h http.HandlerFunc, rnd Rand) (*Client, *clock.Fake) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	c := New(Config{
		BaseURL:        srv.URL + "/trade/market/",
		Retries:        3,
		BaseDelay:      2 * time.Second,
		AttemptTimeout: time.Second,
	}, sdkhttp.NewClient(sdkhttp.Options{}), rnd, clk, logrus.New())
	return c, clk
}

func TestGetPrice_Success(t *testing.T) {
	c, clk := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trade/market/0xabc", r.URL.Path)
		_, _ = w.Write([]byte(`{"price":"0.00042"}`))
	}, fixedRand(0.5))

	res := c.GetPrice(context.Background(), "0xABC")
	require.Equal(t, Success, res.Outcome)
	assert.True(t, res.Price.Equal(decimal.RequireFromString("0.00042")))
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, clk.Waits())
}

func TestGetPrice_NumericPrice(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"price":1.25,"volume":"10"}`))
	}, nil)
	res := c.GetPrice(context.Background(), "0xabc")
	require.True(t, res.Known())
	assert.True(t, res.Price.Equal(decimal.RequireFromString("1.25")))
}

func TestGetPrice_NoRowsIsEmptyWithoutDelay(t *testing.T) {
	var calls atomic.Int32
	c, clk := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"sql: no rows returned by a query"}`))
	}, fixedRand(0.5))

	res := c.GetPrice(context.Background(), "0xabc")
	assert.Equal(t, Empty, res.Outcome)
	assert.False(t, res.Known())
	assert.Nil(t, res.Err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, clk.Waits())
}

func TestGetPrice_RetriesWithGrowingDelay(t *testing.T) {
	var calls atomic.Int32
	c, clk := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`upstream down`))
	}, fixedRand(0.5))

	res := c.GetPrice(context.Background(), "0xabc")
	require.Equal(t, Failed, res.Outcome)
	require.NotNil(t, res.Err)
	assert.Equal(t, 3, res.Err.Attempts)
	assert.Equal(t, int32(3), calls.Load())

	// jitter = 0.7 + 0.5*0.6 = 1.0; waits only between attempts
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, clk.Waits())
}

func TestGetPrice_RecoversOnSecondAttempt(t *testing.T) {
	var calls atomic.Int32
	c, clk := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"price":"2"}`))
	}, fixedRand(0))

	res := c.GetPrice(context.Background(), "0xabc")
	require.Equal(t, Success, res.Outcome)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, []time.Duration{1400 * time.Millisecond}, clk.Waits())
}

func TestGetPrice_MissingPriceFieldFails(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}, fixedRand(0.5))
	res := c.GetPrice(context.Background(), "0xabc")
	assert.Equal(t, Failed, res.Outcome)
}

func TestBackoff_JitterBounds(t *testing.T) {
	c := New(Config{BaseDelay: 2 * time.Second, Retries: 3}, nil, rand.New(rand.NewSource(1)), nil, nil)
	for attempt := 0; attempt < 3; attempt++ {
		base := float64(2*time.Second) * float64(int(1)<<attempt)
		for i := 0; i < 50; i++ {
			d := float64(c.Backoff(attempt))
			assert.GreaterOrEqual(t, d, base*0.7)
			assert.Less(t, d, base*1.3)
		}
	}
}

func TestGetPrice_OnResultHook(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"price":"1"}`))
	}, nil)
	var got []Outcome
	c.OnResult(func(o Outcome) { got = append(got, o) })
	c.GetPrice(context.Background(), "0xabc")
	assert.Equal(t, []Outcome{Success}, got)
}
