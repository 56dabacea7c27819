// Package oracle fetches the current market price of a single token with a
// bounded retry loop.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/nadsniper/internal/domain"
	"github.com/betbot/nadsniper/pkg/clock"
	sdkhttp "github.com/betbot/nadsniper/pkg/sdk/http"
)

// noRowsMarker in an error body means the market has no trades yet.
const noRowsMarker = "no rows returned by a query"

type Outcome int

const (
	Success Outcome = iota
	Empty
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Empty:
		return "empty"
	default:
		return "failed"
	}
}

// Result is Success(Price), Empty, or Failed(Err). Empty and Failed both mean
// "price unknown"; neither carries a zero price.
type Result struct {
	Outcome  Outcome
	Price    decimal.Decimal
	Err      *OracleError
	Attempts int
}

func (r Result) Known() bool { return r.Outcome == Success }

type OracleError struct {
	Address  string
	Attempts int
	Last     error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("price for %s unavailable after %d attempts: %v", e.Address, e.Attempts, e.Last)
}

func (e *OracleError) Unwrap() error { return e.Last }

// Getter is satisfied by *sdkhttp.Client.
type Getter interface {
	GetJSON(ctx context.Context, url string, out any) error
}

// Rand is satisfied by *rand.Rand.
type Rand interface {
	Float64() float64
}

type Config struct {
	BaseURL        string
	Retries        int
	BaseDelay      time.Duration
	AttemptTimeout time.Duration
}

type Client struct {
	cfg    Config
	http   Getter
	rand   Rand
	clock  clock.Clock
	log    logrus.FieldLogger
	onDone func(Outcome)
}

func New(cfg Config, http Getter, rnd Rand, clk clock.Clock, log logrus.FieldLogger) *Client {
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{cfg: cfg, http: http, rand: rnd, clock: clk, log: log}
}

// OnResult registers a hook called once per GetPrice with the final outcome.
func (c *Client) OnResult(fn func(Outcome)) { c.onDone = fn }

type priceResponse struct {
	Price *decimal.Decimal `json:"price"`
}

// GetPrice runs up to Retries attempts. Between attempt i and i+1 it waits
// BaseDelay * 2^i * jitter with jitter uniform in [0.7, 1.3).
func (c *Client) GetPrice(ctx context.Context, address string) Result {
	res := c.getPrice(ctx, domain.CanonicalAddress(address))
	if c.onDone != nil {
		c.onDone(res.Outcome)
	}
	return res
}

func (c *Client) getPrice(ctx context.Context, address string) Result {
	url := c.cfg.BaseURL + address
	var last error

	for attempt := 0; attempt < c.cfg.Retries; attempt++ {
		price, err := c.attempt(ctx, url)
		if err == nil {
			return Result{Outcome: Success, Price: price, Attempts: attempt + 1}
		}
		if isNoRows(err) {
			c.log.Debugf("oracle: %s has no trades yet", address)
			return Result{Outcome: Empty, Attempts: attempt + 1}
		}
		last = err
		c.log.Debugf("oracle: attempt %d/%d for %s failed: %v", attempt+1, c.cfg.Retries, address, err)

		if attempt == c.cfg.Retries-1 {
			break
		}
		if !clock.Sleep(c.clock, ctx.Done(), c.Backoff(attempt)) {
			last = ctx.Err()
			return c.failed(address, attempt+1, last)
		}
	}
	return c.failed(address, c.cfg.Retries, last)
}

func (c *Client) failed(address string, attempts int, last error) Result {
	return Result{
		Outcome:  Failed,
		Err:      &OracleError{Address: address, Attempts: attempts, Last: last},
		Attempts: attempts,
	}
}

func (c *Client) attempt(ctx context.Context, url string) (decimal.Decimal, error) {
	if c.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.AttemptTimeout)
		defer cancel()
	}
	var resp priceResponse
	if err := c.http.GetJSON(ctx, url, &resp); err != nil {
		return decimal.Zero, err
	}
	if resp.Price == nil {
		return decimal.Zero, errors.New("response has no price")
	}
	return *resp.Price, nil
}

// Backoff returns the wait after the given zero-based attempt.
func (c *Client) Backoff(attempt int) time.Duration {
	jitter := 0.7
	if c.rand != nil {
		jitter += c.rand.Float64() * 0.6
	} else {
		jitter = 1
	}
	return time.Duration(float64(c.cfg.BaseDelay) * math.Pow(2, float64(attempt)) * jitter)
}

func isNoRows(err error) bool {
	var se *sdkhttp.StatusError
	if errors.As(err, &se) {
		return strings.Contains(se.ErrorMessage(), noRowsMarker)
	}
	return false
}
