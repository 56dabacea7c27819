// Package controller drives the sniper loop: discover, buy the newest fresh
// token, and periodically sweep holdings against the exit policy.
package controller

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/nadsniper/internal/discovery"
	"github.com/betbot/nadsniper/internal/domain"
	"github.com/betbot/nadsniper/internal/metrics"
	"github.com/betbot/nadsniper/internal/oracle"
	"github.com/betbot/nadsniper/internal/risk"
	"github.com/betbot/nadsniper/internal/strategy"
	"github.com/betbot/nadsniper/pkg/clock"
)

// Feed lists newly launched tokens, newest first.
type Feed interface {
	FetchCandidates(ctx context.Context) ([]domain.AssetCandidate, error)
}

// PriceSource returns the current price of one token; Empty and Failed both mean unknown.
type PriceSource interface {
	GetPrice(ctx context.Context, address string) oracle.Result
}

// Trader submits buys and sells for the bot wallet. Implemented by *executor.Executor.
type Trader interface {
	Buy(ctx context.Context, cand domain.AssetCandidate, amountIn *big.Int) domain.TxResult
	Sell(ctx context.Context, address string) domain.TxResult
	Wallet() string
}

// Book is implemented by *ledger.Ledger.
type Book interface {
	discovery.Seen
	ByWallet(wallet string) []domain.HoldingRecord
	ProcessedCount() int
}

// Config holds the loop cadence and the exit thresholds (percent).
type Config struct {
	PurchaseAmount     *big.Int
	MaxTokenAge        time.Duration
	MonitorDelay       time.Duration
	PriceCheckInterval int
	StaleAfter         time.Duration
	TakeProfitPct      decimal.Decimal
	StopLossPct        decimal.Decimal
	NativeSymbol       string
}

// Status is a point-in-time view for the status API.
type Status struct {
	Wallet            string    `json:"wallet"`
	StartedAt         time.Time `json:"started_at"`
	LastCycleAt       time.Time `json:"last_cycle_at,omitempty"`
	Cycles            int64     `json:"cycles"`
	Holdings          int       `json:"holdings"`
	Processed         int       `json:"processed"`
	BuysConfirmed     int64     `json:"buys_confirmed"`
	SellsConfirmed    int64     `json:"sells_confirmed"`
	BreakerHalted     bool      `json:"breaker_halted"`
	ConsecutiveErrors int64     `json:"consecutive_buy_failures"`
}

// Controller drives discovery, buying and the periodic exit sweep.
type Controller struct {
	cfg     Config
	feed    Feed
	prices  PriceSource
	trader  Trader
	book    Book
	breaker *risk.CircuitBreaker
	clock   clock.Clock
	log     logrus.FieldLogger

	startedAt   time.Time
	cycles      atomic.Int64
	lastCycleAt atomic.Int64
	buys        atomic.Int64
	sells       atomic.Int64
}

// New builds a Controller. A nil clock or logger falls back to the real clock and the standard logger.
func New(cfg Config, feed Feed, prices PriceSource, trader Trader, book Book, breaker *risk.CircuitBreaker, clk clock.Clock, log logrus.FieldLogger) *Controller {
	if cfg.PriceCheckInterval < 1 {
		cfg.PriceCheckInterval = 1
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Controller{
		cfg:       cfg,
		feed:      feed,
		prices:    prices,
		trader:    trader,
		book:      book,
		breaker:   breaker,
		clock:     clk,
		log:       log,
		startedAt: clk.Now(),
	}
}

// Run does one startup sweep, then Step / wait MonitorDelay until ctx is done.
// No cycle error stops the loop.
func (c *Controller) Run(ctx context.Context) error {
	existing := c.book.ByWallet(c.trader.Wallet())
	metrics.Holdings.Set(int64(len(existing)))
	if len(existing) > 0 {
		c.log.Infof("You have %d tokens from previous sessions", len(existing))
		c.log.Info("Checking price conditions for existing tokens...")
		c.Sweep(ctx)
	}

	c.log.Info("Starting token sniper loop...")
	for {
		if ctx.Err() != nil {
			c.log.Info("sniper loop stopped")
			return nil
		}
		c.Step(ctx)
		if !clock.Sleep(c.clock, ctx.Done(), c.cfg.MonitorDelay) {
			c.log.Info("sniper loop stopped")
			return nil
		}
	}
}

// Step runs one cycle: at most one buy, then a sweep every PriceCheckInterval cycles.
func (c *Controller) Step(ctx context.Context) {
	c.log.Debug("Searching for tokens to snipe...")
	c.discoverAndBuy(ctx)

	n := c.cycles.Add(1)
	c.lastCycleAt.Store(c.clock.Now().Unix())
	metrics.Cycles.Add(1)

	if n%int64(c.cfg.PriceCheckInterval) == 0 {
		c.Sweep(ctx)
	}
}

func (c *Controller) discoverAndBuy(ctx context.Context) {
	cands, err := c.feed.FetchCandidates(ctx)
	if err != nil {
		metrics.DiscoveryErrs.Add(1)
		var tfe *discovery.TransientFetchError
		if errors.As(err, &tfe) {
			c.log.WithError(err).Error("Error getting recent tokens")
		} else {
			c.log.WithError(err).Error("Error in main loop")
		}
		return
	}

	recent := discovery.FilterRecent(cands, c.cfg.MaxTokenAge, c.clock.Now())
	fresh := discovery.SelectNew(recent, c.book)
	if len(fresh) == 0 {
		return
	}
	metrics.Candidates.Add(1)

	// 只买最新的一个
	cand := fresh[0]
	c.log.Infof("New token found! Name: %s (%s)", cand.Name, cand.Symbol)
	c.log.Infof("Current price: %s %s, Market: %s", cand.Price.String(), c.cfg.NativeSymbol, cand.MarketType)

	if err := c.breaker.AllowBuy(); err != nil {
		c.log.WithError(err).Warnf("buy of %s skipped", cand.Address)
		return
	}

	res := c.trader.Buy(ctx, cand, c.cfg.PurchaseAmount)
	switch res.Status {
	case domain.TxConfirmed:
		c.buys.Add(1)
		c.breaker.OnSuccess()
		metrics.BuysConfirmed.Add(1)
		c.log.WithFields(logrus.Fields{"token": cand.Address, "tx": res.TxHash}).Info("token sniped")
	case domain.TxFailed:
		c.breaker.OnError()
		metrics.BuysFailed.Add(1)
	}
}

// Sweep checks every holding of the wallet against the exit policy.
func (c *Controller) Sweep(ctx context.Context) {
	metrics.Sweeps.Add(1)
	holdings := c.book.ByWallet(c.trader.Wallet())
	defer func() { metrics.Holdings.Set(int64(len(c.book.ByWallet(c.trader.Wallet())))) }()

	for _, h := range holdings {
		if ctx.Err() != nil {
			return
		}
		c.checkHolding(ctx, h)
	}
}

func (c *Controller) checkHolding(ctx context.Context, h domain.HoldingRecord) {
	label := h.Symbol
	if label == "" {
		label = h.ContractAddress
	}

	res := c.prices.GetPrice(ctx, h.ContractAddress)
	if !res.Known() {
		if h.HeldFor(c.clock.Now()) > c.cfg.StaleAfter {
			c.log.Warnf("%s held for 1+ hour with no price data.", label)
		} else {
			c.log.Debugf("%s: no price data yet (%s)", label, res.Outcome)
		}
		return
	}

	bought, ok := h.EntryPrice()
	if !ok {
		c.log.Warnf("%s: unusable bought_at_price %q, skipping", label, h.BoughtAtPrice)
		return
	}

	d := strategy.Evaluate(bought, res.Price, c.cfg.TakeProfitPct, c.cfg.StopLossPct)
	switch d.Action {
	case strategy.TakeProfit:
		c.log.Infof("%s reached TP (%s%%). Current: %s, Bought: %s", label, c.cfg.TakeProfitPct, res.Price, bought)
	case strategy.StopLoss:
		c.log.Warnf("%s reached SL (%s%%). Current: %s, Bought: %s", label, c.cfg.StopLossPct, res.Price, bought)
	default:
		return
	}

	sold := c.trader.Sell(ctx, h.ContractAddress)
	switch sold.Status {
	case domain.TxConfirmed:
		c.sells.Add(1)
		metrics.SellsConfirmed.Add(1)
	case domain.TxFailed:
		metrics.SellsFailed.Add(1)
	}
}

func (c *Controller) Snapshot() Status {
	s := Status{
		Wallet:            c.trader.Wallet(),
		StartedAt:         c.startedAt,
		Cycles:            c.cycles.Load(),
		Holdings:          len(c.book.ByWallet(c.trader.Wallet())),
		Processed:         c.book.ProcessedCount(),
		BuysConfirmed:     c.buys.Load(),
		SellsConfirmed:    c.sells.Load(),
		BreakerHalted:     c.breaker.Halted(),
		ConsecutiveErrors: c.breaker.ConsecutiveErrors(),
	}
	if ts := c.lastCycleAt.Load(); ts > 0 {
		s.LastCycleAt = time.Unix(ts, 0)
	}
	return s
}
