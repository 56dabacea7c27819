// Package executor turns buy/sell decisions into router transactions and keeps
// the ledger in step with what actually landed on chain.
package executor

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/nadsniper/internal/chain"
	"github.com/betbot/nadsniper/internal/domain"
	"github.com/betbot/nadsniper/pkg/cache"
	"github.com/betbot/nadsniper/pkg/clock"
)

// ErrReverted is returned (wrapped) when a receipt has status 0.
var ErrReverted = chain.ErrReverted

const approvalTTL = 24 * time.Hour

// Chain is implemented by *chain.Client.
type Chain interface {
	Address() common.Address
	TokenBalance(ctx context.Context, token common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token common.Address) (*big.Int, error)
	Approve(ctx context.Context, token common.Address) (*ethtypes.Receipt, error)
	Symbol(ctx context.Context, token common.Address) (string, error)
	BaseFee(ctx context.Context) (*big.Int, error)
	ProtectBuy(ctx context.Context, p chain.BuyParams, opts chain.TxOpts) (*ethtypes.Transaction, error)
	ProtectSell(ctx context.Context, p chain.SellParams, opts chain.TxOpts) (*ethtypes.Transaction, error)
	WaitMined(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error)
}

// Holdings is implemented by *ledger.Ledger.
type Holdings interface {
	Has(address string) bool
	IsProcessed(address string) bool
	MarkProcessed(address string)
	Add(rec domain.HoldingRecord) error
	Remove(address, wallet string) error
}

// Rand is satisfied by *rand.Rand.
type Rand interface {
	Int63n(n int64) int64
}

type Config struct {
	FeePercent     int64
	DeadlineHours  int64
	BuyGasLimitMin uint64
	BuyGasLimitMax uint64
	SellGasLimit   uint64
	FeeHeadroomPct int64
	NativeSymbol   string
	TxExplorer     string
}

type Executor struct {
	cfg      Config
	chain    Chain
	holdings Holdings
	rand     Rand
	clock    clock.Clock
	approved *cache.InMemoryCache[string, bool]
	log      logrus.FieldLogger
}

func New(cfg Config, ch Chain, holdings Holdings, rnd Rand, clk clock.Clock, log logrus.FieldLogger) *Executor {
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Executor{
		cfg:      cfg,
		chain:    ch,
		holdings: holdings,
		rand:     rnd,
		clock:    clk,
		approved: cache.NewInMemoryCache[string, bool](approvalTTL).WithClock(clk.Now),
		log:      log,
	}
}

// Wallet is the lower-cased signer address used as the ledger wallet key.
func (e *Executor) Wallet() string {
	return domain.CanonicalAddress(e.chain.Address().Hex())
}

// Buy submits protectBuy for the candidate. On a confirmed buy the router is
// approved for later sells and the holding recorded. Any failure marks the
// candidate processed so it is never retried this run.
func (e *Executor) Buy(ctx context.Context, cand domain.AssetCandidate, amountIn *big.Int) domain.TxResult {
	addr := domain.CanonicalAddress(cand.Address)
	if e.holdings.Has(addr) || e.holdings.IsProcessed(addr) {
		return domain.TxResult{Status: domain.TxSkipped, Address: addr}
	}
	token := common.HexToAddress(addr)

	fee := e.Fee(amountIn)
	value := new(big.Int).Add(amountIn, fee)
	gasLimit := e.RandomBuyGasLimit()

	res, receipt := e.buy(ctx, token, amountIn, fee, value, gasLimit)
	if !res.OK() {
		e.holdings.MarkProcessed(addr)
		e.log.WithError(res.Err).Errorf("Error buying token %s", addr)
		return res
	}
	e.log.Infof("Buy transaction confirmed in block %d", receipt.BlockNumber.Uint64())

	if err := e.ensureApproved(ctx, token); err != nil {
		// 买入已成功，授权失败不回滚，卖出时会再试
		e.log.WithError(err).Errorf("Error approving router for %s", addr)
	}

	rec := domain.HoldingRecord{
		ContractAddress: addr,
		WalletAddress:   e.Wallet(),
		BoughtAt:        e.clock.Now().Unix(),
		BoughtAtPrice:   cand.Price.String(),
		Symbol:          cand.Symbol,
		Name:            cand.Name,
	}
	if err := e.holdings.Add(rec); err != nil {
		e.log.WithError(err).Warnf("holding %s kept in memory only", addr)
	}
	return res
}

func (e *Executor) buy(ctx context.Context, token common.Address, amountIn, fee, value *big.Int, gasLimit uint64) (domain.TxResult, *ethtypes.Receipt) {
	addr := domain.CanonicalAddress(token.Hex())
	feePerGas, err := e.feePerGas(ctx)
	if err != nil {
		return failed(addr, "", err), nil
	}

	e.log.Infof("Buying token %s for %s %s...", addr, FormatEther(amountIn), e.cfg.NativeSymbol)
	tx, err := e.chain.ProtectBuy(ctx, chain.BuyParams{
		AmountIn:     amountIn,
		AmountOutMin: big.NewInt(0),
		Fee:          fee,
		Token:        token,
		To:           e.chain.Address(),
		Deadline:     e.deadline(),
	}, chain.TxOpts{GasLimit: gasLimit, FeePerGas: feePerGas, Value: value})
	if err != nil {
		return failed(addr, "", err), nil
	}
	e.log.Infof("Buy transaction sent: %s%s", e.cfg.TxExplorer, tx.Hash().Hex())

	receipt, err := e.chain.WaitMined(ctx, tx)
	if err != nil {
		return failed(addr, tx.Hash().Hex(), err), nil
	}
	return confirmed(addr, tx.Hash().Hex(), receipt), receipt
}

// Sell swaps the whole token balance back through the router. A zero balance
// is a noop and leaves the holding in place. On failure nothing is rolled back.
func (e *Executor) Sell(ctx context.Context, address string) domain.TxResult {
	addr := domain.CanonicalAddress(address)
	token := common.HexToAddress(addr)

	balance, err := e.chain.TokenBalance(ctx, token)
	if err != nil {
		e.log.WithError(err).Errorf("Error selling token %s", addr)
		return failed(addr, "", err)
	}
	if balance.Sign() <= 0 {
		e.log.Infof("No balance to sell for token %s", addr)
		return domain.TxResult{Status: domain.TxNoop, Address: addr}
	}

	if err := e.ensureApproved(ctx, token); err != nil {
		e.log.WithError(err).Errorf("Error approving router for %s", addr)
		return failed(addr, "", err)
	}

	symbol, err := e.chain.Symbol(ctx, token)
	if err != nil || symbol == "" {
		symbol = "UNKNOWN"
	}

	feePerGas, err := e.feePerGas(ctx)
	if err != nil {
		e.log.WithError(err).Errorf("Error selling token %s", addr)
		return failed(addr, "", err)
	}

	e.log.Infof("Selling %s %s tokens...", FormatEther(balance), symbol)
	tx, err := e.chain.ProtectSell(ctx, chain.SellParams{
		AmountIn:     balance,
		AmountOutMin: big.NewInt(0),
		Token:        token,
		To:           e.chain.Address(),
		Deadline:     e.deadline(),
	}, chain.TxOpts{GasLimit: e.cfg.SellGasLimit, FeePerGas: feePerGas})
	if err != nil {
		e.log.WithError(err).Errorf("Error selling token %s", addr)
		return failed(addr, "", err)
	}
	e.log.Infof("Sell transaction sent: %s%s", e.cfg.TxExplorer, tx.Hash().Hex())

	receipt, err := e.chain.WaitMined(ctx, tx)
	if err != nil {
		e.log.WithError(err).Errorf("Error selling token %s", addr)
		return failed(addr, tx.Hash().Hex(), err)
	}
	e.log.Infof("Sell transaction confirmed in block %d", receipt.BlockNumber.Uint64())

	if err := e.holdings.Remove(addr, e.Wallet()); err != nil {
		e.log.WithError(err).Warnf("holding %s removed in memory only", addr)
	}
	e.approved.Delete(addr)
	return confirmed(addr, tx.Hash().Hex(), receipt)
}

// ensureApproved approves MaxUint256 only when the current allowance is zero.
func (e *Executor) ensureApproved(ctx context.Context, token common.Address) error {
	key := domain.CanonicalAddress(token.Hex())
	if ok, _ := e.approved.Get(key); ok {
		return nil
	}
	allowance, err := e.chain.Allowance(ctx, token)
	if err != nil {
		return err
	}
	if allowance.Sign() == 0 {
		e.log.Infof("Approving router for token %s", key)
		if _, err := e.chain.Approve(ctx, token); err != nil {
			return err
		}
		e.log.Infof("Router approved for token %s", key)
	}
	e.approved.Set(key, true, 0)
	return nil
}

// Fee amountIn * feePercent / 100
func (e *Executor) Fee(amountIn *big.Int) *big.Int {
	fee := new(big.Int).Mul(amountIn, big.NewInt(e.cfg.FeePercent))
	return fee.Div(fee, big.NewInt(100))
}

// RandomBuyGasLimit uniform in [BuyGasLimitMin, BuyGasLimitMax].
func (e *Executor) RandomBuyGasLimit() uint64 {
	lo, hi := e.cfg.BuyGasLimitMin, e.cfg.BuyGasLimitMax
	if hi <= lo || e.rand == nil {
		return lo
	}
	return lo + uint64(e.rand.Int63n(int64(hi-lo+1)))
}

func (e *Executor) feePerGas(ctx context.Context) (*big.Int, error) {
	baseFee, err := e.chain.BaseFee(ctx)
	if err != nil {
		return nil, err
	}
	return chain.FeeWithHeadroom(baseFee, e.cfg.FeeHeadroomPct), nil
}

func (e *Executor) deadline() *big.Int {
	return big.NewInt(e.clock.Now().Unix() + e.cfg.DeadlineHours*3600)
}

// FormatEther renders wei with 18 decimals, trailing zeros trimmed.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -18).String()
}

func confirmed(addr, hash string, receipt *ethtypes.Receipt) domain.TxResult {
	res := domain.TxResult{Status: domain.TxConfirmed, Address: addr, TxHash: hash}
	if receipt != nil && receipt.BlockNumber != nil {
		res.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return res
}

func failed(addr, hash string, err error) domain.TxResult {
	return domain.TxResult{Status: domain.TxFailed, Address: addr, TxHash: hash, Err: fmt.Errorf("%s: %w", addr, err)}
}
