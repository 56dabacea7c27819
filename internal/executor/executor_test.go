package executor

import (
	"context"
	"errors"
	"math/big"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/nadsniper/internal/domain"
	"github.com/betbot/nadsniper/internal/executor/executortest"
	"github.com/betbot/nadsniper/internal/ledger"
	"github.com/betbot/nadsniper/pkg/clock"
)

var (
	walletAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	tokenAddr  = "0x00000000000000000000000000000000000000aa"
	halfMON    = new(big.Int).Mul(big.NewInt(5), big.NewInt(1e17))
	startTime  = time.Unix(1_700_000_000, 0)
)

func testConfig() Config {
	return Config{
		FeePercent:     1,
		DeadlineHours:  6,
		BuyGasLimitMin: 250000,
		BuyGasLimitMax: 350000,
		SellGasLimit:   300000,
		FeeHeadroomPct: 5,
		NativeSymbol:   "MON",
		TxExplorer:     "https://testnet.monadexplorer.com/tx/",
	}
}

type fixture struct {
	exec   *Executor
	chain  *executortest.Chain
	ledger *ledger.Ledger
	hook   *test.Hook
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	log, hook := test.NewNullLogger()
	l, err := ledger.Open(ledger.NewJSONStore(filepath.Join(t.TempDir(), "sniped_tokens.json")), log)
	require.NoError(t, err)
	ch := executortest.NewChain(walletAddr)
	exec := New(testConfig(), ch, l, rand.New(rand.NewSource(7)), clock.NewFake(startTime), log)
	return fixture{exec: exec, chain: ch, ledger: l, hook: hook}
}

func candidate() domain.AssetCandidate {
	return domain.AssetCandidate{
		Address:   tokenAddr,
		Symbol:    "NADS",
		Name:      "Nad Sniper",
		Price:     decimal.RequireFromString("0.00012"),
		CreatedAt: startTime.Unix(),
	}
}

func TestBuy_Confirmed(t *testing.T) {
	f := newFixture(t)

	res := f.exec.Buy(context.Background(), candidate(), halfMON)
	require.Equal(t, domain.TxConfirmed, res.Status, "err: %v", res.Err)
	assert.NotEmpty(t, res.TxHash)

	require.Len(t, f.chain.Buys, 1)
	p, opts := f.chain.Buys[0], f.chain.BuyOpts[0]

	fee := new(big.Int).Div(halfMON, big.NewInt(100))
	assert.Equal(t, 0, p.Fee.Cmp(fee))
	assert.Equal(t, 0, p.AmountIn.Cmp(halfMON))
	assert.Equal(t, 0, p.AmountOutMin.Sign())
	assert.Equal(t, walletAddr, p.To)
	assert.Equal(t, startTime.Unix()+6*3600, p.Deadline.Int64())
	assert.Equal(t, 0, opts.Value.Cmp(new(big.Int).Add(halfMON, fee)))
	assert.GreaterOrEqual(t, opts.GasLimit, uint64(250000))
	assert.LessOrEqual(t, opts.GasLimit, uint64(350000))
	assert.Equal(t, int64(105), opts.FeePerGas.Int64())

	// router approved once
	assert.Len(t, f.chain.Approvals, 1)

	holdings := f.ledger.ByWallet(walletAddr.Hex())
	require.Len(t, holdings, 1)
	h := holdings[0]
	assert.Equal(t, tokenAddr, h.ContractAddress)
	assert.Equal(t, "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266", h.WalletAddress)
	assert.Equal(t, "0.00012", h.BoughtAtPrice)
	assert.Equal(t, startTime.Unix(), h.BoughtAt)
	assert.True(t, f.ledger.IsProcessed(tokenAddr))
}

func TestBuy_SkipsHeldOrProcessed(t *testing.T) {
	f := newFixture(t)
	f.ledger.MarkProcessed(tokenAddr)

	res := f.exec.Buy(context.Background(), candidate(), halfMON)
	assert.Equal(t, domain.TxSkipped, res.Status)
	assert.Empty(t, f.chain.Buys)
}

func TestBuy_SubmitFailureMarksProcessed(t *testing.T) {
	f := newFixture(t)
	f.chain.BuyErr = errors.New("insufficient funds")

	res := f.exec.Buy(context.Background(), candidate(), halfMON)
	assert.Equal(t, domain.TxFailed, res.Status)
	assert.Error(t, res.Err)
	assert.True(t, f.ledger.IsProcessed(tokenAddr))
	assert.False(t, f.ledger.Has(tokenAddr))
	assert.Empty(t, f.chain.Approvals)

	// 不重试
	res = f.exec.Buy(context.Background(), candidate(), halfMON)
	assert.Equal(t, domain.TxSkipped, res.Status)
	assert.Len(t, f.chain.Buys, 1)
}

func TestBuy_RevertedIsFailure(t *testing.T) {
	f := newFixture(t)
	f.chain.RevertNext = true

	res := f.exec.Buy(context.Background(), candidate(), halfMON)
	assert.Equal(t, domain.TxFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrReverted)
	assert.False(t, f.ledger.Has(tokenAddr))
	assert.True(t, f.ledger.IsProcessed(tokenAddr))
}

func TestBuy_ApprovalFailureStillRecords(t *testing.T) {
	f := newFixture(t)
	f.chain.ApproveErr = errors.New("approve reverted")

	res := f.exec.Buy(context.Background(), candidate(), halfMON)
	assert.Equal(t, domain.TxConfirmed, res.Status)
	assert.True(t, f.ledger.Has(tokenAddr))

	var sawApprovalError bool
	for _, e := range f.hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			sawApprovalError = true
		}
	}
	assert.True(t, sawApprovalError)
}

func TestSell_Confirmed(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, domain.TxConfirmed, f.exec.Buy(context.Background(), candidate(), halfMON).Status)
	f.chain.Symbols[common.HexToAddress(tokenAddr)] = "NADS"

	res := f.exec.Sell(context.Background(), "0x00000000000000000000000000000000000000AA")
	require.Equal(t, domain.TxConfirmed, res.Status, "err: %v", res.Err)

	require.Len(t, f.chain.Sells, 1)
	assert.Equal(t, int64(1_000_000), f.chain.Sells[0].AmountIn.Int64())
	assert.Equal(t, uint64(300000), f.chain.SellOpts[0].GasLimit)
	assert.Nil(t, f.chain.SellOpts[0].Value)
	// approval was cached from the buy
	assert.Len(t, f.chain.Approvals, 1)
	assert.Equal(t, 1, f.chain.AllowanceCalls)

	assert.False(t, f.ledger.Has(tokenAddr))
}

func TestSell_ZeroBalanceIsNoop(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ledger.Add(domain.HoldingRecord{
		ContractAddress: tokenAddr, WalletAddress: walletAddr.Hex(), BoughtAtPrice: "1",
	}))

	res := f.exec.Sell(context.Background(), tokenAddr)
	assert.Equal(t, domain.TxNoop, res.Status)
	assert.True(t, res.OK())
	assert.Empty(t, f.chain.Sells)
	assert.True(t, f.ledger.Has(tokenAddr))
}

func TestSell_ApprovalFailureAborts(t *testing.T) {
	f := newFixture(t)
	token := common.HexToAddress(tokenAddr)
	f.chain.Balances[token] = big.NewInt(10)
	f.chain.ApproveErr = errors.New("nope")
	require.NoError(t, f.ledger.Add(domain.HoldingRecord{
		ContractAddress: tokenAddr, WalletAddress: walletAddr.Hex(), BoughtAtPrice: "1",
	}))

	res := f.exec.Sell(context.Background(), tokenAddr)
	assert.Equal(t, domain.TxFailed, res.Status)
	assert.Empty(t, f.chain.Sells)
	assert.True(t, f.ledger.Has(tokenAddr))
}

func TestSell_FailureKeepsHolding(t *testing.T) {
	f := newFixture(t)
	token := common.HexToAddress(tokenAddr)
	f.chain.Balances[token] = big.NewInt(10)
	f.chain.Allowances[token] = big.NewInt(1)
	f.chain.SellErr = errors.New("replacement underpriced")
	require.NoError(t, f.ledger.Add(domain.HoldingRecord{
		ContractAddress: tokenAddr, WalletAddress: walletAddr.Hex(), BoughtAtPrice: "1",
	}))

	res := f.exec.Sell(context.Background(), tokenAddr)
	assert.Equal(t, domain.TxFailed, res.Status)
	assert.True(t, f.ledger.Has(tokenAddr))
	// allowance > 0 so no approval tx
	assert.Empty(t, f.chain.Approvals)
}

func TestRandomBuyGasLimit_Bounds(t *testing.T) {
	e := New(testConfig(), nil, nil, rand.New(rand.NewSource(1)), nil, nil)
	seen := map[bool]int{}
	for i := 0; i < 2000; i++ {
		g := e.RandomBuyGasLimit()
		require.GreaterOrEqual(t, g, uint64(250000))
		require.LessOrEqual(t, g, uint64(350000))
		seen[g > 300000]++
	}
	assert.NotZero(t, seen[true])
	assert.NotZero(t, seen[false])

	cfg := testConfig()
	cfg.BuyGasLimitMax = cfg.BuyGasLimitMin
	assert.Equal(t, uint64(250000), New(cfg, nil, nil, rand.New(rand.NewSource(1)), nil, nil).RandomBuyGasLimit())
}

func TestFormatEther(t *testing.T) {
	assert.Equal(t, "0.5", FormatEther(halfMON))
	assert.Equal(t, "0", FormatEther(nil))
	assert.Equal(t, "1.000000000000000001", FormatEther(new(big.Int).Add(big.NewInt(1e18), big.NewInt(1))))
}
