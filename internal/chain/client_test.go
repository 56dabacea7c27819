package chain

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	testRouter = common.HexToAddress("0x822EB1ADD41cf87C3F178100596cf24c9a6442f6")
	testToken  = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

type fakeBackend struct {
	mu          sync.Mutex
	baseFee     *big.Int
	balance     *big.Int
	allowance   *big.Int
	symbol      string
	estimateErr error
	revert      bool
	sent        []*ethtypes.Transaction
	nonce       uint64
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	m, err := erc20ABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	switch m.Name {
	case "balanceOf":
		return m.Outputs.Pack(f.balance)
	case "allowance":
		return m.Outputs.Pack(f.allowance)
	case "symbol":
		if f.symbol == "" {
			return nil, errors.New("execution reverted")
		}
		return m.Outputs.Pack(f.symbol)
	}
	return nil, errors.New("unexpected call")
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*ethtypes.Header, error) {
	return &ethtypes.Header{Number: big.NewInt(42), BaseFee: f.baseFee}, nil
}

func (f *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return big.NewInt(7), nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return 55000, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *ethtypes.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	f.nonce++
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, h common.Hash) (*ethtypes.Receipt, error) {
	status := ethtypes.ReceiptStatusSuccessful
	if f.revert {
		status = ethtypes.ReceiptStatusFailed
	}
	return &ethtypes.Receipt{TxHash: h, Status: status, BlockNumber: big.NewInt(43)}, nil
}

func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return nil, nil
}

func newTestClient(t *testing.T, fb *fakeBackend) *Client {
	t.Helper()
	key, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	return NewClient(fb, key, Config{ChainID: 10143, Router: testRouter, FeeHeadroomPct: 5}, nil)
}

func TestFeeWithHeadroom(t *testing.T) {
	assert.Equal(t, int64(105), FeeWithHeadroom(big.NewInt(100), 5).Int64())
	assert.Equal(t, int64(103), FeeWithHeadroom(big.NewInt(99), 5).Int64())
	assert.Equal(t, int64(100), FeeWithHeadroom(big.NewInt(100), 0).Int64())
}

func TestReads(t *testing.T) {
	fb := &fakeBackend{balance: big.NewInt(1234), allowance: big.NewInt(0), symbol: "NAD", baseFee: big.NewInt(50)}
	c := newTestClient(t, fb)
	ctx := context.Background()

	bal, err := c.TokenBalance(ctx, testToken)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), bal.Int64())

	allowance, err := c.Allowance(ctx, testToken)
	require.NoError(t, err)
	assert.Equal(t, 0, allowance.Sign())

	sym, err := c.Symbol(ctx, testToken)
	require.NoError(t, err)
	assert.Equal(t, "NAD", sym)

	fb.symbol = ""
	_, err = c.Symbol(ctx, testToken)
	assert.Error(t, err)

	fee, err := c.BaseFee(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(50), fee.Int64())

	native, err := c.NativeBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), native.Int64())
}

func TestProtectBuy_EncodesAndSigns(t *testing.T) {
	fb := &fakeBackend{baseFee: big.NewInt(100)}
	c := newTestClient(t, fb)

	p := BuyParams{
		AmountIn:     big.NewInt(1000),
		AmountOutMin: big.NewInt(0),
		Fee:          big.NewInt(10),
		Token:        testToken,
		To:           c.Address(),
		Deadline:     big.NewInt(1_700_021_600),
	}
	tx, err := c.ProtectBuy(context.Background(), p, TxOpts{GasLimit: 300000, FeePerGas: big.NewInt(105), Value: big.NewInt(1010)})
	require.NoError(t, err)
	require.Len(t, fb.sent, 1)

	assert.Equal(t, uint8(ethtypes.DynamicFeeTxType), tx.Type())
	assert.Equal(t, testRouter, *tx.To())
	assert.Equal(t, int64(1010), tx.Value().Int64())
	assert.Equal(t, uint64(300000), tx.Gas())
	assert.Equal(t, int64(105), tx.GasFeeCap().Int64())
	assert.Equal(t, int64(105), tx.GasTipCap().Int64())
	assert.Equal(t, int64(10143), tx.ChainId().Int64())

	m := routerABI.Methods["protectBuy"]
	require.True(t, bytes.Equal(m.ID, tx.Data()[:4]))
	args, err := m.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, int64(1000), args[0].(*big.Int).Int64())
	assert.Equal(t, int64(10), args[2].(*big.Int).Int64())
	assert.Equal(t, testToken, args[3].(common.Address))
	assert.Equal(t, c.Address(), args[4].(common.Address))

	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(big.NewInt(10143)), tx)
	require.NoError(t, err)
	assert.Equal(t, c.Address(), from)
}

func TestProtectSell_Encodes(t *testing.T) {
	fb := &fakeBackend{baseFee: big.NewInt(100)}
	c := newTestClient(t, fb)

	tx, err := c.ProtectSell(context.Background(), SellParams{
		AmountIn:     big.NewInt(77),
		AmountOutMin: big.NewInt(0),
		Token:        testToken,
		To:           c.Address(),
		Deadline:     big.NewInt(1),
	}, TxOpts{GasLimit: 300000, FeePerGas: big.NewInt(105)})
	require.NoError(t, err)
	assert.Equal(t, 0, tx.Value().Sign())

	m := routerABI.Methods["protectSell"]
	args, err := m.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, int64(77), args[0].(*big.Int).Int64())
	assert.Equal(t, testToken, args[2].(common.Address))
}

func TestApprove_MaxAndGasFallback(t *testing.T) {
	fb := &fakeBackend{baseFee: big.NewInt(100), estimateErr: errors.New("estimate failed")}
	c := newTestClient(t, fb)

	receipt, err := c.Approve(context.Background(), testToken)
	require.NoError(t, err)
	assert.Equal(t, uint64(43), receipt.BlockNumber.Uint64())
	require.Len(t, fb.sent, 1)

	tx := fb.sent[0]
	assert.Equal(t, testToken, *tx.To())
	assert.Equal(t, uint64(approveGasFallback), tx.Gas())
	assert.Equal(t, int64(105), tx.GasFeeCap().Int64())

	m := erc20ABI.Methods["approve"]
	args, err := m.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, testRouter, args[0].(common.Address))
	assert.Equal(t, 0, MaxUint256.Cmp(args[1].(*big.Int)))
}

func TestWaitMined_Reverted(t *testing.T) {
	fb := &fakeBackend{baseFee: big.NewInt(100), revert: true}
	c := newTestClient(t, fb)

	tx, err := c.ProtectSell(context.Background(), SellParams{
		AmountIn: big.NewInt(1), AmountOutMin: big.NewInt(0), Token: testToken, To: c.Address(), Deadline: big.NewInt(1),
	}, TxOpts{GasLimit: 1, FeePerGas: big.NewInt(1)})
	require.NoError(t, err)

	_, err = c.WaitMined(context.Background(), tx)
	assert.ErrorIs(t, err, ErrReverted)
}
