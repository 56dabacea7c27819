package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// ErrReverted 交易已上链但回执 status=0
var ErrReverted = errors.New("transaction reverted")

// approveGasFallback 某些节点对 approve 的 EstimateGas 不稳定，给一个保守兜底
const approveGasFallback = 120000

// Backend 是 *ethclient.Client 中用到的那部分方法
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

type Config struct {
	ChainID        int64
	Router         common.Address
	FeeHeadroomPct int64 // 授权交易的 fee 加价百分比
}

// TxOpts 单笔交易参数；FeePerGas 同时用作 maxFee 和 maxPriorityFee
type TxOpts struct {
	GasLimit  uint64
	FeePerGas *big.Int
	Value     *big.Int
}

type BuyParams struct {
	AmountIn     *big.Int
	AmountOutMin *big.Int
	Fee          *big.Int
	Token        common.Address
	To           common.Address
	Deadline     *big.Int
}

type SellParams struct {
	AmountIn     *big.Int
	AmountOutMin *big.Int
	Token        common.Address
	To           common.Address
	Deadline     *big.Int
}

// Client 对 router / ERC20 的最小封装，所有写操作都用钱包私钥签名 EIP-1559 交易
type Client struct {
	backend Backend
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	cfg     Config
	log     logrus.FieldLogger
}

// Dial 连接 RPC 节点
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接RPC节点失败: %w", err)
	}
	return c, nil
}

func NewClient(backend Backend, key *ecdsa.PrivateKey, cfg Config, log logrus.FieldLogger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		backend: backend,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(cfg.ChainID),
		cfg:     cfg,
		log:     log,
	}
}

func (c *Client) Address() common.Address { return c.from }

func (c *Client) Router() common.Address { return c.cfg.Router }

func (c *Client) NativeBalance(ctx context.Context) (*big.Int, error) {
	return c.backend.BalanceAt(ctx, c.from, nil)
}

// BaseFee 最新区块的 baseFeePerGas
func (c *Client) BaseFee(ctx context.Context) (*big.Int, error) {
	h, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("获取最新区块失败: %w", err)
	}
	if h.BaseFee == nil {
		return nil, errors.New("latest block has no base fee")
	}
	return new(big.Int).Set(h.BaseFee), nil
}

// FeeWithHeadroom baseFee * (100 + pct) / 100
func FeeWithHeadroom(baseFee *big.Int, pct int64) *big.Int {
	out := new(big.Int).Mul(baseFee, big.NewInt(100+pct))
	return out.Div(out, big.NewInt(100))
}

func (c *Client) TokenBalance(ctx context.Context, token common.Address) (*big.Int, error) {
	var bal *big.Int
	if err := c.call(ctx, token, &erc20ABI, &bal, "balanceOf", c.from); err != nil {
		return nil, err
	}
	return bal, nil
}

// Allowance 钱包对 router 的授权额度
func (c *Client) Allowance(ctx context.Context, token common.Address) (*big.Int, error) {
	var allowance *big.Int
	if err := c.call(ctx, token, &erc20ABI, &allowance, "allowance", c.from, c.cfg.Router); err != nil {
		return nil, err
	}
	return allowance, nil
}

func (c *Client) Symbol(ctx context.Context, token common.Address) (string, error) {
	var symbol string
	if err := c.call(ctx, token, &erc20ABI, &symbol, "symbol"); err != nil {
		return "", err
	}
	return symbol, nil
}

// Approve 授权 router 使用 MaxUint256 并等待上链
func (c *Client) Approve(ctx context.Context, token common.Address) (*ethtypes.Receipt, error) {
	data, err := erc20ABI.Pack("approve", c.cfg.Router, MaxUint256)
	if err != nil {
		return nil, err
	}
	baseFee, err := c.BaseFee(ctx)
	if err != nil {
		return nil, err
	}
	gasLimit, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &token, Data: data})
	if err != nil {
		gasLimit = approveGasFallback
	}
	tx, err := c.send(ctx, token, data, TxOpts{
		GasLimit:  gasLimit,
		FeePerGas: FeeWithHeadroom(baseFee, c.cfg.FeeHeadroomPct),
	})
	if err != nil {
		return nil, fmt.Errorf("approve %s: %w", token.Hex(), err)
	}
	return c.WaitMined(ctx, tx)
}

func (c *Client) ProtectBuy(ctx context.Context, p BuyParams, opts TxOpts) (*ethtypes.Transaction, error) {
	data, err := routerABI.Pack("protectBuy", p.AmountIn, p.AmountOutMin, p.Fee, p.Token, p.To, p.Deadline)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, c.cfg.Router, data, opts)
}

func (c *Client) ProtectSell(ctx context.Context, p SellParams, opts TxOpts) (*ethtypes.Transaction, error) {
	data, err := routerABI.Pack("protectSell", p.AmountIn, p.AmountOutMin, p.Token, p.To, p.Deadline)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, c.cfg.Router, data, opts)
}

// WaitMined 等待回执；status=0 返回 ErrReverted
func (c *Client) WaitMined(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("wait %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s in block %d", ErrReverted, tx.Hash().Hex(), receipt.BlockNumber.Uint64())
	}
	return receipt, nil
}

func (c *Client) call(ctx context.Context, to common.Address, a *abi.ABI, out interface{}, method string, args ...interface{}) error {
	data, err := a.Pack(method, args...)
	if err != nil {
		return err
	}
	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("call %s.%s: %w", to.Hex(), method, err)
	}
	if err := a.UnpackIntoInterface(out, method, raw); err != nil {
		return fmt.Errorf("unpack %s: %w", method, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, to common.Address, data []byte, opts TxOpts) (*ethtypes.Transaction, error) {
	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("获取nonce失败: %w", err)
	}
	value := opts.Value
	if value == nil {
		value = new(big.Int)
	}
	tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: opts.FeePerGas,
		GasFeeCap: opts.FeePerGas,
		Gas:       opts.GasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("签名交易失败: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("发送交易失败: %w", err)
	}
	c.log.Debugf("tx sent: hash=%s nonce=%d gas=%d", signed.Hash().Hex(), nonce, opts.GasLimit)
	return signed, nil
}
