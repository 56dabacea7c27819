// Package executortest provides an in-memory Chain for executor and
// controller tests.
package executortest

import (
	"context"
	"crypto/sha256"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/betbot/nadsniper/internal/chain"
)

// Chain records every call and lets tests script balances and failures.
type Chain struct {
	mu sync.Mutex

	From       common.Address
	BaseFeeWei *big.Int
	Balances   map[common.Address]*big.Int
	Allowances map[common.Address]*big.Int
	Symbols    map[common.Address]string

	BuyErr     error
	SellErr    error
	ApproveErr error
	RevertNext bool

	Buys           []chain.BuyParams
	BuyOpts        []chain.TxOpts
	Sells          []chain.SellParams
	SellOpts       []chain.TxOpts
	Approvals      []common.Address
	AllowanceCalls int

	nonce uint64
	block uint64
}

func NewChain(from common.Address) *Chain {
	return &Chain{
		From:       from,
		BaseFeeWei: big.NewInt(100),
		Balances:   map[common.Address]*big.Int{},
		Allowances: map[common.Address]*big.Int{},
		Symbols:    map[common.Address]string{},
		block:      100,
	}
}

func (c *Chain) Address() common.Address { return c.From }

func (c *Chain) TokenBalance(_ context.Context, token common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.Balances[token]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (c *Chain) Allowance(_ context.Context, token common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.AllowanceCalls++
	if a, ok := c.Allowances[token]; ok {
		return new(big.Int).Set(a), nil
	}
	return big.NewInt(0), nil
}

func (c *Chain) Approve(_ context.Context, token common.Address) (*ethtypes.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Approvals = append(c.Approvals, token)
	if c.ApproveErr != nil {
		return nil, c.ApproveErr
	}
	c.Allowances[token] = new(big.Int).Set(chain.MaxUint256)
	c.block++
	return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful, BlockNumber: new(big.Int).SetUint64(c.block)}, nil
}

func (c *Chain) Symbol(_ context.Context, token common.Address) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.Symbols[token]; ok {
		return s, nil
	}
	return "", errors.New("execution reverted")
}

func (c *Chain) BaseFee(context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.BaseFeeWei), nil
}

func (c *Chain) ProtectBuy(_ context.Context, p chain.BuyParams, opts chain.TxOpts) (*ethtypes.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Buys = append(c.Buys, p)
	c.BuyOpts = append(c.BuyOpts, opts)
	if c.BuyErr != nil {
		return nil, c.BuyErr
	}
	c.Balances[p.Token] = big.NewInt(1_000_000)
	return c.tx(opts), nil
}

func (c *Chain) ProtectSell(_ context.Context, p chain.SellParams, opts chain.TxOpts) (*ethtypes.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sells = append(c.Sells, p)
	c.SellOpts = append(c.SellOpts, opts)
	if c.SellErr != nil {
		return nil, c.SellErr
	}
	return c.tx(opts), nil
}

func (c *Chain) WaitMined(_ context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.block++
	r := &ethtypes.Receipt{TxHash: tx.Hash(), Status: ethtypes.ReceiptStatusSuccessful, BlockNumber: new(big.Int).SetUint64(c.block)}
	if c.RevertNext {
		c.RevertNext = false
		r.Status = ethtypes.ReceiptStatusFailed
		return r, chain.ErrReverted
	}
	return r, nil
}

func (c *Chain) tx(opts chain.TxOpts) *ethtypes.Transaction {
	c.nonce++
	var to common.Address
	h := sha256.Sum256(new(big.Int).SetUint64(c.nonce).Bytes())
	copy(to[:], h[:20])
	value := opts.Value
	if value == nil {
		value = new(big.Int)
	}
	return ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   big.NewInt(10143),
		Nonce:     c.nonce,
		To:        &to,
		Gas:       opts.GasLimit,
		GasFeeCap: opts.FeePerGas,
		GasTipCap: opts.FeePerGas,
		Value:     value,
	})
}
