package domain

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// HoldingRecord 持仓记录，字段名与 sniped_tokens.json 兼容
type HoldingRecord struct {
	ContractAddress string `json:"contract_address"`
	WalletAddress   string `json:"wallet_address"`
	BoughtAt        int64  `json:"bought_at"`       // unix 秒
	BoughtAtPrice   string `json:"bought_at_price"` // 十进制字符串
	Symbol          string `json:"symbol"`
	Name            string `json:"name"`
}

// Canonical 返回地址规范化后的副本
func (h HoldingRecord) Canonical() HoldingRecord {
	h.ContractAddress = CanonicalAddress(h.ContractAddress)
	h.WalletAddress = CanonicalAddress(h.WalletAddress)
	return h
}

// Matches 合约地址和钱包地址均大小写不敏感匹配
func (h HoldingRecord) Matches(contract, wallet string) bool {
	return CanonicalAddress(h.ContractAddress) == CanonicalAddress(contract) &&
		CanonicalAddress(h.WalletAddress) == CanonicalAddress(wallet)
}

// UnmarshalJSON 兼容 bought_at_price 为数字或字符串两种写法
func (h *HoldingRecord) UnmarshalJSON(b []byte) error {
	type plain HoldingRecord
	aux := struct {
		*plain
		BoughtAtPrice json.RawMessage `json:"bought_at_price"`
	}{plain: (*plain)(h)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	raw := bytes.TrimSpace(aux.BoughtAtPrice)
	switch {
	case len(raw) == 0 || string(raw) == "null":
		h.BoughtAtPrice = ""
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		h.BoughtAtPrice = s
	default:
		h.BoughtAtPrice = string(raw)
	}
	return nil
}

// EntryPrice 解析买入价格；无法解析或不为正时 ok=false
func (h HoldingRecord) EntryPrice() (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(h.BoughtAtPrice)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

// HeldFor 持有时长
func (h HoldingRecord) HeldFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(h.BoughtAt, 0))
}
