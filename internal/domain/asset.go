package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CanonicalAddress 地址统一小写，所有比较和存储键都经过它
func CanonicalAddress(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// AssetCandidate 发现接口返回的新上线代币（只在一个周期内存在）
type AssetCandidate struct {
	Address    string          // 合约地址（已规范化）
	Symbol     string          // 代币符号
	Name       string          // 代币名称
	Price      decimal.Decimal // 发现时的价格（原生币计价）
	CreatedAt  int64           // 创建时间（unix 秒）
	MarketType string          // 市场类型（如 CURVE / DEX）
}

// AgeSeconds 相对 now 的年龄（秒）
func (c AssetCandidate) AgeSeconds(nowUnix int64) int64 {
	return nowUnix - c.CreatedAt
}
