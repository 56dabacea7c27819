package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/nadsniper/internal/domain"
)

// TransientFetchError 发现接口暂时不可用（网络错误或非 2xx），本周期跳过
type TransientFetchError struct {
	URL string
	Err error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("discovery fetch %s: %v", e.URL, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// Getter 由 pkg/sdk/http.Client 实现
type Getter interface {
	GetJSON(ctx context.Context, url string, out any) error
}

// Seen 判断地址是否已持有或本次运行已处理；*ledger.Ledger 实现
type Seen interface {
	Has(address string) bool
	IsProcessed(address string) bool
}

type Feed struct {
	client Getter
	url    string
	log    logrus.FieldLogger
}

func NewFeed(client Getter, url string, log logrus.FieldLogger) *Feed {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Feed{client: client, url: url, log: log}
}

type latestTradeResponse struct {
	OrderToken []struct {
		TokenInfo json.RawMessage `json:"token_info"`
	} `json:"order_token"`
}

type tokenInfo struct {
	TokenID    string          `json:"token_id"`
	Name       string          `json:"name"`
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	CreatedAt  unixSeconds     `json:"created_at"`
	MarketType string          `json:"market_type"`
}

// unixSeconds 接受数字或数字字符串
type unixSeconds int64

func (u *unixSeconds) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*u = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("created_at: %w", err)
	}
	*u = unixSeconds(v)
	return nil
}

// FetchCandidates 拉取最新上线代币，顺序与接口一致（最新在前）。不做重试。
func (f *Feed) FetchCandidates(ctx context.Context) ([]domain.AssetCandidate, error) {
	var resp latestTradeResponse
	if err := f.client.GetJSON(ctx, f.url, &resp); err != nil {
		return nil, &TransientFetchError{URL: f.url, Err: err}
	}

	out := make([]domain.AssetCandidate, 0, len(resp.OrderToken))
	for i, item := range resp.OrderToken {
		// 单条坏数据只跳过该条，不影响同批其它代币
		var ti tokenInfo
		if err := json.Unmarshal(item.TokenInfo, &ti); err != nil {
			f.log.Debugf("discovery: skip entry %d: %v", i, err)
			continue
		}
		addr := domain.CanonicalAddress(ti.TokenID)
		if addr == "" {
			continue
		}
		// 没有价格就无法计算止盈止损
		if !ti.Price.IsPositive() {
			f.log.Debugf("discovery: skip %s: no price", addr)
			continue
		}
		out = append(out, domain.AssetCandidate{
			Address:    addr,
			Symbol:     ti.Symbol,
			Name:       ti.Name,
			Price:      ti.Price,
			CreatedAt:  int64(ti.CreatedAt),
			MarketType: ti.MarketType,
		})
	}
	f.log.Debugf("discovery: %d candidates", len(out))
	return out, nil
}

// FilterRecent 保留 now-createdAt <= maxAge 的候选（边界包含）
func FilterRecent(candidates []domain.AssetCandidate, maxAge time.Duration, now time.Time) []domain.AssetCandidate {
	nowUnix := now.Unix()
	limit := int64(maxAge / time.Second)
	out := make([]domain.AssetCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.AgeSeconds(nowUnix) <= limit {
			out = append(out, c)
		}
	}
	return out
}

// SelectNew 去掉已持有或已处理的候选，保持输入顺序
func SelectNew(candidates []domain.AssetCandidate, seen Seen) []domain.AssetCandidate {
	out := make([]domain.AssetCandidate, 0, len(candidates))
	for _, c := range candidates {
		addr := domain.CanonicalAddress(c.Address)
		if seen.Has(addr) || seen.IsProcessed(addr) {
			continue
		}
		out = append(out, c)
	}
	return out
}

var _ json.Unmarshaler = (*unixSeconds)(nil)
