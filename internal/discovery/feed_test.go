package discovery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/nadsniper/internal/domain"
	sdkhttp "github.com/betbot/nadsniper/pkg/sdk/http"
)

type seenSet struct {
	held      map[string]bool
	processed map[string]bool
}

func (s seenSet) Has(a string) bool         { return s.held[a] }
func (s seenSet) IsProcessed(a string) bool { return s.processed[a] }

func TestFilterRecent_Boundary(t *testing.T) {
	now := time.Unix(1000, 0)
	cands := []domain.AssetCandidate{
		{Address: "0xa", CreatedAt: 995},  // age 5, kept
		{Address: "0xb", CreatedAt: 994},  // age 6, dropped
		{Address: "0xc", CreatedAt: 1000}, // age 0, kept
	}
	got := FilterRecent(cands, 5*time.Second, now)
	require.Len(t, got, 2)
	assert.Equal(t, "0xa", got[0].Address)
	assert.Equal(t, "0xc", got[1].Address)
}

func TestSelectNew_ExcludesAndKeepsOrder(t *testing.T) {
	cands := []domain.AssetCandidate{
		{Address: "0xA1"}, {Address: "0xb2"}, {Address: "0xc3"}, {Address: "0xd4"},
	}
	seen := seenSet{
		held:      map[string]bool{"0xb2": true},
		processed: map[string]bool{"0xa1": true},
	}
	got := SelectNew(cands, seen)
	require.Len(t, got, 2)
	assert.Equal(t, "0xc3", got[0].Address)
	assert.Equal(t, "0xd4", got[1].Address)
}

func TestFetchCandidates_Parses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/order/latest_trade", r.URL.Path)
		_, _ = w.Write([]byte(`{"order_token":[
			{"token_info":{"token_id":"0xABC","name":"Alpha","symbol":"ALP","price":"0.0001","created_at":1700000000,"market_type":"CURVE"}},
			{"token_info":{"token_id":"0xdef","name":"Beta","symbol":"BET","price":0.5,"created_at":"1700000001","market_type":"DEX"}},
			{"token_info":{"token_id":"","name":"broken"}}
		]}`))
	}))
	defer srv.Close()

	feed := NewFeed(sdkhttp.NewClient(sdkhttp.Options{}), srv.URL+"/order/latest_trade?page=1&limit=52", logrus.New())
	got, err := feed.FetchCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "0xabc", got[0].Address)
	assert.Equal(t, "ALP", got[0].Symbol)
	assert.True(t, got[0].Price.Equal(decimal.RequireFromString("0.0001")))
	assert.Equal(t, int64(1700000000), got[0].CreatedAt)
	assert.Equal(t, "CURVE", got[0].MarketType)

	assert.True(t, got[1].Price.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, int64(1700000001), got[1].CreatedAt)
}

func TestFetchCandidates_TransientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	feed := NewFeed(sdkhttp.NewClient(sdkhttp.Options{}), srv.URL, nil)
	_, err := feed.FetchCandidates(context.Background())
	var tfe *TransientFetchError
	require.True(t, errors.As(err, &tfe))
	assert.Equal(t, srv.URL, tfe.URL)
}

func TestFetchCandidates_SkipsBadEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"order_token":[
			{"token_info":{"token_id":"0x01","symbol":"BAD","price":"","created_at":1700000000}},
			{"token_info":{"token_id":"0x02","symbol":"AGE","price":"0.1","created_at":"yesterday"}},
			{"token_info":{"token_id":"0x03","symbol":"NOP","created_at":1700000000}},
			{"token_info":{"token_id":"0x04","symbol":"ZER","price":0,"created_at":1700000000}},
			{"token_info":"oops"},
			{"token_info":{"token_id":"0x05","symbol":"OK","price":"0.002","created_at":1700000005}}
		]}`))
	}))
	defer srv.Close()

	feed := NewFeed(sdkhttp.NewClient(sdkhttp.Options{}), srv.URL, nil)
	got, err := feed.FetchCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "0x05", got[0].Address)
	assert.Equal(t, "OK", got[0].Symbol)
}
