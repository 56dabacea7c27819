package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalAddress(t *testing.T) {
	assert.Equal(t, "0xabcdef", CanonicalAddress("  0xABCdef "))
}

func TestHoldingRecord(t *testing.T) {
	h := HoldingRecord{
		ContractAddress: "0xAAA",
		WalletAddress:   "0xBBB",
		BoughtAt:        1_700_000_000,
		BoughtAtPrice:   "0.000123",
	}
	assert.True(t, h.Matches("0xaaa", "0XBBB"))
	assert.False(t, h.Matches("0xaaa", "0xccc"))

	c := h.Canonical()
	assert.Equal(t, "0xaaa", c.ContractAddress)
	assert.Equal(t, "0xbbb", c.WalletAddress)

	p, ok := h.EntryPrice()
	assert.True(t, ok)
	assert.Equal(t, "0.000123", p.String())

	_, ok = HoldingRecord{BoughtAtPrice: "n/a"}.EntryPrice()
	assert.False(t, ok)
	_, ok = HoldingRecord{BoughtAtPrice: "0"}.EntryPrice()
	assert.False(t, ok)
	_, ok = HoldingRecord{}.EntryPrice()
	assert.False(t, ok)

	assert.Equal(t, 2*time.Hour, h.HeldFor(time.Unix(1_700_000_000+7200, 0)))
}

func TestTxResultOK(t *testing.T) {
	assert.True(t, TxResult{Status: TxConfirmed}.OK())
	assert.True(t, TxResult{Status: TxNoop}.OK())
	assert.False(t, TxResult{Status: TxFailed}.OK())
	assert.False(t, TxResult{Status: TxSkipped}.OK())
}

func TestHoldingRecord_UnmarshalPriceNumberOrString(t *testing.T) {
	var recs []HoldingRecord
	err := json.Unmarshal([]byte(`[
		{"contract_address":"0xA","wallet_address":"0xW","bought_at":1700000000,"bought_at_price":0.000123,"symbol":"A","name":"a"},
		{"contract_address":"0xB","wallet_address":"0xW","bought_at":1700000001,"bought_at_price":"0.5","symbol":"B","name":"b"},
		{"contract_address":"0xC","wallet_address":"0xW","bought_at":1700000002,"bought_at_price":null}
	]`), &recs)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, "0.000123", recs[0].BoughtAtPrice)
	assert.Equal(t, "0xA", recs[0].ContractAddress)
	assert.Equal(t, int64(1700000000), recs[0].BoughtAt)
	assert.Equal(t, "a", recs[0].Name)
	assert.Equal(t, "0.5", recs[1].BoughtAtPrice)
	assert.Equal(t, "", recs[2].BoughtAtPrice)

	out, err := json.Marshal(recs[0])
	require.NoError(t, err)
	assert.Contains(t, string(out), `"bought_at_price":"0.000123"`)
}
