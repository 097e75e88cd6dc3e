package polymarket

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyagent/internal/domain"
)

func TestFlexFloat(t *testing.T) {
	var v struct {
		A flexFloat `json:"a"`
		B flexFloat `json:"b"`
		C flexFloat `json:"c"`
		D flexFloat `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 1.5, "b": "2.25", "c": "", "d": null}`), &v))
	assert.Equal(t, flexFloat(1.5), v.A)
	assert.Equal(t, flexFloat(2.25), v.B)
	assert.Zero(t, v.C)
	assert.Zero(t, v.D)
}

func TestMapGammaMarket_RejectsNonBinary(t *testing.T) {
	gm := gammaMarket{
		ConditionID:   "0x1",
		OutcomePrices: `["0.3","0.3","0.4"]`,
		ClobTokenIDs:  `["a","b","c"]`,
	}
	_, err := mapGammaMarket(gm, time.Now())
	assert.Error(t, err)
}

func TestMapGammaMarket_TruncatesDescription(t *testing.T) {
	gm := gammaMarket{
		ConditionID:   "0x1",
		Question:      "Q",
		Description:   strings.Repeat("é", 1500),
		OutcomePrices: `["0.3","0.7"]`,
		ClobTokenIDs:  `["a","b"]`,
	}
	m, err := mapGammaMarket(gm, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1000, len([]rune(m.Description)))
}

func TestFillFromOrderResponse_FallsBackToIntent(t *testing.T) {
	intent := domain.OrderIntent{ID: "i", Quantity: 10, LimitPrice: 0.4, NotionalUSD: 4}
	fill, err := fillFromOrderResponse(intent, clobOrderResponse{Success: true, Status: "MATCHED"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.FillFilled, fill.Status)
	assert.InDelta(t, 10, fill.Shares, 1e-9)
	assert.InDelta(t, 4, fill.CostUSD, 1e-9)
}

func TestBuildSignedOrder_ExactAmounts(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	ac, err := NewAuthClient(NewClient("", "", ""), hex.EncodeToString(crypto.FromECDSA(key)))
	require.NoError(t, err)

	signed, err := ac.buildSignedOrder("12345", 0.57, 5.45, false)
	require.NoError(t, err)
	// 5.45 shares × 0.57 = 3.1065 USDC
	assert.Equal(t, "3106500", signed.Order.MakerAmount.String())
	assert.Equal(t, "5450000", signed.Order.TakerAmount.String())

	_, err = ac.buildSignedOrder("12345", 0.57, 0.001, false)
	assert.Error(t, err, "rounds down to zero shares")
}

func TestDetectPricePrecision(t *testing.T) {
	assert.Equal(t, int64(100), detectPricePrecision(0.60))
	assert.Equal(t, int64(1000), detectPricePrecision(0.673))
	assert.Equal(t, int64(10000), detectPricePrecision(0.6735))
}
