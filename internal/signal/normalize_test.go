package signal

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePlainObject(t *testing.T) {
	raw := `{"action":"LONG","confidence":"HIGH","entry_price":2450.5,"tp_price":2550,"sl_price":2400,"analysis":"trend continuation"}`

	sig, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, ActionLong, sig.Action)
	assert.Equal(t, ConfidenceHigh, sig.Confidence)
	assert.True(t, sig.EntryPrice.Equal(decimal.NewFromFloat(2450.5)))
	assert.True(t, sig.TakeProfit.Equal(decimal.NewFromInt(2550)))
	assert.True(t, sig.StopLoss.Equal(decimal.NewFromInt(2400)))
	assert.Equal(t, "trend continuation", sig.Rationale)
	assert.True(t, sig.Directional())
}

func TestNormalizeFencedWithProse(t *testing.T) {
	raw := "Looking at the chart, momentum is fading.\n```json\n{\"action\": \"SHORT\", \"confidence\": \"MEDIUM\", \"analysis\": \"rejection at resistance\"}\n```\nThat is my call."

	sig, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, ActionShort, sig.Action)
	assert.Equal(t, ConfidenceMedium, sig.Confidence)
	assert.True(t, sig.EntryPrice.IsZero())
}

func TestNormalizeLowercaseEnums(t *testing.T) {
	sig, err := Normalize(`{"action":"hold","confidence":"low"}`)
	require.NoError(t, err)
	assert.Equal(t, ActionHold, sig.Action)
	assert.Equal(t, ConfidenceLow, sig.Confidence)
	assert.False(t, sig.Directional())
}

func TestNormalizeStringPrices(t *testing.T) {
	sig, err := Normalize(`{"action":"LONG","confidence":"HIGH","entry_price":"101.25","tp_price":null}`)
	require.NoError(t, err)
	assert.True(t, sig.EntryPrice.Equal(decimal.NewFromFloat(101.25)))
	assert.True(t, sig.TakeProfit.IsZero())
}

func TestNormalizeRejectsUnknownAction(t *testing.T) {
	_, err := Normalize(`{"action":"BUY","confidence":"HIGH"}`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSignal))
}

func TestNormalizeRejectsUnknownConfidence(t *testing.T) {
	_, err := Normalize(`{"action":"LONG","confidence":"EXTREME"}`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSignal))
}

func TestNormalizeRejectsMissingFields(t *testing.T) {
	_, err := Normalize(`{"analysis":"no idea"}`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSignal))
}

func TestNormalizeRejectsNonPositivePrice(t *testing.T) {
	_, err := Normalize(`{"action":"LONG","confidence":"HIGH","entry_price":-5}`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSignal))

	_, err = Normalize(`{"action":"LONG","confidence":"HIGH","sl_price":0}`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSignal))
}

func TestNormalizeRejectsNonNumericPrice(t *testing.T) {
	_, err := Normalize(`{"action":"LONG","confidence":"HIGH","entry_price":"around 2400"}`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSignal))
}

func TestNormalizeRejectsNoJSON(t *testing.T) {
	_, err := Normalize("I would go long here with high conviction.")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSignal))
}
