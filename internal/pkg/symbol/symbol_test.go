package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToBinance(t *testing.T) {
	assert.Equal(t, "ETHUSDT", ToBinance("ETH/USDT:USDT"))
	assert.Equal(t, "BTCUSDT", ToBinance("btc/usdt:usdt"))
	assert.Equal(t, "ETHUSDT", ToBinance("ETHUSDT"))
	assert.Equal(t, "SOLUSDT", ToBinance(" sol/usdt "))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "ETH/USDT:USDT", Normalize(" eth/usdt:usdt "))
}

func TestBase(t *testing.T) {
	assert.Equal(t, "ETH", Base("ETH/USDT:USDT"))
	assert.Equal(t, "BTCUSDT", Base("BTCUSDT"))
}
