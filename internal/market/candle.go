package market

type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"`
}

// LastClose returns the close of the most recent candle, or 0 when empty.
func LastClose(candles []Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	return candles[len(candles)-1].Close
}

// ChangePct is the percentage move between the first open and last close.
func ChangePct(candles []Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	first := candles[0].Open
	if first == 0 {
		return 0
	}
	return (candles[len(candles)-1].Close - first) / first * 100
}
