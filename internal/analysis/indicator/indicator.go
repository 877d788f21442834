package indicator

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"helmsman/internal/market"
)

// Settings describes the minimal configuration for a snapshot.
type Settings struct {
	Symbol    string
	Timeframe string

	// Moving-average windows, in candles.
	ShortWindow  int
	MediumWindow int
	LongWindow   int

	RSIPeriod int
	ATRPeriod int
}

// Snapshot is the derived feature set handed to the signal oracle. It is a
// pure function of the candle history.
type Snapshot struct {
	Symbol    string  `json:"symbol"`
	Timeframe string  `json:"timeframe"`
	Count     int     `json:"count"`
	Price     float64 `json:"price"`
	ChangePct float64 `json:"change_pct"`

	SMAShort  float64 `json:"sma_short"`
	SMAMedium float64 `json:"sma_medium"`
	SMALong   float64 `json:"sma_long"`

	RSI        float64 `json:"rsi"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDHist   float64 `json:"macd_hist"`

	BBUpper  float64 `json:"bb_upper"`
	BBMiddle float64 `json:"bb_middle"`
	BBLower  float64 `json:"bb_lower"`

	ATR float64 `json:"atr"`

	Warnings []string `json:"warnings,omitempty"`
}

// Compute derives the indicator snapshot from closed candles.
func Compute(candles []market.Candle, cfg Settings) (Snapshot, error) {
	snap := Snapshot{
		Symbol:    cfg.Symbol,
		Timeframe: cfg.Timeframe,
		Count:     len(candles),
	}
	if len(candles) == 0 {
		return snap, fmt.Errorf("no candles")
	}
	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}
	snap.Price = closes[len(closes)-1]
	snap.ChangePct = market.ChangePct(candles)

	if cfg.ShortWindow <= 0 {
		cfg.ShortWindow = 20
	}
	if cfg.MediumWindow <= 0 {
		cfg.MediumWindow = 50
	}
	if cfg.LongWindow <= 0 {
		cfg.LongWindow = 96
	}
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = 14
	}
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = 14
	}

	snap.SMAShort = lastValid(sanitize(talib.Sma(closes, cfg.ShortWindow)))
	snap.SMAMedium = lastValid(sanitize(talib.Sma(closes, cfg.MediumWindow)))
	if len(closes) >= cfg.LongWindow {
		snap.SMALong = lastValid(sanitize(talib.Sma(closes, cfg.LongWindow)))
	} else {
		snap.Warnings = append(snap.Warnings,
			fmt.Sprintf("long window %d exceeds history %d", cfg.LongWindow, len(closes)))
	}

	snap.RSI = lastValid(sanitize(talib.Rsi(closes, cfg.RSIPeriod)))

	macd, macdSignal, macdHist := talib.Macd(closes, 12, 26, 9)
	snap.MACD = lastValid(sanitize(macd))
	snap.MACDSignal = lastValid(sanitize(macdSignal))
	snap.MACDHist = lastValid(sanitize(macdHist))

	upper, middle, lower := talib.BBands(closes, 20, 2, 2, talib.SMA)
	snap.BBUpper = lastValid(sanitize(upper))
	snap.BBMiddle = lastValid(sanitize(middle))
	snap.BBLower = lastValid(sanitize(lower))

	snap.ATR = lastValid(sanitize(talib.Atr(highs, lows, closes, cfg.ATRPeriod)))

	return snap, nil
}

func sanitize(series []float64) []float64 {
	for i, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			series[i] = 0
		}
	}
	return series
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if series[i] != 0 {
			return series[i]
		}
	}
	return 0
}
