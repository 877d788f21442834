package engine

import (
	"github.com/shopspring/decimal"

	"helmsman/internal/config"
	"helmsman/internal/gateway/exchange"
	"helmsman/internal/signal"
)

// quantityScale bounds order quantity precision; Binance futures steps are
// coarser, the exchange connector truncates further if needed.
const quantityScale = 6

// Plan is an approved order size. Margin is the initial margin the plan
// consumes, Notional is margin times leverage.
type Plan struct {
	Quantity decimal.Decimal
	Notional decimal.Decimal
	Margin   decimal.Decimal
	Leverage int
}

// Sizer turns a directional signal plus a fresh account snapshot into an
// order size, or rejects the trade. It never mutates anything.
type Sizer struct {
	risk config.RiskConfig
}

func NewSizer(risk config.RiskConfig) *Sizer {
	return &Sizer{risk: risk}
}

// PlanEntry sizes an open or add against the held position (zero value when
// flat). The account snapshot must be freshly read; stale snapshots make the
// ceiling checks meaningless.
func (s *Sizer) PlanEntry(acct exchange.AccountState, pair config.PairConfig, conf signal.Confidence, price decimal.Decimal, pos Position) (Plan, error) {
	if price.Sign() <= 0 {
		return Plan{}, riskRejectedf("no usable price for %s", pair.Symbol)
	}

	ratio, ok := s.risk.ConfidenceRatios[string(conf)]
	if !ok || ratio <= 0 {
		return Plan{}, riskRejectedf("no sizing ratio for confidence %s", conf)
	}

	margin := acct.AvailableBalance.Mul(decimal.NewFromFloat(ratio))
	if floor := decimal.NewFromFloat(pair.Amount); margin.LessThan(floor) {
		margin = floor
	}
	if margin.GreaterThan(acct.AvailableBalance) {
		return Plan{}, riskRejectedf("insufficient available balance: need %s, have %s",
			margin, acct.AvailableBalance)
	}

	ceiling := acct.Equity.
		Mul(decimal.NewFromFloat(s.risk.MaxTotalMarginRatio)).
		Mul(decimal.NewFromFloat(s.risk.MarginSafetyBuffer))
	if acct.UsedMargin.Add(margin).GreaterThan(ceiling) {
		return Plan{}, riskRejectedf("margin ceiling: used %s + plan %s exceeds %s",
			acct.UsedMargin, margin, ceiling)
	}

	leverage := pair.ClampLeverage(0)
	if !pos.Flat() {
		// Adds keep the position's leverage.
		leverage = pair.ClampLeverage(pos.Leverage)
	}
	notional := margin.Mul(decimal.NewFromInt(int64(leverage)))

	// An add is also capped by total position value: the held notional plus
	// the new one must stay within usable margin times leverage. The margin
	// ceiling alone cannot see this when the snapshot's used margin is stale
	// or simulated.
	if !pos.Flat() {
		maxValue := ceiling.Mul(decimal.NewFromInt(int64(leverage)))
		if pos.Notional().Add(notional).GreaterThan(maxValue) {
			return Plan{}, riskRejectedf("position cap: held %s + add %s exceeds %s",
				pos.Notional(), notional, maxValue)
		}
	}

	quantity := notional.Div(price).RoundDown(quantityScale)
	if quantity.Sign() <= 0 {
		return Plan{}, riskRejectedf("size rounds to zero at price %s", price)
	}

	return Plan{
		Quantity: quantity,
		Notional: notional,
		Margin:   margin,
		Leverage: leverage,
	}, nil
}
