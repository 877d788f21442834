package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestExitPlanExplicitLevelsLong(t *testing.T) {
	plan := ExitPlan{
		TakeProfit: decimal.NewFromInt(110),
		StopLoss:   decimal.NewFromInt(95),
	}
	entry := decimal.NewFromInt(100)

	hit, reason := plan.Breached(SideLong, entry, decimal.NewFromInt(105))
	assert.False(t, hit, reason)

	hit, reason = plan.Breached(SideLong, entry, decimal.NewFromInt(110))
	assert.True(t, hit)
	assert.Equal(t, "take_profit", reason)

	hit, reason = plan.Breached(SideLong, entry, decimal.NewFromInt(94))
	assert.True(t, hit)
	assert.Equal(t, "stop_loss", reason)
}

func TestExitPlanExplicitLevelsShort(t *testing.T) {
	plan := ExitPlan{
		TakeProfit: decimal.NewFromInt(90),
		StopLoss:   decimal.NewFromInt(106),
	}
	entry := decimal.NewFromInt(100)

	hit, reason := plan.Breached(SideShort, entry, decimal.NewFromInt(89))
	assert.True(t, hit)
	assert.Equal(t, "take_profit", reason)

	hit, reason = plan.Breached(SideShort, entry, decimal.NewFromInt(107))
	assert.True(t, hit)
	assert.Equal(t, "stop_loss", reason)

	hit, _ = plan.Breached(SideShort, entry, decimal.NewFromInt(100))
	assert.False(t, hit)
}

func TestExitPlanDefaultsToFivePercent(t *testing.T) {
	var plan ExitPlan
	entry := decimal.NewFromInt(1000)

	hit, _ := plan.Breached(SideLong, entry, decimal.NewFromInt(1049))
	assert.False(t, hit)

	hit, reason := plan.Breached(SideLong, entry, decimal.NewFromInt(1050))
	assert.True(t, hit)
	assert.Equal(t, "take_profit", reason)

	hit, reason = plan.Breached(SideLong, entry, decimal.NewFromInt(950))
	assert.True(t, hit)
	assert.Equal(t, "stop_loss", reason)
}

func TestExitPlanIgnoresBadInputs(t *testing.T) {
	var plan ExitPlan
	hit, _ := plan.Breached(SideLong, decimal.Zero, decimal.NewFromInt(100))
	assert.False(t, hit)

	hit, _ = plan.Breached(SideFlat, decimal.NewFromInt(100), decimal.NewFromInt(100))
	assert.False(t, hit)
}

func TestExitBookLifecycle(t *testing.T) {
	b := NewExitBook()
	key := "m1|ETH/USDT:USDT"

	_, ok := b.Get(key)
	assert.False(t, ok)

	b.Set(key, ExitPlan{TakeProfit: decimal.NewFromInt(110)})
	plan, ok := b.Get(key)
	assert.True(t, ok)
	assert.True(t, plan.TakeProfit.Equal(decimal.NewFromInt(110)))

	b.Clear(key)
	_, ok = b.Get(key)
	assert.False(t, ok)
}
