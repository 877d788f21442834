package config

import "strings"

// Defaults mirror the risk parameters the live bot shipped with.
const (
	defaultMaxTotalMarginRatio = 0.85
	defaultMarginSafetyBuffer  = 0.90
	defaultInterval            = "5m"
	defaultTimeoutSeconds      = 90
	defaultDataPoints          = 96
	defaultMaxOrderRetries     = 2
)

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = ":8080"
	}
	if c.Store.Path == "" {
		c.Store.Path = "data/helmsman.db"
	}
	if c.Risk.ConfidenceRatios == nil {
		c.Risk.ConfidenceRatios = map[string]float64{
			"HIGH":   0.30,
			"MEDIUM": 0.20,
			"LOW":    0.05,
		}
	}
	if c.Risk.MaxTotalMarginRatio <= 0 {
		c.Risk.MaxTotalMarginRatio = defaultMaxTotalMarginRatio
	}
	if c.Risk.MarginSafetyBuffer <= 0 {
		c.Risk.MarginSafetyBuffer = defaultMarginSafetyBuffer
	}
	if c.Risk.CooldownMinutes <= 0 {
		c.Risk.CooldownMinutes = 10
	}
	if c.Risk.HighOnlyMinutes <= 0 {
		c.Risk.HighOnlyMinutes = 20
	}
	if c.Risk.ReversalGuardMinutes <= 0 {
		c.Risk.ReversalGuardMinutes = 30
	}
	if c.Risk.MaxOrderRetries <= 0 {
		c.Risk.MaxOrderRetries = defaultMaxOrderRetries
	}
	if c.Scheduler.Interval == "" {
		c.Scheduler.Interval = defaultInterval
	}
	if c.Scheduler.TimeoutSeconds <= 0 {
		c.Scheduler.TimeoutSeconds = defaultTimeoutSeconds
	}
	if c.Exchange.TimeoutSeconds <= 0 {
		c.Exchange.TimeoutSeconds = 30
	}
	for i := range c.Pairs {
		p := &c.Pairs[i]
		p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
		if p.Timeframe == "" {
			p.Timeframe = c.Scheduler.Interval
		}
		if p.DataPoints <= 0 {
			p.DataPoints = defaultDataPoints
		}
		if p.LeverageDefault <= 0 {
			p.LeverageDefault = 2
		}
		if p.LeverageMin <= 0 {
			p.LeverageMin = 1
		}
		if p.LeverageMax <= 0 {
			p.LeverageMax = 3
		}
		if p.ShortWindow <= 0 {
			p.ShortWindow = 20
		}
		if p.MediumWindow <= 0 {
			p.MediumWindow = 50
		}
		if p.LongWindow <= 0 {
			p.LongWindow = 96
		}
	}
}
