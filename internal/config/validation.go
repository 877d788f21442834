package config

import (
	"fmt"
	"strings"
)

func validate(cfg *Config) error {
	if len(cfg.Pairs) == 0 {
		return fmt.Errorf("at least one pair must be configured")
	}
	if len(cfg.EnabledModels()) == 0 {
		return fmt.Errorf("at least one model must be enabled")
	}
	seen := make(map[string]bool)
	for _, m := range cfg.Models {
		id := strings.TrimSpace(m.ID)
		if id == "" {
			return fmt.Errorf("model id cannot be empty")
		}
		if seen[id] {
			return fmt.Errorf("duplicate model id: %s", id)
		}
		seen[id] = true
		if m.Enabled && strings.TrimSpace(m.Model) == "" {
			return fmt.Errorf("model %s: model name is required", id)
		}
	}
	for _, p := range cfg.Pairs {
		if strings.TrimSpace(p.Symbol) == "" {
			return fmt.Errorf("pair symbol cannot be empty")
		}
		if p.Amount <= 0 {
			return fmt.Errorf("pair %s: amount must be > 0", p.Symbol)
		}
		if p.LeverageMin > p.LeverageMax {
			return fmt.Errorf("pair %s: leverage_min > leverage_max", p.Symbol)
		}
		if p.LeverageDefault < p.LeverageMin || p.LeverageDefault > p.LeverageMax {
			return fmt.Errorf("pair %s: leverage_default outside [%d,%d]", p.Symbol, p.LeverageMin, p.LeverageMax)
		}
	}
	for level, ratio := range cfg.Risk.ConfidenceRatios {
		if ratio <= 0 || ratio > 1 {
			return fmt.Errorf("confidence ratio %s must be in (0,1]: %v", level, ratio)
		}
	}
	if cfg.Risk.MaxTotalMarginRatio <= 0 || cfg.Risk.MaxTotalMarginRatio > 1 {
		return fmt.Errorf("max_total_margin_ratio must be in (0,1]")
	}
	if cfg.Risk.MarginSafetyBuffer <= 0 || cfg.Risk.MarginSafetyBuffer > 1 {
		return fmt.Errorf("margin_safety_buffer must be in (0,1]")
	}
	return nil
}
