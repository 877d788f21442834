package signal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"helmsman/internal/pkg/jsonutil"
)

// ErrInvalidSignal marks malformed oracle output. The cycle that hit it is
// skipped; nothing is ordered and nothing mutates.
var ErrInvalidSignal = errors.New("invalid signal")

// Normalize validates and coerces raw oracle output into a Signal.
// Pure parse+validate: no side effects, no defaults for unknown enums.
func Normalize(raw string) (Signal, error) {
	payload, ok := jsonutil.ExtractObject(raw)
	if !ok {
		return Signal{}, fmt.Errorf("%w: no JSON object in oracle output", ErrInvalidSignal)
	}
	if !gjson.Valid(payload) {
		return Signal{}, fmt.Errorf("%w: malformed JSON", ErrInvalidSignal)
	}
	parsed := gjson.Parse(payload)

	action, err := parseAction(parsed.Get("action").String())
	if err != nil {
		return Signal{}, err
	}
	confidence, err := parseConfidence(parsed.Get("confidence").String())
	if err != nil {
		return Signal{}, err
	}

	sig := Signal{
		Action:     action,
		Confidence: confidence,
		Rationale:  strings.TrimSpace(parsed.Get("analysis").String()),
	}
	if sig.EntryPrice, err = parsePrice(parsed, "entry_price"); err != nil {
		return Signal{}, err
	}
	if sig.TakeProfit, err = parsePrice(parsed, "tp_price"); err != nil {
		return Signal{}, err
	}
	if sig.StopLoss, err = parsePrice(parsed, "sl_price"); err != nil {
		return Signal{}, err
	}
	return sig, nil
}

func parseAction(raw string) (Action, error) {
	switch Action(strings.ToUpper(strings.TrimSpace(raw))) {
	case ActionLong:
		return ActionLong, nil
	case ActionShort:
		return ActionShort, nil
	case ActionClose:
		return ActionClose, nil
	case ActionHold:
		return ActionHold, nil
	default:
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidSignal, raw)
	}
}

func parseConfidence(raw string) (Confidence, error) {
	switch Confidence(strings.ToUpper(strings.TrimSpace(raw))) {
	case ConfidenceHigh:
		return ConfidenceHigh, nil
	case ConfidenceMedium:
		return ConfidenceMedium, nil
	case ConfidenceLow:
		return ConfidenceLow, nil
	default:
		return "", fmt.Errorf("%w: unknown confidence %q", ErrInvalidSignal, raw)
	}
}

// parsePrice accepts absent/null fields but rejects anything present that is
// not a positive finite decimal.
func parsePrice(parsed gjson.Result, key string) (decimal.Decimal, error) {
	field := parsed.Get(key)
	if !field.Exists() || field.Type == gjson.Null {
		return decimal.Zero, nil
	}
	var raw string
	switch field.Type {
	case gjson.Number:
		raw = field.Raw
	case gjson.String:
		raw = strings.TrimSpace(field.String())
		if raw == "" {
			return decimal.Zero, nil
		}
	default:
		return decimal.Zero, fmt.Errorf("%w: %s is not numeric", ErrInvalidSignal, key)
	}
	val, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s=%q is not a valid decimal", ErrInvalidSignal, key, raw)
	}
	if val.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidSignal, key, val)
	}
	return val, nil
}
