package oracle

import (
	"encoding/json"
	"fmt"
)

const systemPrompt = `You are a disciplined perpetual futures trading analyst.
You receive one market snapshot per cycle and must answer with a single JSON
object, nothing else:

{
  "action": "LONG" | "SHORT" | "CLOSE" | "HOLD",
  "confidence": "HIGH" | "MEDIUM" | "LOW",
  "entry_price": <number or null>,
  "tp_price": <number or null>,
  "sl_price": <number or null>,
  "analysis": "<one or two sentences>"
}

Rules:
- LONG/SHORT express the side you want to hold, not an order to stack.
- CLOSE exits the current position; use it only with HIGH confidence.
- When no position is open and the setup is weak, answer HOLD.
- Prices are optional; omit them rather than guessing.`

// BuildUserPrompt serializes the snapshot and position into the per-cycle
// message. Keeping it plain JSON makes model swaps painless.
func BuildUserPrompt(req Request) (string, error) {
	payload := map[string]any{
		"market": req.Snapshot,
	}
	if req.Position != nil {
		payload["position"] = req.Position
		payload["adding_allowed"] = req.CanAdd
	} else {
		payload["position"] = nil
	}
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal prompt: %w", err)
	}
	return fmt.Sprintf("Current state for %s (%s):\n%s\nDecide now.",
		req.Snapshot.Symbol, req.Snapshot.Timeframe, b), nil
}
