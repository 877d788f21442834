package market

import "context"

// Source supplies OHLCV history for indicator snapshots. Implementations
// must be safe for concurrent use across pair cycles.
type Source interface {
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)

	Close() error
}
