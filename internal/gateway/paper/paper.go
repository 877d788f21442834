// Package paper is the no-keys connector for simulated models. It reports a
// fixed virtual balance; order placement never reaches it because the engine
// synthesizes fills for simulated pairs.
package paper

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"helmsman/internal/gateway/exchange"
)

type Connector struct {
	equity decimal.Decimal
}

func NewConnector(startingEquity float64) *Connector {
	if startingEquity <= 0 {
		startingEquity = 10_000
	}
	return &Connector{equity: decimal.NewFromFloat(startingEquity)}
}

func (c *Connector) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.Fill, error) {
	return nil, exchange.Rejected(fmt.Errorf("paper connector cannot place orders"))
}

func (c *Connector) GetPosition(ctx context.Context, symbol string) (*exchange.Position, error) {
	return nil, nil
}

func (c *Connector) GetAccount(ctx context.Context) (exchange.AccountState, error) {
	return exchange.AccountState{
		Equity:           c.equity,
		AvailableBalance: c.equity,
		UsedMargin:       decimal.Zero,
		UpdatedAt:        time.Now(),
	}, nil
}

func (c *Connector) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return nil
}
