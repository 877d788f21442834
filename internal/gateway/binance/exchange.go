package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"helmsman/internal/gateway/exchange"
	symbolpkg "helmsman/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
)

// Binance error codes that mean the order can never succeed as submitted.
var rejectedCodes = map[int64]bool{
	-1111: true, // precision over maximum
	-1121: true, // invalid symbol
	-2019: true, // margin is insufficient
	-2027: true, // exceeded max position
	-4003: true, // quantity less than zero
	-4164: true, // order notional below minimum
}

// Rate-limit class codes; worth retrying after backoff.
var transientCodes = map[int64]bool{
	-1003: true, // too many requests
	-1015: true, // too many orders
}

// Connector implements exchange.Connector against one Binance USD-M futures
// sub-account. Each trading model owns its own Connector instance.
type Connector struct {
	client *futures.Client
}

func NewConnector(apiKey, apiSecret, restBaseURL string, timeout time.Duration) *Connector {
	client := futures.NewClient(apiKey, apiSecret)
	if base := strings.TrimSpace(restBaseURL); base != "" {
		client.BaseURL = base
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client.HTTPClient = &http.Client{Timeout: timeout}
	return &Connector{client: client}
}

func (c *Connector) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.Fill, error) {
	if req.Quantity.Sign() <= 0 {
		return nil, exchange.Rejected(fmt.Errorf("quantity must be positive, got %s", req.Quantity))
	}
	side := futures.SideTypeBuy
	if strings.EqualFold(req.Side, exchange.SideSell) {
		side = futures.SideTypeSell
	}
	svc := c.client.NewCreateOrderService().
		Symbol(symbolpkg.ToBinance(req.Symbol)).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(req.Quantity.String()).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT)
	if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}
	resp, err := svc.Do(ctx)
	if err != nil {
		return nil, classifyOrderError(err)
	}
	if resp.Status != futures.OrderStatusTypeFilled {
		// Accepted but not (fully) filled; the caller must reconcile before
		// trusting either outcome.
		return nil, fmt.Errorf("order %d status %s: %w", resp.OrderID, resp.Status, exchange.ErrUnconfirmed)
	}
	price, err := decimal.NewFromString(resp.AvgPrice)
	if err != nil {
		return nil, fmt.Errorf("parsing avg price %q: %w", resp.AvgPrice, err)
	}
	qty, err := decimal.NewFromString(resp.ExecutedQuantity)
	if err != nil {
		return nil, fmt.Errorf("parsing executed quantity %q: %w", resp.ExecutedQuantity, err)
	}
	return &exchange.Fill{
		OrderID:  strconv.FormatInt(resp.OrderID, 10),
		Symbol:   symbolpkg.Normalize(req.Symbol),
		Side:     string(side),
		Quantity: qty,
		Price:    price,
		FilledAt: time.UnixMilli(resp.UpdateTime),
	}, nil
}

func (c *Connector) GetPosition(ctx context.Context, symbol string) (*exchange.Position, error) {
	risks, err := c.client.NewGetPositionRiskService().Symbol(symbolpkg.ToBinance(symbol)).Do(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range risks {
		if r == nil {
			continue
		}
		amt, perr := decimal.NewFromString(r.PositionAmt)
		if perr != nil || amt.IsZero() {
			continue
		}
		side := "long"
		if amt.Sign() < 0 {
			side = "short"
		}
		entry, _ := decimal.NewFromString(r.EntryPrice)
		pnl, _ := decimal.NewFromString(r.UnRealizedProfit)
		lev, _ := strconv.Atoi(r.Leverage)
		return &exchange.Position{
			Symbol:        symbolpkg.Normalize(symbol),
			Side:          side,
			Size:          amt.Abs(),
			EntryPrice:    entry,
			Leverage:      lev,
			UnrealizedPnL: pnl,
		}, nil
	}
	return nil, nil
}

func (c *Connector) GetAccount(ctx context.Context) (exchange.AccountState, error) {
	acct, err := c.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return exchange.AccountState{}, err
	}
	equity, _ := decimal.NewFromString(acct.TotalMarginBalance)
	avail, _ := decimal.NewFromString(acct.AvailableBalance)
	used, _ := decimal.NewFromString(acct.TotalInitialMargin)
	return exchange.AccountState{
		Equity:           equity,
		AvailableBalance: avail,
		UsedMargin:       used,
		UpdatedAt:        time.Now(),
	}, nil
}

func (c *Connector) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := c.client.NewChangeLeverageService().
		Symbol(symbolpkg.ToBinance(symbol)).
		Leverage(leverage).
		Do(ctx)
	return err
}

// classifyOrderError maps Binance API errors onto the connector taxonomy.
// Transport failures after submission have an unknown outcome and therefore
// surface as ErrUnconfirmed, never as retry-safe.
func classifyOrderError(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch {
		case rejectedCodes[apiErr.Code]:
			return exchange.Rejected(err)
		case transientCodes[apiErr.Code]:
			return exchange.Transient(err)
		default:
			return exchange.Rejected(err)
		}
	}
	return fmt.Errorf("%v: %w", err, exchange.ErrUnconfirmed)
}
