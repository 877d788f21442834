package exchange

import (
	"context"
	"errors"
	"fmt"
)

// Connector is an external transactional system. PlaceOrder either returns a
// confirmed Fill, ErrUnconfirmed when the submission outcome is unknown, or a
// classified error (see Transient/Rejected below).
type Connector interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (*Fill, error)

	// GetPosition returns nil when the account holds nothing on the symbol.
	GetPosition(ctx context.Context, symbol string) (*Position, error)

	GetAccount(ctx context.Context) (AccountState, error)

	SetLeverage(ctx context.Context, symbol string, leverage int) error
}

// ErrUnconfirmed signals that an order was submitted but its fill status is
// unknown. Callers must not assume either outcome and should reconcile
// against GetPosition before acting again.
var ErrUnconfirmed = errors.New("order submitted, fill unconfirmed")

type transientError struct{ err error }

func (e *transientError) Error() string { return fmt.Sprintf("transient: %v", e.err) }
func (e *transientError) Unwrap() error { return e.err }

type rejectedError struct{ err error }

func (e *rejectedError) Error() string { return fmt.Sprintf("rejected: %v", e.err) }
func (e *rejectedError) Unwrap() error { return e.err }

// Transient wraps an error that is worth retrying (timeout, rate limit, 5xx).
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// Rejected wraps a terminal error (insufficient margin, bad instrument).
func Rejected(err error) error {
	if err == nil {
		return nil
	}
	return &rejectedError{err: err}
}

func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

func IsRejected(err error) bool {
	var re *rejectedError
	return errors.As(err, &re)
}
