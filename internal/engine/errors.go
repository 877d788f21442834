package engine

import (
	"errors"
	"fmt"
)

// RiskRejectedError reports a plan the sizer or a trade guard refused.
// Nothing was submitted and nothing mutated; the cycle simply ends.
type RiskRejectedError struct {
	Reason string
}

func (e *RiskRejectedError) Error() string { return "risk rejected: " + e.Reason }

func riskRejectedf(format string, args ...any) error {
	return &RiskRejectedError{Reason: fmt.Sprintf(format, args...)}
}

func IsRiskRejected(err error) bool {
	var re *RiskRejectedError
	return errors.As(err, &re)
}

// ErrExecutionIncomplete means an order was submitted but its outcome is
// unknown. The pair is flagged for reconciliation; the next cycle re-reads
// the exchange position before deciding anything.
var ErrExecutionIncomplete = errors.New("execution incomplete, reconcile required")

// ExecutionFailedError is terminal for one transition: retries were exhausted
// or the exchange rejected the order outright.
type ExecutionFailedError struct {
	Op  string
	Err error
}

func (e *ExecutionFailedError) Error() string {
	return fmt.Sprintf("execution failed (%s): %v", e.Op, e.Err)
}

func (e *ExecutionFailedError) Unwrap() error { return e.Err }

func IsExecutionFailed(err error) bool {
	var fe *ExecutionFailedError
	return errors.As(err, &fe)
}
