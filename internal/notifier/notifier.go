// Package notifier pushes operator alerts. The engine calls it for terminal
// execution failures and watchdog closes; everything else stays in the logs.
package notifier

import "context"

type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Nop swallows alerts when no channel is configured.
type Nop struct{}

func (Nop) Send(context.Context, string) error { return nil }
