// Package app wires configuration into running services: one decision loop
// per enabled model, the shared ledger and store, and the operator HTTP API.
package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"helmsman/internal/config"
	"helmsman/internal/engine"
	"helmsman/internal/gateway/binance"
	"helmsman/internal/gateway/exchange"
	"helmsman/internal/gateway/paper"
	"helmsman/internal/logger"
	"helmsman/internal/market"
	"helmsman/internal/notifier"
	"helmsman/internal/oracle"
	"helmsman/internal/pkg/circuit"
	"helmsman/internal/scheduler"
	"helmsman/internal/store"
	"helmsman/internal/store/gormstore"
	httpsrv "helmsman/internal/transport/http"
)

type App struct {
	cfg     *config.Config
	runners map[string]*engine.Runner
	sched   *scheduler.Aligned
	httpSrv *httpsrv.Server
	rec     store.Recorder
	source  market.Source
}

func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	rec, err := openRecorder(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	source := binance.NewSource(cfg.Exchange.RESTBaseURL, exchangeTimeout(cfg))

	interval, ok := scheduler.ParseIntervalDuration(cfg.Scheduler.Interval)
	if !ok {
		return nil, fmt.Errorf("invalid scheduler interval %q", cfg.Scheduler.Interval)
	}
	sched := scheduler.NewAligned(interval, time.Duration(cfg.Scheduler.OffsetSeconds)*time.Second)
	sched.RunImmediately = cfg.Scheduler.RunImmediately

	var notify notifier.Notifier = notifier.Nop{}
	if tg := cfg.Notify.Telegram; tg.Enabled {
		notify = notifier.NewTelegram(tg.BotToken, tg.ChatID)
	}

	ledger := engine.NewLedger()
	exits := engine.NewExitBook()
	machine := engine.NewMachine(cfg.Risk, ledger, exits)
	locks := scheduler.NewPairLocks()

	runners := make(map[string]*engine.Runner)
	for _, model := range cfg.EnabledModels() {
		runners[model.ID] = &engine.Runner{
			Model:        model,
			Pairs:        cfg.Pairs,
			Source:       source,
			Oracle:       oracle.NewChatClient(model.APIURL, model.APIKey, model.Model, 60*time.Second),
			Breaker:      circuit.NewBreaker("oracle-"+model.ID, 3, 5*time.Minute),
			Conn:         connectorFor(model, cfg),
			Machine:      machine,
			Exits:        exits,
			Recorder:     rec,
			Notifier:     notify,
			Locks:        locks,
			CycleTimeout: cfg.Scheduler.CycleTimeout(),
		}
	}
	if len(runners) == 0 {
		return nil, fmt.Errorf("no enabled models configured")
	}

	app := &App{
		cfg:     cfg,
		runners: runners,
		sched:   sched,
		rec:     rec,
		source:  source,
	}
	if addr := cfg.App.HTTPAddr; addr != "" {
		app.httpSrv = httpsrv.NewServer(addr, runners, ledger, rec)
	}
	return app, nil
}

// Run blocks until ctx is cancelled, then shuts the pieces down.
func (a *App) Run(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)

	if a.httpSrv != nil {
		group.Go(func() error {
			return a.httpSrv.Run()
		})
		group.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return a.httpSrv.Shutdown(shutdownCtx)
		})
	}

	group.Go(func() error {
		a.sched.Run(gctx, func(now time.Time) {
			for id, runner := range a.runners {
				logger.Infof("tick %s: cycle for candle close %s", id, now.Format(time.RFC3339))
				runner.Tick(gctx, now)
			}
		})
		return nil
	})

	err := group.Wait()

	if cerr := a.source.Close(); cerr != nil {
		logger.Warnf("closing market source: %v", cerr)
	}
	if cerr := a.rec.Close(); cerr != nil {
		logger.Warnf("closing store: %v", cerr)
	}
	return err
}

func openRecorder(path string) (store.Recorder, error) {
	if path == "" {
		logger.Warnf("store: no path configured, audit trail disabled")
		return store.Nop{}, nil
	}
	return gormstore.New(path)
}

// connectorFor picks the real futures connector when the model carries
// account keys, the paper connector otherwise.
func connectorFor(model config.ModelConfig, cfg *config.Config) exchange.Connector {
	if model.AccountKey != "" && model.AccountSecret != "" {
		return binance.NewConnector(model.AccountKey, model.AccountSecret,
			cfg.Exchange.RESTBaseURL, exchangeTimeout(cfg))
	}
	logger.Warnf("model %s: no account keys, using paper connector", model.ID)
	return paper.NewConnector(0)
}

func exchangeTimeout(cfg *config.Config) time.Duration {
	if cfg.Exchange.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(cfg.Exchange.TimeoutSeconds) * time.Second
}
