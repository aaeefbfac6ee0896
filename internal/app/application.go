package app

import (
	"context"
	"fmt"
	"time"

	"github.com/leverdex/depositd/internal/app/services/deposits"
	"github.com/leverdex/depositd/internal/app/storage"
	"github.com/leverdex/depositd/internal/app/storage/memory"
	"github.com/leverdex/depositd/internal/app/system"
	"github.com/leverdex/depositd/pkg/logger"
)

// Chain is the verifier surface the application wires into the deposits
// service and, when reconciliation is enabled, the sweep.
type Chain interface {
	deposits.Verifier
	deposits.ChainScanner
}

// Options configures optional application behaviour.
type Options struct {
	// RetryPolicy governs server-side polling for verify requests that opt
	// into waiting. Zero values fall back to the default policy.
	RetryPolicy deposits.RetryPolicy

	// ReconcileInterval enables the background sweep when positive.
	ReconcileInterval time.Duration

	// ReconcileScanLimit caps signatures fetched per sweep.
	ReconcileScanLimit int
}

// Application ties the deposit service together and manages its lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Deposits    *deposits.Service
	RetryPolicy deposits.RetryPolicy
}

// New builds a fully initialised application. A nil store defaults to the
// in-memory ledger.
func New(store storage.DepositStore, chain Chain, depositAddress string, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if store == nil {
		store = memory.New()
	}

	svc, err := deposits.New(store, chain, depositAddress, log.WithField("component", "deposits"))
	if err != nil {
		return nil, fmt.Errorf("deposits service: %w", err)
	}

	manager := system.NewManager()

	if opts.ReconcileInterval > 0 {
		rec := deposits.NewReconciler(store, chain, depositAddress, opts.ReconcileInterval, log.WithField("component", "reconciler")).
			WithScanLimit(opts.ReconcileScanLimit)
		if err := manager.Register(rec); err != nil {
			return nil, fmt.Errorf("register reconciler: %w", err)
		}
	}

	policy := opts.RetryPolicy
	if policy.MaxAttempts <= 0 && policy.Interval <= 0 {
		policy = deposits.DefaultRetryPolicy
	}

	return &Application{
		manager:     manager,
		log:         log,
		Deposits:    svc,
		RetryPolicy: policy,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
