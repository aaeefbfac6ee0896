package deposits

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/leverdex/depositd/internal/app/domain/deposit"
	"github.com/leverdex/depositd/internal/app/metrics"
	"github.com/leverdex/depositd/internal/app/storage"
	"github.com/leverdex/depositd/internal/app/system"
	"github.com/leverdex/depositd/internal/chain"
	"github.com/leverdex/depositd/pkg/logger"
)

// ChainScanner lists recent transactions touching the deposit address and
// derives their net credit without an ownership claim.
type ChainScanner interface {
	SignaturesFor(ctx context.Context, address string, limit int) ([]chain.SignatureInfo, error)
	ScanDeposit(ctx context.Context, signature, depositAddress string) (deposit.Detail, error)
}

// Reconciler periodically sweeps the deposit address's transaction history
// and reports committed deposits that no one has claimed yet. It observes and
// logs; it never writes records, because a record needs a claimed owner and
// the sweep has none.
type Reconciler struct {
	store          storage.DepositStore
	scanner        ChainScanner
	depositAddress string
	interval       time.Duration
	scanLimit      int
	log            *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

var _ system.Service = (*Reconciler)(nil)

// NewReconciler builds a reconciler sweeping every interval (1m when zero).
func NewReconciler(store storage.DepositStore, scanner ChainScanner, depositAddress string, interval time.Duration, log *logger.Logger) *Reconciler {
	if log == nil {
		log = logger.NewDefault("deposit-reconciler")
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{
		store:          store,
		scanner:        scanner,
		depositAddress: depositAddress,
		interval:       interval,
		scanLimit:      1000,
		log:            log,
	}
}

// WithScanLimit caps how many signatures each sweep fetches. Call before
// Start.
func (r *Reconciler) WithScanLimit(limit int) *Reconciler {
	if limit > 0 {
		r.scanLimit = limit
	}
	return r
}

func (r *Reconciler) Name() string { return "deposit-reconciler" }

func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				r.tick(runCtx)
			}
		}
	}()

	r.log.Info("deposit reconciler started")
	return nil
}

func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

func (r *Reconciler) tick(ctx context.Context) {
	sigs, err := r.scanner.SignaturesFor(ctx, r.depositAddress, r.scanLimit)
	if err != nil {
		r.log.WithError(err).Warn("deposit address scan failed")
		return
	}

	var unclaimed int
	var unclaimedLamports uint64
	for _, sig := range sigs {
		if sig.Failed {
			continue
		}

		has, err := r.store.Has(ctx, sig.Signature)
		if err != nil {
			r.log.WithError(err).Warnf("ledger check failed for %s", sig.Signature)
			continue
		}
		if has {
			continue
		}

		detail, err := r.scanner.ScanDeposit(ctx, sig.Signature, r.depositAddress)
		if err != nil {
			// Sweeps and unrelated transactions are expected in the history;
			// only transport failures are worth surfacing.
			if errors.Is(err, chain.ErrRPCUnavailable) {
				r.log.WithError(err).Warnf("scan failed for %s", sig.Signature)
			}
			continue
		}

		unclaimed++
		unclaimedLamports += detail.Lamports
	}

	metrics.SetUnclaimedDeposits(unclaimed, unclaimedLamports)
	if unclaimed > 0 {
		r.log.WithField("count", unclaimed).
			Infof("unclaimed deposits on chain: %.9f SOL", deposit.ToSOL(unclaimedLamports))
	}
}
