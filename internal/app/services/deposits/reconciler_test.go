package deposits

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leverdex/depositd/internal/app/domain/deposit"
	"github.com/leverdex/depositd/internal/app/storage/memory"
	"github.com/leverdex/depositd/internal/chain"
)

type stubScanner struct {
	sigs    []chain.SignatureInfo
	sigsErr error

	details map[string]deposit.Detail
	scanned []string
}

func (s *stubScanner) SignaturesFor(ctx context.Context, address string, limit int) ([]chain.SignatureInfo, error) {
	return s.sigs, s.sigsErr
}

func (s *stubScanner) ScanDeposit(ctx context.Context, signature, depositAddress string) (deposit.Detail, error) {
	s.scanned = append(s.scanned, signature)
	detail, ok := s.details[signature]
	if !ok {
		return deposit.Detail{}, chain.ErrNoFundsReceived
	}
	return detail, nil
}

func TestReconcilerTickSkipsKnownAndFailed(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	claimed := deposit.Record{
		Signature: "sig-claimed",
		Owner:     testOwner,
		Lamports:  100,
		Verified:  true,
	}
	if _, _, err := store.Put(ctx, claimed); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	scanner := &stubScanner{
		sigs: []chain.SignatureInfo{
			{Signature: "sig-failed", Failed: true},
			{Signature: "sig-claimed"},
			{Signature: "sig-unclaimed"},
			{Signature: "sig-sweep"},
		},
		details: map[string]deposit.Detail{
			"sig-unclaimed": {Lamports: 2_000_000_000, To: testDepositAddress},
		},
	}

	rec := NewReconciler(store, scanner, testDepositAddress, time.Minute, nil)
	rec.tick(ctx)

	// Failed and already-claimed signatures are never scanned; the sweep
	// transaction is scanned but yields no credit.
	if len(scanner.scanned) != 2 {
		t.Fatalf("expected 2 scans, got %v", scanner.scanned)
	}
	for _, sig := range scanner.scanned {
		if sig == "sig-failed" || sig == "sig-claimed" {
			t.Fatalf("signature %s must not be scanned", sig)
		}
	}

	// The sweep observes only; the ledger gains no records.
	if has, _ := store.Has(ctx, "sig-unclaimed"); has {
		t.Fatalf("reconciler must never write records")
	}
}

func TestReconcilerTickScanFailure(t *testing.T) {
	scanner := &stubScanner{sigsErr: errors.New("rpc down")}
	rec := NewReconciler(memory.New(), scanner, testDepositAddress, time.Minute, nil)

	// A failed history fetch is logged and the tick ends without panicking.
	rec.tick(context.Background())
}

func TestReconcilerLifecycle(t *testing.T) {
	scanner := &stubScanner{}
	rec := NewReconciler(memory.New(), scanner, testDepositAddress, 10*time.Millisecond, nil)

	ctx := context.Background()
	if err := rec.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Second start is a no-op.
	if err := rec.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}

	time.Sleep(35 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := rec.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := rec.Stop(stopCtx); err != nil {
		t.Fatalf("repeat stop: %v", err)
	}
}

func TestReconcilerScanLimit(t *testing.T) {
	rec := NewReconciler(memory.New(), &stubScanner{}, testDepositAddress, time.Minute, nil)
	if rec.WithScanLimit(0).scanLimit != 1000 {
		t.Fatalf("zero limit must keep the default")
	}
	if rec.WithScanLimit(50).scanLimit != 50 {
		t.Fatalf("positive limit must apply")
	}
}
