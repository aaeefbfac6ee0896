// Package deposits implements verify-and-record orchestration over the chain
// verifier and the deposit ledger.
package deposits

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leverdex/depositd/internal/app/domain/deposit"
	"github.com/leverdex/depositd/internal/app/metrics"
	"github.com/leverdex/depositd/internal/app/storage"
	"github.com/leverdex/depositd/pkg/logger"
)

// Verifier is the chain-facing dependency: commitment status, deposit
// extraction and the display-only balance query.
type Verifier interface {
	IsCommitted(ctx context.Context, signature string) bool
	ExtractDeposit(ctx context.Context, signature, depositAddress, claimedOwner string) (deposit.Detail, error)
	Balance(ctx context.Context, address string) (uint64, error)
}

// Service coordinates the ledger fast path and the chain slow path so that a
// signature is credited at most once, to at most one owner.
type Service struct {
	store          storage.DepositStore
	verifier       Verifier
	depositAddress string
	log            *logger.Logger
}

// New constructs a deposits service crediting transfers to depositAddress.
func New(store storage.DepositStore, verifier Verifier, depositAddress string, log *logger.Logger) (*Service, error) {
	if log == nil {
		log = logger.NewDefault("deposits")
	}
	depositAddress = strings.TrimSpace(depositAddress)
	if depositAddress == "" {
		return nil, fmt.Errorf("deposit address is required")
	}
	return &Service{
		store:          store,
		verifier:       verifier,
		depositAddress: depositAddress,
		log:            log,
	}, nil
}

// Result is the outcome of a verify-and-record call.
type Result struct {
	Record          deposit.Record
	AlreadyVerified bool

	// Pending is set only by Poll, after retryable attempts were exhausted
	// without reaching a terminal outcome.
	Pending bool
}

// VerifyAndRecord validates the claim (signature, owner) and writes the
// deposit record on first success.
//
// The ledger is consulted first: a known signature returns the stored record
// without touching the chain, or ErrOwnerMismatch when the claim names a
// different owner. Otherwise the chain verifier must see a terminal
// commitment level and a positive balance delta involving both addresses.
// Verifier failures surface unchanged so callers can tell retryable kinds
// from terminal ones.
//
// The store's atomic Put is the end-to-end idempotency gate: when two
// first-time verifications race past the fast path, exactly one creates the
// record and the other adopts it (re-checking the owner binding).
func (s *Service) VerifyAndRecord(ctx context.Context, signature, owner string) (Result, error) {
	signature = strings.TrimSpace(signature)
	owner = strings.TrimSpace(owner)
	if signature == "" {
		return Result{}, fmt.Errorf("signature is required")
	}
	if owner == "" {
		return Result{}, fmt.Errorf("owner is required")
	}
	start := time.Now()

	existing, err := s.store.Get(ctx, signature)
	switch {
	case err == nil:
		if existing.Owner != owner {
			metrics.ObserveVerify("owner_mismatch", time.Since(start))
			return Result{}, ErrOwnerMismatch
		}
		metrics.ObserveVerify("already_verified", time.Since(start))
		return Result{Record: existing, AlreadyVerified: true}, nil
	case !errors.Is(err, storage.ErrNotFound):
		return Result{}, fmt.Errorf("ledger lookup: %w", err)
	}

	if !s.verifier.IsCommitted(ctx, signature) {
		metrics.ObserveVerify("not_confirmed", time.Since(start))
		return Result{}, ErrNotConfirmed
	}

	detail, err := s.verifier.ExtractDeposit(ctx, signature, s.depositAddress, owner)
	if err != nil {
		metrics.ObserveVerify(verifyOutcome(err), time.Since(start))
		s.log.WithError(err).
			WithField("signature", signature).
			WithField("owner", owner).
			Warn("deposit extraction failed")
		return Result{}, err
	}

	rec := deposit.Record{
		Signature:  signature,
		Owner:      owner,
		Lamports:   detail.Lamports,
		ObservedAt: detail.ObservedAt,
		Verified:   true,
	}

	stored, created, err := s.store.Put(ctx, rec)
	if err != nil {
		return Result{}, fmt.Errorf("ledger write: %w", err)
	}
	if !created {
		// Lost the first-writer race; the stored record is the truth.
		if stored.Owner != owner {
			metrics.ObserveVerify("owner_mismatch", time.Since(start))
			return Result{}, ErrOwnerMismatch
		}
		metrics.ObserveVerify("already_verified", time.Since(start))
		return Result{Record: stored, AlreadyVerified: true}, nil
	}

	metrics.ObserveVerify("verified", time.Since(start))
	s.log.WithField("signature", signature).
		WithField("owner", owner).
		Infof("deposit verified: %.9f SOL", deposit.ToSOL(stored.Lamports))
	return Result{Record: stored}, nil
}

// UserDeposits returns the owner's verified records with their aggregate
// value.
func (s *Service) UserDeposits(ctx context.Context, owner string) (deposit.Summary, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return deposit.Summary{}, fmt.Errorf("owner is required")
	}

	records, err := s.store.ListByOwner(ctx, owner)
	if err != nil {
		return deposit.Summary{}, err
	}

	var total uint64
	for _, rec := range records {
		total += rec.Lamports
	}

	return deposit.Summary{
		Owner:         owner,
		Count:         len(records),
		TotalLamports: total,
		TotalSOL:      deposit.ToSOL(total),
		Records:       records,
	}, nil
}

// Balance passes through the chain's current balance for an address. It is a
// display query only and never part of the verification path.
func (s *Service) Balance(ctx context.Context, address string) (uint64, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return 0, fmt.Errorf("address is required")
	}
	return s.verifier.Balance(ctx, address)
}

// DepositAddress returns the custodial address deposits are credited to.
func (s *Service) DepositAddress() string {
	return s.depositAddress
}

func verifyOutcome(err error) string {
	switch {
	case errors.Is(err, ErrNotConfirmed):
		return "not_confirmed"
	case errors.Is(err, ErrOwnerMismatch):
		return "owner_mismatch"
	default:
		return chainOutcome(err)
	}
}
