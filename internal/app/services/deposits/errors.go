package deposits

import (
	"errors"

	"github.com/leverdex/depositd/internal/chain"
)

// Orchestration-level failure kinds. Together with the verifier's kinds they
// form the full taxonomy callers dispatch on:
//
//	retryable: ErrNotConfirmed, chain.ErrTxNotFound, chain.ErrRPCUnavailable
//	terminal:  ErrOwnerMismatch, chain.ErrAddressNotInvolved, chain.ErrNoFundsReceived
var (
	// ErrNotConfirmed means the transaction has not reached a terminal
	// commitment level yet. The caller should poll again, not give up.
	ErrNotConfirmed = errors.New("transaction not confirmed on chain")

	// ErrOwnerMismatch means the signature is already credited to a different
	// owner. It protects against signature reuse across accounts and never
	// mutates the existing record.
	ErrOwnerMismatch = errors.New("signature recorded for a different owner")
)

// Retryable reports whether the failure is transient or not-yet-settled, as
// opposed to a claim this signature can never satisfy. The orchestration never
// converts a terminal failure into a retryable one, or the reverse.
func Retryable(err error) bool {
	return errors.Is(err, ErrNotConfirmed) ||
		errors.Is(err, chain.ErrTxNotFound) ||
		errors.Is(err, chain.ErrRPCUnavailable)
}

// chainOutcome labels a verifier failure for metrics.
func chainOutcome(err error) string {
	switch {
	case errors.Is(err, chain.ErrTxNotFound):
		return "not_found"
	case errors.Is(err, chain.ErrAddressNotInvolved):
		return "address_not_involved"
	case errors.Is(err, chain.ErrNoFundsReceived):
		return "no_funds_received"
	case errors.Is(err, chain.ErrRPCUnavailable):
		return "rpc_unavailable"
	default:
		return "error"
	}
}
