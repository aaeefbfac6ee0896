// Package chain provides Solana RPC interaction for deposit verification.
package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Failure kinds surfaced by the verifier. NotFound and RPCUnavailable are
// retryable; the caller controls retry cadence. AddressNotInvolved and
// NoFundsReceived are terminal: the signature can never satisfy the claim.
var (
	ErrTxNotFound         = errors.New("transaction not found")
	ErrAddressNotInvolved = errors.New("address not involved in transaction")
	ErrNoFundsReceived    = errors.New("no funds received by deposit address")
	ErrRPCUnavailable     = errors.New("rpc unavailable")
)

// solanaRPC is the slice of the RPC surface the client depends on. It is
// satisfied by *rpc.Client and stubbed in tests.
type solanaRPC interface {
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetTransaction(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetSignaturesForAddressWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error)
}

// Client verifies transactions against a Solana RPC node. It holds no mutable
// state; one instance is shared across requests.
type Client struct {
	rpc solanaRPC
}

// Config holds client configuration.
type Config struct {
	RPCURL string
}

// NewClient creates a client for the configured RPC endpoint.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}
	return &Client{rpc: rpc.New(cfg.RPCURL)}, nil
}

// SignatureInfo describes one historical transaction touching an address.
type SignatureInfo struct {
	Signature string
	Slot      uint64
	BlockTime time.Time
	Failed    bool
}

// Balance returns the current lamport balance of an address.
func (c *Client) Balance(ctx context.Context, address string) (uint64, error) {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, fmt.Errorf("parse address: %w", err)
	}

	out, err := c.rpc.GetBalance(ctx, pubkey, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, rpcFailure(err)
	}
	return out.Value, nil
}

// SignaturesFor lists the most recent transaction signatures touching an
// address, newest first. Used by the reconciliation sweep, not by the
// verification path.
func (c *Client) SignaturesFor(ctx context.Context, address string, limit int) ([]SignatureInfo, error) {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("parse address: %w", err)
	}

	opts := &rpc.GetSignaturesForAddressOpts{Commitment: rpc.CommitmentConfirmed}
	if limit > 0 {
		opts.Limit = &limit
	}

	sigs, err := c.rpc.GetSignaturesForAddressWithOpts(ctx, pubkey, opts)
	if err != nil {
		return nil, rpcFailure(err)
	}

	result := make([]SignatureInfo, 0, len(sigs))
	for _, sig := range sigs {
		info := SignatureInfo{
			Signature: sig.Signature.String(),
			Slot:      sig.Slot,
			Failed:    sig.Err != nil,
		}
		if sig.BlockTime != nil {
			info.BlockTime = sig.BlockTime.Time()
		}
		result = append(result, info)
	}
	return result, nil
}

// rpcFailure maps a transport-level error to the retryable RPCUnavailable
// kind. Context deadlines count as outages, never as terminal failures.
func rpcFailure(err error) error {
	return fmt.Errorf("%w: %v", ErrRPCUnavailable, err)
}
