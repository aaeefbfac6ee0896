package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/leverdex/depositd/internal/app/domain/deposit"
)

// maxTxVersion makes the node return versioned transactions instead of
// erroring on them; their address-table lookups surface via
// meta.LoadedAddresses.
var maxTxVersion uint64 = 0

// IsCommitted reports whether the transaction has reached a terminal
// commitment level (confirmed or finalized). A missing or still-processing
// signature is simply false, as is any lookup failure; the caller owns the
// retry cadence.
func (c *Client) IsCommitted(ctx context.Context, signature string) bool {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return false
	}

	out, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil || out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return false
	}

	switch out.Value[0].ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		return true
	default:
		return false
	}
}

// ExtractDeposit derives a trustworthy deposit fact for the signature from
// chain state alone. The amount is the net lamport credit to the deposit
// address across the whole transaction, so any transaction shape is handled
// as long as its net effect on the custodial address is positive.
//
// The claimed owner is accepted only if it appears in the transaction's
// account list. Membership does not prove the owner signed or initiated the
// transfer; it is a deliberately weak, cheap authorization signal and a
// documented trust boundary.
func (c *Client) ExtractDeposit(ctx context.Context, signature, depositAddress, claimedOwner string) (deposit.Detail, error) {
	out, accounts, err := c.fetchTransaction(ctx, signature)
	if err != nil {
		return deposit.Detail{}, err
	}

	depositIdx := indexOf(accounts, depositAddress)
	ownerIdx := indexOf(accounts, claimedOwner)
	if depositIdx < 0 || ownerIdx < 0 {
		return deposit.Detail{}, ErrAddressNotInvolved
	}

	lamports, err := depositDelta(out.Meta, depositIdx)
	if err != nil {
		return deposit.Detail{}, err
	}

	return deposit.Detail{
		Lamports:   lamports,
		ObservedAt: observedAt(out),
		From:       claimedOwner,
		To:         depositAddress,
	}, nil
}

// ScanDeposit is ExtractDeposit without an ownership claim: it derives the
// net credit to the deposit address alone. Used by the reconciliation sweep,
// where no claimant exists yet.
func (c *Client) ScanDeposit(ctx context.Context, signature, depositAddress string) (deposit.Detail, error) {
	out, accounts, err := c.fetchTransaction(ctx, signature)
	if err != nil {
		return deposit.Detail{}, err
	}

	depositIdx := indexOf(accounts, depositAddress)
	if depositIdx < 0 {
		return deposit.Detail{}, ErrAddressNotInvolved
	}

	lamports, err := depositDelta(out.Meta, depositIdx)
	if err != nil {
		return deposit.Detail{}, err
	}

	return deposit.Detail{
		Lamports:   lamports,
		ObservedAt: observedAt(out),
		To:         depositAddress,
	}, nil
}

func (c *Client) fetchTransaction(ctx context.Context, signature string) (*rpc.GetTransactionResult, []string, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, nil, fmt.Errorf("parse signature: %w", err)
	}

	out, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxTxVersion,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, nil, ErrTxNotFound
		}
		return nil, nil, rpcFailure(err)
	}
	if out == nil || out.Meta == nil {
		return nil, nil, ErrTxNotFound
	}

	accounts, err := accountList(out)
	if err != nil {
		return nil, nil, err
	}
	return out, accounts, nil
}

// depositDelta computes the signed lamport balance diff for the account at
// idx. An outgoing sweep debits the deposit address and must never be
// accepted as a deposit.
func depositDelta(meta *rpc.TransactionMeta, idx int) (uint64, error) {
	if idx >= len(meta.PreBalances) || idx >= len(meta.PostBalances) {
		return 0, ErrTxNotFound
	}
	delta := int64(meta.PostBalances[idx]) - int64(meta.PreBalances[idx])
	if delta <= 0 {
		return 0, ErrNoFundsReceived
	}
	return uint64(delta), nil
}

func observedAt(out *rpc.GetTransactionResult) time.Time {
	if out.BlockTime != nil {
		return out.BlockTime.Time().UTC()
	}
	return time.Now().UTC()
}

// accountList normalizes the transaction's referenced accounts into one
// ordered list matching the pre/post balance arrays: the message's static
// keys followed by the writable then read-only address-table expansions.
// Legacy transactions carry no loaded addresses, so both formats resolve
// through the same path and the distinction never leaks past this point.
func accountList(out *rpc.GetTransactionResult) ([]string, error) {
	tx, err := out.Transaction.GetTransaction()
	if err != nil || tx == nil {
		return nil, fmt.Errorf("%w: undecodable transaction payload", ErrTxNotFound)
	}

	keys := make([]string, 0, len(tx.Message.AccountKeys)+len(out.Meta.LoadedAddresses.Writable)+len(out.Meta.LoadedAddresses.ReadOnly))
	for _, key := range tx.Message.AccountKeys {
		keys = append(keys, key.String())
	}
	for _, key := range out.Meta.LoadedAddresses.Writable {
		keys = append(keys, key.String())
	}
	for _, key := range out.Meta.LoadedAddresses.ReadOnly {
		keys = append(keys, key.String())
	}
	return keys, nil
}

func indexOf(accounts []string, address string) int {
	for i, account := range accounts {
		if account == address {
			return i
		}
	}
	return -1
}
