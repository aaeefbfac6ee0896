package storage

import (
	"context"
	"errors"

	"github.com/leverdex/depositd/internal/app/domain/deposit"
)

// ErrNotFound is returned when no record exists for a signature.
var ErrNotFound = errors.New("deposit record not found")

// DepositStore persists deposit records keyed by transaction signature with a
// secondary index by owner.
//
// Put is the store's only write and must be an atomic check-and-insert: when a
// record for the signature already exists, the stored record is returned with
// created=false and nothing changes. This is what makes two concurrent
// first-time verifications of the same signature safe — exactly one caller
// creates the record, the other adopts it.
type DepositStore interface {
	Put(ctx context.Context, rec deposit.Record) (deposit.Record, bool, error)
	Get(ctx context.Context, signature string) (deposit.Record, error)
	Has(ctx context.Context, signature string) (bool, error)
	ListByOwner(ctx context.Context, owner string) ([]deposit.Record, error)
	TotalByOwner(ctx context.Context, owner string) (uint64, error)
}
