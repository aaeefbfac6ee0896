// Package redis implements the deposit store on Redis. SETNX on the
// signature key decides the single creator of a record; only the creator
// appends to the owner index, so the index never double-counts.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/leverdex/depositd/internal/app/domain/deposit"
	"github.com/leverdex/depositd/internal/app/storage"
)

// Store implements storage.DepositStore on a Redis client.
type Store struct {
	client *redis.Client
	prefix string
}

var _ storage.DepositStore = (*Store)(nil)

// New creates a Store using the provided client.
func New(client *redis.Client) *Store {
	return &Store{client: client, prefix: "deposit"}
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, addr string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return New(client), nil
}

func (s *Store) sigKey(signature string) string {
	return fmt.Sprintf("%s:sig:%s", s.prefix, signature)
}

func (s *Store) ownerKey(owner string) string {
	return fmt.Sprintf("%s:owner:%s", s.prefix, owner)
}

func (s *Store) Put(ctx context.Context, rec deposit.Record) (deposit.Record, bool, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return deposit.Record{}, false, err
	}

	created, err := s.client.SetNX(ctx, s.sigKey(rec.Signature), payload, 0).Result()
	if err != nil {
		return deposit.Record{}, false, err
	}
	if !created {
		existing, err := s.Get(ctx, rec.Signature)
		if err != nil {
			return deposit.Record{}, false, err
		}
		return existing, false, nil
	}

	if err := s.client.RPush(ctx, s.ownerKey(rec.Owner), rec.Signature).Err(); err != nil {
		return deposit.Record{}, false, err
	}
	return rec, true, nil
}

func (s *Store) Get(ctx context.Context, signature string) (deposit.Record, error) {
	payload, err := s.client.Get(ctx, s.sigKey(signature)).Bytes()
	if errors.Is(err, redis.Nil) {
		return deposit.Record{}, storage.ErrNotFound
	}
	if err != nil {
		return deposit.Record{}, err
	}

	var rec deposit.Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return deposit.Record{}, err
	}
	return rec, nil
}

func (s *Store) Has(ctx context.Context, signature string) (bool, error) {
	n, err := s.client.Exists(ctx, s.sigKey(signature)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListByOwner returns the owner's verified records in insertion order.
func (s *Store) ListByOwner(ctx context.Context, owner string) ([]deposit.Record, error) {
	sigs, err := s.client.LRange(ctx, s.ownerKey(owner), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	result := make([]deposit.Record, 0, len(sigs))
	for _, sig := range sigs {
		rec, err := s.Get(ctx, sig)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if rec.Verified {
			result = append(result, rec)
		}
	}
	return result, nil
}

func (s *Store) TotalByOwner(ctx context.Context, owner string) (uint64, error) {
	records, err := s.ListByOwner(ctx, owner)
	if err != nil {
		return 0, err
	}

	var total uint64
	for _, rec := range records {
		total += rec.Lamports
	}
	return total, nil
}
