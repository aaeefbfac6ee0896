// Package deposit defines the ledgered deposit record and its derived views.
package deposit

import "time"

// LamportsPerSOL is the fixed scale between the chain's base unit and the
// human-facing unit. All internal arithmetic stays in lamports; conversion
// happens once, at the API boundary.
const LamportsPerSOL = 1_000_000_000

// Record is the unit of truth for an accepted transfer. The transaction
// signature is the primary key: the same physical transfer always maps to the
// same signature, so at most one Record can exist per signature. A Record is
// never mutated or deleted once written.
type Record struct {
	ID         string    `json:"id"`
	Signature  string    `json:"signature"`
	Owner      string    `json:"owner"`
	Lamports   uint64    `json:"lamports"`
	ObservedAt time.Time `json:"observed_at"`
	Verified   bool      `json:"verified"`
}

// Amount returns the record's value in SOL.
func (r Record) Amount() float64 {
	return ToSOL(r.Lamports)
}

// Detail is the verifier's output for a single transaction: the net lamport
// credit to the deposit address plus the addresses the claim was checked
// against.
type Detail struct {
	Lamports   uint64
	ObservedAt time.Time
	From       string
	To         string
}

// Summary is the derived per-owner view: all verified records plus their
// aggregate value. It is computed, never stored.
type Summary struct {
	Owner         string   `json:"owner"`
	Count         int      `json:"count"`
	TotalLamports uint64   `json:"total_lamports"`
	TotalSOL      float64  `json:"total_sol"`
	Records       []Record `json:"deposits"`
}

// ToSOL converts lamports to SOL.
func ToSOL(lamports uint64) float64 {
	return float64(lamports) / LamportsPerSOL
}
