// Package app composes the deposit service into a running application.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring, and lifecycle
//	├── domain/deposit/     # Deposit record and derived views (pure data)
//	├── storage/            # Deposit store interface and implementations
//	│   ├── interfaces.go   # DepositStore contract
//	│   ├── memory/         # In-memory reference implementation
//	│   ├── postgres/       # PostgreSQL implementation
//	│   └── redis/          # Redis implementation
//	├── services/deposits/  # Verify-and-record orchestration, retry, sweep
//	├── httpapi/            # HTTP handlers and routing
//	├── system/             # Lifecycle-managed service registry
//	└── metrics/            # Prometheus collectors
//
// The app package wires the chain verifier, the deposit ledger and the
// reconciliation sweep together; business rules live in services/deposits and
// chain interaction lives in internal/chain.
package app
