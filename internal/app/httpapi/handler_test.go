package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	app "github.com/leverdex/depositd/internal/app"
	"github.com/leverdex/depositd/internal/app/domain/deposit"
	"github.com/leverdex/depositd/internal/app/services/deposits"
	"github.com/leverdex/depositd/internal/chain"
)

const (
	testDepositAddress = "9ZNTfG4NyQgxy2SWjSiQoUyBPEvXT2xo7fKc5hPYYJ7b"
	testOwner          = "4Nd1mYvK7K8ZDiDiBNK6zW7vP4tQyDw8Wq5aUvu3yUYP"
	testSignature      = "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7"
)

type fakeChain struct {
	committed  bool
	detail     deposit.Detail
	extractErr error
	balance    uint64
	balanceErr error
}

func (f *fakeChain) IsCommitted(ctx context.Context, signature string) bool { return f.committed }

func (f *fakeChain) ExtractDeposit(ctx context.Context, signature, depositAddress, claimedOwner string) (deposit.Detail, error) {
	if f.extractErr != nil {
		return deposit.Detail{}, f.extractErr
	}
	return f.detail, nil
}

func (f *fakeChain) Balance(ctx context.Context, address string) (uint64, error) {
	return f.balance, f.balanceErr
}

func (f *fakeChain) SignaturesFor(ctx context.Context, address string, limit int) ([]chain.SignatureInfo, error) {
	return nil, nil
}

func (f *fakeChain) ScanDeposit(ctx context.Context, signature, depositAddress string) (deposit.Detail, error) {
	return f.detail, f.extractErr
}

func newTestApp(t *testing.T, fc *fakeChain) *app.Application {
	t.Helper()
	application, err := app.New(nil, fc, testDepositAddress, app.Options{
		RetryPolicy: deposits.RetryPolicy{MaxAttempts: 3, Interval: time.Millisecond},
	}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	return application
}

func marshal(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(data)
}

func TestVerifyLifecycle(t *testing.T) {
	fc := &fakeChain{
		committed: true,
		detail: deposit.Detail{
			Lamports:   2_500_000_000,
			ObservedAt: time.Now(),
			From:       testOwner,
			To:         testDepositAddress,
		},
		balance: 7_000_000_000,
	}
	handler := NewHandler(newTestApp(t, fc))

	body := marshal(t, map[string]any{"signature": testSignature, "owner": testOwner})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/deposits/verify", body))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var vr verifyResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &vr); err != nil {
		t.Fatalf("unmarshal verify response: %v", err)
	}
	if vr.AlreadyVerified {
		t.Fatalf("first verification should not be already verified")
	}
	if vr.Record.Lamports != 2_500_000_000 {
		t.Fatalf("expected 2.5 SOL in lamports, got %d", vr.Record.Lamports)
	}
	if vr.AmountSOL != 2.5 {
		t.Fatalf("expected amount_sol 2.5, got %v", vr.AmountSOL)
	}

	// Same claim again hits the ledger fast path.
	body = marshal(t, map[string]any{"signature": testSignature, "owner": testOwner})
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/deposits/verify", body))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 on repeat, got %d", resp.Code)
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &vr); err != nil {
		t.Fatalf("unmarshal repeat response: %v", err)
	}
	if !vr.AlreadyVerified {
		t.Fatalf("repeat verification should report already verified")
	}

	// The same signature claimed by someone else is terminal.
	body = marshal(t, map[string]any{"signature": testSignature, "owner": testDepositAddress})
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/deposits/verify", body))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for owner mismatch, got %d", resp.Code)
	}
	var failure map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &failure); err != nil {
		t.Fatalf("unmarshal failure: %v", err)
	}
	if failure["retryable"] != false {
		t.Fatalf("owner mismatch must not be retryable: %v", failure)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/deposits/user?owner="+testOwner, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 user deposits, got %d", resp.Code)
	}
	var summary deposit.Summary
	if err := json.Unmarshal(resp.Body.Bytes(), &summary); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if summary.Count != 1 || summary.TotalLamports != 2_500_000_000 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.TotalSOL != 2.5 {
		t.Fatalf("expected 2.5 SOL total, got %v", summary.TotalSOL)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/deposits/balance", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 balance, got %d", resp.Code)
	}
	var bal map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &bal); err != nil {
		t.Fatalf("unmarshal balance: %v", err)
	}
	if bal["address"] != testDepositAddress {
		t.Fatalf("balance should default to the deposit address, got %v", bal["address"])
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 healthz, got %d", resp.Code)
	}
}

func TestVerifyFailureStatuses(t *testing.T) {
	cases := []struct {
		name       string
		chain      *fakeChain
		wantStatus int
		retryable  bool
	}{
		{
			name:       "not confirmed",
			chain:      &fakeChain{committed: false},
			wantStatus: http.StatusConflict,
			retryable:  true,
		},
		{
			name:       "transaction not found",
			chain:      &fakeChain{committed: true, extractErr: chain.ErrTxNotFound},
			wantStatus: http.StatusConflict,
			retryable:  true,
		},
		{
			name:       "rpc unavailable",
			chain:      &fakeChain{committed: true, extractErr: chain.ErrRPCUnavailable},
			wantStatus: http.StatusConflict,
			retryable:  true,
		},
		{
			name:       "address not involved",
			chain:      &fakeChain{committed: true, extractErr: chain.ErrAddressNotInvolved},
			wantStatus: http.StatusUnprocessableEntity,
			retryable:  false,
		},
		{
			name:       "no funds received",
			chain:      &fakeChain{committed: true, extractErr: chain.ErrNoFundsReceived},
			wantStatus: http.StatusUnprocessableEntity,
			retryable:  false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewHandler(newTestApp(t, tc.chain))

			body := marshal(t, map[string]any{"signature": testSignature, "owner": testOwner})
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/deposits/verify", body))
			if resp.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, resp.Code, resp.Body.String())
			}

			var failure map[string]any
			if err := json.Unmarshal(resp.Body.Bytes(), &failure); err != nil {
				t.Fatalf("unmarshal failure: %v", err)
			}
			if failure["retryable"] != tc.retryable {
				t.Fatalf("expected retryable=%v, got %v", tc.retryable, failure["retryable"])
			}
		})
	}
}

func TestVerifyWaitExhaustsToPending(t *testing.T) {
	handler := NewHandler(newTestApp(t, &fakeChain{committed: false}))

	body := marshal(t, map[string]any{"signature": testSignature, "owner": testOwner, "wait": true})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/deposits/verify", body))
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202 pending, got %d: %s", resp.Code, resp.Body.String())
	}

	var out map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal pending response: %v", err)
	}
	if out["pending"] != true {
		t.Fatalf("expected pending response, got %v", out)
	}
}

func TestVerifyBadInput(t *testing.T) {
	handler := NewHandler(newTestApp(t, &fakeChain{committed: true}))

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing signature", map[string]any{"owner": testOwner}},
		{"missing owner", map[string]any{"signature": testSignature}},
		{"unknown field", map[string]any{"signature": testSignature, "owner": testOwner, "amount": 5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/deposits/verify", marshal(t, tc.body)))
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.Code)
			}
		})
	}

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/deposits/verify", nil))
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/deposits/user", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing owner param, got %d", resp.Code)
	}
}
