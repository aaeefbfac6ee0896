// Package httpapi exposes the deposit verification REST API.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	app "github.com/leverdex/depositd/internal/app"
	"github.com/leverdex/depositd/internal/app/domain/deposit"
	"github.com/leverdex/depositd/internal/app/services/deposits"
	"github.com/leverdex/depositd/internal/app/storage"
	"github.com/leverdex/depositd/internal/chain"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a mux exposing the deposit REST API.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}
	mux := http.NewServeMux()
	mux.HandleFunc("/deposits/verify", h.verify)
	mux.HandleFunc("/deposits/user", h.userDeposits)
	mux.HandleFunc("/deposits/balance", h.balance)
	mux.HandleFunc("/healthz", h.health)
	return mux
}

type verifyRequest struct {
	Signature string `json:"signature"`
	Owner     string `json:"owner"`

	// Wait makes the server run the retry protocol instead of returning a
	// retryable failure to the caller.
	Wait bool `json:"wait"`
}

type verifyResponse struct {
	Record          deposit.Record `json:"record"`
	AmountSOL       float64        `json:"amount_sol"`
	AlreadyVerified bool           `json:"already_verified"`
}

func (h *handler) verify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload verifyRequest
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(payload.Signature) == "" {
		writeError(w, http.StatusBadRequest, errors.New("signature is required"))
		return
	}
	if strings.TrimSpace(payload.Owner) == "" {
		writeError(w, http.StatusBadRequest, errors.New("owner is required"))
		return
	}

	var (
		result deposits.Result
		err    error
	)
	if payload.Wait {
		result, err = h.app.RetryPolicy.Poll(r.Context(), h.app.Deposits, payload.Signature, payload.Owner)
	} else {
		result, err = h.app.Deposits.VerifyAndRecord(r.Context(), payload.Signature, payload.Owner)
	}
	if err != nil {
		writeVerifyError(w, err)
		return
	}
	if result.Pending {
		writeJSON(w, http.StatusAccepted, map[string]any{
			"pending":   true,
			"signature": payload.Signature,
		})
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		Record:          result.Record,
		AmountSOL:       result.Record.Amount(),
		AlreadyVerified: result.AlreadyVerified,
	})
}

func (h *handler) userDeposits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	if owner == "" {
		writeError(w, http.StatusBadRequest, errors.New("owner query parameter is required"))
		return
	}

	summary, err := h.app.Deposits.UserDeposits(r.Context(), owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *handler) balance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if address == "" {
		address = h.app.Deposits.DepositAddress()
	}

	lamports, err := h.app.Deposits.Balance(r.Context(), address)
	if err != nil {
		if errors.Is(err, chain.ErrRPCUnavailable) {
			writeError(w, http.StatusBadGateway, chain.ErrRPCUnavailable)
			return
		}
		writeError(w, http.StatusBadRequest, errors.New("balance lookup failed"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"address":  address,
		"lamports": lamports,
		"sol":      deposit.ToSOL(lamports),
	})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeVerifyError maps verification failures to HTTP statuses. Retryable
// failures become 409 so the caller knows to try again; terminal ones become
// 422 and must not be retried. Only the failure kind's message goes out; raw
// RPC error bodies stay in the logs.
func writeVerifyError(w http.ResponseWriter, err error) {
	if deposits.Retryable(err) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":     failureMessage(err),
			"retryable": true,
		})
		return
	}

	switch {
	case terminalVerifyError(err):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":     failureMessage(err),
			"retryable": false,
		})
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusInternalServerError, errors.New("verification failed"))
	}
}

func terminalVerifyError(err error) bool {
	return errors.Is(err, deposits.ErrOwnerMismatch) ||
		errors.Is(err, chain.ErrAddressNotInvolved) ||
		errors.Is(err, chain.ErrNoFundsReceived)
}

// failureMessage reduces a failure to its kind's message.
func failureMessage(err error) string {
	for _, kind := range []error{
		deposits.ErrNotConfirmed,
		deposits.ErrOwnerMismatch,
		chain.ErrTxNotFound,
		chain.ErrAddressNotInvolved,
		chain.ErrNoFundsReceived,
		chain.ErrRPCUnavailable,
	} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return err.Error()
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
