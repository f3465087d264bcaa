package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bomanaps/fil-x402-facilitator/pkg/sigdigest"
	"github.com/bomanaps/fil-x402-facilitator/pkg/voucher"
)

func (h *Handlers) vouchersEnabled(w http.ResponseWriter) bool {
	if h.vouchers == nil {
		h.writeError(w, http.StatusServiceUnavailable, "deferred_disabled", "the deferred payment escrow is not configured")
		return false
	}
	return true
}

// HandleDeferredBuyer handles GET /deferred/buyers/{addr}.
func (h *Handlers) HandleDeferredBuyer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only GET is allowed")
		return
	}
	if !h.vouchersEnabled(w) {
		return
	}

	addrHex := pathTail(r.URL.Path, "/deferred/buyers/")
	if !common.IsHexAddress(addrHex) {
		h.writeError(w, http.StatusBadRequest, "invalid_address", "buyer address is not a valid hex address")
		return
	}
	buyer := common.HexToAddress(addrHex)

	account, err := h.vouchers.Account(r.Context(), buyer)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "account_lookup_failed", err.Error())
		return
	}
	records := h.vouchers.ListByBuyer(buyer)

	vouchers := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		v := map[string]interface{}{
			"voucher": rec.Voucher,
			"settled": rec.Settled,
		}
		if rec.HasSettlingTxHandle {
			v["settlingTxHandle"] = rec.SettlingTxHandle
		}
		vouchers = append(vouchers, v)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"balance":       account.Balance,
		"thawingAmount": account.ThawingAmount,
		"thawEndTime":   account.ThawEndTime,
		"voucherCount":  len(vouchers),
		"vouchers":      vouchers,
	})
}

// HandleStoreVoucher handles POST /deferred/vouchers.
func (h *Handlers) HandleStoreVoucher(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is allowed")
		return
	}
	if !h.vouchersEnabled(w) {
		return
	}

	var v sigdigest.Voucher
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}

	if err := h.vouchers.StoreVoucher(&v); err != nil {
		switch {
		case errors.Is(err, voucher.ErrStaleVoucher):
			h.writeError(w, http.StatusBadRequest, "stale_voucher", "voucher nonce does not advance the stored revision")
		case errors.Is(err, voucher.ErrInvalidSignature):
			h.writeError(w, http.StatusBadRequest, "invalid_voucher_signature", err.Error())
		default:
			h.writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"stored": true, "voucherId": v.ID})
}

// settleVoucherRequest is the body of POST /deferred/vouchers/{id}/settle.
type settleVoucherRequest struct {
	Buyer  common.Address `json:"buyer"`
	Seller common.Address `json:"seller"`
}

// HandleSettleVoucher handles POST /deferred/vouchers/{id}/settle.
func (h *Handlers) HandleSettleVoucher(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is allowed")
		return
	}
	if !h.vouchersEnabled(w) {
		return
	}

	rest := pathTail(r.URL.Path, "/deferred/vouchers/")
	idHex, action, found := strings.Cut(rest, "/")
	if !found || action != "settle" || idHex == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_path", "expected /deferred/vouchers/{id}/settle")
		return
	}
	id := common.HexToHash(idHex)

	var req settleVoucherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}

	handle, err := h.vouchers.SettleVoucher(r.Context(), id, req.Buyer, req.Seller)
	if err != nil {
		switch {
		case errors.Is(err, voucher.ErrVoucherNotFound):
			h.writeError(w, http.StatusNotFound, "voucher_not_found", "no voucher for this id/buyer/seller")
		case errors.Is(err, voucher.ErrAlreadySettled):
			h.writeError(w, http.StatusBadRequest, "already_settled", "voucher has already been settled")
		default:
			h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"success":   false,
				"voucherId": id,
				"error":     err.Error(),
			})
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":           true,
		"voucherId":         id,
		"transactionHandle": handle.Hex(),
	})
}
