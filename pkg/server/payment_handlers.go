package server

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bomanaps/fil-x402-facilitator/pkg/sigdigest"
)

// paymentRequest is the shared body shape for /verify and /settle.
type paymentRequest struct {
	Payment      *sigdigest.PaymentAuthorization `json:"payment"`
	Requirements *sigdigest.PaymentRequirements  `json:"requirements"`
}

func (h *Handlers) decodePaymentRequest(w http.ResponseWriter, r *http.Request) (*paymentRequest, bool) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is allowed")
		return nil, false
	}
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return nil, false
	}
	if req.Payment == nil || req.Requirements == nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request_body", "payment and requirements are both required")
		return nil, false
	}
	return &req, true
}

// HandleVerify handles POST /verify.
func (h *Handlers) HandleVerify(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePaymentRequest(w, r)
	if !ok {
		return
	}

	result := h.verifier.Verify(r.Context(), req.Payment, req.Requirements)

	resp := map[string]interface{}{
		"valid":     result.Valid,
		"riskScore": result.Score,
	}
	if result.Reason != "" {
		resp["reason"] = result.Reason
	}
	if result.WalletBalance != nil {
		resp["walletBalance"] = result.WalletBalance
	}
	if result.PendingAmount != nil {
		resp["pendingAmount"] = result.PendingAmount
	}

	status := http.StatusOK
	if !result.Valid {
		status = http.StatusBadRequest
	}
	h.writeJSON(w, status, resp)
}

// HandleSettle handles POST /settle.
func (h *Handlers) HandleSettle(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePaymentRequest(w, r)
	if !ok {
		return
	}

	result := h.engine.Settle(r.Context(), req.Payment, req.Requirements)

	resp := map[string]interface{}{
		"success":   result.Success,
		"paymentId": result.PaymentID,
	}
	if result.TransactionHandle != "" {
		resp["transactionHandle"] = result.TransactionHandle
	}
	if result.Error != "" {
		resp["error"] = result.Error
	}
	if result.FCR != nil {
		resp["fcr"] = map[string]interface{}{
			"level":    result.FCR.Level.String(),
			"instance": result.FCR.Instance,
		}
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadRequest
	}
	h.writeJSON(w, status, resp)
}

// HandleGetSettlement handles GET /settle/{paymentId}.
func (h *Handlers) HandleGetSettlement(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only GET is allowed")
		return
	}

	idHex := pathTail(r.URL.Path, "/settle/")
	if idHex == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_payment_id", "payment id is required")
		return
	}
	id := common.HexToHash(idHex)

	rec, ok := h.risk.Get(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, "not_found", "no settlement for this payment id")
		return
	}

	resp := map[string]interface{}{
		"paymentId": rec.PaymentID,
		"status":    rec.Status,
		"attempts":  rec.Attempts,
		"createdAt": rec.CreatedAt,
		"updatedAt": rec.UpdatedAt,
	}
	if rec.HasHandle {
		resp["transactionHandle"] = rec.Handle.Hex()
	}
	if rec.LastError != "" {
		resp["error"] = rec.LastError
	}
	if rec.HasTipsetHeight {
		resp["fcr"] = map[string]interface{}{
			"level":        rec.ConfirmationLevel.String(),
			"instance":     rec.F3Instance,
			"tipsetHeight": rec.TipsetHeight,
		}
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only GET is allowed")
		return
	}

	stats := h.risk.Stats()
	limits := h.risk.Limits()

	resp := map[string]interface{}{
		"chainId":            h.chainInfo.ChainID,
		"networkName":        h.chainInfo.NetworkName,
		"pendingSettlements": stats.PendingSettlements,
		"totalPendingAmount": stats.TotalPendingAmount,
		"distinctWallets":    stats.DistinctWallets,
		"limits": map[string]interface{}{
			"maxPerTransaction":   limits.MaxPerTransaction,
			"maxPendingPerWallet": limits.MaxPendingPerWallet,
			"dailyLimitPerWallet": limits.DailyLimitPerWallet,
		},
	}
	if h.monitor != nil {
		resp["fcr"] = h.monitor.Status()
	}

	h.writeJSON(w, http.StatusOK, resp)
}
