// Package server exposes the facilitator's HTTP edge: payment verification
// and settlement, FCR status, deferred-payment vouchers, and health.
package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/bomanaps/fil-x402-facilitator/pkg/fcr"
	"github.com/bomanaps/fil-x402-facilitator/pkg/riskledger"
	"github.com/bomanaps/fil-x402-facilitator/pkg/settlement"
	"github.com/bomanaps/fil-x402-facilitator/pkg/voucher"
)

// ChainInfo is the static chain identity reported by /health.
type ChainInfo struct {
	ChainID     int64
	NetworkName string
}

// Handlers holds the facilitator's HTTP handlers and their collaborators.
type Handlers struct {
	verifier  *settlement.Verifier
	engine    *settlement.Engine
	risk      *riskledger.Ledger
	monitor   *fcr.Monitor // nil when FCR is disabled
	vouchers  *voucher.Store
	chainInfo ChainInfo
	logger    *log.Logger
}

// NewHandlers builds a Handlers. monitor and vouchers may be nil when those
// subsystems are disabled; the corresponding endpoints then report 503.
func NewHandlers(verifier *settlement.Verifier, engine *settlement.Engine, risk *riskledger.Ledger, monitor *fcr.Monitor, vouchers *voucher.Store, chainInfo ChainInfo, logger *log.Logger) *Handlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[Server] ", log.LstdFlags)
	}
	return &Handlers{
		verifier:  verifier,
		engine:    engine,
		risk:      risk,
		monitor:   monitor,
		vouchers:  vouchers,
		chainInfo: chainInfo,
		logger:    logger,
	}
}

// Mux builds the stdlib mux wiring every endpoint from the external
// interface table.
func (h *Handlers) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/verify", h.HandleVerify)
	mux.HandleFunc("/settle", h.HandleSettle)
	mux.HandleFunc("/settle/", h.HandleGetSettlement)
	mux.HandleFunc("/health", h.HandleHealth)

	mux.HandleFunc("/fcr/status", h.HandleFCRStatus)
	mux.HandleFunc("/fcr/levels", h.HandleFCRLevels)
	mux.HandleFunc("/fcr/wait/", h.HandleFCRWait)

	mux.HandleFunc("/deferred/buyers/", h.HandleDeferredBuyer)
	mux.HandleFunc("/deferred/vouchers", h.HandleStoreVoucher)
	mux.HandleFunc("/deferred/vouchers/", h.HandleSettleVoucher)

	return mux
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	h.setFCRHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Printf("encoding response: %v", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, reason, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"error":   reason,
		"message": message,
	})
}

// setFCRHeaders stamps the ambient X-FCR-* headers from the monitor's
// current top-level status, when the monitor is running.
func (h *Handlers) setFCRHeaders(w http.ResponseWriter) {
	if h.monitor == nil {
		return
	}
	state, ok := h.monitor.State()
	if !ok {
		return
	}
	status := h.monitor.Status()
	w.Header().Set("X-FCR-Level", status.Level.String())
	w.Header().Set("X-FCR-Instance", strconv.FormatUint(status.Instance, 10))
	w.Header().Set("X-FCR-Phase", state.Phase.String())
}

// pathTail strips prefix from an URL path and trims a trailing slash,
// mirroring the teacher's path-param extraction idiom.
func pathTail(path, prefix string) string {
	return strings.TrimSuffix(strings.TrimPrefix(path, prefix), "/")
}
