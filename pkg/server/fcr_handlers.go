package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/bomanaps/fil-x402-facilitator/pkg/fcr"
)

// levelCatalogue is the static description backing GET /fcr/levels.
var levelCatalogue = []map[string]interface{}{
	{"code": "L0", "name": "accepted", "description": "accepted but not yet included in any tipset", "latency": "immediate"},
	{"code": "L1", "name": "included", "description": "included in a tipset", "latency": "one block time"},
	{"code": "L2", "name": "fcr_safe", "description": "quorum witnessed or propagation window elapsed", "latency": "seconds"},
	{"code": "L3", "name": "finalized", "description": "finalized by a consensus certificate", "latency": "one fast-finality round"},
	{"code": "LB", "name": "bond_backstop", "description": "resolved via bond claim rather than chain finality", "latency": "bond claim deadline"},
}

// HandleFCRStatus handles GET /fcr/status.
func (h *Handlers) HandleFCRStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only GET is allowed")
		return
	}
	if h.monitor == nil {
		h.writeError(w, http.StatusServiceUnavailable, "fcr_disabled", "the FCR monitor is not running")
		return
	}

	state, hasProgress := h.monitor.State()
	status := h.monitor.Status()

	resp := map[string]interface{}{
		"level":       status.Level.String(),
		"instance":    status.Instance,
		"hasProgress": hasProgress,
	}
	if hasProgress {
		resp["round"] = state.Round
		resp["phase"] = state.Phase.String()
		resp["roundBumps"] = state.RoundBumps
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// HandleFCRLevels handles GET /fcr/levels.
func (h *Handlers) HandleFCRLevels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only GET is allowed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"levels": levelCatalogue})
}

func parseLevel(s string) (fcr.Level, bool) {
	switch s {
	case "L0":
		return fcr.L0, true
	case "L1":
		return fcr.L1, true
	case "L2":
		return fcr.L2, true
	case "L3":
		return fcr.L3, true
	case "LB":
		return fcr.LB, true
	default:
		return 0, false
	}
}

// fcrPollInterval bounds how often HandleFCRWait re-checks the monitor's
// status while waiting for the requested level.
const fcrPollInterval = 200 * time.Millisecond

// HandleFCRWait handles GET /fcr/wait/{level}?timeout=ms. It blocks the
// request goroutine until the monitor's top-level status reaches the
// requested level or the timeout elapses.
func (h *Handlers) HandleFCRWait(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only GET is allowed")
		return
	}
	if h.monitor == nil {
		h.writeError(w, http.StatusServiceUnavailable, "fcr_disabled", "the FCR monitor is not running")
		return
	}

	levelStr := pathTail(r.URL.Path, "/fcr/wait/")
	want, ok := parseLevel(levelStr)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "invalid_level", "level must be one of L0, L1, L2, L3, LB")
		return
	}

	timeout := 30 * time.Second
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
			timeout = time.Duration(ms) * time.Millisecond
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	ticker := time.NewTicker(fcrPollInterval)
	defer ticker.Stop()

	for {
		status := h.monitor.Status()
		if status.Level >= want {
			h.writeJSON(w, http.StatusOK, map[string]interface{}{
				"level":    status.Level.String(),
				"instance": status.Instance,
			})
			return
		}

		select {
		case <-ctx.Done():
			h.writeError(w, http.StatusRequestTimeout, "timeout", "level not reached before timeout")
			return
		case <-ticker.C:
		}
	}
}
