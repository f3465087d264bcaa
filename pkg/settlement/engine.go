package settlement

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bomanaps/fil-x402-facilitator/pkg/bondledger"
	"github.com/bomanaps/fil-x402-facilitator/pkg/chainrpc"
	"github.com/bomanaps/fil-x402-facilitator/pkg/fcr"
	"github.com/bomanaps/fil-x402-facilitator/pkg/riskledger"
	"github.com/bomanaps/fil-x402-facilitator/pkg/sigdigest"
)

// FCRInfo is the FCR snapshot attached to a settle response.
type FCRInfo struct {
	Level    fcr.Level
	Instance uint64
}

// SettleResponse is the result of a synchronous settle call.
type SettleResponse struct {
	Success           bool
	PaymentID         common.Hash
	TransactionHandle string
	Error             string
	FCR               *FCRInfo
}

// Config tunes the settlement engine.
type Config struct {
	MaxAttempts  int
	RetryDelay   time.Duration
	InnerTimeout time.Duration // bound on a single waitForReceipt call
	StaleTimeout time.Duration // GC horizon for reservations stuck in "pending"
	Logger       *log.Logger
}

// DefaultConfig returns the engine's default tuning.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		RetryDelay:   5 * time.Second,
		InnerTimeout: 3 * time.Second,
		StaleTimeout: 10 * time.Minute,
		Logger:       log.New(log.Writer(), "[Settlement] ", log.LstdFlags),
	}
}

// Engine is the settlement worker: it owns the synchronous submit path and
// the background retry/confirmation loop.
type Engine struct {
	verifier *Verifier
	risk     *riskledger.Ledger
	chain    chainrpc.RPC
	bond     bondledger.Ledger // nil when bond collateral is disabled
	monitor  *fcr.Monitor      // nil when FCR is disabled

	cfg Config

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	ticking int32 // atomic reentrancy guard for tick()
}

// NewEngine builds an Engine. bond and monitor may be nil.
func NewEngine(verifier *Verifier, risk *riskledger.Ledger, chain chainrpc.RPC, bond bondledger.Ledger, monitor *fcr.Monitor, cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "[Settlement] ", log.LstdFlags)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	return &Engine{verifier: verifier, risk: risk, chain: chain, bond: bond, monitor: monitor, cfg: cfg}
}

// Settle runs the synchronous submit path (§4.7.1).
func (e *Engine) Settle(ctx context.Context, payment *sigdigest.PaymentAuthorization, requirements *sigdigest.PaymentRequirements) SettleResponse {
	id := payment.PaymentID()

	if rec, ok := e.risk.Get(id); ok {
		resp := SettleResponse{Success: false, PaymentID: id, Error: ErrPaymentAlreadySubmitted}
		if rec.HasHandle {
			resp.TransactionHandle = rec.Handle.Hex()
		}
		return resp
	}

	verified := e.verifier.Verify(ctx, payment, requirements)
	if !verified.Valid {
		return SettleResponse{Success: false, PaymentID: id, Error: verified.Reason}
	}

	if _, err := e.risk.ReserveCredit(id, payment, requirements); err != nil {
		if err == riskledger.ErrSettlementExists {
			return SettleResponse{Success: false, PaymentID: id, Error: ErrPaymentAlreadySubmitted}
		}
		return SettleResponse{Success: false, PaymentID: id, Error: ErrInternal}
	}

	if e.bond != nil {
		hasCapacity, err := e.bond.HasCapacity(ctx, payment.Value)
		if err != nil || !hasCapacity {
			// Credit stays reserved; the GC sweep in tick() releases it
			// after cfg.StaleTimeout if nothing ever submits.
			return SettleResponse{Success: false, PaymentID: id, Error: ErrInsufficientBondCapacity}
		}
		if err := e.bond.CommitPayment(ctx, id, requirements.PayTo, payment.Value); err != nil {
			return SettleResponse{Success: false, PaymentID: id, Error: fmt.Sprintf("bond_commit_failed: %v", err)}
		}
	}

	handle, err := e.chain.SubmitTransfer(ctx, payment)
	if err != nil {
		attempts := 1
		status := riskledger.StatusRetry
		errMsg := err.Error()
		e.risk.UpdatePendingSettlement(id, riskledger.SettlementPatch{
			Status: &status, Attempts: &attempts, LastError: &errMsg,
		})
		return SettleResponse{Success: false, PaymentID: id, Error: fmt.Sprintf("submission_failed: %v", err)}
	}

	attempts := 1
	status := riskledger.StatusSubmitted
	patch := riskledger.SettlementPatch{Status: &status, Handle: &handle, Attempts: &attempts}

	info := &FCRInfo{}
	if height, herr := e.chain.CurrentHeight(ctx); herr == nil {
		patch.TipsetHeight = &height
		if e.monitor != nil {
			cs := e.monitor.Evaluate(height)
			patch.ConfirmationLevel = &cs.Level
			patch.F3Instance = &cs.Instance
			info.Level = cs.Level
			info.Instance = cs.Instance
		}
	}
	e.risk.UpdatePendingSettlement(id, patch)

	return SettleResponse{Success: true, PaymentID: id, TransactionHandle: handle.Hex(), FCR: info}
}

// Start begins the background retry/confirmation loop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	e.running = true
	e.mu.Unlock()

	go e.run(ctx)
	e.cfg.Logger.Printf("started (retry tick every %s)", e.cfg.RetryDelay)
	return nil
}

// Stop halts the background loop and waits for it to exit.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	close(e.stopCh)
	e.running = false
	e.mu.Unlock()

	<-e.doneCh
	e.cfg.Logger.Println("stopped")
	return nil
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.cfg.RetryDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick processes every non-terminal settlement once. Not reentrant: an
// overlapping tick (a slow previous pass) is skipped rather than queued.
func (e *Engine) tick(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&e.ticking, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&e.ticking, 0)

	for _, id := range e.risk.NonTerminalIDs() {
		rec, ok := e.risk.Get(id)
		if !ok {
			continue
		}
		e.processOne(ctx, id, rec)
	}
}

func (e *Engine) processOne(ctx context.Context, id common.Hash, rec riskledger.SettlementRecord) {
	switch rec.Status {
	case riskledger.StatusPending:
		e.processPendingGC(id, rec)
	case riskledger.StatusSubmitted:
		e.processSubmitted(ctx, id, rec)
	case riskledger.StatusRetry:
		e.processRetry(ctx, id, rec)
	}

	if updated, ok := e.risk.Get(id); ok {
		e.updateFCR(id, updated)
	}
}

// processPendingGC releases reservations that never made it past the bond
// or submission step within cfg.StaleTimeout of creation.
func (e *Engine) processPendingGC(id common.Hash, rec riskledger.SettlementRecord) {
	if time.Since(rec.CreatedAt) < e.cfg.StaleTimeout {
		return
	}
	e.cfg.Logger.Printf("releasing stale pending reservation %s", id.Hex())
	if err := e.risk.ReleaseCredit(id, false); err != nil {
		e.cfg.Logger.Printf("releasing stale reservation %s: %v", id.Hex(), err)
	}
}

func (e *Engine) processSubmitted(ctx context.Context, id common.Hash, rec riskledger.SettlementRecord) {
	waitCtx, cancel := context.WithTimeout(ctx, e.cfg.InnerTimeout)
	defer cancel()

	receipt, err := e.chain.WaitForReceipt(waitCtx, rec.Handle, 1)
	if err != nil {
		if err != chainrpc.ErrPending {
			e.cfg.Logger.Printf("waitForReceipt(%s): %v", id.Hex(), err)
		}
		return
	}

	if receipt.Success() {
		if e.bond != nil {
			if err := e.bond.ReleasePayment(ctx, id); err != nil {
				e.cfg.Logger.Printf("releasePayment(%s) failed: %v", id.Hex(), err)
			}
		}
		if err := e.risk.ReleaseCredit(id, true); err != nil {
			e.cfg.Logger.Printf("releaseCredit(%s) success: %v", id.Hex(), err)
		}
		return
	}

	status := riskledger.StatusRetry
	errMsg := "transaction_reverted"
	e.risk.UpdatePendingSettlement(id, riskledger.SettlementPatch{Status: &status, LastError: &errMsg})
}

func (e *Engine) processRetry(ctx context.Context, id common.Hash, rec riskledger.SettlementRecord) {
	if rec.Attempts >= rec.MaxAttempts {
		if err := e.risk.ReleaseCredit(id, false); err != nil {
			e.cfg.Logger.Printf("releaseCredit(%s) attempts exhausted: %v", id.Hex(), err)
		}
		return
	}
	if time.Now().Unix() >= rec.Payment.ValidBefore {
		if err := e.risk.ReleaseCredit(id, false); err != nil {
			e.cfg.Logger.Printf("releaseCredit(%s) expired: %v", id.Hex(), err)
		}
		return
	}

	handle, err := e.chain.SubmitTransfer(ctx, rec.Payment)
	attempts := rec.Attempts + 1
	if err != nil {
		errMsg := err.Error()
		e.risk.UpdatePendingSettlement(id, riskledger.SettlementPatch{Attempts: &attempts, LastError: &errMsg})
		return
	}

	status := riskledger.StatusSubmitted
	e.risk.UpdatePendingSettlement(id, riskledger.SettlementPatch{Status: &status, Handle: &handle, Attempts: &attempts})
}

// updateFCR applies the FCR monitor's latest evaluation, never regressing
// the recorded confirmation level (P5).
func (e *Engine) updateFCR(id common.Hash, rec riskledger.SettlementRecord) {
	if e.monitor == nil || !rec.HasTipsetHeight || rec.ConfirmationLevel == fcr.L3 {
		return
	}
	status := e.monitor.Evaluate(rec.TipsetHeight)
	if status.Level <= rec.ConfirmationLevel {
		return
	}
	patch := riskledger.SettlementPatch{ConfirmationLevel: &status.Level, F3Instance: &status.Instance}
	if status.Level == fcr.L3 {
		now := time.Now()
		patch.ConfirmedAt = &now
	}
	e.risk.UpdatePendingSettlement(id, patch)
}
