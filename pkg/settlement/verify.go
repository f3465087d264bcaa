package settlement

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/bomanaps/fil-x402-facilitator/pkg/chainrpc"
	"github.com/bomanaps/fil-x402-facilitator/pkg/riskledger"
	"github.com/bomanaps/fil-x402-facilitator/pkg/sigdigest"
)

// VerifyResult is the outcome of running a payment through the
// verification pipeline.
type VerifyResult struct {
	Valid         bool
	Reason        string
	Message       string
	Score         int
	WalletBalance *big.Int
	PendingAmount *big.Int
}

// Verifier runs the ordered verification gates against the digest, chain,
// and risk collaborators.
type Verifier struct {
	digester *sigdigest.Digester
	chain    chainrpc.RPC
	risk     *riskledger.Ledger
}

// NewVerifier builds a Verifier over the given collaborators.
func NewVerifier(digester *sigdigest.Digester, chain chainrpc.RPC, risk *riskledger.Ledger) *Verifier {
	return &Verifier{digester: digester, chain: chain, risk: risk}
}

func reject(reason, message string, score int) VerifyResult {
	return VerifyResult{Valid: false, Reason: reason, Message: message, Score: score}
}

// Verify runs the gates in §4.4 order, short-circuiting on the first
// failure.
func (v *Verifier) Verify(ctx context.Context, payment *sigdigest.PaymentAuthorization, requirements *sigdigest.PaymentRequirements) VerifyResult {
	if payment.Token != requirements.TokenAddress {
		return reject(ReasonTokenMismatch, "payment token does not match requirements", 90)
	}
	if payment.To != requirements.PayTo {
		return reject(ReasonRecipientMismatch, "payment recipient does not match requirements", 90)
	}
	if payment.Value.Cmp(requirements.MaxAmountRequired) < 0 {
		return reject(ReasonInsufficientAmount, "payment value is below the required amount", 90)
	}

	signer, err := v.digester.RecoverSigner(payment)
	if err != nil || !strings.EqualFold(signer.Hex(), payment.From.Hex()) {
		return reject(ReasonInvalidSignature, "recovered signer does not match payment.from", 90)
	}

	now := time.Now()
	if !sigdigest.WithinWindow(payment, now) {
		return reject(ReasonExpiredOrNotYetValid, "payment is outside its validity window", 85)
	}
	if sigdigest.ExpiresWithin(payment, now, expiryHeadroom) {
		return reject(ReasonExpiresTooSoon, "payment expires before settlement can complete", 85)
	}

	// Nonce uniqueness is best-effort: a transport failure here must not
	// permanently block an otherwise-valid payment.
	if v.chain.IsAuthorizationUsed(ctx, payment.Token, payment.From, payment.Nonce) {
		return reject(ReasonNonceAlreadyUsed, "authorization nonce has already been used", 95)
	}

	balance, err := v.chain.BalanceOf(ctx, payment.Token, payment.From)
	if err != nil {
		return reject(ReasonBalanceCheckFailed, err.Error(), 50)
	}
	if balance.Cmp(payment.Value) < 0 {
		result := reject(ReasonInsufficientBalance, "wallet balance is below the payment value", 90)
		result.WalletBalance = balance
		return result
	}

	riskResult := v.risk.CheckPayment(payment.From, payment.Value)
	if !riskResult.Allowed {
		result := reject(string(riskResult.Reason), riskResult.Message, riskResult.Score)
		result.WalletBalance = balance
		result.PendingAmount = v.risk.PendingOf(payment.From)
		return result
	}

	return VerifyResult{
		Valid:         true,
		Score:         0,
		WalletBalance: balance,
		PendingAmount: v.risk.PendingOf(payment.From),
	}
}
