package metrics

import (
	"math/big"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bomanaps/fil-x402-facilitator/pkg/fcr"
	"github.com/bomanaps/fil-x402-facilitator/pkg/riskledger"
)

func TestObserveRiskStatsExposesGauges(t *testing.T) {
	r := New()
	r.ObserveRiskStats(riskledger.Stats{
		PendingSettlements: 3,
		TotalPendingAmount: scaleTokens(150),
		DistinctWallets:    2,
	}, 18)

	body := scrape(t, r)
	assertContains(t, body, `facilitator_settlement_pending_settlements 3`)
	assertContains(t, body, `facilitator_settlement_distinct_pending_wallets 2`)
	assertContains(t, body, `facilitator_settlement_pending_amount_tokens 150`)
}

func TestObserveFCRStatusDisabledZeroesGauges(t *testing.T) {
	r := New()
	r.ObserveFCRStatus(fcr.ConfirmationStatus{Level: fcr.L3, Instance: 9}, false)

	body := scrape(t, r)
	assertContains(t, body, `facilitator_fcr_level 0`)
	assertContains(t, body, `facilitator_fcr_instance 0`)
}

func TestObserveFCRStatusEnabledReportsLevel(t *testing.T) {
	r := New()
	r.ObserveFCRStatus(fcr.ConfirmationStatus{Level: fcr.L2, Instance: 7}, true)

	body := scrape(t, r)
	assertContains(t, body, `facilitator_fcr_level 2`)
	assertContains(t, body, `facilitator_fcr_instance 7`)
}

func TestIncSettlementCounters(t *testing.T) {
	r := New()
	r.IncSettlementAttempt()
	r.IncSettlementAttempt()
	r.IncSettlementFailure()

	body := scrape(t, r)
	assertContains(t, body, `facilitator_settlement_attempts_total 2`)
	assertContains(t, body, `facilitator_settlement_failures_total 1`)
}

func scaleTokens(whole int64) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return new(big.Int).Mul(big.NewInt(whole), scale)
}

func scrape(t *testing.T, r *Registry) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	r.Handler().ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("scrape status = %d", rr.Code)
	}
	return rr.Body.String()
}

func assertContains(t *testing.T, body, want string) {
	t.Helper()
	if !strings.Contains(body, want) {
		t.Errorf("metrics output missing %q\n%s", want, body)
	}
}
