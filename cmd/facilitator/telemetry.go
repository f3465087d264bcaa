package main

import (
	"context"
	"log"
	"time"

	"github.com/bomanaps/fil-x402-facilitator/pkg/auditlog"
	"github.com/bomanaps/fil-x402-facilitator/pkg/bondledger"
	"github.com/bomanaps/fil-x402-facilitator/pkg/fcr"
	"github.com/bomanaps/fil-x402-facilitator/pkg/metrics"
	"github.com/bomanaps/fil-x402-facilitator/pkg/riskledger"
)

const telemetryInterval = 15 * time.Second

// runTelemetryLoop periodically samples the risk ledger, FCR monitor, and
// bond ledger into the metrics registry, and records an audit entry each
// time the FCR monitor's reported level changes. It runs until ctx is
// canceled, the same ticker-driven shape as the settlement engine's and
// FCR monitor's own background loops.
func runTelemetryLoop(ctx context.Context, reg *metrics.Registry, audit *auditlog.Service, risk *riskledger.Ledger, monitor *fcr.Monitor, bond bondledger.Ledger, decimals int, logger *log.Logger) {
	ticker := time.NewTicker(telemetryInterval)
	defer ticker.Stop()

	var lastLevel fcr.Level
	haveLastLevel := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reg.ObserveRiskStats(risk.Stats(), decimals)

			if monitor != nil {
				if _, ok := monitor.State(); ok {
					status := monitor.Status()
					reg.ObserveFCRStatus(status, true)

					if !haveLastLevel || status.Level != lastLevel {
						if haveLastLevel && audit.Enabled() {
							if err := audit.Record(ctx, auditlog.EventFCRLevelChanged, "", map[string]interface{}{
								"from":     lastLevel.String(),
								"to":       status.Level.String(),
								"instance": status.Instance,
							}); err != nil {
								logger.Printf("audit record failed: %v", err)
							}
						}
						lastLevel = status.Level
						haveLastLevel = true
					}
				} else {
					reg.ObserveFCRStatus(fcr.ConfirmationStatus{}, false)
				}
			}

			if bond != nil {
				exposure, err := bond.GetExposure(ctx)
				if err != nil {
					logger.Printf("bond exposure sample failed: %v", err)
					continue
				}
				available, err := bond.GetAvailableBond(ctx)
				if err != nil {
					logger.Printf("bond available sample failed: %v", err)
					continue
				}
				reg.ObserveBond(exposure, available, decimals, true)
			} else {
				reg.ObserveBond(nil, nil, decimals, false)
			}
		}
	}
}
