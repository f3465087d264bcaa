package riskledger

import "errors"

var (
	// ErrSettlementExists is returned by Reserve when a settlement record
	// already exists for the payment id.
	ErrSettlementExists = errors.New("riskledger: settlement already exists")
	// ErrSettlementNotFound is returned when an operation targets an
	// unknown payment id.
	ErrSettlementNotFound = errors.New("riskledger: settlement not found")
	// ErrRiskRejected is returned by Reserve when the wallet's risk gates
	// no longer allow the payment at the moment the lock was acquired
	// (closing the check/reserve race).
	ErrRiskRejected = errors.New("riskledger: risk gate rejected reservation")
)
