package riskledger

import "math/big"

// Limits are the configured risk gates, all expressed in token base units.
type Limits struct {
	MaxPerTransaction   *big.Int
	MaxPendingPerWallet *big.Int
	DailyLimitPerWallet *big.Int // absolute cap, independent of tier
	TierDailyCap        map[Tier]*big.Int
}

// NewLimits builds Limits from token-unit amounts and derives the tier
// daily-cap table from the token's decimals.
func NewLimits(maxPerTransaction, maxPendingPerWallet, dailyLimitPerWallet *big.Int, tokenDecimals int) Limits {
	return Limits{
		MaxPerTransaction:   maxPerTransaction,
		MaxPendingPerWallet: maxPendingPerWallet,
		DailyLimitPerWallet: dailyLimitPerWallet,
		TierDailyCap:        tierCapsInTokenUnits(tokenDecimals),
	}
}

// effectiveDailyCap is min(absolute, tier[tier]).
func (l Limits) effectiveDailyCap(tier Tier) *big.Int {
	effective := l.DailyLimitPerWallet
	if tierCap, ok := l.TierDailyCap[tier]; ok && tierCap.Cmp(effective) < 0 {
		return tierCap
	}
	return effective
}
