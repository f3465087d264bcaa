package riskledger

import (
	"math/big"
	"time"
)

// Tier classifies a wallet's risk profile, derived from how long it has
// been observed unless manually overridden.
type Tier string

const (
	TierUnknown     Tier = "UNKNOWN"
	TierHistory7d   Tier = "HISTORY_7D"
	TierHistory30d  Tier = "HISTORY_30D"
	TierVerified    Tier = "VERIFIED"
)

// tierAgeThresholds order the age-derived tiers from youngest to oldest.
// VERIFIED is never derived from age; it only arrives via manual override.
var tierAgeThresholds = []struct {
	tier    Tier
	minimum time.Duration
}{
	{TierHistory30d, 30 * 24 * time.Hour},
	{TierHistory7d, 7 * 24 * time.Hour},
}

// tierFromAge derives a tier from how long ago firstSeen was observed.
func tierFromAge(firstSeen time.Time, now time.Time) Tier {
	age := now.Sub(firstSeen)
	for _, t := range tierAgeThresholds {
		if age >= t.minimum {
			return t.tier
		}
	}
	return TierUnknown
}

// tierUSDCaps are the base USD daily caps per tier, converted to token units
// at construction time using the token's decimals.
var tierUSDCaps = map[Tier]int64{
	TierUnknown:    5,
	TierHistory7d:  50,
	TierHistory30d: 500,
	TierVerified:   5000,
}

func tierCapsInTokenUnits(decimals int) map[Tier]*big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	caps := make(map[Tier]*big.Int, len(tierUSDCaps))
	for tier, usd := range tierUSDCaps {
		caps[tier] = new(big.Int).Mul(big.NewInt(usd), scale)
	}
	return caps
}
