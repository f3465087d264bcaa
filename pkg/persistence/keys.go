package persistence

import "fmt"

// Key layout, matching the keys enumerated in the facilitator's external
// interface description: amounts and wallet state keyed by address, daily
// usage additionally keyed by UTC date, settlements keyed by payment id
// plus a pending-set index, and vouchers keyed by (id, buyer, seller) plus
// a per-buyer index.
func pendingKey(prefix, addr string) []byte {
	return []byte(fmt.Sprintf("%spending:%s", prefix, addr))
}

func dailyKey(prefix, addr, date string) []byte {
	return []byte(fmt.Sprintf("%sdaily:%s:%s", prefix, addr, date))
}

func tierKey(prefix, addr string) []byte {
	return []byte(fmt.Sprintf("%stier:%s", prefix, addr))
}

func firstSeenKey(prefix, addr string) []byte {
	return []byte(fmt.Sprintf("%sfirstseen:%s", prefix, addr))
}

func settlementKey(prefix, id string) []byte {
	return []byte(fmt.Sprintf("%ssettlement:%s", prefix, id))
}

func settlementsPendingSetKey(prefix string) []byte {
	return []byte(fmt.Sprintf("%ssettlements:pending", prefix))
}

func voucherKey(prefix, id, buyer, seller string) []byte {
	return []byte(fmt.Sprintf("%svoucher:%s:%s:%s", prefix, id, buyer, seller))
}

func vouchersByBuyerSetKey(prefix, buyer string) []byte {
	return []byte(fmt.Sprintf("%svouchers:buyer:%s", prefix, buyer))
}

func lockKey(prefix, resource string) []byte {
	return []byte(fmt.Sprintf("%slock:%s", prefix, resource))
}
