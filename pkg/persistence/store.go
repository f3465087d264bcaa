package persistence

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Store is a thin JSON-over-KV persistence layer for the risk ledger,
// settlement engine, and voucher store's durable state, under a
// configurable key prefix (so multiple facilitator deployments can share
// one underlying database).
type Store struct {
	kv     KV
	prefix string
}

// NewStore builds a Store. An empty prefix means no namespacing.
func NewStore(kv KV, prefix string) *Store {
	return &Store{kv: kv, prefix: prefix}
}

func (s *Store) setJSON(key []byte, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling value for key %s: %w", key, err)
	}
	return s.kv.Set(key, b)
}

func (s *Store) getJSON(key []byte, v interface{}) (bool, error) {
	b, err := s.kv.Get(key)
	if err != nil {
		return false, fmt.Errorf("reading key %s: %w", key, err)
	}
	if len(b) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("unmarshaling value for key %s: %w", key, err)
	}
	return true, nil
}

// set/get helpers over a JSON-encoded string set, used for the
// settlements:pending and vouchers:buyer:{addr} indexes.
func (s *Store) addToSet(key []byte, member string) error {
	var members []string
	if _, err := s.getJSON(key, &members); err != nil {
		return err
	}
	for _, m := range members {
		if m == member {
			return nil
		}
	}
	return s.setJSON(key, append(members, member))
}

func (s *Store) removeFromSet(key []byte, member string) error {
	var members []string
	if _, err := s.getJSON(key, &members); err != nil {
		return err
	}
	out := members[:0]
	for _, m := range members {
		if m != member {
			out = append(out, m)
		}
	}
	return s.setJSON(key, out)
}

func (s *Store) readSet(key []byte) ([]string, error) {
	var members []string
	if _, err := s.getJSON(key, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// SaveWalletPending persists a wallet's pending-amount decimal string.
func (s *Store) SaveWalletPending(addr, amountDecimal string) error {
	return s.kv.Set(pendingKey(s.prefix, strings.ToLower(addr)), []byte(amountDecimal))
}

// LoadWalletPending reads a wallet's persisted pending-amount decimal
// string, or "" if absent.
func (s *Store) LoadWalletPending(addr string) (string, error) {
	b, err := s.kv.Get(pendingKey(s.prefix, strings.ToLower(addr)))
	return string(b), err
}

// SaveDailyUsage persists a wallet's daily usage for a UTC date key.
func (s *Store) SaveDailyUsage(addr, date, amountDecimal string) error {
	return s.kv.Set(dailyKey(s.prefix, strings.ToLower(addr), date), []byte(amountDecimal))
}

// LoadDailyUsage reads a wallet's persisted daily usage for a UTC date key.
func (s *Store) LoadDailyUsage(addr, date string) (string, error) {
	b, err := s.kv.Get(dailyKey(s.prefix, strings.ToLower(addr), date))
	return string(b), err
}

// SaveTier persists a wallet's tier override.
func (s *Store) SaveTier(addr, tier string) error {
	return s.kv.Set(tierKey(s.prefix, strings.ToLower(addr)), []byte(tier))
}

// LoadTier reads a wallet's persisted tier override, or "" if absent.
func (s *Store) LoadTier(addr string) (string, error) {
	b, err := s.kv.Get(tierKey(s.prefix, strings.ToLower(addr)))
	return string(b), err
}

// SaveFirstSeen persists a wallet's first-seen unix timestamp.
func (s *Store) SaveFirstSeen(addr string, unixSeconds int64) error {
	return s.setJSON(firstSeenKey(s.prefix, strings.ToLower(addr)), unixSeconds)
}

// LoadFirstSeen reads a wallet's persisted first-seen unix timestamp.
func (s *Store) LoadFirstSeen(addr string) (int64, bool, error) {
	var ts int64
	ok, err := s.getJSON(firstSeenKey(s.prefix, strings.ToLower(addr)), &ts)
	return ts, ok, err
}

// SaveSettlement persists a settlement record, keyed by payment id, and
// adds the id to the pending-settlements index.
func (s *Store) SaveSettlement(id string, record interface{}, pending bool) error {
	if err := s.setJSON(settlementKey(s.prefix, id), record); err != nil {
		return err
	}
	if pending {
		return s.addToSet(settlementsPendingSetKey(s.prefix), id)
	}
	return s.removeFromSet(settlementsPendingSetKey(s.prefix), id)
}

// LoadSettlement reads a settlement record by payment id into dest.
func (s *Store) LoadSettlement(id string, dest interface{}) (bool, error) {
	return s.getJSON(settlementKey(s.prefix, id), dest)
}

// PendingSettlementIDs returns the ids currently indexed as non-terminal.
func (s *Store) PendingSettlementIDs() ([]string, error) {
	return s.readSet(settlementsPendingSetKey(s.prefix))
}

// SaveVoucher persists a voucher revision keyed by (id, buyer, seller) and
// indexes it under the buyer.
func (s *Store) SaveVoucher(id, buyer, seller string, record interface{}) error {
	if err := s.setJSON(voucherKey(s.prefix, id, buyer, seller), record); err != nil {
		return err
	}
	return s.addToSet(vouchersByBuyerSetKey(s.prefix, strings.ToLower(buyer)), voucherSetMember(id, buyer, seller))
}

// LoadVoucher reads a voucher revision by (id, buyer, seller) into dest.
func (s *Store) LoadVoucher(id, buyer, seller string, dest interface{}) (bool, error) {
	return s.getJSON(voucherKey(s.prefix, id, buyer, seller), dest)
}

// VoucherKeysForBuyer returns the (id, buyer, seller) member strings indexed
// for a buyer.
func (s *Store) VoucherKeysForBuyer(buyer string) ([]string, error) {
	return s.readSet(vouchersByBuyerSetKey(s.prefix, strings.ToLower(buyer)))
}

func voucherSetMember(id, buyer, seller string) string {
	return fmt.Sprintf("%s:%s:%s", id, buyer, seller)
}
