package persistence

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// MaxLockTTL bounds how long a lock may be held before it is considered
// abandoned and eligible for a new holder to steal.
const MaxLockTTL = 30 * time.Second

// ErrLockHeld is returned when a resource's lock is currently held by
// another, still-live token.
var ErrLockHeld = fmt.Errorf("resource lock is held")

type lockRecord struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"` // unix seconds
}

// Lock is a short-lived, check-then-delete advisory lock over a named
// resource, backed by the same KV store as the rest of persisted state.
// It is not linearizable — two acquirers racing within the same read-then-
// write window can both believe they hold the lock — which is the same
// trade-off the facilitator's key layout documents for this lock style;
// callers needing stronger guarantees should pair it with the resource's
// own idempotency (as the bond and escrow contracts already provide).
type Lock struct {
	store    *Store
	resource string
	ttl      time.Duration
}

// NewLock builds a Lock over the given resource name, bounded to ttl (which
// is clamped to MaxLockTTL).
func NewLock(store *Store, resource string, ttl time.Duration) *Lock {
	if ttl <= 0 || ttl > MaxLockTTL {
		ttl = MaxLockTTL
	}
	return &Lock{store: store, resource: resource, ttl: ttl}
}

func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Acquire attempts to take the lock, returning a token that must be passed
// to Release. Fails with ErrLockHeld if another live holder exists.
func (l *Lock) Acquire(now time.Time) (string, error) {
	key := lockKey(l.store.prefix, l.resource)

	raw, err := l.store.kv.Get(key)
	if err != nil {
		return "", fmt.Errorf("reading lock %s: %w", l.resource, err)
	}
	if len(raw) > 0 {
		var existing lockRecord
		if err := json.Unmarshal(raw, &existing); err == nil && existing.ExpiresAt > now.Unix() {
			return "", ErrLockHeld
		}
	}

	token, err := randomToken()
	if err != nil {
		return "", err
	}
	rec := lockRecord{Token: token, ExpiresAt: now.Add(l.ttl).Unix()}
	b, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshaling lock record: %w", err)
	}
	if err := l.store.kv.Set(key, b); err != nil {
		return "", fmt.Errorf("writing lock %s: %w", l.resource, err)
	}
	return token, nil
}

// Release drops the lock if and only if it is still held by token
// (check-then-delete), so a stale Release after the lock expired and was
// re-acquired by someone else cannot clobber the new holder.
func (l *Lock) Release(token string) error {
	key := lockKey(l.store.prefix, l.resource)

	raw, err := l.store.kv.Get(key)
	if err != nil {
		return fmt.Errorf("reading lock %s: %w", l.resource, err)
	}
	if len(raw) == 0 {
		return nil
	}
	var existing lockRecord
	if err := json.Unmarshal(raw, &existing); err != nil {
		return fmt.Errorf("unmarshaling lock %s: %w", l.resource, err)
	}
	if existing.Token != token {
		return nil // already expired and reclaimed by someone else
	}
	return l.store.kv.Delete(key)
}
