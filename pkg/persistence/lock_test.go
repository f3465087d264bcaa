package persistence

import (
	"testing"
	"time"
)

func TestLockAcquireRelease(t *testing.T) {
	store := NewStore(NewMemKV(), "fac:")
	lock := NewLock(store, "settlement:0xabc", 5*time.Second)

	now := time.Unix(1_700_000_000, 0)
	token, err := lock.Acquire(now)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if _, err := lock.Acquire(now); err != ErrLockHeld {
		t.Errorf("second Acquire = %v, want ErrLockHeld", err)
	}

	if err := lock.Release(token); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if _, err := lock.Acquire(now); err != nil {
		t.Errorf("Acquire after release: %v", err)
	}
}

func TestLockExpiresAndCanBeStolen(t *testing.T) {
	store := NewStore(NewMemKV(), "fac:")
	lock := NewLock(store, "settlement:0xabc", 1*time.Second)

	start := time.Unix(1_700_000_000, 0)
	if _, err := lock.Acquire(start); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	later := start.Add(2 * time.Second)
	if _, err := lock.Acquire(later); err != nil {
		t.Errorf("Acquire after TTL expiry = %v, want success", err)
	}
}

func TestReleaseWithStaleTokenIsNoop(t *testing.T) {
	store := NewStore(NewMemKV(), "fac:")
	lock := NewLock(store, "settlement:0xabc", 1*time.Second)

	start := time.Unix(1_700_000_000, 0)
	staleToken, err := lock.Acquire(start)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	later := start.Add(2 * time.Second)
	newToken, err := lock.Acquire(later)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}

	if err := lock.Release(staleToken); err != nil {
		t.Fatalf("Release(stale): %v", err)
	}

	// The new holder's lock must survive a stale release from the old token.
	if _, err := lock.Acquire(later); err != ErrLockHeld {
		t.Errorf("Acquire after stale release = %v, want ErrLockHeld (new holder %s still valid)", err, newToken)
	}
}
