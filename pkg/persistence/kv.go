// Package persistence provides the facilitator's optional durable backing
// store: a key-value layer over CometBFT's embedded database plus a
// short-lived distributed lock, used when the risk ledger, settlement
// engine, and voucher store are configured to persist across restarts.
package persistence

import (
	"fmt"

	dbm "github.com/cometbft/cometbft-db"
)

// KV is the store's storage contract. It extends the teacher's Get/Set
// split with Delete and Has, which the lock and GC paths need.
type KV interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
}

// CometKV adapts a cometbft-db dbm.DB to the KV interface, the way
// pkg/kvdb.KVAdapter wraps dbm.DB for the ledger store.
type CometKV struct {
	db dbm.DB
}

// NewCometKV wraps an already-opened CometBFT database.
func NewCometKV(db dbm.DB) *CometKV {
	return &CometKV{db: db}
}

// OpenGoLevelDB opens (creating if absent) a goleveldb-backed database under
// dir, named name.
func OpenGoLevelDB(name, dir string) (*CometKV, error) {
	db, err := dbm.NewGoLevelDB(name, dir)
	if err != nil {
		return nil, fmt.Errorf("opening goleveldb %s in %s: %w", name, dir, err)
	}
	return NewCometKV(db), nil
}

func (c *CometKV) Get(key []byte) ([]byte, error) {
	return c.db.Get(key)
}

func (c *CometKV) Set(key, value []byte) error {
	return c.db.SetSync(key, value)
}

func (c *CometKV) Delete(key []byte) error {
	return c.db.DeleteSync(key)
}

func (c *CometKV) Has(key []byte) (bool, error) {
	return c.db.Has(key)
}

var _ KV = (*CometKV)(nil)
