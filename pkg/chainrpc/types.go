package chainrpc

import "github.com/ethereum/go-ethereum/common"

// TxHandle is the opaque chain-side identifier for a submitted transaction.
type TxHandle common.Hash

// Hex returns the 0x-prefixed hex encoding of the handle.
func (h TxHandle) Hex() string {
	return common.Hash(h).Hex()
}

// Receipt is the outcome of a mined transaction.
type Receipt struct {
	TxHash      TxHandle
	Status      uint64 // 1 = success, 0 = reverted
	BlockNumber uint64
}

// Success reports whether the receipt records a successful execution.
func (r *Receipt) Success() bool {
	return r != nil && r.Status == 1
}
