package exchange

import (
	"encoding/hex"
	"errors"
)

// Storage abstracts the subset of state manager functionality required by the
// exchange components.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVHas(key []byte) (bool, error)
}

var (
	noncePrefix = []byte("exchange/nonce/")

	errNilGuardStore = errors.New("exchange: replay guard store not configured")
)

func nonceKey(requester [20]byte, nonce [32]byte) []byte {
	key := make([]byte, len(noncePrefix), len(noncePrefix)+105)
	copy(key, noncePrefix)
	key = append(key, hex.EncodeToString(requester[:])...)
	key = append(key, '/')
	return append(key, hex.EncodeToString(nonce[:])...)
}

// ReplayGuard tracks, per requester, which nonces have already been consumed.
// The set grows monotonically and is never pruned.
type ReplayGuard struct {
	store Storage
}

// NewReplayGuard constructs a guard bound to the supplied store.
func NewReplayGuard(store Storage) *ReplayGuard {
	return &ReplayGuard{store: store}
}

// IsConsumed reports whether the (requester, nonce) pair has been spent.
func (g *ReplayGuard) IsConsumed(requester [20]byte, nonce [32]byte) (bool, error) {
	if g == nil || g.store == nil {
		return false, errNilGuardStore
	}
	return g.store.KVHas(nonceKey(requester, nonce))
}

// Consume irrevocably marks the pair as spent. Callers must invoke it only
// after every other validation has passed and strictly before any balance
// mutation.
func (g *ReplayGuard) Consume(requester [20]byte, nonce [32]byte) error {
	if g == nil || g.store == nil {
		return errNilGuardStore
	}
	return g.store.KVPut(nonceKey(requester, nonce), true)
}
