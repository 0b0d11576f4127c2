package exchange

import (
	"errors"
	"math/big"
)

var (
	capKey = []byte("exchange/params/cap")

	// ErrCapNotRaised indicates an attempt to set a cap at or below the
	// existing one; the cap is monotone non-decreasing.
	ErrCapNotRaised = errors.New("exchange: new cap is not higher than existing")
	// ErrCapInvalid indicates a nil or non-positive cap value.
	ErrCapInvalid = errors.New("exchange: cap must be positive")

	errNilCapStore = errors.New("exchange: cap policy store not configured")
)

// defaultVotingPowerCap is the ceiling applied before the manager ever raises
// it: 1000 units of voting power.
var defaultVotingPowerCap = new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18))

// CapPolicy owns the global per-holder voting power ceiling.
type CapPolicy struct {
	store Storage
}

// NewCapPolicy constructs a policy bound to the supplied store. Until SetCap
// is called the default cap applies.
func NewCapPolicy(store Storage) *CapPolicy {
	return &CapPolicy{store: store}
}

// Cap returns the current ceiling.
func (p *CapPolicy) Cap() (*big.Int, error) {
	if p == nil || p.store == nil {
		return nil, errNilCapStore
	}
	cap := new(big.Int)
	ok, err := p.store.KVGet(capKey, cap)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(big.Int).Set(defaultVotingPowerCap), nil
	}
	return cap, nil
}

// SetCap raises the ceiling to newCap. Values at or below the current cap are
// rejected. Returns the previous cap for event emission.
func (p *CapPolicy) SetCap(newCap *big.Int) (*big.Int, error) {
	if p == nil || p.store == nil {
		return nil, errNilCapStore
	}
	if newCap == nil || newCap.Sign() <= 0 {
		return nil, ErrCapInvalid
	}
	current, err := p.Cap()
	if err != nil {
		return nil, err
	}
	if newCap.Cmp(current) <= 0 {
		return nil, ErrCapNotRaised
	}
	if err := p.store.KVPut(capKey, newCap); err != nil {
		return nil, err
	}
	return current, nil
}
