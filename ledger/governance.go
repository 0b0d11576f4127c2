package ledger

import (
	"errors"
	"math/big"
)

// ErrBurnedCounterDecreased indicates an attempt to lower a holder's
// cumulative burned-utility counter, which only ever grows.
var ErrBurnedCounterDecreased = errors.New("ledger: burned counter may not decrease")

type govAccount struct {
	Balance       *big.Int
	BurnedUtility *big.Int
}

// GovernanceToken is the non-transferable voting-power ledger. Besides the
// balance it tracks, per holder, the cumulative amount of utility tokens ever
// burned through the exchange.
type GovernanceToken struct {
	store  kvStore
	symbol string
}

// NewGovernanceToken constructs a governance ledger bound to the supplied
// store.
func NewGovernanceToken(store kvStore, symbol string) *GovernanceToken {
	return &GovernanceToken{store: store, symbol: symbol}
}

// Symbol returns the display symbol configured for the token.
func (g *GovernanceToken) Symbol() string { return g.symbol }

func (g *GovernanceToken) loadAccount(addr [20]byte) (*govAccount, error) {
	if g == nil || g.store == nil {
		return nil, ErrNilStore
	}
	account := &govAccount{}
	ok, err := g.store.KVGet(govAccountKey(addr), account)
	if err != nil {
		return nil, err
	}
	if !ok || account.Balance == nil {
		account.Balance = big.NewInt(0)
	}
	if account.BurnedUtility == nil {
		account.BurnedUtility = big.NewInt(0)
	}
	return account, nil
}

func (g *GovernanceToken) storeAccount(addr [20]byte, account *govAccount) error {
	return g.store.KVPut(govAccountKey(addr), account)
}

// BalanceOf returns the voting power held by addr.
func (g *GovernanceToken) BalanceOf(addr [20]byte) (*big.Int, error) {
	account, err := g.loadAccount(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(account.Balance), nil
}

// BurnedUtility returns the cumulative utility tokens burned by addr through
// the exchange.
func (g *GovernanceToken) BurnedUtility(addr [20]byte) (*big.Int, error) {
	account, err := g.loadAccount(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(account.BurnedUtility), nil
}

// SetBurnedUtility records a new cumulative burned-utility total for addr.
// The counter is monotone; lowering it is rejected.
func (g *GovernanceToken) SetBurnedUtility(addr [20]byte, total *big.Int) error {
	if total == nil || total.Sign() < 0 {
		return ErrAmountNotPositive
	}
	account, err := g.loadAccount(addr)
	if err != nil {
		return err
	}
	if total.Cmp(account.BurnedUtility) < 0 {
		return ErrBurnedCounterDecreased
	}
	account.BurnedUtility = new(big.Int).Set(total)
	return g.storeAccount(addr, account)
}

// TotalSupply returns the total voting power outstanding.
func (g *GovernanceToken) TotalSupply() (*big.Int, error) {
	if g == nil || g.store == nil {
		return nil, ErrNilStore
	}
	supply := new(big.Int)
	ok, err := g.store.KVGet(govSupplyKey, supply)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return supply, nil
}

func (g *GovernanceToken) adjustSupply(delta *big.Int) error {
	supply, err := g.TotalSupply()
	if err != nil {
		return err
	}
	supply.Add(supply, delta)
	if supply.Sign() < 0 {
		return ErrInsufficientBalance
	}
	return g.store.KVPut(govSupplyKey, supply)
}

// Mint credits voting power to addr.
func (g *GovernanceToken) Mint(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrAmountNotPositive
	}
	account, err := g.loadAccount(addr)
	if err != nil {
		return err
	}
	account.Balance = new(big.Int).Add(account.Balance, amount)
	if err := g.storeAccount(addr, account); err != nil {
		return err
	}
	return g.adjustSupply(amount)
}

// Burn removes voting power from addr. The exchange never calls this; it
// exists for burner-privileged administrative flows.
func (g *GovernanceToken) Burn(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrAmountNotPositive
	}
	account, err := g.loadAccount(addr)
	if err != nil {
		return err
	}
	if account.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	account.Balance = new(big.Int).Sub(account.Balance, amount)
	if err := g.storeAccount(addr, account); err != nil {
		return err
	}
	return g.adjustSupply(new(big.Int).Neg(amount))
}
