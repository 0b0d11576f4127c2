package ledger

import (
	"errors"
	"math/big"
)

// kvStore abstracts the subset of storage functionality required by the
// ledgers.
type kvStore interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVHas(key []byte) (bool, error)
	KVDelete(key []byte) error
}

var (
	// ErrNilStore indicates the ledger was constructed without a storage backend.
	ErrNilStore = errors.New("ledger: store not configured")
	// ErrAmountNotPositive indicates a mint, burn, or transfer of a non-positive amount.
	ErrAmountNotPositive = errors.New("ledger: amount must be positive")
	// ErrInsufficientBalance indicates the source account cannot cover the requested amount.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	// ErrInsufficientAllowance indicates the spender's approved allowance cannot cover the transfer.
	ErrInsufficientAllowance = errors.New("ledger: insufficient allowance")
)

type tokenAccount struct {
	Balance *big.Int
}

// Token is the spendable utility-token ledger. Holders transfer and approve
// balances; minting and burning are reserved for privileged callers enforced
// at the engine layer.
type Token struct {
	store  kvStore
	symbol string
}

// NewToken constructs a utility-token ledger bound to the supplied store.
func NewToken(store kvStore, symbol string) *Token {
	return &Token{store: store, symbol: symbol}
}

// Symbol returns the display symbol configured for the token.
func (t *Token) Symbol() string { return t.symbol }

func (t *Token) loadAccount(addr [20]byte) (*tokenAccount, error) {
	if t == nil || t.store == nil {
		return nil, ErrNilStore
	}
	account := &tokenAccount{}
	ok, err := t.store.KVGet(utilAccountKey(addr), account)
	if err != nil {
		return nil, err
	}
	if !ok || account.Balance == nil {
		account.Balance = big.NewInt(0)
	}
	return account, nil
}

func (t *Token) storeAccount(addr [20]byte, account *tokenAccount) error {
	return t.store.KVPut(utilAccountKey(addr), account)
}

// BalanceOf returns the spendable balance held by addr.
func (t *Token) BalanceOf(addr [20]byte) (*big.Int, error) {
	account, err := t.loadAccount(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(account.Balance), nil
}

// TotalSupply returns the total amount minted minus the total burned.
func (t *Token) TotalSupply() (*big.Int, error) {
	if t == nil || t.store == nil {
		return nil, ErrNilStore
	}
	supply := new(big.Int)
	ok, err := t.store.KVGet(utilSupplyKey, supply)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return supply, nil
}

func (t *Token) adjustSupply(delta *big.Int) error {
	supply, err := t.TotalSupply()
	if err != nil {
		return err
	}
	supply.Add(supply, delta)
	if supply.Sign() < 0 {
		return ErrInsufficientBalance
	}
	return t.store.KVPut(utilSupplyKey, supply)
}

// Mint credits amount to addr.
func (t *Token) Mint(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrAmountNotPositive
	}
	account, err := t.loadAccount(addr)
	if err != nil {
		return err
	}
	account.Balance = new(big.Int).Add(account.Balance, amount)
	if err := t.storeAccount(addr, account); err != nil {
		return err
	}
	return t.adjustSupply(amount)
}

// Burn removes amount from addr's balance. Callers are responsible for
// enforcing burner privileges.
func (t *Token) Burn(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrAmountNotPositive
	}
	account, err := t.loadAccount(addr)
	if err != nil {
		return err
	}
	if account.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	account.Balance = new(big.Int).Sub(account.Balance, amount)
	if err := t.storeAccount(addr, account); err != nil {
		return err
	}
	return t.adjustSupply(new(big.Int).Neg(amount))
}

// Transfer moves amount from one holder to another.
func (t *Token) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrAmountNotPositive
	}
	source, err := t.loadAccount(from)
	if err != nil {
		return err
	}
	if source.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	source.Balance = new(big.Int).Sub(source.Balance, amount)
	if err := t.storeAccount(from, source); err != nil {
		return err
	}
	dest, err := t.loadAccount(to)
	if err != nil {
		return err
	}
	dest.Balance = new(big.Int).Add(dest.Balance, amount)
	return t.storeAccount(to, dest)
}

// Approve sets the allowance spender may transfer out of owner's balance.
func (t *Token) Approve(owner, spender [20]byte, amount *big.Int) error {
	if t == nil || t.store == nil {
		return ErrNilStore
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrAmountNotPositive
	}
	return t.store.KVPut(utilAllowanceKey(owner, spender), amount)
}

// Allowance returns the remaining amount spender may transfer out of owner's
// balance.
func (t *Token) Allowance(owner, spender [20]byte) (*big.Int, error) {
	if t == nil || t.store == nil {
		return nil, ErrNilStore
	}
	allowance := new(big.Int)
	ok, err := t.store.KVGet(utilAllowanceKey(owner, spender), allowance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return allowance, nil
}

// TransferFrom moves amount from owner to recipient using spender's approved
// allowance.
func (t *Token) TransferFrom(spender, owner, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrAmountNotPositive
	}
	allowance, err := t.Allowance(owner, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := t.Transfer(owner, to, amount); err != nil {
		return err
	}
	allowance.Sub(allowance, amount)
	return t.store.KVPut(utilAllowanceKey(owner, spender), allowance)
}
