package exchange

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"votex/core/events"
	"votex/ledger"
)

var (
	errNilUtility    = errors.New("exchange: utility ledger not configured")
	errNilGovernance = errors.New("exchange: governance ledger not configured")
	errNilRoles      = errors.New("exchange: role registry not configured")
	errNilGuard      = errors.New("exchange: replay guard not configured")
	errNilCapPolicy  = errors.New("exchange: cap policy not configured")
	errNilVerifier   = errors.New("exchange: signature verifier not configured")
	errNilIntent     = errors.New("exchange: intent required")
)

// utilityLedger is the spendable-token collaborator. The engine holds
// burner-equivalent privilege on it and spends the operator's allowance.
type utilityLedger interface {
	BalanceOf(addr [20]byte) (*big.Int, error)
	Allowance(owner, spender [20]byte) (*big.Int, error)
	TransferFrom(spender, owner, to [20]byte, amount *big.Int) error
	Burn(addr [20]byte, amount *big.Int) error
}

// governanceLedger is the voting-power collaborator, including the per-holder
// cumulative burned-utility counter.
type governanceLedger interface {
	BalanceOf(addr [20]byte) (*big.Int, error)
	BurnedUtility(addr [20]byte) (*big.Int, error)
	SetBurnedUtility(addr [20]byte, total *big.Int) error
	Mint(addr [20]byte, amount *big.Int) error
}

// roleChecker is the access-control collaborator gating privileged entry
// points.
type roleChecker interface {
	Has(role ledger.Role, addr [20]byte) (bool, error)
}

// Receipt summarises a settled exchange.
type Receipt struct {
	Requester       [20]byte
	RequestedAmount *big.Int
	BurnedAmount    *big.Int
	GrantedPower    *big.Int
	// Partial is set when the cap clamped the grant below the curve-implied
	// amount for the requested burn.
	Partial bool
}

// HolderState is the read-only snapshot exposed over RPC.
type HolderState struct {
	VotingPower   *big.Int
	BurnedUtility *big.Int
	Headroom      *big.Int
}

// Engine orchestrates intent validation, signature verification, nonce
// consumption, curve math, and the ledger mutations of a bonded exchange.
type Engine struct {
	util     utilityLedger
	gov      governanceLedger
	roles    roleChecker
	guard    *ReplayGuard
	caps     *CapPolicy
	verifier SignatureVerifier
	domain   Domain
	emitter  events.Emitter
	nowFn    func() int64
}

// NewEngine creates an exchange engine with a no-op emitter. Collaborators
// are attached via the Set* methods before first use.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetLedgers configures the utility and governance ledger collaborators.
func (e *Engine) SetLedgers(util utilityLedger, gov governanceLedger) {
	e.util = util
	e.gov = gov
}

// SetRoles configures the access-control collaborator.
func (e *Engine) SetRoles(roles roleChecker) { e.roles = roles }

// SetReplayGuard configures the nonce guard.
func (e *Engine) SetReplayGuard(guard *ReplayGuard) { e.guard = guard }

// SetCapPolicy configures the voting power cap policy.
func (e *Engine) SetCapPolicy(caps *CapPolicy) { e.caps = caps }

// SetVerifier configures the signature verifier.
func (e *Engine) SetVerifier(verifier SignatureVerifier) { e.verifier = verifier }

// SetDomain configures the structured-signing domain. The domain module
// address doubles as the allowance spender on the utility ledger.
func (e *Engine) SetDomain(domain Domain) { e.domain = domain }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the engine clock, primarily for deterministic tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Domain returns the configured structured-signing domain.
func (e *Engine) Domain() Domain { return e.domain }

func (e *Engine) ready() error {
	switch {
	case e == nil, e.util == nil:
		return errNilUtility
	case e.gov == nil:
		return errNilGovernance
	case e.roles == nil:
		return errNilRoles
	case e.guard == nil:
		return errNilGuard
	case e.caps == nil:
		return errNilCapPolicy
	case e.verifier == nil:
		return errNilVerifier
	}
	return nil
}

// Cap returns the current per-holder voting power ceiling.
func (e *Engine) Cap() (*big.Int, error) {
	if e == nil || e.caps == nil {
		return nil, errNilCapPolicy
	}
	return e.caps.Cap()
}

// NonceConsumed reports whether the (requester, nonce) pair has been spent.
func (e *Engine) NonceConsumed(requester [20]byte, nonce [32]byte) (bool, error) {
	if e == nil || e.guard == nil {
		return false, errNilGuard
	}
	return e.guard.IsConsumed(requester, nonce)
}

// Holder returns the requester's voting power, cumulative burned utility, and
// remaining headroom under the cap.
func (e *Engine) Holder(addr [20]byte) (*HolderState, error) {
	if e == nil || e.gov == nil {
		return nil, errNilGovernance
	}
	power, err := e.gov.BalanceOf(addr)
	if err != nil {
		return nil, err
	}
	burned, err := e.gov.BurnedUtility(addr)
	if err != nil {
		return nil, err
	}
	cap, err := e.Cap()
	if err != nil {
		return nil, err
	}
	headroom := new(big.Int).Sub(cap, power)
	if headroom.Sign() < 0 {
		headroom = big.NewInt(0)
	}
	return &HolderState{VotingPower: power, BurnedUtility: burned, Headroom: headroom}, nil
}

// quote computes the grant and burn a request would settle at, given the
// holder's current state. Pure; shared by Exchange and Quote.
func (e *Engine) quote(requester [20]byte, amount *big.Int) (granted, burn, currentBurned *big.Int, partial bool, err error) {
	currentPower, err := e.gov.BalanceOf(requester)
	if err != nil {
		return nil, nil, nil, false, err
	}
	cap, err := e.caps.Cap()
	if err != nil {
		return nil, nil, nil, false, err
	}
	if currentPower.Cmp(cap) >= 0 {
		return nil, nil, nil, false, &CapReachedError{CurrentPower: currentPower, Cap: cap}
	}
	currentBurned, err = e.gov.BurnedUtility(requester)
	if err != nil {
		return nil, nil, nil, false, err
	}
	granted, err = IncrementalVotingPower(amount, currentBurned)
	if err != nil {
		return nil, nil, nil, false, err
	}
	burn = new(big.Int).Set(amount)
	if new(big.Int).Add(currentPower, granted).Cmp(cap) > 0 {
		granted = new(big.Int).Sub(cap, currentPower)
		burn, err = IncrementalBurnedAmount(granted, currentPower)
		if err != nil {
			return nil, nil, nil, false, err
		}
		partial = true
	}
	return granted, burn, currentBurned, partial, nil
}

// Quote previews the grant and burn a request would settle at without
// mutating any state or consuming the nonce.
func (e *Engine) Quote(requester [20]byte, amount *big.Int) (*Receipt, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if requester == ([20]byte{}) {
		return nil, ErrZeroAddress
	}
	if amount == nil || amount.Cmp(MinimumExchangeAmount()) < 0 {
		return nil, ErrAmountTooSmall
	}
	granted, burn, _, partial, err := e.quote(requester, amount)
	if err != nil {
		return nil, err
	}
	return &Receipt{
		Requester:       requester,
		RequestedAmount: new(big.Int).Set(amount),
		BurnedAmount:    burn,
		GrantedPower:    granted,
		Partial:         partial,
	}, nil
}

// Exchange validates the signed intent and settles it: utility tokens move
// from the operator to the requester and burn there, the cumulative burned
// counter advances, and voting power mints up to the cap. The caller must
// hold the exchanger role.
func (e *Engine) Exchange(caller [20]byte, intent *Intent) (*Receipt, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, errNilIntent
	}
	ok, err := e.roles.Has(ledger.RoleExchanger, caller)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotExchanger
	}
	if intent.Requester == ([20]byte{}) {
		return nil, ErrZeroAddress
	}
	if intent.Amount == nil || intent.Amount.Cmp(MinimumExchangeAmount()) < 0 {
		return nil, ErrAmountTooSmall
	}
	consumed, err := e.guard.IsConsumed(intent.Requester, intent.Nonce)
	if err != nil {
		return nil, err
	}
	if consumed {
		return nil, ErrNonceUsed
	}
	if e.nowFn() > intent.Expiry {
		return nil, ErrIntentExpired
	}
	granted, burn, currentBurned, partial, err := e.quote(intent.Requester, intent.Amount)
	if err != nil {
		return nil, err
	}
	digest, err := intent.Digest(e.domain)
	if err != nil {
		return nil, err
	}
	ok, err = e.verifier.Verify(intent.Requester, digest, intent.Signature)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &InvalidSignatureError{Digest: digest, Signature: intent.Signature}
	}

	// The operator funds the burn through its pre-approved allowance for the
	// module address. Both funding preconditions are checked before the nonce
	// is consumed so a rejected request never spends it.
	allowance, err := e.util.Allowance(caller, e.domain.Module)
	if err != nil {
		return nil, err
	}
	if allowance.Cmp(burn) < 0 {
		return nil, fmt.Errorf("exchange: operator allowance %s below burn amount %s: %w",
			allowance, burn, ledger.ErrInsufficientAllowance)
	}
	operatorBalance, err := e.util.BalanceOf(caller)
	if err != nil {
		return nil, err
	}
	if operatorBalance.Cmp(burn) < 0 {
		return nil, fmt.Errorf("exchange: operator balance %s below burn amount %s: %w",
			operatorBalance, burn, ledger.ErrInsufficientBalance)
	}

	if err := e.guard.Consume(intent.Requester, intent.Nonce); err != nil {
		return nil, err
	}

	// Every failure past this point is a storage fault: the nonce is spent
	// and the host must discard the whole request.
	if err := e.util.TransferFrom(e.domain.Module, caller, intent.Requester, burn); err != nil {
		return nil, fmt.Errorf("%w: fund transfer: %v", ErrSettlementFailed, err)
	}
	if err := e.util.Burn(intent.Requester, burn); err != nil {
		return nil, fmt.Errorf("%w: burn: %v", ErrSettlementFailed, err)
	}
	newBurned := new(big.Int).Add(currentBurned, burn)
	if err := e.gov.SetBurnedUtility(intent.Requester, newBurned); err != nil {
		return nil, fmt.Errorf("%w: burned counter: %v", ErrSettlementFailed, err)
	}
	// The curve may truncate a minimal grant to zero near the precision
	// floor; the burn still settles so the cumulative counter stays exact.
	if granted.Sign() > 0 {
		if err := e.gov.Mint(intent.Requester, granted); err != nil {
			return nil, fmt.Errorf("%w: mint: %v", ErrSettlementFailed, err)
		}
	}
	e.emitter.Emit(events.VotingPowerReceived{
		Requester:    intent.Requester,
		BurnedAmount: burn,
		GrantedPower: granted,
	})
	return &Receipt{
		Requester:       intent.Requester,
		RequestedAmount: new(big.Int).Set(intent.Amount),
		BurnedAmount:    burn,
		GrantedPower:    granted,
		Partial:         partial,
	}, nil
}

// SetVotingPowerCap raises the per-holder ceiling. The caller must hold the
// manager role; the new value must exceed the existing cap.
func (e *Engine) SetVotingPowerCap(caller [20]byte, newCap *big.Int) error {
	if e == nil || e.roles == nil {
		return errNilRoles
	}
	if e.caps == nil {
		return errNilCapPolicy
	}
	ok, err := e.roles.Has(ledger.RoleManager, caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotManager
	}
	oldCap, err := e.caps.SetCap(newCap)
	if err != nil {
		return err
	}
	e.emitter.Emit(events.VotingPowerCapUpdated{
		Manager: caller,
		OldCap:  oldCap,
		NewCap:  newCap,
	})
	return nil
}
