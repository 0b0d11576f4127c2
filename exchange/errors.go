package exchange

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrZeroAddress indicates the intent named the zero address as requester.
	ErrZeroAddress = errors.New("exchange: requester address is zero")
	// ErrAmountTooSmall indicates the requested amount is below the minimum
	// exchangeable amount.
	ErrAmountTooSmall = errors.New("exchange: amount below minimum")
	// ErrNonceUsed indicates the (requester, nonce) pair was already consumed.
	ErrNonceUsed = errors.New("exchange: nonce already consumed")
	// ErrIntentExpired indicates the intent expiry elapsed before submission.
	ErrIntentExpired = errors.New("exchange: intent expired")
	// ErrCapReached indicates the holder is already at or above the cap; no
	// partial grant is possible.
	ErrCapReached = errors.New("exchange: voting power already at cap")
	// ErrInvalidSignature indicates the signature does not authorise the intent.
	ErrInvalidSignature = errors.New("exchange: invalid signature")
	// ErrNotExchanger indicates the caller lacks the exchanger role.
	ErrNotExchanger = errors.New("exchange: caller lacks exchanger role")
	// ErrNotManager indicates the caller lacks the manager role.
	ErrNotManager = errors.New("exchange: caller lacks manager role")
	// ErrSettlementFailed wraps storage faults observed after the nonce was
	// consumed. These are fatal: the request must be discarded wholesale by
	// the surrounding execution environment.
	ErrSettlementFailed = errors.New("exchange: settlement failed after nonce consumption")
)

// InvalidSignatureError carries the offending digest and signature so callers
// can diagnose a rejection without re-deriving the digest.
type InvalidSignatureError struct {
	Digest    [32]byte
	Signature []byte
}

func (e *InvalidSignatureError) Error() string {
	return fmt.Sprintf("exchange: invalid signature %s over digest %s",
		hex.EncodeToString(e.Signature), hex.EncodeToString(e.Digest[:]))
}

func (e *InvalidSignatureError) Unwrap() error { return ErrInvalidSignature }

// CapReachedError reports the holder's current voting power alongside the cap
// that blocks the exchange.
type CapReachedError struct {
	CurrentPower *big.Int
	Cap          *big.Int
}

func (e *CapReachedError) Error() string {
	return fmt.Sprintf("exchange: voting power %s already at cap %s", e.CurrentPower, e.Cap)
}

func (e *CapReachedError) Unwrap() error { return ErrCapReached }
