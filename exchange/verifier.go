package exchange

import (
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SignatureVerifier proves that an intent digest was authorised by the
// claimed requester.
type SignatureVerifier interface {
	Verify(requester [20]byte, digest [32]byte, signature []byte) (bool, error)
}

// AccountVerifier is implemented by programmable accounts that validate
// signatures themselves instead of exposing a recoverable key.
type AccountVerifier interface {
	VerifySignature(digest [32]byte, signature []byte) (bool, error)
}

// RecoveryVerifier validates 65-byte secp256k1 signatures by recovering the
// signer address. Requesters registered as programmable accounts are
// delegated to instead of recovered.
type RecoveryVerifier struct {
	mu       sync.RWMutex
	accounts map[[20]byte]AccountVerifier
}

// NewRecoveryVerifier constructs a verifier with no programmable accounts
// registered.
func NewRecoveryVerifier() *RecoveryVerifier {
	return &RecoveryVerifier{accounts: make(map[[20]byte]AccountVerifier)}
}

// RegisterAccount routes future verifications for addr through the supplied
// account verifier. Passing nil removes the registration.
func (v *RecoveryVerifier) RegisterAccount(addr [20]byte, account AccountVerifier) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if account == nil {
		delete(v.accounts, addr)
		return
	}
	v.accounts[addr] = account
}

func (v *RecoveryVerifier) delegate(addr [20]byte) (AccountVerifier, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	account, ok := v.accounts[addr]
	return account, ok
}

// Verify implements SignatureVerifier.
func (v *RecoveryVerifier) Verify(requester [20]byte, digest [32]byte, signature []byte) (bool, error) {
	if account, ok := v.delegate(requester); ok {
		return account.VerifySignature(digest, signature)
	}
	if len(signature) != 65 {
		return false, nil
	}
	pubKey, err := ethcrypto.SigToPub(digest[:], signature)
	if err != nil {
		return false, nil
	}
	recovered := ethcrypto.PubkeyToAddress(*pubKey)
	return recovered == ethcommon.BytesToAddress(requester[:]), nil
}
