package exchange

import (
	"errors"
	"math/big"
	"testing"

	"votex/storage"
)

func TestCapPolicyDefaultsAndRaises(t *testing.T) {
	caps := NewCapPolicy(storage.NewMemory())

	cap, err := caps.Cap()
	if err != nil {
		t.Fatalf("cap: %v", err)
	}
	if cap.Cmp(tokens(1000)) != 0 {
		t.Fatalf("default cap %s want %s", cap, tokens(1000))
	}

	old, err := caps.SetCap(tokens(5000))
	if err != nil {
		t.Fatalf("set cap: %v", err)
	}
	if old.Cmp(tokens(1000)) != 0 {
		t.Fatalf("old cap %s want %s", old, tokens(1000))
	}
	cap, err = caps.Cap()
	if err != nil || cap.Cmp(tokens(5000)) != 0 {
		t.Fatalf("cap %s err=%v", cap, err)
	}
}

func TestCapPolicyRejectsNonRaises(t *testing.T) {
	caps := NewCapPolicy(storage.NewMemory())

	if _, err := caps.SetCap(tokens(1000)); !errors.Is(err, ErrCapNotRaised) {
		t.Fatalf("equal cap: %v", err)
	}
	if _, err := caps.SetCap(tokens(999)); !errors.Is(err, ErrCapNotRaised) {
		t.Fatalf("lower cap: %v", err)
	}
	if _, err := caps.SetCap(nil); !errors.Is(err, ErrCapInvalid) {
		t.Fatalf("nil cap: %v", err)
	}
	if _, err := caps.SetCap(big.NewInt(-1)); !errors.Is(err, ErrCapInvalid) {
		t.Fatalf("negative cap: %v", err)
	}
}

func TestReplayGuardScopesNoncesPerRequester(t *testing.T) {
	guard := NewReplayGuard(storage.NewMemory())
	alice := testAddr(1)
	bob := testAddr(2)
	var nonce [32]byte
	nonce[31] = 7

	used, err := guard.IsConsumed(alice, nonce)
	if err != nil || used {
		t.Fatalf("fresh nonce: used=%v err=%v", used, err)
	}
	if err := guard.Consume(alice, nonce); err != nil {
		t.Fatalf("consume: %v", err)
	}
	used, err = guard.IsConsumed(alice, nonce)
	if err != nil || !used {
		t.Fatalf("consumed nonce: used=%v err=%v", used, err)
	}
	// The same nonce value remains free for a different requester.
	used, err = guard.IsConsumed(bob, nonce)
	if err != nil || used {
		t.Fatalf("other requester nonce: used=%v err=%v", used, err)
	}
}
