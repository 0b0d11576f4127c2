package exchange

import (
	"math/big"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"votex/crypto"
)

func testDomain(module byte) Domain {
	var moduleAddr [20]byte
	moduleAddr[19] = module
	return Domain{Name: "Votex Exchange", Version: "1", ChainID: 77001, Module: moduleAddr}
}

func newSignedIntent(t *testing.T, key *crypto.PrivateKey, domain Domain, amount *big.Int, nonce byte, expiry int64) *Intent {
	t.Helper()
	intent := &Intent{
		Requester: key.PubKey().RawAddress(),
		Amount:    amount,
		Expiry:    expiry,
	}
	intent.Nonce[31] = nonce
	digest, err := intent.Digest(domain)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	sig, err := ethcrypto.Sign(digest[:], key.PrivateKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	intent.Signature = sig
	return intent
}

func TestDigestBindsToDomain(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	intent := &Intent{Requester: key.PubKey().RawAddress(), Amount: big.NewInt(1e18), Expiry: 1800000000}
	base, err := intent.Digest(testDomain(1))
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	variants := []Domain{
		{Name: "Other Exchange", Version: "1", ChainID: 77001, Module: testDomain(1).Module},
		{Name: "Votex Exchange", Version: "2", ChainID: 77001, Module: testDomain(1).Module},
		{Name: "Votex Exchange", Version: "1", ChainID: 1, Module: testDomain(1).Module},
		testDomain(2),
	}
	for _, domain := range variants {
		other, err := intent.Digest(domain)
		if err != nil {
			t.Fatalf("digest variant: %v", err)
		}
		if other == base {
			t.Fatalf("digest did not change under domain %+v", domain)
		}
	}
}

func TestDigestBindsToFields(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	domain := testDomain(1)
	base := newSignedIntent(t, key, domain, big.NewInt(1e18), 1, 1800000000)
	baseDigest, err := base.Digest(domain)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	mutations := []*Intent{
		{Requester: base.Requester, Amount: big.NewInt(2e18), Nonce: base.Nonce, Expiry: base.Expiry},
		{Requester: base.Requester, Amount: base.Amount, Nonce: [32]byte{31: 2}, Expiry: base.Expiry},
		{Requester: base.Requester, Amount: base.Amount, Nonce: base.Nonce, Expiry: base.Expiry + 1},
	}
	for i, mutated := range mutations {
		digest, err := mutated.Digest(domain)
		if err != nil {
			t.Fatalf("mutation %d: %v", i, err)
		}
		if digest == baseDigest {
			t.Fatalf("mutation %d left the digest unchanged", i)
		}
	}
	if _, err := (&Intent{Requester: base.Requester, Amount: nil}).Digest(domain); err == nil {
		t.Fatalf("expected malformed intent error")
	}
}

func TestRecoveryVerifier(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	domain := testDomain(1)
	intent := newSignedIntent(t, key, domain, big.NewInt(1e18), 1, 1800000000)
	digest, err := intent.Digest(domain)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	verifier := NewRecoveryVerifier()

	ok, err := verifier.Verify(intent.Requester, digest, intent.Signature)
	if err != nil || !ok {
		t.Fatalf("valid signature rejected: ok=%v err=%v", ok, err)
	}

	var stranger [20]byte
	stranger[0] = 0xff
	ok, err = verifier.Verify(stranger, digest, intent.Signature)
	if err != nil || ok {
		t.Fatalf("signature accepted for wrong requester: ok=%v err=%v", ok, err)
	}

	ok, err = verifier.Verify(intent.Requester, digest, []byte("short"))
	if err != nil || ok {
		t.Fatalf("malformed signature accepted: ok=%v err=%v", ok, err)
	}

	garbage := append([]byte(nil), intent.Signature...)
	garbage[0] ^= 0xff
	ok, err = verifier.Verify(intent.Requester, digest, garbage)
	if err != nil || ok {
		t.Fatalf("tampered signature accepted: ok=%v err=%v", ok, err)
	}
}

type stubAccount struct {
	accepted []byte
}

func (s *stubAccount) VerifySignature(_ [32]byte, signature []byte) (bool, error) {
	return string(signature) == string(s.accepted), nil
}

func TestDelegatedAccountVerification(t *testing.T) {
	verifier := NewRecoveryVerifier()
	var account [20]byte
	account[19] = 9
	token := []byte("account-approval-token")
	verifier.RegisterAccount(account, &stubAccount{accepted: token})

	var digest [32]byte
	ok, err := verifier.Verify(account, digest, token)
	if err != nil || !ok {
		t.Fatalf("delegated approval rejected: ok=%v err=%v", ok, err)
	}
	ok, err = verifier.Verify(account, digest, []byte("wrong"))
	if err != nil || ok {
		t.Fatalf("delegated rejection ignored: ok=%v err=%v", ok, err)
	}

	// Removing the registration falls back to key recovery, which fails for
	// an arbitrary blob.
	verifier.RegisterAccount(account, nil)
	ok, err = verifier.Verify(account, digest, token)
	if err != nil || ok {
		t.Fatalf("expected recovery fallback to reject: ok=%v err=%v", ok, err)
	}
}
