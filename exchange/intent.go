package exchange

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	intentTypeHash = ethcrypto.Keccak256([]byte("ExchangeIntent(address requester,uint256 amount,bytes32 nonce,uint256 expiry)"))
	domainTypeHash = ethcrypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
)

// ErrIntentMalformed indicates the intent carried fields that cannot be
// encoded into the signing digest.
var ErrIntentMalformed = errors.New("exchange: malformed intent")

// Intent is the signed, single-use exchange request a holder authorises
// off-line. It is validated and discarded within one Exchange call.
type Intent struct {
	Requester [20]byte
	Amount    *big.Int
	Nonce     [32]byte
	Expiry    int64
	Signature []byte
}

// Domain binds intent digests to a single deployment so signatures cannot be
// replayed against another instance or chain.
type Domain struct {
	Name    string
	Version string
	ChainID uint64
	// Module is the address of the exchange module itself; it doubles as the
	// spender the operator approves on the utility ledger.
	Module [20]byte
}

// Separator returns the domain separator hash.
func (d Domain) Separator() [32]byte {
	enc := make([]byte, 0, 160)
	enc = append(enc, domainTypeHash...)
	enc = append(enc, ethcrypto.Keccak256([]byte(d.Name))...)
	enc = append(enc, ethcrypto.Keccak256([]byte(d.Version))...)
	enc = append(enc, common.LeftPadBytes(new(big.Int).SetUint64(d.ChainID).Bytes(), 32)...)
	enc = append(enc, common.LeftPadBytes(d.Module[:], 32)...)
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(enc))
	return out
}

func (i *Intent) structHash() ([32]byte, error) {
	var out [32]byte
	if i == nil || i.Amount == nil || i.Amount.Sign() < 0 || i.Amount.BitLen() > 256 {
		return out, ErrIntentMalformed
	}
	if i.Expiry < 0 {
		return out, ErrIntentMalformed
	}
	enc := make([]byte, 0, 160)
	enc = append(enc, intentTypeHash...)
	enc = append(enc, common.LeftPadBytes(i.Requester[:], 32)...)
	enc = append(enc, common.LeftPadBytes(i.Amount.Bytes(), 32)...)
	enc = append(enc, i.Nonce[:]...)
	enc = append(enc, common.LeftPadBytes(new(big.Int).SetInt64(i.Expiry).Bytes(), 32)...)
	copy(out[:], ethcrypto.Keccak256(enc))
	return out, nil
}

// Digest computes the domain-separated signing digest for the intent,
// following the structured-signing layout 0x19 0x01 || domain || struct.
func (i *Intent) Digest(domain Domain) ([32]byte, error) {
	var out [32]byte
	structHash, err := i.structHash()
	if err != nil {
		return out, err
	}
	separator := domain.Separator()
	enc := make([]byte, 0, 66)
	enc = append(enc, 0x19, 0x01)
	enc = append(enc, separator[:]...)
	enc = append(enc, structHash[:]...)
	copy(out[:], ethcrypto.Keccak256(enc))
	return out, nil
}
