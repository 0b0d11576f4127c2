package ledger

import "encoding/hex"

var (
	utilAccountPrefix   = []byte("ledger/util/account/")
	utilAllowancePrefix = []byte("ledger/util/allowance/")
	utilSupplyKey       = []byte("ledger/util/supply")
	govAccountPrefix    = []byte("ledger/gov/account/")
	govSupplyKey        = []byte("ledger/gov/supply")
	rolePrefix          = []byte("ledger/roles/")
)

func appendAddr(prefix []byte, addr [20]byte) []byte {
	buf := make([]byte, len(prefix), len(prefix)+40)
	copy(buf, prefix)
	return append(buf, hex.EncodeToString(addr[:])...)
}

func utilAccountKey(addr [20]byte) []byte {
	return appendAddr(utilAccountPrefix, addr)
}

func utilAllowanceKey(owner, spender [20]byte) []byte {
	key := appendAddr(utilAllowancePrefix, owner)
	key = append(key, '/')
	return append(key, hex.EncodeToString(spender[:])...)
}

func govAccountKey(addr [20]byte) []byte {
	return appendAddr(govAccountPrefix, addr)
}

func roleKey(role Role, addr [20]byte) []byte {
	key := make([]byte, len(rolePrefix), len(rolePrefix)+len(role)+41)
	copy(key, rolePrefix)
	key = append(key, role...)
	key = append(key, '/')
	return append(key, hex.EncodeToString(addr[:])...)
}
