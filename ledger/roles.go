package ledger

import "errors"

// Role identifies a privilege recognised by the exchange daemon.
type Role string

const (
	// RoleManager may raise the voting power cap.
	RoleManager Role = "manager"
	// RoleExchanger may submit signed exchange intents on behalf of holders.
	RoleExchanger Role = "exchanger"
	// RoleMinter may mint utility tokens.
	RoleMinter Role = "minter"
	// RoleBurner may burn tokens from arbitrary holders.
	RoleBurner Role = "burner"
)

var errNilRoleStore = errors.New("roles: store not configured")

// Roles is the access-control collaborator consulted by privileged entry
// points. Membership persists for the daemon's entire life unless revoked.
type Roles struct {
	store kvStore
}

// NewRoles constructs a role registry bound to the supplied store.
func NewRoles(store kvStore) *Roles {
	return &Roles{store: store}
}

// Grant marks addr as holding role. Granting an already-held role is a no-op.
func (r *Roles) Grant(role Role, addr [20]byte) error {
	if r == nil || r.store == nil {
		return errNilRoleStore
	}
	return r.store.KVPut(roleKey(role, addr), true)
}

// Revoke removes role from addr. Revoking an absent role is a no-op.
func (r *Roles) Revoke(role Role, addr [20]byte) error {
	if r == nil || r.store == nil {
		return errNilRoleStore
	}
	return r.store.KVDelete(roleKey(role, addr))
}

// Has reports whether addr currently holds role.
func (r *Roles) Has(role Role, addr [20]byte) (bool, error) {
	if r == nil || r.store == nil {
		return false, errNilRoleStore
	}
	return r.store.KVHas(roleKey(role, addr))
}
