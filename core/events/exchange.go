package events

import (
	"math/big"

	"votex/crypto"
)

const (
	// TypeVotingPowerReceived is emitted whenever an exchange grants voting
	// power to a requester.
	TypeVotingPowerReceived = "exchange.votingPowerReceived"
	// TypeVotingPowerCapUpdated is emitted whenever the manager raises the
	// per-holder voting power cap.
	TypeVotingPowerCapUpdated = "exchange.capUpdated"
)

// VotingPowerReceived captures a settled exchange: the utility tokens burned
// and the voting power minted in return.
type VotingPowerReceived struct {
	Requester    [20]byte
	BurnedAmount *big.Int
	GrantedPower *big.Int
}

func (VotingPowerReceived) EventType() string { return TypeVotingPowerReceived }

// Record returns the serialised event payload.
func (e VotingPowerReceived) Record() *Record {
	burned := big.NewInt(0)
	if e.BurnedAmount != nil {
		burned = new(big.Int).Set(e.BurnedAmount)
	}
	granted := big.NewInt(0)
	if e.GrantedPower != nil {
		granted = new(big.Int).Set(e.GrantedPower)
	}
	requester := ""
	if e.Requester != ([20]byte{}) {
		requester = crypto.NewAddress(crypto.VotexPrefix, e.Requester[:]).String()
	}
	return &Record{
		Type: TypeVotingPowerReceived,
		Attributes: map[string]string{
			"requester":    requester,
			"burnedAmount": burned.String(),
			"grantedPower": granted.String(),
		},
	}
}

// VotingPowerCapUpdated captures a cap raise applied by the manager role.
type VotingPowerCapUpdated struct {
	Manager [20]byte
	OldCap  *big.Int
	NewCap  *big.Int
}

func (VotingPowerCapUpdated) EventType() string { return TypeVotingPowerCapUpdated }

// Record returns the serialised event payload.
func (e VotingPowerCapUpdated) Record() *Record {
	oldCap := big.NewInt(0)
	if e.OldCap != nil {
		oldCap = new(big.Int).Set(e.OldCap)
	}
	newCap := big.NewInt(0)
	if e.NewCap != nil {
		newCap = new(big.Int).Set(e.NewCap)
	}
	manager := ""
	if e.Manager != ([20]byte{}) {
		manager = crypto.NewAddress(crypto.VotexPrefix, e.Manager[:]).String()
	}
	return &Record{
		Type: TypeVotingPowerCapUpdated,
		Attributes: map[string]string{
			"manager": manager,
			"oldCap":  oldCap.String(),
			"newCap":  newCap.String(),
		},
	}
}
