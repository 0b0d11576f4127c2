package events

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVotingPowerReceivedRecord(t *testing.T) {
	var requester [20]byte
	requester[19] = 7
	evt := VotingPowerReceived{
		Requester:    requester,
		BurnedAmount: big.NewInt(25),
		GrantedPower: big.NewInt(1),
	}
	require.Equal(t, TypeVotingPowerReceived, evt.EventType())

	record := evt.Record()
	require.Equal(t, TypeVotingPowerReceived, record.Type)
	require.Equal(t, "25", record.Attributes["burnedAmount"])
	require.Equal(t, "1", record.Attributes["grantedPower"])
	require.True(t, strings.HasPrefix(record.Attributes["requester"], "vtx1"))
}

func TestVotingPowerReceivedRecordToleratesNilAmounts(t *testing.T) {
	record := VotingPowerReceived{}.Record()
	require.Equal(t, "0", record.Attributes["burnedAmount"])
	require.Equal(t, "0", record.Attributes["grantedPower"])
	require.Empty(t, record.Attributes["requester"])
}

func TestVotingPowerCapUpdatedRecord(t *testing.T) {
	var manager [20]byte
	manager[0] = 1
	evt := VotingPowerCapUpdated{
		Manager: manager,
		OldCap:  big.NewInt(1000),
		NewCap:  big.NewInt(2000),
	}
	require.Equal(t, TypeVotingPowerCapUpdated, evt.EventType())

	record := evt.Record()
	require.Equal(t, "1000", record.Attributes["oldCap"])
	require.Equal(t, "2000", record.Attributes["newCap"])
	require.True(t, strings.HasPrefix(record.Attributes["manager"], "vtx1"))
}
