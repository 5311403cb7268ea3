package group

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mjcumming/wiimd/internal/poller"
	"github.com/mjcumming/wiimd/internal/wiim"
)

func TestMonitorRefreshTracksStore(t *testing.T) {
	store := poller.NewStore()
	m := NewMonitor(store, nil)

	// Empty store resolves to an empty topology.
	m.Refresh()
	assert.Empty(t, m.Topology().Groups)

	living := deviceState("10.0.0.1", "uuid-living", "Living Room", poller.AvailabilityHealthy)
	living = withSlaves(living, wiim.SlaveInfo{UUID: "uuid-kitchen", IP: "10.0.0.2"})
	kitchen := deviceState("10.0.0.2", "uuid-kitchen", "Kitchen", poller.AvailabilityHealthy)
	kitchen = withMasterClaim(kitchen, "uuid-living")

	store.Replace("10.0.0.1", living)
	store.Replace("10.0.0.2", kitchen)
	m.Refresh()

	topo := m.Topology()
	assert.Equal(t, RoleMaster, topo.RoleOf("10.0.0.1").Role)
	assert.Equal(t, RoleGuest, topo.RoleOf("10.0.0.2").Role)

	// The kitchen drops out of the master's report: both resolve solo on
	// the next refresh.
	living.Slaves = &wiim.SlaveList{}
	store.Replace("10.0.0.1", living)
	kitchen.Snapshot.MasterUUID = ""
	kitchen.Snapshot.GuestHint = false
	store.Replace("10.0.0.2", kitchen)
	m.Refresh()

	topo = m.Topology()
	assert.Equal(t, RoleSolo, topo.RoleOf("10.0.0.1").Role)
	assert.Equal(t, RoleSolo, topo.RoleOf("10.0.0.2").Role)
	assert.Empty(t, topo.Groups)
}

func TestMonitorPollCompletedDelegates(t *testing.T) {
	store := poller.NewStore()
	m := NewMonitor(store, nil)

	living := deviceState("10.0.0.1", "uuid-living", "Living Room", poller.AvailabilityHealthy)
	store.Replace("10.0.0.1", living)

	var observer poller.CycleObserver = m
	observer.PollCompleted("10.0.0.1")

	require.Contains(t, m.Topology().Roles, "10.0.0.1")
	assert.Equal(t, RoleSolo, m.Topology().RoleOf("10.0.0.1").Role)
}
