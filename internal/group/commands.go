package group

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/mjcumming/wiimd/internal/eventbus"
	"github.com/mjcumming/wiimd/internal/poller"
)

// CommandClient is the subset of the device client the command layer needs.
type CommandClient interface {
	Host() string
	SetVolume(ctx context.Context, level float64) error
	SetMute(ctx context.Context, mute bool) error
	CreateGroup(ctx context.Context) error
	JoinGroup(ctx context.Context, masterHost string) error
	LeaveGroup(ctx context.Context) error
	DisbandGroup(ctx context.Context) error
}

// ClientProvider resolves a managed host to its device client.
type ClientProvider interface {
	ClientFor(host string) (CommandClient, bool)
}

// TopologySource supplies the latest resolved topology.
type TopologySource interface {
	Topology() Topology
}

// StateSource supplies the latest published state for a managed device.
type StateSource interface {
	Get(host string) (poller.DeviceState, bool)
}

// Manager validates and routes group commands against the currently
// resolved topology. Commands are fire-and-confirm: the manager never waits
// for topology convergence; callers observe the effect on the next poll.
// Command errors are returned synchronously and never retried here, since
// commands are not safe to blindly repeat.
type Manager struct {
	clients ClientProvider
	topo    TopologySource
	states  StateSource
	bus     *eventbus.Bus
	step    float64 // group/device volume step, canonical 0.0-1.0 scale
}

// NewManager creates a command manager. step is the volume-step granularity
// as a 0.0-1.0 fraction; states and bus may be nil.
func NewManager(clients ClientProvider, topo TopologySource, states StateSource, bus *eventbus.Bus, step float64) *Manager {
	if step <= 0 {
		step = 0.05
	}
	return &Manager{clients: clients, topo: topo, states: states, bus: bus, step: step}
}

// CreateGroup tells the device to become a multiroom master. The topology
// reflects the change on the next poll.
func (m *Manager) CreateGroup(ctx context.Context, host string) error {
	client, ok := m.clients.ClientFor(host)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, host)
	}
	return m.report("create_group", host, client.CreateGroup(ctx))
}

// JoinGroup tells the guest device to join the master at masterHost.
// Rejected locally, without any network request, when the device would join
// itself or is currently master of its own non-empty group (it must disband
// first).
func (m *Manager) JoinGroup(ctx context.Context, guestHost, masterHost string) error {
	if guestHost == masterHost {
		return fmt.Errorf("%w: device %s cannot join itself", ErrPrecondition, guestHost)
	}
	if m.topo.Topology().RoleOf(guestHost).Role == RoleMaster {
		return fmt.Errorf("%w: %s is master of its own group, disband it first", ErrPrecondition, guestHost)
	}
	client, ok := m.clients.ClientFor(guestHost)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, guestHost)
	}
	return m.report("join_group", guestHost, client.JoinGroup(ctx, masterHost))
}

// LeaveGroup tells a guest device to exit its group. Leaving while already
// solo is a successful no-op; leaving as a master is a precondition error.
func (m *Manager) LeaveGroup(ctx context.Context, host string) error {
	switch m.topo.Topology().RoleOf(host).Role {
	case RoleSolo:
		return nil
	case RoleMaster:
		return fmt.Errorf("%w: %s is a master, disband the group instead", ErrPrecondition, host)
	}
	client, ok := m.clients.ClientFor(host)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, host)
	}
	return m.report("leave_group", host, client.LeaveGroup(ctx))
}

// DisbandGroup tells a master device to dissolve its group.
func (m *Manager) DisbandGroup(ctx context.Context, host string) error {
	if m.topo.Topology().RoleOf(host).Role != RoleMaster {
		return fmt.Errorf("%w: %s is not a group master", ErrPrecondition, host)
	}
	client, ok := m.clients.ClientFor(host)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, host)
	}
	return m.report("disband_group", host, client.DisbandGroup(ctx))
}

// AdjustGroupVolume applies delta to every current member's individual
// volume, each clamped independently to [0,1]. Relative offsets between
// members are preserved: a member already at the limit simply stops moving
// while the others continue.
func (m *Manager) AdjustGroupVolume(ctx context.Context, masterHost string, delta float64) error {
	topo := m.topo.Topology()
	if topo.RoleOf(masterHost).Role != RoleMaster {
		return fmt.Errorf("%w: %s is not a group master", ErrPrecondition, masterHost)
	}
	g, ok := topo.GroupLedBy(masterHost)
	if !ok {
		return fmt.Errorf("%w: %s leads no group", ErrPrecondition, masterHost)
	}

	var errs []error
	for _, member := range g.Members() {
		client, ok := m.clients.ClientFor(member.Host)
		if !ok {
			// Masters can report slaves this instance does not manage.
			log.Debug().Str("host", member.Host).Msg("Skipping unmanaged group member")
			continue
		}
		target := math.Min(1, math.Max(0, member.VolumeLevel+delta))
		errs = append(errs, m.report("group_volume", member.Host, client.SetVolume(ctx, target)))
	}
	return errors.Join(errs...)
}

// AdjustDeviceVolume applies delta to a single device's volume, clamped to
// [0,1], starting from the last polled level.
func (m *Manager) AdjustDeviceVolume(ctx context.Context, host string, delta float64) error {
	client, ok := m.clients.ClientFor(host)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, host)
	}
	if m.states == nil {
		return fmt.Errorf("%w: no device state available for %s", ErrPrecondition, host)
	}
	state, ok := m.states.Get(host)
	if !ok || state.Snapshot == nil {
		return fmt.Errorf("%w: no polled state for %s yet", ErrPrecondition, host)
	}
	target := math.Min(1, math.Max(0, state.Snapshot.VolumeLevel+delta))
	return m.report("device_volume", host, client.SetVolume(ctx, target))
}

// DeviceVolumeUp raises a single device's volume by the configured step.
func (m *Manager) DeviceVolumeUp(ctx context.Context, host string) error {
	return m.AdjustDeviceVolume(ctx, host, m.step)
}

// DeviceVolumeDown lowers a single device's volume by the configured step.
func (m *Manager) DeviceVolumeDown(ctx context.Context, host string) error {
	return m.AdjustDeviceVolume(ctx, host, -m.step)
}

// GroupVolumeUp raises the group volume by the configured step.
func (m *Manager) GroupVolumeUp(ctx context.Context, masterHost string) error {
	return m.AdjustGroupVolume(ctx, masterHost, m.step)
}

// GroupVolumeDown lowers the group volume by the configured step.
func (m *Manager) GroupVolumeDown(ctx context.Context, masterHost string) error {
	return m.AdjustGroupVolume(ctx, masterHost, -m.step)
}

// GroupMuted reports the aggregated mute state of the group led by
// masterHost: true only if every member reports mute.
func (m *Manager) GroupMuted(masterHost string) (bool, error) {
	topo := m.topo.Topology()
	g, ok := topo.GroupLedBy(masterHost)
	if !ok {
		return false, fmt.Errorf("%w: %s is not a group master", ErrPrecondition, masterHost)
	}
	return g.Muted(), nil
}

// SetGroupMute sets every member to the same explicit mute state. This is
// deliberately not a per-member toggle.
func (m *Manager) SetGroupMute(ctx context.Context, masterHost string, mute bool) error {
	topo := m.topo.Topology()
	if topo.RoleOf(masterHost).Role != RoleMaster {
		return fmt.Errorf("%w: %s is not a group master", ErrPrecondition, masterHost)
	}
	g, ok := topo.GroupLedBy(masterHost)
	if !ok {
		return fmt.Errorf("%w: %s leads no group", ErrPrecondition, masterHost)
	}

	var errs []error
	for _, member := range g.Members() {
		client, ok := m.clients.ClientFor(member.Host)
		if !ok {
			log.Debug().Str("host", member.Host).Msg("Skipping unmanaged group member")
			continue
		}
		errs = append(errs, m.report("group_mute", member.Host, client.SetMute(ctx, mute)))
	}
	return errors.Join(errs...)
}

// report publishes the command outcome on the bus and passes the error
// through unchanged.
func (m *Manager) report(op, host string, err error) error {
	if m.bus != nil {
		data := map[string]interface{}{
			"op":   op,
			"host": host,
			"ok":   err == nil,
		}
		if err != nil {
			data["error"] = err.Error()
		}
		m.bus.Publish(eventbus.Event{Type: eventbus.EventTypeCommand, Data: data})
	}
	if err != nil {
		log.Warn().Err(err).Str("op", op).Str("host", host).Msg("Group command failed")
	}
	return err
}
