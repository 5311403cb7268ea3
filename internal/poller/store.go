package poller

import (
	"sync"
	"time"

	"github.com/mjcumming/wiimd/internal/wiim"
)

// Identity is the immutable identity of a managed speaker, captured on the
// first successful poll and never mutated afterwards.
type Identity struct {
	Host string // network address used to reach the device
	UUID string // stable identifier reported by firmware
	Name string // display name at first sight
}

// DeviceState is the published per-device view: the latest whole snapshot,
// the latest slave-list report and the availability classification. The
// snapshot and slave list are replaced atomically as a unit, never merged,
// so readers can't observe partially stale fields.
type DeviceState struct {
	Identity     Identity
	Snapshot     *wiim.StatusSnapshot
	Slaves       *wiim.SlaveList
	Availability Availability
	Failures     int
	LastSuccess  time.Time
}

// Store holds the latest DeviceState per managed device, keyed by host.
// Each device's slot is written only by that device's poll task.
type Store struct {
	mu      sync.RWMutex
	devices map[string]DeviceState
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{devices: make(map[string]DeviceState)}
}

// Replace publishes a full replacement of the device's state.
func (s *Store) Replace(host string, state DeviceState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[host] = state
}

// Get returns the latest state for a device.
func (s *Store) Get(host string) (DeviceState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.devices[host]
	return state, ok
}

// All returns a consistent copy of the latest state of every device.
func (s *Store) All() map[string]DeviceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]DeviceState, len(s.devices))
	for host, state := range s.devices {
		out[host] = state
	}
	return out
}

// Remove deletes a device's slot, used when a device is unmanaged.
func (s *Store) Remove(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.devices, host)
}
