package group

import (
	"reflect"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mjcumming/wiimd/internal/eventbus"
	"github.com/mjcumming/wiimd/internal/poller"
)

// Monitor keeps the latest resolved topology. It is driven synchronously by
// the poll coordinator after every cycle and publishes a topology event
// whenever the resolution changes.
type Monitor struct {
	store *poller.Store
	bus   *eventbus.Bus

	mu      sync.RWMutex
	current Topology
}

// NewMonitor creates a monitor over the coordinator's store.
func NewMonitor(store *poller.Store, bus *eventbus.Bus) *Monitor {
	return &Monitor{
		store: store,
		bus:   bus,
		current: Topology{
			Roles:  make(map[string]ResolvedRole),
			Groups: make(map[string]Group),
		},
	}
}

// PollCompleted implements poller.CycleObserver.
func (m *Monitor) PollCompleted(host string) {
	m.Refresh()
}

// Refresh recomputes the topology from the current store contents.
func (m *Monitor) Refresh() {
	next := Resolve(m.store.All())

	m.mu.Lock()
	changed := !reflect.DeepEqual(m.current, next)
	if changed {
		m.current = next
	}
	m.mu.Unlock()

	if !changed {
		return
	}

	log.Debug().
		Int("groups", len(next.Groups)).
		Int("devices", len(next.Roles)).
		Msg("Group topology changed")

	if m.bus != nil {
		m.bus.Publish(eventbus.Event{
			Type: eventbus.EventTypeTopology,
			Data: map[string]interface{}{
				"groups":  len(next.Groups),
				"devices": len(next.Roles),
			},
		})
	}
}

// Topology returns the latest resolved topology.
func (m *Monitor) Topology() Topology {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}
