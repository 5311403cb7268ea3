package app

import (
	"sync"
	"time"

	"github.com/mjcumming/wiimd/internal/group"
	"github.com/mjcumming/wiimd/internal/poller"
	"github.com/mjcumming/wiimd/internal/wiim"
)

// ClientRegistry owns one device client per managed host, so the poll
// coordinator and the group command layer share the same per-device
// request slot.
type ClientRegistry struct {
	timeout time.Duration

	mu      sync.RWMutex
	clients map[string]*wiim.Client
}

// NewClientRegistry creates an empty registry.
func NewClientRegistry(timeout time.Duration) *ClientRegistry {
	return &ClientRegistry{
		timeout: timeout,
		clients: make(map[string]*wiim.Client),
	}
}

// Client returns the client for host, creating it on first use.
func (r *ClientRegistry) Client(host string) *wiim.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.clients[host]; ok {
		return client
	}
	client := wiim.NewClient(host, r.timeout)
	r.clients[host] = client
	return client
}

// ClientFor implements group.ClientProvider. Only already-managed hosts
// resolve; commands never create clients for unmanaged addresses.
func (r *ClientRegistry) ClientFor(host string) (group.CommandClient, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[host]
	return client, ok
}

// Factory adapts the registry to the poll coordinator's client factory.
func (r *ClientRegistry) Factory() poller.ClientFactory {
	return func(host string) poller.DeviceClient {
		return r.Client(host)
	}
}

// Remove drops a host's client.
func (r *ClientRegistry) Remove(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.clients[host]; ok {
		client.Close()
		delete(r.clients, host)
	}
}

// Close releases all clients.
func (r *ClientRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for host, client := range r.clients {
		client.Close()
		delete(r.clients, host)
	}
}
