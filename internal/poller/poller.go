package poller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mjcumming/wiimd/internal/eventbus"
	"github.com/mjcumming/wiimd/internal/wiim"
)

// DeviceClient is the subset of the device client the coordinator needs.
type DeviceClient interface {
	Host() string
	Status(ctx context.Context) (*wiim.StatusSnapshot, error)
	SlaveList(ctx context.Context) (*wiim.SlaveList, error)
}

// ClientFactory creates a client for a device address.
type ClientFactory func(host string) DeviceClient

// CycleObserver is notified synchronously after every completed poll cycle
// (successful or not) and after device removal, so derived views like the
// group topology can be recomputed from the store.
type CycleObserver interface {
	PollCompleted(host string)
}

// Config holds the coordinator settings.
type Config struct {
	Interval         time.Duration
	FailureThreshold int
}

// Coordinator runs one independent polling task per managed device. Tasks
// never block each other; each device's snapshot slot is written only by
// its own task.
type Coordinator struct {
	cfg       Config
	store     *Store
	bus       *eventbus.Bus
	newClient ClientFactory
	observer  CycleObserver

	mu    sync.Mutex
	tasks map[string]*deviceTask
	wg    sync.WaitGroup
}

type deviceTask struct {
	client  DeviceClient
	cancel  context.CancelFunc
	tracker *failureTracker

	// identity is captured on the first successful poll and then frozen.
	identity *Identity
	seq      uint64
}

// New creates a coordinator. The observer may be nil.
func New(cfg Config, store *Store, bus *eventbus.Bus, factory ClientFactory, observer CycleObserver) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		store:     store,
		bus:       bus,
		newClient: factory,
		observer:  observer,
		tasks:     make(map[string]*deviceTask),
	}
}

// Add starts managing a device. Adding an already managed host is a no-op.
func (c *Coordinator) Add(ctx context.Context, host string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tasks[host]; exists {
		return
	}

	taskCtx, cancel := context.WithCancel(ctx)
	task := &deviceTask{
		client:  c.newClient(host),
		cancel:  cancel,
		tracker: newFailureTracker(c.cfg.FailureThreshold),
	}
	c.tasks[host] = task

	c.wg.Add(1)
	go c.run(taskCtx, host, task)

	log.Info().Str("host", host).Msg("Device added to polling")
}

// Remove stops managing a device: its poll task and any in-flight request
// are cancelled and its published state is dropped. Other devices are
// unaffected.
func (c *Coordinator) Remove(host string) {
	c.mu.Lock()
	task, ok := c.tasks[host]
	if ok {
		delete(c.tasks, host)
	}
	c.mu.Unlock()

	if !ok {
		return
	}

	task.cancel()
	c.store.Remove(host)
	c.notify(host)

	log.Info().Str("host", host).Msg("Device removed from polling")
}

// Hosts returns the currently managed device addresses.
func (c *Coordinator) Hosts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	hosts := make([]string, 0, len(c.tasks))
	for host := range c.tasks {
		hosts = append(hosts, host)
	}
	return hosts
}

// Stop cancels all poll tasks and waits for them to finish.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	for _, task := range c.tasks {
		task.cancel()
	}
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Coordinator) run(ctx context.Context, host string, task *deviceTask) {
	defer c.wg.Done()

	interval := c.cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	// First poll immediately, then on the fixed interval.
	c.pollOnce(ctx, host, task)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pollOnce(ctx, host, task)
		}
	}
}

// pollOnce performs one poll cycle: status and slave list fetched together,
// combined into a single full-replace publication. If either fetch fails
// the whole cycle counts as one failure.
func (c *Coordinator) pollOnce(ctx context.Context, host string, task *deviceTask) {
	var (
		snapshot *wiim.StatusSnapshot
		slaves   *wiim.SlaveList
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snapshot, err = task.client.Status(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		slaves, err = task.client.SlaveList(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return // task cancelled, not a device failure
		}
		c.recordFailure(host, task, err)
		c.notify(host)
		return
	}

	c.recordSuccess(host, task, snapshot, slaves)
	c.notify(host)
}

func (c *Coordinator) recordSuccess(host string, task *deviceTask, snapshot *wiim.StatusSnapshot, slaves *wiim.SlaveList) {
	prev := task.tracker.State()
	task.tracker.Success()

	if task.identity == nil {
		task.identity = &Identity{Host: host, UUID: snapshot.UUID, Name: snapshot.Name}
		log.Info().
			Str("host", host).
			Str("uuid", snapshot.UUID).
			Str("name", snapshot.Name).
			Msg("Device identified")
	}

	task.seq++
	snapshot.Seq = task.seq

	c.store.Replace(host, DeviceState{
		Identity:     *task.identity,
		Snapshot:     snapshot,
		Slaves:       slaves,
		Availability: AvailabilityHealthy,
		Failures:     0,
		LastSuccess:  snapshot.PolledAt,
	})

	c.bus.Publish(eventbus.Event{
		Type: eventbus.EventTypeSnapshot,
		Data: map[string]interface{}{
			"host": host,
			"uuid": snapshot.UUID,
			"seq":  snapshot.Seq,
		},
	})

	if prev != AvailabilityHealthy {
		c.publishAvailability(host, prev, AvailabilityHealthy, 0)
	}
}

func (c *Coordinator) recordFailure(host string, task *deviceTask, err error) {
	prev := task.tracker.State()
	next := task.tracker.Failure()

	log.Warn().
		Err(err).
		Str("host", host).
		Int("failures", task.tracker.Failures()).
		Str("availability", string(next)).
		Msg("Poll failed")

	// Keep the last known snapshot but downgrade the availability so the
	// resolver excludes the device until it recovers.
	if prevState, ok := c.store.Get(host); ok {
		prevState.Availability = next
		prevState.Failures = task.tracker.Failures()
		c.store.Replace(host, prevState)
	} else {
		c.store.Replace(host, DeviceState{
			Identity:     Identity{Host: host},
			Availability: next,
			Failures:     task.tracker.Failures(),
		})
	}

	if next != prev {
		c.publishAvailability(host, prev, next, task.tracker.Failures())
	}
}

func (c *Coordinator) publishAvailability(host string, from, to Availability, failures int) {
	c.bus.Publish(eventbus.Event{
		Type: eventbus.EventTypeAvailability,
		Data: map[string]interface{}{
			"host":     host,
			"from":     string(from),
			"to":       string(to),
			"failures": failures,
		},
	})
}

func (c *Coordinator) notify(host string) {
	if c.observer != nil {
		c.observer.PollCompleted(host)
	}
}
