package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mjcumming/wiimd/internal/config"
	"github.com/mjcumming/wiimd/internal/eventbus"
	"github.com/mjcumming/wiimd/internal/ledger"
)

// LedgerService records availability transitions, topology changes and
// command outcomes from the event bus into the SQLite ledger, and runs the
// retention janitor.
type LedgerService struct {
	cfg    *config.Config
	ledger *ledger.Ledger
	bus    *eventbus.Bus
	subs   []string
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(cfg *config.Config, l *ledger.Ledger, bus *eventbus.Bus) *LedgerService {
	return &LedgerService{cfg: cfg, ledger: l, bus: bus}
}

// Start subscribes to bus events and launches the retention janitor.
func (s *LedgerService) Start(ctx context.Context) {
	s.subs = append(s.subs,
		s.bus.Subscribe(eventbus.EventTypeAvailability, s.onAvailability),
		s.bus.Subscribe(eventbus.EventTypeTopology, s.onTopology),
		s.bus.Subscribe(eventbus.EventTypeCommand, s.onCommand),
	)

	go s.janitor(ctx)
}

// Stop removes the bus subscriptions.
func (s *LedgerService) Stop() {
	for _, id := range s.subs {
		s.bus.Unsubscribe(id)
	}
	s.subs = nil
}

func (s *LedgerService) onAvailability(event eventbus.Event) {
	host, _ := event.Data["host"].(string)
	if err := s.ledger.Append(ledger.EventAvailabilityChanged, host, event.Data); err != nil {
		log.Warn().Err(err).Msg("Failed to record availability transition")
	}
}

func (s *LedgerService) onTopology(event eventbus.Event) {
	if err := s.ledger.Append(ledger.EventTopologyChanged, "", event.Data); err != nil {
		log.Warn().Err(err).Msg("Failed to record topology change")
	}
}

func (s *LedgerService) onCommand(event eventbus.Event) {
	host, _ := event.Data["host"].(string)
	eventType := ledger.EventCommandCompleted
	if ok, _ := event.Data["ok"].(bool); !ok {
		eventType = ledger.EventCommandFailed
	}
	if err := s.ledger.Append(eventType, host, event.Data); err != nil {
		log.Warn().Err(err).Msg("Failed to record command outcome")
	}
}

func (s *LedgerService) janitor(ctx context.Context) {
	interval := s.cfg.Ledger.CleanupInterval.Duration()
	retention := time.Duration(s.cfg.Ledger.RetentionDays) * 24 * time.Hour

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.ledger.DeleteOlderThan(retention)
			if err != nil {
				log.Warn().Err(err).Msg("Ledger cleanup failed")
				continue
			}
			if removed > 0 {
				log.Debug().Int64("removed", removed).Msg("Ledger cleanup removed old entries")
			}
		}
	}
}
