package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/mjcumming/wiimd/internal/config"
	"github.com/mjcumming/wiimd/internal/db"
	"github.com/mjcumming/wiimd/internal/eventbus"
	"github.com/mjcumming/wiimd/internal/group"
	"github.com/mjcumming/wiimd/internal/ledger"
	"github.com/mjcumming/wiimd/internal/poller"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger
	Bus    *eventbus.Bus

	// Device management
	Registry    *ClientRegistry
	Store       *poller.Store
	Coordinator *poller.Coordinator

	// Group topology and commands
	Topology *group.Monitor
	Groups   *group.Manager

	// High-level services
	Health    *HealthService
	LedgerSvc *LedgerService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())
	s.Store = poller.NewStore()
	s.Registry = NewClientRegistry(cfg.Poll.Timeout.Duration())
	s.Topology = group.NewMonitor(s.Store, s.Bus)

	s.Coordinator = poller.New(
		poller.Config{
			Interval:         cfg.Poll.Interval.Duration(),
			FailureThreshold: cfg.Poll.FailureThreshold,
		},
		s.Store,
		s.Bus,
		s.Registry.Factory(),
		s.Topology,
	)

	s.Groups = group.NewManager(s.Registry, s.Topology, s.Store, s.Bus, cfg.Volume.StepLevel())

	// The ledger is optional; the core itself never persists state.
	if cfg.Ledger.Enabled {
		database, err := db.Open(cfg.Database.Path)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.DB = database
		s.Ledger = ledger.New(database.DB)
		s.LedgerSvc = NewLedgerService(cfg, s.Ledger, s.Bus)
	}

	s.Health = NewHealthService(cfg, s.Store, s.Topology)

	return s, nil
}

// Start starts all services in the correct order.
func (s *Services) Start(ctx context.Context) error {
	if s.LedgerSvc != nil {
		s.LedgerSvc.Start(ctx)
	}
	s.Health.Start(ctx)

	for _, host := range s.cfg.Devices {
		s.Coordinator.Add(ctx, host)
	}

	log.Info().Int("devices", len(s.cfg.Devices)).Msg("Polling started")
	return nil
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Coordinator.Stop()

	if s.LedgerSvc != nil {
		s.LedgerSvc.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
	defer cancel()
	s.Bus.Close(shutdownCtx)

	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Registry != nil {
		s.Registry.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
