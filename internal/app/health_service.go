package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mjcumming/wiimd/internal/config"
	"github.com/mjcumming/wiimd/internal/group"
	"github.com/mjcumming/wiimd/internal/poller"
)

// HealthService provides HTTP health check and introspection endpoints:
// per-device availability and the resolved group topology.
type HealthService struct {
	cfg      *config.Config
	store    *poller.Store
	topology *group.Monitor
	server   *http.Server
}

// NewHealthService creates a new HealthService.
func NewHealthService(cfg *config.Config, store *poller.Store, topology *group.Monitor) *HealthService {
	return &HealthService{
		cfg:      cfg,
		store:    store,
		topology: topology,
	}
}

// Start begins the health check server if enabled.
func (s *HealthService) Start(ctx context.Context) {
	if !s.cfg.Healthcheck.Enabled {
		return
	}

	go s.run(ctx)
}

type deviceView struct {
	Host         string  `json:"host"`
	UUID         string  `json:"uuid,omitempty"`
	Name         string  `json:"name,omitempty"`
	Availability string  `json:"availability"`
	Failures     int     `json:"failures"`
	Role         string  `json:"role"`
	State        string  `json:"state,omitempty"`
	VolumeLevel  float64 `json:"volume_level"`
	Mute         bool    `json:"mute"`
	Seq          uint64  `json:"seq"`
}

func (s *HealthService) run(ctx context.Context) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Healthcheck.Host, s.cfg.Healthcheck.Port)

	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Per-device availability and latest snapshot summary
	mux.HandleFunc("/devices", func(w http.ResponseWriter, r *http.Request) {
		topo := s.topology.Topology()
		devices := make([]deviceView, 0)
		for host, state := range s.store.All() {
			view := deviceView{
				Host:         host,
				UUID:         state.Identity.UUID,
				Name:         state.Identity.Name,
				Availability: string(state.Availability),
				Failures:     state.Failures,
				Role:         string(topo.RoleOf(host).Role),
			}
			if state.Snapshot != nil {
				view.State = string(state.Snapshot.State)
				view.VolumeLevel = state.Snapshot.VolumeLevel
				view.Mute = state.Snapshot.Mute
				view.Seq = state.Snapshot.Seq
			}
			devices = append(devices, view)
		}
		writeJSON(w, devices)
	})

	// Resolved group topology
	mux.HandleFunc("/topology", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.topology.Topology())
	})

	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	log.Info().Str("addr", addr).Msg("Starting health check server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Health check server shutdown error")
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Health check server error")
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
