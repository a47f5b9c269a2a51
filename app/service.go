// Package app wires configuration into the running service.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/svitlobot/svitlo/api/admin"
	"github.com/svitlobot/svitlo/config"
	coremetrics "github.com/svitlobot/svitlo/core/metrics"
	coremonitoring "github.com/svitlobot/svitlo/core/monitoring"
	corenotify "github.com/svitlobot/svitlo/core/notify"
	"github.com/svitlobot/svitlo/core/scheduler"
	"github.com/svitlobot/svitlo/core/source"
	"github.com/svitlobot/svitlo/infra/fetch"
	"github.com/svitlobot/svitlo/infra/logger"
	"github.com/svitlobot/svitlo/infra/metrics"
	"github.com/svitlobot/svitlo/infra/monitoring"
	"github.com/svitlobot/svitlo/infra/notify"
	"github.com/svitlobot/svitlo/infra/store"
	"github.com/svitlobot/svitlo/internal/eventbus"
)

// Service orchestrates the polling scheduler and its backends.
type Service struct {
	Scheduler *scheduler.Scheduler
	Bus       *eventbus.Bus
	store     *store.SQLiteStore
	channel   corenotify.Channel
	log       logger.Logger
	apiCfg    config.APIConfig
	promAddr  string
	promOn    bool
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremonitoring.Init(mon)

	snapshots, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	sources, err := buildSources(cfg.Sources)
	if err != nil {
		_ = snapshots.Close()
		return nil, err
	}

	channel, err := buildChannel(cfg.Delivery)
	if err != nil {
		_ = snapshots.Close()
		return nil, err
	}

	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink()
		if err != nil {
			_ = snapshots.Close()
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(
			cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken, cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket))
	}
	var sink coremetrics.Sink
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	bus := eventbus.New(0)
	sched := scheduler.New(
		scheduler.Config{
			PollInterval: cfg.Poll.Interval(),
			SendDelay:    cfg.Poll.SendDelay(),
		},
		sources,
		fetch.NewHTTPFetcher(logger.New("fetcher")),
		snapshots,
		snapshots,
		channel,
		sink,
		bus.Commands(),
		logger.New("scheduler"),
	)

	return &Service{
		Scheduler: sched,
		Bus:       bus,
		store:     snapshots,
		channel:   channel,
		log:       logg,
		apiCfg:    cfg.API,
		promAddr:  cfg.Metrics.PrometheusAddr,
		promOn:    cfg.Metrics.PrometheusEnabled,
	}, nil
}

// Run starts the scheduler and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.promOn {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if s.apiCfg.Enabled {
		go func() {
			if err := s.serveAdmin(ctx); err != nil {
				s.log.Errorf("admin api: %v", err)
			}
		}()
	}
	return s.Scheduler.Run(ctx)
}

// serveAdmin runs the admin HTTP server until the context is cancelled.
func (s *Service) serveAdmin(ctx context.Context) error {
	mux := admin.NewMux(s.Bus, s.store, s.store, s.apiCfg.Token)
	srv := &http.Server{Addr: s.apiCfg.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("admin api shutdown: %v", err)
		}
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.Bus.Close()
	coremonitoring.Flush(2 * time.Second)
	if c, ok := s.channel.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			s.log.Errorf("channel close: %v", err)
		}
	}
	return s.store.Close()
}

func buildSources(cfgs []config.SourceConfig) ([]scheduler.Source, error) {
	sources := make([]scheduler.Source, 0, len(cfgs))
	for _, sc := range cfgs {
		var adapter source.Adapter
		switch source.Kind(sc.Kind) {
		case source.KindPattern:
			adapter = source.NewPatternAdapter()
		case source.KindGrid:
			table := source.DefaultSlotTable()
			if sc.SlotTablePath != "" {
				var err error
				table, err = source.LoadSlotTable(sc.SlotTablePath)
				if err != nil {
					return nil, fmt.Errorf("source %s: slot table: %w", sc.ID, err)
				}
			}
			adapter = source.NewGridAdapter(table)
		default:
			return nil, fmt.Errorf("source %s: unknown kind %s", sc.ID, sc.Kind)
		}
		sources = append(sources, scheduler.Source{ID: sc.ID, URL: sc.URL, Adapter: adapter})
	}
	return sources, nil
}

func buildChannel(cfg config.DeliveryConfig) (corenotify.Channel, error) {
	switch cfg.Backend {
	case "telegram":
		ch, err := notify.NewTelegramChannel(cfg.Telegram, logger.New("telegram"))
		if err != nil {
			return nil, fmt.Errorf("telegram channel: %w", err)
		}
		return ch, nil
	case "mqtt":
		ch, err := notify.NewMQTTChannel(cfg.MQTT, logger.New("mqtt"))
		if err != nil {
			return nil, fmt.Errorf("mqtt channel: %w", err)
		}
		return ch, nil
	default:
		return nil, fmt.Errorf("unknown delivery backend %s", cfg.Backend)
	}
}
