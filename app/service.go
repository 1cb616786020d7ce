package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/kilianp07/resqroute/api"
	"github.com/kilianp07/resqroute/config"
	"github.com/kilianp07/resqroute/core/audit"
	"github.com/kilianp07/resqroute/core/corridor"
	"github.com/kilianp07/resqroute/core/dispatch"
	"github.com/kilianp07/resqroute/core/events"
	coremetrics "github.com/kilianp07/resqroute/core/metrics"
	"github.com/kilianp07/resqroute/core/monitoring"
	coremqtt "github.com/kilianp07/resqroute/core/mqtt"
	"github.com/kilianp07/resqroute/core/registry"
	"github.com/kilianp07/resqroute/core/tracking"
	"github.com/kilianp07/resqroute/infra/logger"
	"github.com/kilianp07/resqroute/infra/metrics"
	infmon "github.com/kilianp07/resqroute/infra/monitoring"
	"github.com/kilianp07/resqroute/infra/mqtt"
	"github.com/kilianp07/resqroute/infra/redisclaim"
	"github.com/kilianp07/resqroute/infra/seed"
	"github.com/kilianp07/resqroute/infra/store"
	"github.com/kilianp07/resqroute/internal/eventbus"
)

// Service wires the dispatch core to the broker, storage and operator API.
type Service struct {
	Orchestrator *dispatch.Orchestrator
	Corridors    *corridor.Coordinator
	Registry     *registry.Store

	cfg    *config.Config
	bus    coremqtt.Bus
	notify *eventbus.Bus[events.Notify]
	repo   store.Repository
	audit  audit.Store
	guard  *redisclaim.Guard
	sink   coremetrics.MetricsSink
	logs   io.Closer
	log    logger.Logger
}

// Option customises New.
type Option func(*Service)

// WithBus replaces the paho connection, mainly for tests.
func WithBus(b coremqtt.Bus) Option { return func(s *Service) { s.bus = b } }

// New creates a Service from the configuration.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	logs, err := logger.Setup(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		return nil, err
	}
	s := &Service{cfg: cfg, logs: logs, log: logger.New("service")}
	for _, o := range opts {
		o(s)
	}

	mon, err := infmon.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	monitoring.Init(mon)

	if s.bus == nil {
		b, err := mqtt.NewPahoBus(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt bus: %w", err)
		}
		s.bus = b
	}

	if s.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks); err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	if s.repo, err = store.Open(ctx, cfg.Store); err != nil {
		return nil, fmt.Errorf("incident store: %w", err)
	}
	if s.audit, err = audit.Open(cfg.Audit); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("audit store: %w", err)
	}

	var regOpts []registry.Option
	if cfg.Redis.Enabled() {
		if s.guard, err = redisclaim.New(ctx, cfg.Redis); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("redis claim guard: %w", err)
		}
		regOpts = append(regOpts, registry.WithGuard(s.guard))
	}
	s.Registry = registry.NewStore(regOpts...)
	net := corridor.NewNetwork(cfg.Corridor.NormalCycle)

	seeds, err := seed.LoadAll(cfg.Seed.Files)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("seed: %w", err)
	}
	nsig, ncand := seeds.ApplySignals(net), seeds.ApplyFleet(s.Registry)
	s.log.Infof("seeded %d signal(s) and %d candidate(s)", nsig, ncand)

	s.notify = eventbus.New[events.Notify](256)
	s.Corridors = corridor.NewCoordinator(cfg.Corridor, net, s.bus,
		corridor.WithLogger(logger.New("corridor")),
		corridor.WithSink(s.sink),
		corridor.WithNotifier(s.notify),
	)
	s.Orchestrator, err = dispatch.NewOrchestrator(cfg.Dispatch, s.Registry,
		dispatch.WithLogger(logger.New("dispatch")),
		dispatch.WithRepository(s.repo),
		dispatch.WithCorridors(s.Corridors),
		dispatch.WithAudit(s.audit),
		dispatch.WithSink(s.sink),
		dispatch.WithNotifier(s.notify),
	)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("dispatch: %w", err)
	}
	return s, nil
}

// Run subscribes to the broker, starts background loops and blocks until the
// context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	notes := s.notify.Subscribe()
	go s.forwardNotify(ctx, notes)
	if err := s.subscribe(ctx); err != nil {
		return err
	}
	if r, ok := s.bus.(interface{ OnReconnect(func()) }); ok {
		r.OnReconnect(func() {
			if n := s.Corridors.Reconcile(ctx); n > 0 {
				s.log.Infof("re-sent %d signal override(s) after reconnect", n)
			}
		})
	}

	go s.Corridors.Run(ctx)
	go s.pruneTracker(ctx)

	if counter, err := metrics.NotifyCounter(nil); err != nil {
		s.log.Warnf("notify counter: %v", err)
	} else {
		metrics.StartEventCollector(ctx, s.notify, counter)
	}
	if addr := s.cfg.Metrics.PromAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if s.cfg.API.Enabled() {
		srv := api.New(s.Orchestrator, s.Corridors, s.audit, s.cfg.API.Token, logger.New("api"))
		go func() {
			if err := srv.Serve(ctx, s.cfg.API.Addr); err != nil {
				s.log.Errorf("api server: %v", err)
			}
		}()
	}
	s.log.Infof("service started")
	<-ctx.Done()
	return nil
}

func (s *Service) subscribe(ctx context.Context) error {
	status := func(topic string, payload []byte) {
		id, ok := coremqtt.Segment(topic)
		if !ok {
			return
		}
		if err := s.Corridors.HandleSignalStatus(ctx, id, payload); err != nil {
			s.log.Warnf("signal status %s: %v", id, err)
		}
	}
	subs := map[string]coremqtt.Handler{
		coremqtt.TopicSignalStatus:   status,
		coremqtt.TopicSignalFeedback: status,
		coremqtt.TopicVehicleLocation: func(topic string, payload []byte) {
			id, _ := coremqtt.Segment(topic)
			r, err := tracking.ParseReport(id, payload)
			if err != nil {
				s.log.Warnf("location %s: %v", topic, err)
				return
			}
			if _, err := s.Orchestrator.ReportLocation(ctx, r); err != nil {
				s.log.Errorf("report location %s: %v", r.VehicleID, err)
			}
		},
		coremqtt.TopicCorridorRequest: func(topic string, payload []byte) {
			c, err := s.Corridors.HandleCorridorRequest(ctx, payload)
			switch {
			case errors.Is(err, corridor.ErrInvalidRequest):
				s.log.Warnf("corridor request on %s: %v", topic, err)
			case err != nil:
				s.log.Errorf("corridor request on %s: %v", topic, err)
			default:
				s.log.Infof("corridor %s created for %s on request", c.ID, c.VehicleID)
			}
		},
	}
	for filter, h := range subs {
		if err := s.bus.Subscribe(filter, h); err != nil {
			return fmt.Errorf("subscribe %s: %w", filter, err)
		}
	}
	return nil
}

// forwardNotify republishes notify intents on the broker for push delivery.
func (s *Service) forwardNotify(ctx context.Context, sub <-chan events.Notify) {
	defer s.notify.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			p, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := s.bus.Publish(ctx, coremqtt.NotifyTopic(string(ev.Kind)), p); err != nil {
				s.log.Debugf("notify %s not forwarded: %v", ev.Kind, err)
			}
		}
	}
}

func (s *Service) pruneTracker(ctx context.Context) {
	t := time.NewTicker(s.cfg.Tracking.PruneInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if gone := s.Orchestrator.Tracker().Prune(s.cfg.Tracking.MaxAge, now); len(gone) > 0 {
				s.log.Infof("stopped tracking %d silent vehicle(s): %v", len(gone), gone)
			}
		}
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	if d, ok := s.bus.(interface{ Disconnect() }); ok {
		d.Disconnect()
	}
	if s.notify != nil {
		s.notify.Close()
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	if s.audit != nil {
		errs = append(errs, s.audit.Close())
	}
	if s.repo != nil {
		errs = append(errs, s.repo.Close())
	}
	if s.guard != nil {
		errs = append(errs, s.guard.Close())
	}
	monitoring.Flush(2 * time.Second)
	if s.logs != nil {
		errs = append(errs, s.logs.Close())
	}
	return errors.Join(errs...)
}
