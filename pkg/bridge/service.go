package bridge

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/peripheral-bridge/bridge-go/pkg/bulk"
	"github.com/peripheral-bridge/bridge-go/pkg/bus"
	"github.com/peripheral-bridge/bridge-go/pkg/config"
	"github.com/peripheral-bridge/bridge-go/pkg/connection"
	"github.com/peripheral-bridge/bridge-go/pkg/discovery"
	"github.com/peripheral-bridge/bridge-go/pkg/executor"
	"github.com/peripheral-bridge/bridge-go/pkg/gate"
	"github.com/peripheral-bridge/bridge-go/pkg/log"
	"github.com/peripheral-bridge/bridge-go/pkg/notify"
	"github.com/peripheral-bridge/bridge-go/pkg/sample"
	"github.com/peripheral-bridge/bridge-go/pkg/transport"
	"github.com/peripheral-bridge/bridge-go/pkg/wire"
)

// Service orchestrates a peripheral bridge.
type Service struct {
	config *config.Config
	opts   Options

	mu      sync.RWMutex
	state   ServiceState
	started atomic.Bool
	ready   chan struct{}

	// Bus
	sim    *bus.Sim
	shared *bus.Shared
	runner *executor.Runner

	// Controller link
	ctrlTLS    *tls.Config
	supervisor *connection.Supervisor
	linkID     atomic.Value // string
	runCtx     context.Context
	counters   counters

	// Notification endpoint
	notify     *notify.Server
	bulkCh     *notify.Channel
	sampleCh   *notify.Channel
	payload    *bulk.Payload
	streamer   *bulk.Streamer
	stream     *sample.Stream
	bulkPasses atomic.Uint64

	advertiser discovery.Advertiser
}

// NewService builds a bridge from a validated configuration.
func NewService(cfg *config.Config, opts Options) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}

	s := &Service{
		config: cfg,
		opts:   opts,
		state:  StateIdle,
		ready:  make(chan struct{}),
	}
	s.linkID.Store("")

	// Bus
	drv := opts.Driver
	switch cfg.Bus.Driver {
	case config.DriverSim:
		s.sim = bus.NewSim()
		drv = bus.NewSPI(s.sim)
	case config.DriverExternal:
		if drv == nil {
			return nil, ErrNoDriver
		}
	}
	s.shared = bus.NewShared(drv)
	var buses bus.Selector = bus.Single(s.shared)
	if len(opts.Buses) > 0 {
		mux := bus.NewMux(s.shared)
		mux.Register(wire.BusSPI, s.shared)
		for tag, extra := range opts.Buses {
			mux.Register(tag, bus.NewShared(extra))
		}
		buses = mux
	}
	s.runner = executor.NewRunner(executor.Config{
		Buses:  buses,
		Sleep:  opts.Sleep,
		Trace:  s.traceBus,
		Logger: opts.Logger,
	})

	// Controller link
	ctrlTLS, err := cfg.Controller.TLS.Load()
	if err != nil {
		return nil, fmt.Errorf("controller TLS: %w", err)
	}
	if ctrlTLS != nil {
		if s.ctrlTLS, err = transport.NewClientTLSConfig(ctrlTLS); err != nil {
			return nil, fmt.Errorf("controller TLS: %w", err)
		}
	}
	s.supervisor = connection.NewSupervisor(connection.SupervisorConfig{
		Backoff:        cfg.Controller.Backoff,
		DialTimeout:    cfg.Controller.DialTimeout,
		Logger:         opts.Logger,
		ProtocolLogger: opts.ProtocolLogger,
		BridgeID:       cfg.Bridge.Name,
	}, s.dial)

	// Notification endpoint
	notifyTLS, err := cfg.Notify.TLS.Load()
	if err != nil {
		return nil, fmt.Errorf("notify TLS: %w", err)
	}
	s.notify, err = notify.NewServer(notify.ServerConfig{
		Address:        cfg.Notify.Listen,
		TLSConfig:      notifyTLS,
		MTU:            cfg.Notify.MTU,
		BridgeID:       cfg.Bridge.Name,
		Logger:         opts.Logger,
		ProtocolLogger: opts.ProtocolLogger,
	})
	if err != nil {
		return nil, err
	}
	if s.bulkCh, err = s.notify.AddChannel(BulkChannel); err != nil {
		return nil, err
	}
	if s.sampleCh, err = s.notify.AddChannel(SampleChannel); err != nil {
		return nil, err
	}

	if s.payload, err = loadPayload(cfg.Bulk, opts.Payload); err != nil {
		return nil, err
	}
	s.streamer = bulk.NewStreamer(bulk.StreamerConfig{
		ChunkSize:   cfg.Bulk.ChunkSize,
		HeaderDelay: cfg.Bulk.HeaderDelay,
		ChunkDelay:  cfg.Bulk.ChunkDelay,
		Sleep:       opts.Sleep,
		Logger:      opts.Logger,
	})

	if cfg.Sample.Enabled {
		var src sample.Source = sample.NewSynthetic()
		if cfg.Sample.Source == config.SourceBus {
			src = sample.NewBusSource(s.shared, cfg.Sample.Register)
		}
		s.stream = sample.NewStream(sample.StreamConfig{
			Interval: cfg.Sample.Interval,
			Logger:   opts.Logger,
		}, src, s.sampleCh)
	}

	// Discovery
	if cfg.Discovery.Enabled {
		s.advertiser = opts.Advertiser
		if s.advertiser == nil {
			adv, err := discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{
				Interface: cfg.Discovery.Interface,
				TTL:       cfg.Discovery.TTL,
			})
			if err != nil {
				return nil, err
			}
			s.advertiser = adv
		}
	}

	return s, nil
}

// State returns the current service state.
func (s *Service) State() ServiceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Ready is closed once the notification endpoint is listening.
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// NotifyAddr returns the notification endpoint address, or nil before
// Ready.
func (s *Service) NotifyAddr() net.Addr {
	select {
	case <-s.ready:
		return s.notify.Addr()
	default:
		return nil
	}
}

// Sim returns the simulated peripheral, or nil with an external driver.
func (s *Service) Sim() *bus.Sim {
	return s.sim
}

// Payload returns the bulk payload.
func (s *Service) Payload() *bulk.Payload {
	return s.payload
}

// LinkState returns the controller link state.
func (s *Service) LinkState() connection.State {
	return s.supervisor.State()
}

// OnLinkStateChange registers a callback for controller link changes.
func (s *Service) OnLinkStateChange(fn func(oldState, newState connection.State)) {
	s.supervisor.OnStateChange(fn)
}

// Stats returns a snapshot of the bridge counters.
func (s *Service) Stats() Stats {
	rs := s.runner.Stats()
	return Stats{
		Links:          s.supervisor.Links(),
		Batches:        rs.Batches,
		Operations:     rs.Operations,
		Responses:      rs.Responses,
		Failures:       rs.Failures,
		DecodeErrors:   s.counters.decodeErrors.Load(),
		ProtocolErrors: s.counters.protocolErrors.Load(),
		BusErrors:      s.counters.busErrors.Load(),
		BulkPasses:     s.bulkPasses.Load(),
		BulkSent:       s.bulkCh.Sent(),
		SamplesSent:    s.sampleCh.Sent(),
	}
}

// Run starts every component and blocks until ctx is done. It returns
// nil after a clean shutdown.
func (s *Service) Run(ctx context.Context) error {
	if s.started.Swap(true) {
		return ErrAlreadyStarted
	}
	s.runCtx = ctx

	if err := s.notify.Start(ctx); err != nil {
		return fmt.Errorf("start notification server: %w", err)
	}
	defer s.notify.Stop()

	s.setState(StateRunning)
	defer s.setState(StateStopped)
	close(s.ready)

	s.infoLog("bridge running",
		"name", s.config.Bridge.Name,
		"controller", s.config.Controller.Address,
		"notify", s.notify.Addr().String(),
		"payload", s.payload.Name,
		"payload_len", s.payload.Len())

	if s.advertiser != nil {
		if err := s.advertiser.Advertise(ctx, s.bridgeInfo()); err != nil {
			s.warnLog("mDNS advertising failed", "error", err)
		} else {
			defer s.advertiser.Stop()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.supervisor.Run(gctx)
	})
	g.Go(func() error {
		return gate.Run(gctx, s.bulkCh.Gate(), s.bulkPass, func(err error) {
			s.debugLog("bulk pass failed", "error", err)
		})
	})
	if s.stream != nil {
		g.Go(func() error {
			return s.stream.Run(gctx)
		})
	}

	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// dial opens one controller link with a fresh session.
func (s *Service) dial(ctx context.Context) (connection.Link, error) {
	tr, b := s.config.ResponseTags()

	sess := NewSession(SessionConfig{
		Runner:               s.runner,
		Transport:            tr,
		Bus:                  b,
		CloseOnProtocolError: s.config.Bridge.CloseOnProtocolError,
		BridgeID:             s.config.Bridge.Name,
		Logger:               s.opts.Logger,
		ProtocolLogger:       s.opts.ProtocolLogger,
		counters:             &s.counters,
	})

	conn := transport.NewConnection(transport.ConnectionConfig{
		TLSConfig:      s.ctrlTLS,
		MaxMessageSize: s.config.Controller.MaxMessageSize,
		KeepAlive:      s.config.Controller.KeepAlive,
		Role:           log.RoleBridge,
		Logger:         s.opts.ProtocolLogger,
	}, sess)
	sess.Attach(conn)

	if err := conn.Connect(ctx, s.config.Controller.Address); err != nil {
		return nil, err
	}
	s.linkID.Store(conn.ID())
	s.infoLog("controller link up", "address", s.config.Controller.Address, "conn", conn.ID())

	go func() {
		if err := sess.Run(s.runCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.warnLog("controller link closed", "error", err)
		}
	}()
	return conn, nil
}

// bulkPass streams the payload once.
func (s *Service) bulkPass(ctx context.Context) error {
	s.bulkPasses.Add(1)
	p := s.payload
	notifications := 1 + len(bulk.Chunks(p.Data, s.streamer.ChunkSize()))
	s.logStream(log.StreamPhaseStart, notifications, 0)

	start := time.Now()
	err := s.streamer.Stream(ctx, p, s.bulkCh)
	phase := log.StreamPhaseDone
	if err != nil {
		phase = log.StreamPhaseAborted
	}
	s.logStream(phase, notifications, time.Since(start))
	return err
}

func (s *Service) logStream(phase string, notifications int, d time.Duration) {
	if s.opts.ProtocolLogger == nil {
		return
	}
	s.opts.ProtocolLogger.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionOut,
		Layer:     log.LayerStream,
		Category:  log.CategoryMessage,
		LocalRole: log.RoleBridge,
		BridgeID:  s.config.Bridge.Name,
		Channel:   BulkChannel,
		Stream: &log.StreamEvent{
			Phase:         phase,
			Name:          s.payload.Name,
			Length:        s.payload.Len(),
			Checksum:      s.payload.Checksum,
			Notifications: notifications,
			Duration:      d,
		},
	})
}

// traceBus records each executed operation as a bus-layer event.
func (s *Service) traceBus(rec executor.Record) {
	if s.opts.ProtocolLogger == nil {
		return
	}
	ev := &log.BusEvent{
		Bus:       rec.Bus,
		Operation: rec.Op.Operation,
		Address:   rec.Op.Address,
		Envelope:  rec.Envelope,
		Index:     rec.Index,
		Duration:  rec.Duration,
		Delay:     rec.Delay,
	}
	if rec.BusActive {
		ev.TxLen = len(rec.Op.Data) + 1
	}
	if rec.Response != nil {
		ev.RxData = rec.Response.Data
	}
	s.opts.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.linkID.Load().(string),
		Direction:    log.DirectionIn,
		Layer:        log.LayerBus,
		Category:     log.CategoryMessage,
		LocalRole:    log.RoleBridge,
		BridgeID:     s.config.Bridge.Name,
		Bus:          ev,
	})
}

func (s *Service) bridgeInfo() *discovery.BridgeInfo {
	_, b := s.config.ResponseTags()
	info := &discovery.BridgeInfo{
		Name:            s.config.Bridge.Name,
		MTU:             s.notify.MTU(),
		Bus:             b,
		PayloadName:     s.payload.Name,
		PayloadLength:   uint64(s.payload.Len()),
		PayloadChecksum: s.payload.Checksum,
	}
	if addr, ok := s.notify.Addr().(*net.TCPAddr); ok {
		info.Port = uint16(addr.Port)
	}
	return info
}

func (s *Service) setState(state ServiceState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Service) infoLog(msg string, args ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Info(msg, args...)
	}
}

func (s *Service) warnLog(msg string, args ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Warn(msg, args...)
	}
}

func (s *Service) debugLog(msg string, args ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Debug(msg, args...)
	}
}

