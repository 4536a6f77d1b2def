package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Keep-alive constants.
const (
	// DefaultPingInterval is the default interval between pings.
	DefaultPingInterval = 5 * time.Second

	// DefaultPongTimeout is the default timeout waiting for a pong response.
	DefaultPongTimeout = 2 * time.Second

	// DefaultMaxMissedPongs is the default number of missed pongs before disconnect.
	DefaultMaxMissedPongs = 3
)

// KeepAliveConfig configures keep-alive behavior.
type KeepAliveConfig struct {
	// PingInterval is the interval between pings. Negative disables keep-alive.
	PingInterval time.Duration `yaml:"ping_interval"`

	// PongTimeout is the timeout waiting for a pong response.
	PongTimeout time.Duration `yaml:"pong_timeout"`

	// MaxMissedPongs is the number of missed pongs before disconnect.
	MaxMissedPongs int `yaml:"max_missed_pongs"`
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

// Enabled reports whether pings are sent at all.
func (c KeepAliveConfig) Enabled() bool {
	return c.PingInterval >= 0
}

// DetectionDelay is the maximum time to detect a dead peer.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.PingInterval*time.Duration(c.MaxMissedPongs) + c.PongTimeout
}

func (c KeepAliveConfig) withDefaults() KeepAliveConfig {
	if c.PingInterval == 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PongTimeout == 0 {
		c.PongTimeout = DefaultPongTimeout
	}
	if c.MaxMissedPongs == 0 {
		c.MaxMissedPongs = DefaultMaxMissedPongs
	}
	return c
}

// KeepAliveStats contains keep-alive statistics.
type KeepAliveStats struct {
	LastPingTime time.Time
	LastPongTime time.Time
	LastLatency  time.Duration
	MissedPongs  int
	CurrentSeq   uint32
}

// KeepAlive sends pings on an interval and declares the peer dead after
// MaxMissedPongs consecutive pings went unanswered within PongTimeout.
type KeepAlive struct {
	config    KeepAliveConfig
	sendPing  func(seq uint32) error
	onTimeout func()
	onPong    func(seq uint32, latency time.Duration)

	sequence atomic.Uint32
	pongCh   chan uint32

	mu      sync.Mutex
	stats   KeepAliveStats
	pending bool
	running bool
	stopCh  chan struct{}
}

// NewKeepAlive creates a new keep-alive manager.
func NewKeepAlive(config KeepAliveConfig, sendPing func(seq uint32) error, onTimeout func()) *KeepAlive {
	return &KeepAlive{
		config:    config.withDefaults(),
		sendPing:  sendPing,
		onTimeout: onTimeout,
		pongCh:    make(chan uint32, 4),
	}
}

// OnPong sets a callback invoked with the round-trip latency of each
// matching pong. Must be called before Start.
func (ka *KeepAlive) OnPong(cb func(seq uint32, latency time.Duration)) {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	ka.onPong = cb
}

// Start begins the keep-alive loop. It is a no-op when keep-alive is
// disabled or already running.
func (ka *KeepAlive) Start(ctx context.Context) {
	if !ka.config.Enabled() {
		return
	}

	ka.mu.Lock()
	if ka.running {
		ka.mu.Unlock()
		return
	}
	ka.running = true
	ka.stopCh = make(chan struct{})
	stopCh := ka.stopCh
	ka.mu.Unlock()

	go ka.loop(ctx, stopCh)
}

// Stop stops the keep-alive loop.
func (ka *KeepAlive) Stop() {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	if !ka.running {
		return
	}
	ka.running = false
	close(ka.stopCh)
}

// IsRunning returns true if keep-alive monitoring is active.
func (ka *KeepAlive) IsRunning() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.running
}

// PongReceived should be called when a pong message is received.
func (ka *KeepAlive) PongReceived(seq uint32) {
	select {
	case ka.pongCh <- seq:
	default:
	}
}

// Stats returns current keep-alive statistics.
func (ka *KeepAlive) Stats() KeepAliveStats {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	s := ka.stats
	s.CurrentSeq = ka.sequence.Load()
	return s
}

func (ka *KeepAlive) loop(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(ka.config.PingInterval)
	defer ticker.Stop()

	deadline := time.NewTimer(ka.config.PongTimeout)
	defer deadline.Stop()

	ka.ping(deadline)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			ka.ping(deadline)
		case <-deadline.C:
			if ka.missed() {
				if ka.onTimeout != nil {
					ka.onTimeout()
				}
				return
			}
		case seq := <-ka.pongCh:
			ka.pong(seq)
		}
	}
}

// ping sends the next ping and arms the pong deadline. A ping that is still
// pending when the next one goes out is superseded, not counted twice.
func (ka *KeepAlive) ping(deadline *time.Timer) {
	seq := ka.sequence.Add(1)

	ka.mu.Lock()
	ka.stats.LastPingTime = time.Now()
	ka.pending = true
	ka.mu.Unlock()

	deadline.Reset(ka.config.PongTimeout)

	// A failed send surfaces as a missed pong.
	_ = ka.sendPing(seq)
}

// missed records a pong timeout and reports whether the peer is dead.
func (ka *KeepAlive) missed() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	if !ka.pending {
		return false
	}
	ka.pending = false
	ka.stats.MissedPongs++
	return ka.stats.MissedPongs >= ka.config.MaxMissedPongs
}

func (ka *KeepAlive) pong(seq uint32) {
	ka.mu.Lock()
	now := time.Now()
	ka.stats.LastPongTime = now

	// Pongs for superseded pings are stale.
	if !ka.pending || seq != ka.sequence.Load() {
		ka.mu.Unlock()
		return
	}
	ka.pending = false
	ka.stats.MissedPongs = 0
	ka.stats.LastLatency = now.Sub(ka.stats.LastPingTime)
	latency := ka.stats.LastLatency
	cb := ka.onPong
	ka.mu.Unlock()

	if cb != nil {
		cb(seq, latency)
	}
}
