package transport

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeepAliveConfig(t *testing.T) {
	config := DefaultKeepAliveConfig()
	if !config.Enabled() {
		t.Error("default config should be enabled")
	}
	if got, want := config.DetectionDelay(), 17*time.Second; got != want {
		t.Errorf("DetectionDelay = %v, want %v", got, want)
	}
	if (KeepAliveConfig{PingInterval: -1}).Enabled() {
		t.Error("negative interval should disable keep-alive")
	}
}

func TestKeepAliveTimeout(t *testing.T) {
	timedOut := make(chan struct{})
	var pings atomic.Int32

	ka := NewKeepAlive(KeepAliveConfig{
		PingInterval:   20 * time.Millisecond,
		PongTimeout:    10 * time.Millisecond,
		MaxMissedPongs: 2,
	},
		func(uint32) error { pings.Add(1); return nil },
		func() { close(timedOut) },
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ka.Start(ctx)
	defer ka.Stop()

	select {
	case <-timedOut:
	case <-time.After(time.Second):
		t.Fatal("expected timeout")
	}
	if pings.Load() < 2 {
		t.Errorf("pings: got %d, want >= 2", pings.Load())
	}
	if ka.Stats().MissedPongs != 2 {
		t.Errorf("MissedPongs: got %d, want 2", ka.Stats().MissedPongs)
	}
}

func TestKeepAlivePongKeepsAlive(t *testing.T) {
	var timedOut atomic.Bool
	var ka *KeepAlive
	ka = NewKeepAlive(KeepAliveConfig{
		PingInterval:   15 * time.Millisecond,
		PongTimeout:    10 * time.Millisecond,
		MaxMissedPongs: 1,
	},
		func(seq uint32) error {
			go ka.PongReceived(seq)
			return nil
		},
		func() { timedOut.Store(true) },
	)

	latencies := make(chan time.Duration, 16)
	ka.OnPong(func(_ uint32, latency time.Duration) {
		select {
		case latencies <- latency:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ka.Start(ctx)

	time.Sleep(100 * time.Millisecond)
	ka.Stop()

	if timedOut.Load() {
		t.Error("answered pings must not time out")
	}
	select {
	case <-latencies:
	default:
		t.Error("expected latency callback")
	}
	if ka.IsRunning() {
		t.Error("keep-alive still running after Stop")
	}
}

func TestKeepAliveStalePongIgnored(t *testing.T) {
	ka := NewKeepAlive(KeepAliveConfig{PingInterval: time.Hour, PongTimeout: time.Hour, MaxMissedPongs: 1},
		func(uint32) error { return nil }, nil)

	ka.sequence.Store(5)
	ka.pending = true
	ka.pong(4)
	if !ka.pending {
		t.Error("stale pong cleared the pending ping")
	}
	ka.pong(5)
	if ka.pending {
		t.Error("matching pong did not clear the pending ping")
	}
}

func TestKeepAliveDisabled(t *testing.T) {
	var pings atomic.Int32
	ka := NewKeepAlive(KeepAliveConfig{PingInterval: -1}, func(uint32) error { pings.Add(1); return nil }, nil)
	ka.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	if ka.IsRunning() || pings.Load() != 0 {
		t.Error("disabled keep-alive must not run")
	}
}
