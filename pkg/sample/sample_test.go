package sample

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peripheral-bridge/bridge-go/pkg/bus"
	"github.com/peripheral-bridge/bridge-go/pkg/gate"
)

func TestSampleEncoding(t *testing.T) {
	s := Sample{1, -1, 0x0FFF, -0x1000, 0x1234, 0}

	b, err := s.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x01, 0x00,
		0xFF, 0xFF,
		0xFF, 0x0F,
		0x00, 0xF0,
		0x34, 0x12,
		0x00, 0x00,
	}, b)

	got, err := Parse(b)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	_, err = Parse(b[:Size-1])
	assert.ErrorIs(t, err, ErrShortSample)
}

func TestSyntheticPattern(t *testing.T) {
	src := NewSynthetic()

	first, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, Sample{}, first)

	second, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, Sample{1, 3, 5, 2, 4, 6}, second)

	for i := 2; i < 0x1000; i++ {
		_, _ = src.Next()
	}
	wrapped, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, Sample{0, 0, 0, 0, 0, 0}, wrapped, "count 0x1000 is a multiple of 0x1000")
}

func TestSyntheticCounterWraps(t *testing.T) {
	src := &Synthetic{count: -1 << 15}

	s, err := src.Next()
	require.NoError(t, err)
	// -32768 % 4096 == 0 for every factor.
	assert.Equal(t, Sample{}, s)

	s, err = src.Next()
	require.NoError(t, err)
	assert.Equal(t, int16(-32767%0x1000), s[0])
}

func TestBusSourceReadsRegisterBlock(t *testing.T) {
	sim := bus.NewSim()
	want := Sample{10, -20, 30, -40, 50, -60}
	raw, err := want.MarshalBinary()
	require.NoError(t, err)
	sim.Load(0x20, raw)

	src := NewBusSource(bus.NewShared(bus.NewSPI(sim)), 0x20)
	got, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, sim.Transactions())
}

func TestBusSourceError(t *testing.T) {
	sim := bus.NewSim()
	boom := errors.New("bus fault")
	sim.FailNext(boom)

	src := NewBusSource(bus.NewSPI(sim), 0x00)
	_, err := src.Next()
	assert.ErrorIs(t, err, boom)
}

type fakeChannel struct {
	g          *gate.Gate
	subscribed atomic.Bool

	mu       sync.Mutex
	payloads [][]byte
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{g: gate.New()}
}

func (c *fakeChannel) subscribe() {
	c.subscribed.Store(true)
	c.g.Subscribe()
}

func (c *fakeChannel) unsubscribe() {
	c.subscribed.Store(false)
	c.g.Unsubscribe()
}

func (c *fakeChannel) Notify(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, append([]byte(nil), payload...))
	return nil
}

func (c *fakeChannel) Subscribed() bool { return c.subscribed.Load() }
func (c *fakeChannel) Gate() *gate.Gate { return c.g }

func (c *fakeChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func TestStreamRunsWhileSubscribed(t *testing.T) {
	ch := newFakeChannel()
	st := NewStream(StreamConfig{Interval: time.Millisecond}, NewSynthetic(), ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- st.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, ch.count(), "nothing is sent before a subscription")

	ch.subscribe()
	require.Eventually(t, func() bool { return ch.count() >= 5 }, time.Second, time.Millisecond)

	ch.unsubscribe()
	time.Sleep(20 * time.Millisecond)
	stopped := ch.count()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, ch.count(), "stream stops after unsubscribe")

	ch.mu.Lock()
	first, err := Parse(ch.payloads[0])
	second, _ := Parse(ch.payloads[1])
	ch.mu.Unlock()
	require.NoError(t, err)
	assert.Equal(t, Sample{}, first)
	assert.Equal(t, Sample{1, 3, 5, 2, 4, 6}, second)

	ch.subscribe()
	require.Eventually(t, func() bool { return ch.count() > stopped }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("stream did not stop")
	}
}

func TestNewStreamDefaultInterval(t *testing.T) {
	st := NewStream(StreamConfig{}, NewSynthetic(), newFakeChannel())
	assert.Equal(t, DefaultInterval, st.config.Interval)
}
