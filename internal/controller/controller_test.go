package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peripheral-bridge/bridge-go/pkg/transport"
	"github.com/peripheral-bridge/bridge-go/pkg/wire"
)

// echoBridge answers every Read with bytes counting up from the address.
type echoBridge struct {
	mu   sync.Mutex
	conn *transport.Connection
	seen chan *wire.CommandBatch
	mute bool
}

func (b *echoBridge) OnMessage(msg []byte) {
	batch, err := wire.DecodeBatch(msg)
	if err != nil {
		return
	}
	b.seen <- batch

	b.mu.Lock()
	conn, mute := b.conn, b.mute
	b.mu.Unlock()
	if mute {
		return
	}

	for _, env := range batch.Envelopes {
		for _, op := range env.Operations {
			if op.Operation != wire.OpRead || op.Data == nil {
				continue
			}
			data := make([]byte, len(op.Data))
			for i := range data {
				data[i] = byte(op.Address) + byte(i)
			}
			resp := wire.NewResponse(wire.TransportWebSocket, wire.BusSPI,
				wire.BusOperation{Operation: wire.OpAck, Address: op.Address, Data: data})
			out, _ := wire.EncodeBatch(resp)
			_ = conn.Send(out)
		}
	}
}

func (b *echoBridge) OnStateChange(_, _ transport.ConnectionState) {}
func (b *echoBridge) OnError(error)                                 {}

func startController(t *testing.T, cfg Config) *Controller {
	t.Helper()
	cfg.Address = "127.0.0.1:0"
	c, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Stop() })
	return c
}

func dialBridge(t *testing.T, c *Controller) *echoBridge {
	t.Helper()
	b := &echoBridge{seen: make(chan *wire.CommandBatch, 8)}
	conn := transport.NewConnection(transport.DefaultConnectionConfig(), b)
	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
	require.NoError(t, conn.Connect(context.Background(), c.Addr().String()))
	t.Cleanup(func() { conn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.WaitLink(ctx))
	return b
}

func readBatch(ops ...wire.BusOperation) *wire.CommandBatch {
	return &wire.CommandBatch{Envelopes: []wire.CommandEnvelope{{
		Transport:  wire.TransportWebSocket,
		Bus:        wire.BusSPI,
		Operations: ops,
	}}}
}

func TestExpectedResponses(t *testing.T) {
	b := &wire.CommandBatch{Envelopes: []wire.CommandEnvelope{
		{Operations: []wire.BusOperation{
			{Operation: wire.OpRead, Address: 1, Data: []byte{0, 0}},
			{Operation: wire.OpRead, Address: 2},
			{Operation: wire.OpWrite, Address: 3, Data: []byte{1}},
		}},
		{Operations: []wire.BusOperation{
			{Operation: wire.OpRead, Address: 4, Data: []byte{}},
			{Operation: wire.OpAck, Address: 5},
		}},
	}}
	assert.Equal(t, 2, ExpectedResponses(b))
}

func TestExchangeWithoutLink(t *testing.T) {
	c := startController(t, Config{})
	assert.False(t, c.Connected())

	_, err := c.Exchange(context.Background(), readBatch())
	assert.ErrorIs(t, err, ErrNoLink)
	assert.ErrorIs(t, c.Send(readBatch()), ErrNoLink)
}

func TestExchangeCollectsResponses(t *testing.T) {
	c := startController(t, Config{})
	b := dialBridge(t, c)
	assert.True(t, c.Connected())
	assert.NotEmpty(t, c.LinkID())

	batch := readBatch(
		wire.BusOperation{Operation: wire.OpRead, Address: 0x10, Data: make([]byte, 2)},
		wire.BusOperation{Operation: wire.OpWrite, Address: 0x20, Data: []byte{0x99}},
		wire.BusOperation{Operation: wire.OpRead, Address: 0x30, Data: make([]byte, 1)},
	)
	got, err := c.Exchange(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, wire.OpAck, got[0].Op.Operation)
	assert.Equal(t, uint32(0x10), got[0].Op.Address)
	assert.Equal(t, []byte{0x10, 0x11}, got[0].Op.Data)
	assert.Equal(t, wire.BusSPI, got[0].Bus)
	assert.Equal(t, []byte{0x30}, got[1].Op.Data)

	sent := <-b.seen
	assert.True(t, wire.Equal(batch, sent))
}

func TestExchangeNoReadsReturnsImmediately(t *testing.T) {
	c := startController(t, Config{})
	b := dialBridge(t, c)

	got, err := c.Exchange(context.Background(), readBatch(
		wire.BusOperation{Operation: wire.OpWrite, Address: 0x20, Data: []byte{1}},
	))
	require.NoError(t, err)
	assert.Empty(t, got)

	select {
	case <-b.seen:
	case <-time.After(2 * time.Second):
		t.Fatal("batch not delivered")
	}
}

func TestExchangeTimeout(t *testing.T) {
	c := startController(t, Config{ResponseTimeout: 100 * time.Millisecond})
	b := dialBridge(t, c)
	b.mu.Lock()
	b.mute = true
	b.mu.Unlock()

	got, err := c.Exchange(context.Background(), readBatch(
		wire.BusOperation{Operation: wire.OpRead, Address: 0x10, Data: make([]byte, 2)},
	))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Empty(t, got)
}

func TestExchangeDiscardsStaleResponses(t *testing.T) {
	c := startController(t, Config{})
	dialBridge(t, c)

	require.NoError(t, c.Send(readBatch(
		wire.BusOperation{Operation: wire.OpRead, Address: 0x01, Data: make([]byte, 1)},
	)))
	require.Eventually(t, func() bool { return len(c.responses) == 1 }, 2*time.Second, 5*time.Millisecond)

	got, err := c.Exchange(context.Background(), readBatch(
		wire.BusOperation{Operation: wire.OpRead, Address: 0x02, Data: make([]byte, 1)},
	))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint32(0x02), got[0].Op.Address)
}

func TestWaitLinkHonorsContext(t *testing.T) {
	c := startController(t, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.WaitLink(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestDisconnectDetachesLink(t *testing.T) {
	c := startController(t, Config{})
	b := dialBridge(t, c)

	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool { return !c.Connected() }, 2*time.Second, 10*time.Millisecond)
}

func TestUndecodableFrameCounted(t *testing.T) {
	c := startController(t, Config{})
	b := dialBridge(t, c)

	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	require.NoError(t, conn.Send([]byte{0xff, 0x00}))

	assert.Eventually(t, func() bool { return c.DecodeErrors() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, c.Connected())
}
