package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/peripheral-bridge/bridge-go/pkg/bulk"
	"github.com/peripheral-bridge/bridge-go/pkg/transport"
	"github.com/peripheral-bridge/bridge-go/pkg/wire"
)

// Consumer errors.
var (
	ErrConsumerClosed = errors.New("consumer closed by bridge")
	ErrTimeout        = errors.New("no notification before timeout")
)

// Consumer is the receiving end of a notification Server. A background
// reader drains the connection so receive timeouts never split a frame.
type Consumer struct {
	conn   *transport.ClientConn
	frames chan []byte

	// err is written before frames is closed.
	err error
}

// Dial connects a consumer to the notification server at address.
func Dial(ctx context.Context, address string, tlsConfig *transport.TLSConfig) (*Consumer, error) {
	client, err := transport.NewClient(transport.ClientConfig{TLSConfig: tlsConfig})
	if err != nil {
		return nil, err
	}
	conn, err := client.Connect(ctx, address)
	if err != nil {
		return nil, err
	}

	c := &Consumer{
		conn:   conn,
		frames: make(chan []byte, 64),
	}
	go c.readLoop()
	return c, nil
}

func (c *Consumer) readLoop() {
	defer close(c.frames)
	for {
		frame, err := c.conn.Receive(0)
		if err != nil {
			c.err = err
			return
		}
		c.frames <- frame
	}
}

// Subscribe starts notifications on channel.
func (c *Consumer) Subscribe(channel uint8) error {
	return c.conn.Subscribe(channel)
}

// Unsubscribe stops notifications on channel.
func (c *Consumer) Unsubscribe(channel uint8) error {
	return c.conn.Unsubscribe(channel)
}

// Next returns the next notification. Control frames from the bridge are
// skipped, except close which ends the consumer. A zero timeout blocks.
func (c *Consumer) Next(timeout time.Duration) (uint8, []byte, error) {
	var expire <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expire = t.C
	}

	for {
		select {
		case frame, ok := <-c.frames:
			if !ok {
				return 0, nil, c.err
			}
			if IsNotificationFrame(frame) {
				return DecodeFrame(frame)
			}
			if msg, ok := transport.AsControlMessage(frame); ok && msg.Type == wire.ControlClose {
				return 0, nil, ErrConsumerClosed
			}
		case <-expire:
			return 0, nil, ErrTimeout
		}
	}
}

// Close says goodbye to the bridge and closes the connection.
func (c *Consumer) Close() error {
	_ = c.conn.SendClose()
	return c.conn.Close()
}

// RemoteAddr returns the bridge address.
func (c *Consumer) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Fetch subscribes to a bulk channel and reassembles one pass. The checksum
// is verified; on mismatch the partial payload is returned with the error.
// Notifications on other channels are ignored. Fetch expects no pass to be
// in flight on the channel when it is called.
func (c *Consumer) Fetch(ctx context.Context, channel uint8) (*bulk.Payload, error) {
	if err := c.Subscribe(channel); err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	defer c.Unsubscribe(channel)

	asm := bulk.NewAssembler()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		id, payload, err := c.Next(pollInterval(ctx))
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				continue
			}
			return nil, err
		}
		if id != channel {
			continue
		}

		done, err := asm.Add(payload)
		if err != nil {
			return asm.Payload(), err
		}
		if done {
			return asm.Payload(), nil
		}
	}
}

// pollInterval bounds each receive so ctx cancellation is observed.
func pollInterval(ctx context.Context) time.Duration {
	const poll = 100 * time.Millisecond
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < poll {
			return max(left, time.Millisecond)
		}
	}
	return poll
}
