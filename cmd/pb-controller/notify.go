package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/peripheral-bridge/bridge-go/pkg/bridge"
	"github.com/peripheral-bridge/bridge-go/pkg/bulk"
	"github.com/peripheral-bridge/bridge-go/pkg/discovery"
	"github.com/peripheral-bridge/bridge-go/pkg/notify"
	"github.com/peripheral-bridge/bridge-go/pkg/sample"
	"github.com/peripheral-bridge/bridge-go/pkg/transport"
)

// notifyTarget is a resolved notification endpoint.
type notifyTarget struct {
	Address string

	// Info is the advertised bridge description; nil when the address was
	// given directly.
	Info *discovery.BridgeInfo

	TLS *transport.TLSConfig
}

// resolveNotify returns the endpoint at addr, or asks browser for the
// bridge called name when addr is empty. An empty name takes the first
// bridge found.
func resolveNotify(ctx context.Context, addr, name string, browser discovery.Browser, tlsConfig *transport.TLSConfig) (*notifyTarget, error) {
	if addr != "" {
		return &notifyTarget{Address: addr, TLS: tlsConfig}, nil
	}

	svc, err := browser.Find(ctx, name)
	if err != nil {
		if name == "" {
			return nil, fmt.Errorf("find bridge: %w", err)
		}
		return nil, fmt.Errorf("find bridge %q: %w", name, err)
	}
	info := svc.BridgeInfo
	return &notifyTarget{Address: svc.Address(), Info: &info, TLS: tlsConfig}, nil
}

// newBrowser creates an mDNS browser bound to iface.
func newBrowser(iface string) (discovery.Browser, error) {
	cfg := discovery.DefaultBrowserConfig()
	cfg.Interface = iface
	b, err := discovery.NewMDNSBrowser(cfg)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// fetchPayload reassembles one bulk pass and checks it against the
// advertised description, when there is one.
func fetchPayload(ctx context.Context, target *notifyTarget) (*bulk.Payload, error) {
	c, err := notify.Dial(ctx, target.Address, target.TLS)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target.Address, err)
	}
	defer c.Close()

	p, err := c.Fetch(ctx, bridge.BulkChannel)
	if err != nil {
		return p, err
	}
	if err := verifyAdvertised(p, target.Info); err != nil {
		return p, err
	}
	return p, nil
}

// verifyAdvertised compares a fetched payload with its mDNS description.
func verifyAdvertised(p *bulk.Payload, info *discovery.BridgeInfo) error {
	if info == nil || !info.HasPayload() {
		return nil
	}
	switch {
	case p.Name != info.PayloadName:
		return fmt.Errorf("payload name %q, advertised %q", p.Name, info.PayloadName)
	case uint64(p.Len()) != info.PayloadLength:
		return fmt.Errorf("payload length %d, advertised %d", p.Len(), info.PayloadLength)
	case p.Checksum != info.PayloadChecksum:
		return fmt.Errorf("%w: crc %08x, advertised %08x", bulk.ErrChecksumMismatch, p.Checksum, info.PayloadChecksum)
	}
	return nil
}

// watchSamples prints count samples from the sample channel. A count of
// zero runs until ctx is done.
func watchSamples(ctx context.Context, target *notifyTarget, count int, w io.Writer) error {
	c, err := notify.Dial(ctx, target.Address, target.TLS)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target.Address, err)
	}
	defer c.Close()

	if err := c.Subscribe(bridge.SampleChannel); err != nil {
		return err
	}
	defer c.Unsubscribe(bridge.SampleChannel)

	start := time.Now()
	for n := 0; count == 0 || n < count; {
		if ctx.Err() != nil {
			return nil
		}
		id, payload, err := c.Next(100 * time.Millisecond)
		if errors.Is(err, notify.ErrTimeout) {
			continue
		}
		if err != nil {
			return err
		}
		if id != bridge.SampleChannel {
			continue
		}
		s, err := sample.Parse(payload)
		if err != nil {
			return err
		}
		n++
		fmt.Fprintf(w, "%8.3fs %s\n", time.Since(start).Seconds(), formatSample(s))
	}
	return nil
}

func formatSample(s sample.Sample) string {
	return fmt.Sprintf("%6d %6d %6d %6d %6d %6d", s[0], s[1], s[2], s[3], s[4], s[5])
}

// browseBridges lists bridges until ctx is done.
func browseBridges(ctx context.Context, browser discovery.Browser, w io.Writer) error {
	found, err := browser.Browse(ctx)
	if err != nil {
		return err
	}
	for svc := range found {
		fmt.Fprintln(w, formatBridge(svc))
	}
	return nil
}

func formatBridge(svc *discovery.BridgeService) string {
	line := fmt.Sprintf("%-20s %-22s bus=%s mtu=%d", svc.Name, svc.Address(), svc.Bus, svc.MTU)
	if svc.HasPayload() {
		line += fmt.Sprintf(" payload=%s len=%d crc=%08x", svc.PayloadName, svc.PayloadLength, svc.PayloadChecksum)
	}
	return line
}
