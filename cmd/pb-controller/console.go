package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/peripheral-bridge/bridge-go/internal/controller"
	"github.com/peripheral-bridge/bridge-go/internal/script"
	"github.com/peripheral-bridge/bridge-go/pkg/discovery"
	"github.com/peripheral-bridge/bridge-go/pkg/transport"
)

// Exchanger is the part of the controller the console drives.
type Exchanger interface {
	script.Exchanger
	Connected() bool
	LinkID() string
	DecodeErrors() uint64
}

// NotifyOptions locate the notification endpoint for fetch and samples.
type NotifyOptions struct {
	Address   string
	Bridge    string
	Interface string
	TLS       *transport.TLSConfig
}

// Console is the interactive controller prompt.
type Console struct {
	ex      Exchanger
	notify  NotifyOptions
	browser discovery.Browser
	runner  script.RunnerConfig
	out     io.Writer
	rl      *readline.Instance

	target *notifyTarget
}

// NewConsole creates a console writing to out. Open attaches the prompt.
func NewConsole(ex Exchanger, notify NotifyOptions, runner script.RunnerConfig, out io.Writer) *Console {
	return &Console{ex: ex, notify: notify, runner: runner, out: out}
}

// Open attaches the readline prompt. Use Stdout for log output afterwards.
func (c *Console) Open() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "controller> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	c.rl = rl
	c.out = rl.Stdout()
	return nil
}

// Stdout returns a writer that coordinates with the prompt.
func (c *Console) Stdout() io.Writer {
	if c.rl != nil {
		return c.rl.Stdout()
	}
	return c.out
}

// Run reads commands until quit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if !c.exec(ctx, line) {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// exec runs one command line. It returns false on quit.
func (c *Console) exec(ctx context.Context, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "status":
		c.cmdStatus()

	case "ack", "read", "r", "write", "w", "transfer", "t":
		c.cmdOp(ctx, cmd, args)

	case "run":
		c.cmdRun(ctx, args)

	case "fetch":
		c.cmdFetch(ctx, args)

	case "samples":
		c.cmdSamples(ctx, args)

	case "browse":
		c.cmdBrowse(ctx)

	case "quit", "exit", "q":
		return false

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Bridge Controller Commands:
  Bus:
    read <addr> <len> [delay]      - Read len bytes from a register
    write <addr> <hex> [delay]     - Write bytes to a register
    transfer <addr> <hex> [delay]  - Full-duplex transfer
    ack <addr> [delay]             - Send an acknowledge
    run <script.yaml>              - Run a batch script

  Notifications:
    fetch [file]                   - Fetch the bulk payload (optionally save it)
    samples [n]                    - Print n sensor samples (default 10)
    browse                         - List bridges on the network

  General:
    status                         - Show link status
    help                           - Show this help
    quit                           - Exit

  Addresses take 0x prefixes, delays are durations (e.g. 5ms).`)
}

func (c *Console) cmdStatus() {
	if !c.ex.Connected() {
		fmt.Fprintln(c.out, "Bridge: not connected")
	} else {
		fmt.Fprintf(c.out, "Bridge: connected (link %s)\n", c.ex.LinkID())
	}
	fmt.Fprintf(c.out, "Undecodable frames: %d\n", c.ex.DecodeErrors())
	if c.notify.Address != "" {
		fmt.Fprintf(c.out, "Notify: %s\n", c.notify.Address)
	} else if c.target != nil {
		fmt.Fprintf(c.out, "Notify: %s (discovered)\n", c.target.Address)
	}
}

func (c *Console) cmdOp(ctx context.Context, cmd string, args []string) {
	op, err := parseOpCommand(cmd, args)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	step := script.Step{Ops: []script.Op{op}}
	batch, err := step.Batch()
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}

	responses, err := c.ex.Exchange(ctx, batch)
	for _, r := range responses {
		fmt.Fprintln(c.out, formatResponse(r))
	}
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if len(responses) == 0 {
		fmt.Fprintln(c.out, "OK")
	}
}

func (c *Console) cmdRun(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: run <script.yaml>")
		return
	}
	s, err := script.Load(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	result := script.NewRunner(c.ex, c.runner).Run(ctx, s)
	script.NewTextReporter(c.out, true).Report(result)
}

func (c *Console) cmdFetch(ctx context.Context, args []string) {
	target, err := c.resolve(ctx)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}

	start := time.Now()
	p, err := fetchPayload(ctx, target)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Fetched %s: %d bytes, crc %08x (%v)\n",
		p.Name, p.Len(), p.Checksum, time.Since(start).Round(time.Millisecond))

	if len(args) > 0 {
		if err := os.WriteFile(args[0], p.Data, 0o644); err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
			return
		}
		fmt.Fprintf(c.out, "Saved to %s\n", args[0])
	}
}

func (c *Console) cmdSamples(ctx context.Context, args []string) {
	count := 10
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			fmt.Fprintf(c.out, "Error: invalid count: %s\n", args[0])
			return
		}
		count = n
	}

	target, err := c.resolve(ctx)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if err := watchSamples(ctx, target, count, c.out); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
	}
}

func (c *Console) cmdBrowse(ctx context.Context) {
	browser, err := c.getBrowser()
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "Browsing for bridges...")
	browseCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := browseBridges(browseCtx, browser, c.out); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
	}
}

// resolve finds the notification endpoint once and remembers it.
func (c *Console) resolve(ctx context.Context) (*notifyTarget, error) {
	if c.target != nil {
		return c.target, nil
	}
	var browser discovery.Browser
	if c.notify.Address == "" {
		var err error
		if browser, err = c.getBrowser(); err != nil {
			return nil, err
		}
	}
	target, err := resolveNotify(ctx, c.notify.Address, c.notify.Bridge, browser, c.notify.TLS)
	if err != nil {
		return nil, err
	}
	c.target = target
	return target, nil
}

func (c *Console) getBrowser() (discovery.Browser, error) {
	if c.browser == nil {
		b, err := newBrowser(c.notify.Interface)
		if err != nil {
			return nil, err
		}
		c.browser = b
	}
	return c.browser, nil
}

// parseOpCommand turns a console op command into a scripted op.
func parseOpCommand(cmd string, args []string) (script.Op, error) {
	var op script.Op

	switch cmd {
	case "r":
		cmd = "read"
	case "w":
		cmd = "write"
	case "t":
		cmd = "transfer"
	}
	op.Op = cmd

	want := 2
	if cmd == "ack" {
		want = 1
	}
	if len(args) < want || len(args) > want+1 {
		if cmd == "ack" {
			return op, errors.New("usage: ack <addr> [delay]")
		}
		if cmd == "read" {
			return op, errors.New("usage: read <addr> <len> [delay]")
		}
		return op, fmt.Errorf("usage: %s <addr> <hex> [delay]", cmd)
	}

	addr, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return op, fmt.Errorf("invalid address: %s", args[0])
	}
	op.Address = uint32(addr)

	switch cmd {
	case "read":
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 0 {
			return op, fmt.Errorf("invalid length: %s", args[1])
		}
		op.Length = n
	case "write", "transfer":
		op.Data = args[1]
	}

	if len(args) == want+1 {
		d, err := time.ParseDuration(args[want])
		if err != nil {
			return op, fmt.Errorf("invalid delay: %s", args[want])
		}
		op.Delay = d
	}

	if _, err := op.Operation(); err != nil {
		return op, err
	}
	return op, nil
}

func formatResponse(r controller.Response) string {
	return fmt.Sprintf("%s/%s %s 0x%02x %s",
		r.Transport, r.Bus, r.Op.Operation, r.Op.Address, hex.EncodeToString(r.Op.Data))
}
