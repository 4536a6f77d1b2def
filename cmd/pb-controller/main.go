// Command pb-controller drives peripheral bridges.
//
// It listens for a bridge to dial in, submits command batches and prints
// the responses. It also consumes the bridge's notification endpoint to
// fetch the bulk payload and watch sensor samples.
//
// Usage:
//
//	pb-controller <command> [flags] [args]
//
// Commands:
//
//	console  Interactive prompt (default)
//	run      Run batch scripts against the first bridge that connects
//	fetch    Fetch and verify the bulk payload
//	samples  Print sensor samples
//	browse   List bridges advertised on the network
//
// Examples:
//
//	# Wait for a bridge on the default port and open the prompt
//	pb-controller console -listen :7420
//
//	# Run every script in a directory, JSON report
//	pb-controller run -format json scripts/
//
//	# Fetch the payload from a discovered bridge and save it
//	pb-controller fetch -bridge bench-1 -o payload.bin
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/peripheral-bridge/bridge-go/internal/controller"
	"github.com/peripheral-bridge/bridge-go/internal/script"
	"github.com/peripheral-bridge/bridge-go/pkg/config"
	"github.com/peripheral-bridge/bridge-go/pkg/discovery"
	"github.com/peripheral-bridge/bridge-go/pkg/log"
	"github.com/peripheral-bridge/bridge-go/pkg/transport"
)

const usage = `pb-controller - Peripheral Bridge Controller

Usage:
  pb-controller <command> [flags] [args]

Commands:
  console  Interactive prompt (default)
  run      Run batch scripts against the first bridge that connects
  fetch    Fetch and verify the bulk payload
  samples  Print sensor samples
  browse   List bridges advertised on the network

Use "pb-controller <command> -help" for more information about a command.
`

func main() {
	cmd := "console"
	args := os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd {
	case "console":
		err = runConsole(ctx, args)
	case "run":
		var ok bool
		ok, err = runScripts(ctx, args)
		if err == nil && !ok {
			os.Exit(1)
		}
	case "fetch":
		err = runFetch(ctx, args)
	case "samples":
		err = runSamples(ctx, args)
	case "browse":
		err = runBrowse(ctx, args)
	case "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newFlagSet(name, summary, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "pb-controller %s - %s\n\nUsage:\n  pb-controller %s [flags] %s\n\nFlags:\n", name, summary, name, args)
		fs.PrintDefaults()
	}
	return fs
}

// LinkFlags configure the listening side of the command link.
type LinkFlags struct {
	Listen      string
	TLSCert     string
	TLSKey      string
	TLSCA       string
	LogLevel    string
	ProtocolLog string
	Timeout     time.Duration
}

func (f *LinkFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.Listen, "listen", fmt.Sprintf(":%d", transport.DefaultPort), "Address to accept the bridge on")
	fs.StringVar(&f.TLSCert, "tls-cert", "", "TLS certificate (enables TLS)")
	fs.StringVar(&f.TLSKey, "tls-key", "", "TLS private key")
	fs.StringVar(&f.TLSCA, "tls-ca", "", "CA for verifying bridge certificates")
	fs.StringVar(&f.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&f.ProtocolLog, "protocol-log", "", "File path for protocol event logging (CBOR format)")
	fs.DurationVar(&f.Timeout, "timeout", controller.DefaultResponseTimeout, "Response timeout per batch")
}

// NotifyFlags locate and secure the notification endpoint.
type NotifyFlags struct {
	Address   string
	Bridge    string
	Interface string
	CA        string
	Insecure  bool
}

func (f *NotifyFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.Address, "notify", "", "Notification endpoint (host:port); discovered via mDNS when empty")
	fs.StringVar(&f.Bridge, "bridge", "", "Bridge name to discover (default: first found)")
	fs.StringVar(&f.Interface, "interface", "", "Network interface for mDNS")
	fs.StringVar(&f.CA, "notify-ca", "", "CA for the notification endpoint (enables TLS)")
	fs.BoolVar(&f.Insecure, "notify-insecure", false, "Use TLS without verifying the bridge certificate")
}

// tlsConfig returns nil for plain TCP.
func (f *NotifyFlags) tlsConfig() (*transport.TLSConfig, error) {
	if f.CA == "" && !f.Insecure {
		return nil, nil
	}
	cfg, err := transport.LoadTLSConfig("", "", f.CA)
	if err != nil {
		return nil, err
	}
	cfg.InsecureSkipVerify = f.Insecure
	return cfg, nil
}

func (f *NotifyFlags) options() (NotifyOptions, error) {
	tlsConfig, err := f.tlsConfig()
	if err != nil {
		return NotifyOptions{}, err
	}
	return NotifyOptions{
		Address:   f.Address,
		Bridge:    f.Bridge,
		Interface: f.Interface,
		TLS:       tlsConfig,
	}, nil
}

func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	l, err := config.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}

// openProtocolLog fans protocol events out to the file, when configured,
// and to the operational logger at debug level.
func openProtocolLog(path string, logger *slog.Logger) (log.Logger, func(), error) {
	console := log.NewSlogAdapter(logger)
	if path == "" {
		return console, func() {}, nil
	}

	file, err := log.NewFileLogger(path)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if n := file.Dropped(); n > 0 {
			logger.Warn("protocol log dropped events", "count", n)
		}
		file.Close()
	}
	return log.NewMultiLogger(file, console), closeFn, nil
}

// startController opens the command link listener.
func startController(ctx context.Context, f LinkFlags, logger *slog.Logger) (*controller.Controller, func(), error) {
	var tlsConfig *transport.TLSConfig
	if f.TLSCert != "" {
		var err error
		if tlsConfig, err = transport.LoadTLSConfig(f.TLSCert, f.TLSKey, f.TLSCA); err != nil {
			return nil, nil, err
		}
	}

	protocolLogger, closeLog, err := openProtocolLog(f.ProtocolLog, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open protocol log: %w", err)
	}

	ctrl, err := controller.New(controller.Config{
		Address:         f.Listen,
		TLSConfig:       tlsConfig,
		ResponseTimeout: f.Timeout,
		Logger:          logger,
		ProtocolLogger:  protocolLogger,
	})
	if err != nil {
		closeLog()
		return nil, nil, err
	}
	if err := ctrl.Start(ctx); err != nil {
		closeLog()
		return nil, nil, err
	}
	logger.Info("waiting for bridge", "address", ctrl.Addr().String())

	return ctrl, func() {
		ctrl.Stop()
		closeLog()
	}, nil
}

func runConsole(ctx context.Context, args []string) error {
	fs := newFlagSet("console", "Interactive prompt", "")
	var link LinkFlags
	var notify NotifyFlags
	link.register(fs)
	notify.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts, err := notify.options()
	if err != nil {
		return err
	}

	console := NewConsole(nil, opts, script.RunnerConfig{Timeout: link.Timeout}, os.Stdout)
	if err := console.Open(); err != nil {
		return err
	}

	logger, err := newLogger(link.LogLevel, console.Stdout())
	if err != nil {
		return err
	}
	ctrl, stop, err := startController(ctx, link, logger)
	if err != nil {
		return err
	}
	defer stop()
	console.ex = ctrl
	console.runner.Logger = logger

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	console.Run(ctx, cancel)
	return nil
}

// runScripts reports whether every script passed.
func runScripts(ctx context.Context, args []string) (bool, error) {
	fs := newFlagSet("run", "Run batch scripts against the first bridge that connects", "<script.yaml|dir>...")
	var link LinkFlags
	link.register(fs)
	wait := fs.Duration("wait", 30*time.Second, "How long to wait for a bridge to connect")
	format := fs.String("format", "text", "Report format (text, json)")
	verbose := fs.Bool("v", false, "Print every response")
	stopOnFailure := fs.Bool("stop-on-failure", false, "Skip remaining steps after a failure")
	if err := fs.Parse(args); err != nil {
		return false, err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return false, errors.New("script path required")
	}

	scripts, err := loadScripts(fs.Args())
	if err != nil {
		return false, err
	}

	var reporter script.Reporter
	switch *format {
	case "text":
		reporter = script.NewTextReporter(os.Stdout, *verbose)
	case "json":
		reporter = script.NewJSONReporter(os.Stdout, true)
	default:
		return false, fmt.Errorf("unknown format: %s (use text or json)", *format)
	}

	logger, err := newLogger(link.LogLevel, os.Stderr)
	if err != nil {
		return false, err
	}
	ctrl, stop, err := startController(ctx, link, logger)
	if err != nil {
		return false, err
	}
	defer stop()

	waitCtx, cancel := context.WithTimeout(ctx, *wait)
	err = ctrl.WaitLink(waitCtx)
	cancel()
	if err != nil {
		return false, fmt.Errorf("no bridge connected: %w", err)
	}
	logger.Info("bridge connected", "link", ctrl.LinkID(), "remote", ctrl.RemoteAddr())

	runner := script.NewRunner(ctrl, script.RunnerConfig{
		Timeout:       link.Timeout,
		StopOnFailure: *stopOnFailure,
		Logger:        logger,
	})
	passed := true
	for _, s := range scripts {
		result := runner.Run(ctx, s)
		reporter.Report(result)
		passed = passed && result.Passed
	}
	return passed, nil
}

// loadScripts loads files and every script in directories, in order.
func loadScripts(paths []string) ([]*script.Script, error) {
	var scripts []*script.Script
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			dir, err := script.LoadDirectory(p)
			if err != nil {
				return nil, err
			}
			scripts = append(scripts, dir...)
			continue
		}
		s, err := script.Load(p)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, s)
	}
	if len(scripts) == 0 {
		return nil, errors.New("no scripts found")
	}
	return scripts, nil
}

// resolveFromFlags turns notify flags into an endpoint, browsing when no
// address is given.
func resolveFromFlags(ctx context.Context, f NotifyFlags) (*notifyTarget, error) {
	tlsConfig, err := f.tlsConfig()
	if err != nil {
		return nil, err
	}
	var browser discovery.Browser
	if f.Address == "" {
		if browser, err = newBrowser(f.Interface); err != nil {
			return nil, err
		}
	}
	return resolveNotify(ctx, f.Address, f.Bridge, browser, tlsConfig)
}

func runFetch(ctx context.Context, args []string) error {
	fs := newFlagSet("fetch", "Fetch and verify the bulk payload", "")
	var notify NotifyFlags
	notify.register(fs)
	output := fs.String("o", "", "Write the payload to this file")
	timeout := fs.Duration("timeout", 30*time.Second, "Overall fetch timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	target, err := resolveFromFlags(ctx, notify)
	if err != nil {
		return err
	}
	start := time.Now()
	p, err := fetchPayload(ctx, target)
	if err != nil {
		return err
	}
	fmt.Printf("Fetched %s from %s: %d bytes, crc %08x (%v)\n",
		p.Name, target.Address, p.Len(), p.Checksum, time.Since(start).Round(time.Millisecond))

	if *output != "" {
		if err := os.WriteFile(*output, p.Data, 0o644); err != nil {
			return err
		}
		fmt.Printf("Saved to %s\n", *output)
	}
	return nil
}

func runSamples(ctx context.Context, args []string) error {
	fs := newFlagSet("samples", "Print sensor samples", "")
	var notify NotifyFlags
	notify.register(fs)
	count := fs.Int("n", 0, "Number of samples (0 runs until interrupted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *count < 0 {
		return fmt.Errorf("invalid count: %d", *count)
	}

	target, err := resolveFromFlags(ctx, notify)
	if err != nil {
		return err
	}
	return watchSamples(ctx, target, *count, os.Stdout)
}

func runBrowse(ctx context.Context, args []string) error {
	fs := newFlagSet("browse", "List bridges advertised on the network", "")
	iface := fs.String("interface", "", "Network interface for mDNS")
	timeout := fs.Duration("timeout", 5*time.Second, "How long to browse")
	if err := fs.Parse(args); err != nil {
		return err
	}

	browser, err := newBrowser(*iface)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	return browseBridges(ctx, browser, os.Stdout)
}
