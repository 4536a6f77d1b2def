// Command pb-bridge runs a peripheral bridge.
//
// The bridge dials out to a controller, executes the command batches it
// receives against a bus and answers with one response per operation. A
// notification endpoint streams the configured bulk payload and sensor
// samples to a subscribed consumer.
//
// Usage:
//
//	pb-bridge [flags]
//
// Flags:
//
//	-config string        Configuration file path (YAML)
//	-name string          Bridge name
//	-controller string    Controller address (host:port)
//	-notify string        Notification listen address
//	-payload string       Bulk payload file
//	-log-level string     Log level: debug, info, warn, error
//	-protocol-log string  File path for protocol event logging (CBOR format)
//	-no-discovery         Disable mDNS advertising
//	-load reg=hex         Preload simulated registers (repeatable)
//
// Examples:
//
//	# Bridge with a simulated peripheral answering 0x42 0x43 at register 0x10
//	pb-bridge -controller 192.168.1.20:7420 -load 0x10=4243
//
//	# Bridge from a config file with protocol logging
//	pb-bridge -config /etc/pbridge.yaml -protocol-log bridge.pblog
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/peripheral-bridge/bridge-go/pkg/bridge"
	"github.com/peripheral-bridge/bridge-go/pkg/config"
	"github.com/peripheral-bridge/bridge-go/pkg/connection"
	"github.com/peripheral-bridge/bridge-go/pkg/log"
)

// Flags holds command-line overrides. Empty values keep the file setting.
type Flags struct {
	ConfigFile  string
	Name        string
	Controller  string
	Notify      string
	Payload     string
	LogLevel    string
	ProtocolLog string
	NoDiscovery bool
	Load        registerLoads
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&flags.Name, "name", "", "Bridge name")
	flag.StringVar(&flags.Controller, "controller", "", "Controller address (host:port)")
	flag.StringVar(&flags.Notify, "notify", "", "Notification listen address")
	flag.StringVar(&flags.Payload, "payload", "", "Bulk payload file")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&flags.ProtocolLog, "protocol-log", "", "File path for protocol event logging (CBOR format)")
	flag.BoolVar(&flags.NoDiscovery, "no-discovery", false, "Disable mDNS advertising")
	flag.Var(&flags.Load, "load", "Preload simulated registers as reg=hexdata (repeatable)")
}

func main() {
	flag.Parse()

	cfg, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	level, _ := config.ParseLevel(cfg.Log.Level)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	protocolLogger, closeLog, err := openProtocolLog(cfg.Log.ProtocolLog, logger)
	if err != nil {
		logger.Error("failed to open protocol log", "path", cfg.Log.ProtocolLog, "error", err)
		os.Exit(1)
	}
	defer closeLog()

	svc, err := bridge.NewService(cfg, bridge.Options{
		Logger:         logger,
		ProtocolLogger: protocolLogger,
	})
	if err != nil {
		logger.Error("failed to create bridge", "error", err)
		os.Exit(1)
	}

	if sim := svc.Sim(); sim != nil {
		for _, l := range flags.Load {
			sim.Load(l.reg, l.data)
			logger.Info("preloaded register", "reg", fmt.Sprintf("0x%02x", l.reg), "len", len(l.data))
		}
	} else if len(flags.Load) > 0 {
		logger.Warn("ignoring -load: bus driver is not simulated")
	}

	svc.OnLinkStateChange(func(oldState, newState connection.State) {
		logger.Info("controller link", "from", oldState, "to", newState)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		logger.Error("bridge stopped", "error", err)
		os.Exit(1)
	}

	st := svc.Stats()
	logger.Info("bridge stopped",
		"links", st.Links,
		"batches", st.Batches,
		"operations", st.Operations,
		"responses", st.Responses,
		"failures", st.Failures,
		"bulk_passes", st.BulkPasses,
		"samples", st.SamplesSent)
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(f Flags) (*config.Config, error) {
	cfg := config.Default()
	if f.ConfigFile != "" {
		var err error
		if cfg, err = config.Load(f.ConfigFile); err != nil {
			return nil, err
		}
	}

	if f.Name != "" {
		cfg.Bridge.Name = f.Name
	}
	if f.Controller != "" {
		cfg.Controller.Address = f.Controller
	}
	if f.Notify != "" {
		cfg.Notify.Listen = f.Notify
	}
	if f.Payload != "" {
		cfg.Bulk.Path = f.Payload
	}
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.ProtocolLog != "" {
		cfg.Log.ProtocolLog = f.ProtocolLog
	}
	if f.NoDiscovery {
		cfg.Discovery.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
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
