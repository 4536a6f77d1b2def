package bridge

import (
	_ "embed"

	"github.com/peripheral-bridge/bridge-go/pkg/bulk"
	"github.com/peripheral-bridge/bridge-go/pkg/config"
)

// defaultPayload describes the sample channel to consumers that render it.
//
//go:embed payload/default.xml
var defaultPayload []byte

// DefaultPayload returns the built-in bulk payload under name.
func DefaultPayload(name string) (*bulk.Payload, error) {
	return bulk.NewPayload(name, defaultPayload)
}

// loadPayload resolves the bulk payload: the override, the configured
// file or the built-in payload.
func loadPayload(cfg config.BulkConfig, override *bulk.Payload) (*bulk.Payload, error) {
	if override != nil {
		return override, nil
	}
	if cfg.Path != "" {
		return bulk.LoadPayload(cfg.Name, cfg.Path)
	}
	return DefaultPayload(cfg.Name)
}
