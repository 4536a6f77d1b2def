package script

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/peripheral-bridge/bridge-go/pkg/wire"
)

// Parse parses a script from YAML bytes and validates every step.
func Parse(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, &LoadError{
			Message: "failed to parse YAML",
			Cause:   err,
		}
	}

	if s.Name == "" {
		return nil, &LoadError{Message: "script name is required"}
	}
	if len(s.Steps) == 0 {
		return nil, &LoadError{Message: "script must have at least one step"}
	}
	if s.Timeout < 0 {
		return nil, &LoadError{Message: "timeout must not be negative"}
	}

	for i := range s.Steps {
		if _, err := s.Steps[i].Batch(); err != nil {
			var le *LoadError
			if !errors.As(err, &le) {
				le = &LoadError{Message: "invalid step", Cause: err}
			}
			le.Step = i + 1
			return nil, le
		}
	}

	return &s, nil
}

// Load loads a script from a file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{
			File:    path,
			Message: "failed to read file",
			Cause:   err,
		}
	}

	s, err := Parse(data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = path
			return nil, le
		}
		return nil, &LoadError{File: path, Message: err.Error()}
	}
	return s, nil
}

// LoadDirectory loads every .yaml or .yml script in dir, in name order.
func LoadDirectory(dir string) ([]*Script, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &LoadError{
			File:    dir,
			Message: "failed to read directory",
			Cause:   err,
		}
	}

	var scripts []*Script
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		s, err := Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, s)
	}
	return scripts, nil
}

// Batch builds the command batch for the step.
func (s *Step) Batch() (*wire.CommandBatch, error) {
	switch {
	case len(s.Ops) > 0 && len(s.Envelopes) > 0:
		return nil, &LoadError{Message: "ops and envelopes are mutually exclusive"}
	case len(s.Ops) == 0 && len(s.Envelopes) == 0:
		return nil, &LoadError{Message: "step has no operations"}
	}

	envs := s.Envelopes
	if len(s.Ops) > 0 {
		envs = []Envelope{{Transport: s.Transport, Bus: s.Bus, Ops: s.Ops}}
	}

	batch := &wire.CommandBatch{Envelopes: make([]wire.CommandEnvelope, 0, len(envs))}
	for _, e := range envs {
		env, err := e.envelope(s)
		if err != nil {
			return nil, err
		}
		batch.Envelopes = append(batch.Envelopes, env)
	}

	for _, exp := range s.Expect {
		if exp == "*" {
			continue
		}
		if _, err := ParseHex(exp); err != nil {
			return nil, &LoadError{Message: fmt.Sprintf("invalid expect %q", exp), Cause: err}
		}
	}
	return batch, nil
}

func (e Envelope) envelope(step *Step) (wire.CommandEnvelope, error) {
	transport := firstNonEmpty(e.Transport, step.Transport, wire.TransportWebSocket.String())
	bus := firstNonEmpty(e.Bus, step.Bus, wire.BusSPI.String())

	t, ok := wire.ParseTransportType(strings.ToUpper(transport))
	if !ok {
		return wire.CommandEnvelope{}, &LoadError{Message: fmt.Sprintf("unknown transport %q", transport)}
	}
	b, ok := wire.ParseBusType(strings.ToUpper(bus))
	if !ok {
		return wire.CommandEnvelope{}, &LoadError{Message: fmt.Sprintf("unknown bus %q", bus)}
	}
	if len(e.Ops) == 0 {
		return wire.CommandEnvelope{}, &LoadError{Message: "envelope has no operations"}
	}

	env := wire.CommandEnvelope{Transport: t, Bus: b, Operations: make([]wire.BusOperation, 0, len(e.Ops))}
	for i, op := range e.Ops {
		bop, err := op.Operation()
		if err != nil {
			return env, &LoadError{Message: fmt.Sprintf("op %d", i+1), Cause: err}
		}
		env.Operations = append(env.Operations, bop)
	}
	return env, nil
}

// Operation converts the scripted op to its wire form.
func (o Op) Operation() (wire.BusOperation, error) {
	var op wire.BusOperation
	op.Address = o.Address

	switch strings.ToLower(o.Op) {
	case "ack":
		op.Operation = wire.OpAck
	case "read":
		if o.Data != "" {
			return op, errors.New("read takes length, not data")
		}
		if o.Length < 0 {
			return op, errors.New("read length must not be negative")
		}
		op.Operation = wire.OpRead
		if o.Length > 0 {
			op.Data = make([]byte, o.Length)
		}
	case "write", "transfer":
		op.Operation = wire.OpWrite
		if strings.ToLower(o.Op) == "transfer" {
			op.Operation = wire.OpTransfer
		}
		data, err := ParseHex(o.Data)
		if err != nil {
			return op, err
		}
		if len(data) > 0 {
			op.Data = data
		}
	default:
		return op, fmt.Errorf("unknown op %q", o.Op)
	}

	if o.Delay < 0 {
		return op, errors.New("delay must not be negative")
	}
	if o.Delay > 0 {
		op = op.WithDelay(o.Delay)
	}
	return op, nil
}

// ParseHex decodes hex with optional 0x prefix, spaces and colons.
func ParseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.NewReplacer(" ", "", ":", "", "_", "").Replace(s)
	return hex.DecodeString(s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
