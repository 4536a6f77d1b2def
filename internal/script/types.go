// Package script loads YAML batch scripts for the controller tool and runs
// them against a bridge link.
package script

import (
	"strconv"
	"time"
)

// Script is a named sequence of batches.
type Script struct {
	// Name is a human-readable name for the script.
	Name string `yaml:"name"`

	// Description explains what the script exercises.
	Description string `yaml:"description"`

	// Timeout bounds each step's response collection (e.g., "2s").
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// Steps are sent in order, one batch per step.
	Steps []Step `yaml:"steps"`
}

// Step is one command batch and the responses it should produce.
//
// Ops is shorthand for a single envelope tagged with Transport and Bus.
// Envelopes spells out a multi-envelope batch. A step uses one or the
// other.
type Step struct {
	Name      string     `yaml:"name"`
	Transport string     `yaml:"transport,omitempty"`
	Bus       string     `yaml:"bus,omitempty"`
	Ops       []Op       `yaml:"ops,omitempty"`
	Envelopes []Envelope `yaml:"envelopes,omitempty"`

	// Expect lists the hex payload of each response, in order. "*"
	// accepts any payload. Empty skips checking.
	Expect []string `yaml:"expect,omitempty"`
}

// Envelope is one transport/bus group of operations.
type Envelope struct {
	Transport string `yaml:"transport,omitempty"`
	Bus       string `yaml:"bus,omitempty"`
	Ops       []Op   `yaml:"ops"`
}

// Op is one bus operation.
type Op struct {
	// Op is ack, read, write or transfer.
	Op string `yaml:"op"`

	Address uint32 `yaml:"address"`

	// Data is the hex payload of a write or transfer.
	Data string `yaml:"data,omitempty"`

	// Length is the number of bytes a read requests.
	Length int `yaml:"length,omitempty"`

	// Delay is the post-operation delay.
	Delay time.Duration `yaml:"delay,omitempty"`
}

// LoadError provides details about a script loading error.
type LoadError struct {
	// File is the path to the file that failed to load.
	File string

	// Step is the 1-based step index where the error occurred (0 if none).
	Step int

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Step > 0 {
		msg = "step " + strconv.Itoa(e.Step) + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.File != "" {
		return e.File + ": " + msg
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}
