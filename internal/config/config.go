// Package config holds the runtime options shared by the CLI tools
// and the VM. Options come from defaults, an optional YAML file, and
// programmatic overrides, in that order.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Options controls VM and pipeline behavior.
type Options struct {
	// StackSize is the initial operand stack capacity in slots.
	StackSize int `yaml:"stack_size"`
	// MaxFrames bounds call depth; exceeding it is a runtime error.
	MaxFrames int `yaml:"max_frames"`
	// Optimize enables the peephole pass after compilation.
	Optimize bool `yaml:"optimize"`
	// GCThreshold is the tracked-byte count that triggers the first
	// collection. It doubles after every cycle.
	GCThreshold int `yaml:"gc_threshold"`
	// GCStress forces a collection on every allocation.
	GCStress bool `yaml:"gc_stress"`
	// TraceExecution logs every instruction as it executes.
	TraceExecution bool `yaml:"trace_execution"`
}

// Default returns the standard options.
func Default() Options {
	return Options{
		StackSize:   256,
		MaxFrames:   64,
		Optimize:    true,
		GCThreshold: 1 << 20,
	}
}

// Load reads options from a YAML file, applying them over defaults.
func Load(path string) (Options, error) {
	opts := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := opts.Validate(); err != nil {
		return opts, fmt.Errorf("config %s: %w", path, err)
	}
	return opts, nil
}

// LoadIfExists behaves like Load but returns defaults without error
// when the file is missing.
func LoadIfExists(path string) (Options, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Validate rejects option values the VM cannot run with.
func (o Options) Validate() error {
	if o.StackSize <= 0 {
		return fmt.Errorf("stack_size must be positive, got %d", o.StackSize)
	}
	if o.MaxFrames <= 0 {
		return fmt.Errorf("max_frames must be positive, got %d", o.MaxFrames)
	}
	if o.GCThreshold <= 0 {
		return fmt.Errorf("gc_threshold must be positive, got %d", o.GCThreshold)
	}
	return nil
}
