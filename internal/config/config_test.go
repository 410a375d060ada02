package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tl.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	opts := Default()
	if opts.StackSize != 256 || opts.MaxFrames != 64 {
		t.Errorf("sizes: %+v", opts)
	}
	if !opts.Optimize {
		t.Error("optimizer should default to on")
	}
	if opts.GCThreshold != 1<<20 {
		t.Errorf("gc threshold: got %d", opts.GCThreshold)
	}
	if opts.GCStress || opts.TraceExecution {
		t.Error("debug switches should default to off")
	}
	if err := opts.Validate(); err != nil {
		t.Errorf("defaults fail validation: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
max_frames: 128
optimize: false
gc_stress: true
`)
	opts, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if opts.MaxFrames != 128 {
		t.Errorf("max_frames: got %d", opts.MaxFrames)
	}
	if opts.Optimize {
		t.Error("optimize not overridden")
	}
	if !opts.GCStress {
		t.Error("gc_stress not overridden")
	}
	// Untouched keys keep their defaults.
	if opts.StackSize != 256 {
		t.Errorf("stack_size: got %d", opts.StackSize)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, "max_frames: -1\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "max_frames must be positive") {
		t.Errorf("Load: got %v", err)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "max_frames: [oops\n")
	if _, err := Load(path); err == nil {
		t.Error("expected a parse error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	if _, err := Load(missing); err == nil {
		t.Error("Load should fail on a missing file")
	}

	opts, err := LoadIfExists(missing)
	if err != nil {
		t.Fatalf("LoadIfExists: %v", err)
	}
	if opts != Default() {
		t.Errorf("missing file should yield defaults, got %+v", opts)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		mutate func(*Options)
		want   string
	}{
		{func(o *Options) { o.StackSize = 0 }, "stack_size"},
		{func(o *Options) { o.MaxFrames = 0 }, "max_frames"},
		{func(o *Options) { o.GCThreshold = -5 }, "gc_threshold"},
	}
	for _, tt := range tests {
		opts := Default()
		tt.mutate(&opts)
		err := opts.Validate()
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("Validate: got %v, want mention of %s", err, tt.want)
		}
	}
}
