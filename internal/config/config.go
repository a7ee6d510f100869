// Package config loads netcore configuration from YAML.
//
// Files are decoded strictly (unknown keys are errors) on top of Default,
// then validated against an embedded CUE schema. Loading is read-only.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Config is the full netcore configuration.
type Config struct {
	Log      LogConfig      `yaml:"log" json:"log"`
	Pipeline PipelineConfig `yaml:"pipeline" json:"pipeline"`
	Slots    SlotsConfig    `yaml:"slots" json:"slots"`
	Store    StoreConfig    `yaml:"store" json:"store"`
	Simulate SimulateConfig `yaml:"simulate" json:"simulate"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// PipelineConfig sizes the packet pipeline.
type PipelineConfig struct {
	PoolSize int `yaml:"pool_size" json:"pool_size"`
}

// SlotsConfig shapes the object registry's allocator.
type SlotsConfig struct {
	ItemsPerPage int `yaml:"items_per_page" json:"items_per_page"`
	MaxPages     int `yaml:"max_pages" json:"max_pages"`
}

// StoreConfig locates the snapshot database. An empty path disables
// persistence.
type StoreConfig struct {
	Path string `yaml:"path" json:"path"`
}

// SimulateConfig drives the packet simulation.
type SimulateConfig struct {
	Packets        int      `yaml:"packets" json:"packets"`
	Seed           int64    `yaml:"seed" json:"seed"`
	Producers      int      `yaml:"producers" json:"producers"`
	UpdatePercent  int      `yaml:"update_percent" json:"update_percent"`
	DespawnPercent int      `yaml:"despawn_percent" json:"despawn_percent"`
	Kinds          []string `yaml:"kinds" json:"kinds"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Log:      LogConfig{Level: "info", Format: "text"},
		Pipeline: PipelineConfig{PoolSize: 64},
		Slots:    SlotsConfig{ItemsPerPage: 128, MaxPages: 8192},
		Simulate: SimulateConfig{
			Packets:        1000,
			Seed:           1,
			Producers:      4,
			UpdatePercent:  50,
			DespawnPercent: 20,
			Kinds:          []string{"player", "projectile", "prop"},
		},
	}
}

// ValidationError reports a schema violation.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return "config: " + e.Message
	}
	return fmt.Sprintf("config: %s: %s", e.Path, e.Message)
}

// IsValidationError returns true if err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Load reads and validates the file at path. An empty path yields Default.
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Default and validates the result. Keys absent
// from data keep their default values.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks c against the embedded schema and cross-field rules.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config: compile schema: %w", err)
	}

	value := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(c))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return toValidationError(err)
	}

	if c.Simulate.UpdatePercent+c.Simulate.DespawnPercent > 100 {
		return &ValidationError{
			Path:    "simulate",
			Message: "update_percent + despawn_percent must not exceed 100",
		}
	}
	if uint64(c.Slots.ItemsPerPage)*uint64(c.Slots.MaxPages) > 1<<32 {
		return &ValidationError{
			Path:    "slots",
			Message: "items_per_page * max_pages exceeds the 32-bit id space",
		}
	}
	return nil
}

// toValidationError keeps the first CUE error and its path.
func toValidationError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	first := errs[0]
	format, args := first.Msg()
	return &ValidationError{
		Path:    strings.Join(first.Path(), "."),
		Message: fmt.Sprintf(format, args...),
	}
}

// LogLevel maps Log.Level to a slog level. Unknown levels map to Info.
func (c Config) LogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the slog logger described by Log, writing to w.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel()}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
