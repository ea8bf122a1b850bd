package cachealloc

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// envPrefix is the prefix of every environment variable read by LoadConfig,
// e.g. CACHEALLOC_ALIGNMENT.
const envPrefix = "CACHEALLOC"

// Backend names accepted by Config.Backend.
const (
	BackendHeap = "heap"
	BackendMmap = "mmap"
)

// Config holds the settings of an Allocator.
type Config struct {
	// Alignment of every payload address; a power of two >= MinAlignment.
	Alignment int `envconfig:"ALIGNMENT" default:"16"`

	// Backend selects the System: "heap" or "mmap".
	Backend string `envconfig:"BACKEND" default:"heap"`

	// MaxBytes caps live system allocations; 0 means no cap.
	MaxBytes int64 `envconfig:"MAX_BYTES" default:"0"`

	// LogLevel is a logrus level name.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Alignment: MinAlignment,
		Backend:   BackendHeap,
		LogLevel:  "info",
	}
}

// LoadConfig reads the configuration from CACHEALLOC_* environment
// variables, falling back to the defaults.
func LoadConfig() (Config, error) {
	var c Config
	if err := envconfig.Process(envPrefix, &c); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return c, nil
}

// Validate checks the configuration without building anything.
func (c Config) Validate() error {
	if c.Alignment != 0 {
		if err := validateAlignment(c.Alignment); err != nil {
			return err
		}
	}
	switch strings.ToLower(c.Backend) {
	case "", BackendHeap, BackendMmap:
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.MaxBytes < 0 {
		return fmt.Errorf("config: negative max bytes %d", c.MaxBytes)
	}
	return nil
}

func (c Config) alignment() int {
	if c.Alignment == 0 {
		return MinAlignment
	}
	return c.Alignment
}

// system builds the System described by c.
func (c Config) system() (System, error) {
	var sys System
	switch strings.ToLower(c.Backend) {
	case "", BackendHeap:
		sys = NewHeap()
	case BackendMmap:
		m, err := newMmapSystem()
		if err != nil {
			return nil, err
		}
		sys = m
	default:
		return nil, fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.MaxBytes > 0 {
		sys = Limit(sys, c.MaxBytes)
	}
	return sys, nil
}
