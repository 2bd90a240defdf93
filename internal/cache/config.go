package cache

import (
	"errors"
	"fmt"
	"time"
)

// Mode selects the backend.
type Mode string

// Backend modes.
const (
	ModeSingle   Mode = "single"
	ModeHA       Mode = "ha"
	ModeDisabled Mode = "disabled"
)

// DefaultDMapName is the Olric map used when none is configured.
const DefaultDMapName = "skin-relay"

// Config selects and tunes a backend.
type Config struct {
	Mode      Mode            `yaml:"mode" toml:"mode"`
	Olric     OlricConfig     `yaml:"olric" toml:"olric"`
	Ristretto RistrettoConfig `yaml:"ristretto" toml:"ristretto"`
}

// RistrettoConfig tunes the local cache. Cost is measured in value bytes.
type RistrettoConfig struct {
	NumCounters int64 `yaml:"num_counters" toml:"num_counters"`
	MaxCost     int64 `yaml:"max_cost" toml:"max_cost"`
	BufferItems int64 `yaml:"buffer_items" toml:"buffer_items"`
}

// OlricConfig either embeds an Olric node (Embedded) or joins a cluster through Addresses.
type OlricConfig struct {
	DMapName     string        `yaml:"dmap_name" toml:"dmap_name"`
	BindAddr     string        `yaml:"bind_addr" toml:"bind_addr"`
	Addresses    []string      `yaml:"addresses" toml:"addresses"`
	Peers        []string      `yaml:"peers" toml:"peers"`
	StartTimeout time.Duration `yaml:"start_timeout" toml:"start_timeout"`
	Embedded     bool          `yaml:"embedded" toml:"embedded"`
}

// GetMode returns the configured mode, defaulting to single.
func (c *Config) GetMode() Mode {
	if c.Mode == "" {
		return ModeSingle
	}
	return c.Mode
}

// Validate checks the section for the selected mode.
func (c *Config) Validate() error {
	switch c.GetMode() {
	case ModeSingle:
		r := c.Ristretto.withDefaults()
		if r.MaxCost <= 0 || r.NumCounters <= 0 {
			return errors.New("cache: ristretto.max_cost and ristretto.num_counters must be positive")
		}
	case ModeHA:
		if !c.Olric.Embedded && len(c.Olric.Addresses) == 0 {
			return errors.New("cache: olric.addresses required when not embedded")
		}
		if c.Olric.Embedded && c.Olric.BindAddr == "" {
			return errors.New("cache: olric.bind_addr required when embedded")
		}
	case ModeDisabled:
	default:
		return fmt.Errorf("cache: unknown mode %q", c.Mode)
	}
	return nil
}

// DefaultRistrettoConfig sizes the local cache for roughly 100K buckets.
func DefaultRistrettoConfig() RistrettoConfig {
	return RistrettoConfig{
		NumCounters: 1_000_000,
		MaxCost:     64 << 20,
		BufferItems: 64,
	}
}

func (r RistrettoConfig) withDefaults() RistrettoConfig {
	d := DefaultRistrettoConfig()
	if r.NumCounters == 0 {
		r.NumCounters = d.NumCounters
	}
	if r.MaxCost == 0 {
		r.MaxCost = d.MaxCost
	}
	if r.BufferItems <= 0 {
		r.BufferItems = d.BufferItems
	}
	return r
}

func (o *OlricConfig) dmapName() string {
	if o.DMapName == "" {
		return DefaultDMapName
	}
	return o.DMapName
}

func (o *OlricConfig) startTimeout() time.Duration {
	if o.StartTimeout <= 0 {
		return 10 * time.Second
	}
	return o.StartTimeout
}
