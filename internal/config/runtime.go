package config

import "sync/atomic"

// Runtime holds the current configuration for lock-free reads. The watcher
// stores each reloaded config; components call Get per request so
// in-flight requests finish on the config they started with.
type Runtime struct {
	ptr     atomic.Pointer[Config]
	reloads atomic.Int64
}

// NewRuntime creates a Runtime holding initial.
func NewRuntime(initial *Config) *Runtime {
	r := &Runtime{}
	r.ptr.Store(initial)
	return r
}

// Get returns the current configuration.
func (r *Runtime) Get() *Config {
	return r.ptr.Load()
}

// Store swaps in cfg.
func (r *Runtime) Store(cfg *Config) {
	r.ptr.Store(cfg)
	r.reloads.Add(1)
}

// Reloads counts Store calls since creation.
func (r *Runtime) Reloads() int64 {
	return r.reloads.Load()
}

var _ RuntimeConfig = (*Runtime)(nil)
