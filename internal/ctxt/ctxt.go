// Package ctxt provides the root context shared by the upload,
// buffer-policy, and query/stats services.
//
// gviegas/scene's engine/internal/ctxt package holds the active
// driver.GPU behind unexported package-level vars, set once by an
// init-time loadDriver call: a process-wide singleton. Here the same
// "single active binding" pattern is re-architected as an explicit
// struct owned by a root context instead of a global, so that
// multiple runtimes (e.g. in tests) do not share state. Context is
// that struct: it is still a single mutable binding installed once
// per runtime, just not a package global.
package ctxt

import (
	"sync"

	"go.uber.org/zap"

	"github.com/panthuncia/openrendergraph/rhi"
)

// ResolveContext binds a ResourceRegistry and the epoch that handle
// resolution must match, installed per-frame by the frame driver so
// registry-handle upload targets can be dereferenced safely across
// resource rebuilds.
type ResolveContext struct {
	Registry rhi.ResourceRegistry
	Epoch    uint32
}

// Context is the root service context. It owns the rhi.Device binding
// and the installed ResolveContext; it is passed explicitly to every
// subsystem constructor rather than reached for through a package
// global.
type Context struct {
	mu      sync.RWMutex
	device  rhi.Device
	log     *zap.Logger
	resolve ResolveContext
}

// New creates a Context bound to device. If log is nil, a no-op
// logger is used: diagnostic logging is never load-bearing for
// correctness.
func New(device rhi.Device, log *zap.Logger) *Context {
	if log == nil {
		log = zap.NewNop()
	}
	return &Context{device: device, log: log}
}

// Device returns the bound rhi.Device.
func (c *Context) Device() rhi.Device { return c.device }

// Log returns the Context's logger.
func (c *Context) Log() *zap.Logger { return c.log }

// SetResolveContext installs the ResolveContext that registry-handle
// upload targets are dereferenced against for the current frame.
func (c *Context) SetResolveContext(rc ResolveContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolve = rc
}

// ResolveContext returns the currently installed ResolveContext.
func (c *Context) ResolveContext() ResolveContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resolve
}
