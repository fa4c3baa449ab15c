// Package plugins defines the plugin invocation contract used by the
// processing orchestrator, a registry populated once at startup, and the
// built-in transform/distribute plugins.
//
// From the orchestrator's point of view an invocation is a pure function of
// (input, config): every call either returns a serializable output or a typed
// *Error, and never hangs past the invoker's timeout. Plugins must not share
// mutable state between steps.
package plugins

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownPlugin is returned when a plugin name cannot be resolved for the
// requested stage.
var ErrUnknownPlugin = errors.New("unknown plugin")

// Plugin is a named unit of work executed as one pipeline step.
type Plugin interface {
	// Name returns the registry name the plugin is resolved by.
	Name() string

	// Invoke executes the plugin against input with the given config blob and
	// returns the output. Implementations must honor ctx cancellation; the
	// invoker additionally guards against plugins that do not.
	Invoke(ctx context.Context, input string, config map[string]any) (string, error)
}

// Error is the structured failure recorded on a processing step: which plugin
// failed, at which stage, and the underlying cause. It is never thrown past
// the step boundary.
type Error struct {
	Plugin string
	Stage  string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("plugin %s (%s): %v", e.Plugin, e.Stage, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Err }

// Registry resolves plugin names to implementations per stage. It is
// populated at startup from static configuration and read-only afterwards;
// the mutex only guards against a misbehaving late Register.
type Registry struct {
	mu      sync.RWMutex
	byStage map[string]map[string]Plugin // stage -> name -> plugin
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byStage: make(map[string]map[string]Plugin)}
}

// Register makes p resolvable under its name for each of the given stages.
// Registering the same (stage, name) twice replaces the earlier entry.
func (r *Registry) Register(p Plugin, stages ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stage := range stages {
		m, ok := r.byStage[stage]
		if !ok {
			m = make(map[string]Plugin)
			r.byStage[stage] = m
		}
		m[p.Name()] = p
	}
}

// Resolve returns the plugin registered under name for stage, or
// ErrUnknownPlugin.
func (r *Registry) Resolve(name, stage string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.byStage[stage]; ok {
		if p, ok := m[name]; ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s (%s)", ErrUnknownPlugin, name, stage)
}
