package plugins

import (
	"context"
	"time"
)

// DefaultTimeout bounds a single plugin invocation when the invoker is built
// without an explicit timeout.
const DefaultTimeout = 30 * time.Second

// Invoker executes named plugins with a bounded per-invocation timeout and
// normalizes every failure into *Error.
type Invoker struct {
	Registry *Registry
	Timeout  time.Duration
}

// NewInvoker constructs an Invoker over the given registry.
func NewInvoker(reg *Registry, timeout time.Duration) *Invoker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Invoker{Registry: reg, Timeout: timeout}
}

// Invoke resolves and executes the named plugin for the given stage. The
// invocation is bounded by the configured timeout; a plugin that ignores its
// context is abandoned and the expiry surfaced as a *Error wrapping
// context.DeadlineExceeded. On any failure the returned error is a *Error
// carrying the plugin name and stage.
func (inv *Invoker) Invoke(ctx context.Context, name, stage, input string, config map[string]any) (string, error) {
	p, err := inv.Registry.Resolve(name, stage)
	if err != nil {
		return "", &Error{Plugin: name, Stage: stage, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, inv.Timeout)
	defer cancel()

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := p.Invoke(ctx, input, config)
		done <- result{out, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return "", &Error{Plugin: name, Stage: stage, Err: res.err}
		}
		return res.out, nil
	case <-ctx.Done():
		return "", &Error{Plugin: name, Stage: stage, Err: ctx.Err()}
	}
}
