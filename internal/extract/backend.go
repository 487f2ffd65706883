package extract

import (
	"context"
	"time"
)

// Backend is a text-generation service. It receives a prompt and returns free
// text that may or may not be JSON. Any error, including a timeout, is a
// transport failure; implementations own any retrying of transient faults.
type Backend interface {
	Send(ctx context.Context, prompt string, timeout time.Duration) (string, error)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, prompt string, timeout time.Duration) (string, error)

// Send calls f.
func (f BackendFunc) Send(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	return f(ctx, prompt, timeout)
}
