package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dotsetgreg/dotfuzz/pkg/providers"
)

// DefaultProbeTimeout bounds Probe when the caller passes no timeout.
const DefaultProbeTimeout = 10 * time.Second

// ErrUnreachable means the text-generation provider failed the startup probe.
var ErrUnreachable = errors.New("text generation provider unreachable")

// Probe sends a one-token request. Failure is final; callers do not retry.
func Probe(ctx context.Context, provider providers.Completer, timeout time.Duration) error {
	if provider == nil {
		return fmt.Errorf("%w: no provider configured", ErrUnreachable)
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := provider.Complete(ctx, providers.Request{
		Messages:  []providers.Message{{Role: "user", Content: "Hi"}},
		MaxTokens: 1,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return nil
}
