package telemetry

import (
	"context"
	"time"
)

// Recorder is the metrics capability handed to services. Implementations
// must be safe for concurrent use.
type Recorder interface {
	IncCounter(ctx context.Context, name string)
	ObserveDuration(ctx context.Context, name string, d time.Duration)
}

// Nop discards everything.
type Nop struct{}

func (Nop) IncCounter(context.Context, string) {}

func (Nop) ObserveDuration(context.Context, string, time.Duration) {}

var _ Recorder = (*Provider)(nil)
