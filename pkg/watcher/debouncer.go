package watcher

import (
	"context"
	"time"

	"github.com/ritzau/navisys/pkg/logging"
)

// Debouncer collapses rapid change events into one, so a feed that
// rewrites the change file many times per second triggers one
// recomputation per quiet period (and at least one per maxWait).
type Debouncer struct {
	input       <-chan ChangeEvent
	output      chan ChangeEvent
	quietPeriod time.Duration
	maxWait     time.Duration
}

// NewDebouncer creates a new event debouncer
func NewDebouncer(input <-chan ChangeEvent, quietPeriod, maxWait time.Duration) *Debouncer {
	return &Debouncer{
		input:       input,
		output:      make(chan ChangeEvent, 10),
		quietPeriod: quietPeriod,
		maxWait:     maxWait,
	}
}

// Start begins processing events with debouncing
func (d *Debouncer) Start(ctx context.Context) {
	go d.run(ctx)
}

func (d *Debouncer) run(ctx context.Context) {
	defer close(d.output)

	var (
		latest  *ChangeEvent
		count   int
		quiet   <-chan time.Time
		maxWait <-chan time.Time
	)

	flush := func() {
		if latest != nil {
			logging.Debug("flushing debounced change events", "count", count, "type", latest.Type.String())
			select {
			case d.output <- *latest:
			case <-ctx.Done():
			}
		}
		latest, count = nil, 0
		quiet, maxWait = nil, nil
	}

	for {
		select {
		case <-ctx.Done():
			// The consumer is shutting down too; a pending event is dropped
			if latest != nil {
				logging.Debug("dropping debounced change events on shutdown", "count", count)
			}
			return

		case event, ok := <-d.input:
			if !ok {
				flush()
				return
			}

			// A remove followed by a create is still a reload; keep the
			// last event but never let a remove hide an earlier write.
			if latest == nil || event.Type != ChangeTypeRemove {
				latest = &event
			}
			count++

			quiet = time.After(d.quietPeriod)
			if maxWait == nil {
				maxWait = time.After(d.maxWait)
			}

		case <-quiet:
			flush()

		case <-maxWait:
			flush()
		}
	}
}

// Output returns the channel of debounced events
func (d *Debouncer) Output() <-chan ChangeEvent {
	return d.output
}
