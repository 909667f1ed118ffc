package watcher

import (
	"context"
	"time"

	"depsentry/pkg/logging"
)

// Debouncer batches rapid file system events to avoid excessive re-audits
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

// run accumulates events, emitting once the input has been quiet for
// quietPeriod or maxWait has elapsed since the first accumulated event
func (d *Debouncer) run(ctx context.Context) {
	var (
		quiet       *time.Timer
		maxWait     *time.Timer
		accumulated []string
	)

	timerC := func(t *time.Timer) <-chan time.Time {
		if t != nil {
			return t.C
		}
		return nil
	}

	flush := func() {
		if quiet != nil {
			quiet.Stop()
			quiet = nil
		}
		if maxWait != nil {
			maxWait.Stop()
			maxWait = nil
		}
		if len(accumulated) == 0 {
			return
		}

		logging.Debug("flushing accumulated change events", "count", len(accumulated))
		d.output <- ChangeEvent{Paths: accumulated, Timestamp: time.Now()}
		accumulated = nil
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			close(d.output)
			return

		case event, ok := <-d.input:
			if !ok {
				flush()
				close(d.output)
				return
			}

			accumulated = append(accumulated, event.Paths...)

			if quiet == nil {
				quiet = time.NewTimer(d.quietPeriod)
			} else {
				quiet.Reset(d.quietPeriod)
			}
			if maxWait == nil {
				maxWait = time.NewTimer(d.maxWait)
			}

		case <-timerC(quiet):
			flush()

		case <-timerC(maxWait):
			flush()
		}
	}
}

// Output returns the channel of debounced events
func (d *Debouncer) Output() <-chan ChangeEvent {
	return d.output
}
