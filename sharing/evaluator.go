package sharing

import (
	"context"
	"time"

	"snapnow/services/window"

	"github.com/benbjohnson/clock"
)

// task is an owned background loop. Stop cancels it and waits for it to exit.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func startTask(parent context.Context, fn func(ctx context.Context)) *task {
	ctx, cancel := context.WithCancel(parent)
	t := &task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		fn(ctx)
	}()
	return t
}

func (t *task) Stop() {
	if t == nil {
		return
	}
	t.cancel()
	<-t.done
}

// evaluator re-checks the sharing window on a fixed interval.
type evaluator struct {
	clock    clock.Clock
	interval time.Duration
	evaluate func(now time.Time) (window.Window, error)
}

// run evaluates immediately and then every interval until ctx is done.
func (e *evaluator) run(ctx context.Context, report func(ctx context.Context, w window.Window, err error)) {
	ticker := e.clock.Ticker(e.interval)
	defer ticker.Stop()

	for {
		w, err := e.evaluate(e.clock.Now())
		report(ctx, w, err)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
