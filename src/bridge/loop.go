package bridge

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jinjor/rtsynth/src/rt"
)

// DefaultPollInterval is the pause between two iterations of a bridge loop.
const DefaultPollInterval = 5 * time.Millisecond

// Options configures a bridge thread.
type Options struct {
	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration
	// Scheduler raises the bridge thread to its realtime priority.
	// nil keeps the default scheduling.
	Scheduler *rt.Scheduler
}

func (o Options) pollInterval() time.Duration {
	if o.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return o.PollInterval
}

// ----- Loop ----- //

// loop is the STOPPED/RUNNING state machine shared by both bridges.
// Stop is cooperative: the goroutine notices it at the top of its next
// iteration, so it may run one more body+sleep after Stop returns.
// A run started after Stop waits for the previous run to exit before its
// first body, so two bodies never overlap.
type loop struct {
	name string
	role rt.Role
	opts Options
	body func()

	mu   sync.Mutex
	stop chan struct{} // nil while stopped
	done chan struct{}
	runs int
}

func newLoop(name string, role rt.Role, opts Options, body func()) *loop {
	return &loop{
		name: name,
		role: role,
		opts: opts,
		body: body,
	}
}

// start returns false if the loop is already running.
func (l *loop) start(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stop != nil {
		return false
	}
	prev := l.done
	stop := make(chan struct{})
	done := make(chan struct{})
	l.stop = stop
	l.done = done
	l.runs++
	go l.run(ctx, prev, stop, done)
	return true
}

// halt returns false if the loop was not running.
func (l *loop) halt() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stop == nil {
		return false
	}
	close(l.stop)
	l.stop = nil
	return true
}

func (l *loop) running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stop != nil
}

// wait blocks until the most recent run has exited.
func (l *loop) wait() {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (l *loop) run(ctx context.Context, prev <-chan struct{}, stop chan struct{}, done chan struct{}) {
	defer close(done)
	if prev != nil {
		<-prev
	}
	select {
	case <-stop:
		return
	default:
	}
	release, err := l.opts.Scheduler.Enter(l.role)
	if err != nil {
		log.Printf("%s: running without realtime priority: %v\n", l.name, err)
	} else if l.opts.Scheduler != nil {
		log.Printf("%s: priority %d\n", l.name, l.opts.Scheduler.Priority(l.role))
	}
	defer release()
	log.Printf("%s: start\n", l.name)
	defer log.Printf("%s: stopped\n", l.name)

	timer := time.NewTimer(l.opts.pollInterval())
	defer timer.Stop()
	for {
		select {
		case <-stop:
			return
		default:
		}
		l.body()
		timer.Reset(l.opts.pollInterval())
		select {
		case <-stop:
			return
		case <-ctx.Done():
			l.mu.Lock()
			if l.stop == stop {
				l.stop = nil
			}
			l.mu.Unlock()
			return
		case <-timer.C:
		}
	}
}
