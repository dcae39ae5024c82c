package orch

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/CodeSync/internal/core"
	"github.com/rs/zerolog/log"
)

// Loop serializes every state mutation of a session onto one goroutine:
// relay messages, user commands, timer firings and media results.
type Loop struct {
	tasks chan func()
	quit  chan struct{}
	once  sync.Once
}

func NewLoop(buffer int) *Loop {
	return &Loop{
		tasks: make(chan func(), buffer),
		quit:  make(chan struct{}),
	}
}

// Run executes posted tasks until ctx is done or Stop is called.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "app.orch").Msg("loop ctx done")
			l.Stop()
			return
		case <-l.quit:
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Post enqueues fn. It reports false once the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.quit:
		return false
	}
}

// Do runs fn on the loop and waits for it. Must not be called from the loop.
func (l *Loop) Do(fn func()) bool {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return false
	}
	select {
	case <-done:
		return true
	case <-l.quit:
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
}

func (l *Loop) Stop() {
	l.once.Do(func() { close(l.quit) })
}

// Scheduler returns a core.Scheduler whose callbacks run on the loop.
func (l *Loop) Scheduler() core.Scheduler { return loopScheduler{l} }

type loopScheduler struct{ l *Loop }

func (s loopScheduler) AfterFunc(d time.Duration, fn func()) core.Timer {
	return time.AfterFunc(d, func() { s.l.Post(fn) })
}
