// Package coretest provides hand-driven fakes of the core interfaces.
package coretest

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/dkeye/CodeSync/internal/core"
)

// Scheduler fires timers only when Advance moves its clock past them.
type Scheduler struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*timer
}

type timer struct {
	s       *Scheduler
	at      time.Duration
	fn      func()
	stopped bool
}

func (t *timer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (s *Scheduler) AfterFunc(d time.Duration, fn func()) core.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &timer{s: s, at: s.now + d, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

// Advance moves the clock forward and runs due timers in deadline order on
// the calling goroutine.
func (s *Scheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now += d
	var due []*timer
	rest := s.timers[:0]
	for _, t := range s.timers {
		switch {
		case t.stopped:
		case t.at <= s.now:
			t.stopped = true
			due = append(due, t)
		default:
			rest = append(rest, t)
		}
	}
	s.timers = rest
	s.mu.Unlock()

	for i := 1; i < len(due); i++ {
		for j := i; j > 0 && due[j].at < due[j-1].at; j-- {
			due[j], due[j-1] = due[j-1], due[j]
		}
	}
	for _, t := range due {
		t.fn()
	}
}

// Pending counts armed timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Outbox records sent messages. Err, when set, fails every Send.
type Outbox struct {
	mu   sync.Mutex
	sent []core.Message
	Err  error
}

func (o *Outbox) Send(m core.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return o.Err
	}
	o.sent = append(o.sent, m)
	return nil
}

func (o *Outbox) Sent() []core.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]core.Message(nil), o.sent...)
}

// Actions lists the sent actions in order.
func (o *Outbox) Actions() []core.Action {
	out := []core.Action{}
	for _, m := range o.Sent() {
		out = append(out, m.Action)
	}
	return out
}

// Last decodes the payload of the most recent message with the given action.
func (o *Outbox) Last(action core.Action, v any) bool {
	sent := o.Sent()
	for i := len(sent) - 1; i >= 0; i-- {
		if sent[i].Action == action {
			return json.Unmarshal(sent[i].Payload, v) == nil
		}
	}
	return false
}

func (o *Outbox) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = nil
}
