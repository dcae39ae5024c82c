// Package orch wires the synchronization components to one relay connection
// and runs them on a single event loop.
package orch

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/CodeSync/internal/app/board"
	"github.com/dkeye/CodeSync/internal/app/mesh"
	"github.com/dkeye/CodeSync/internal/app/roster"
	"github.com/dkeye/CodeSync/internal/app/textsync"
	"github.com/dkeye/CodeSync/internal/core"
	"github.com/dkeye/CodeSync/internal/domain"
	"github.com/rs/zerolog/log"
)

// Relay is the signaling relay client as the session consumes it.
type Relay interface {
	core.Outbox
	// Messages is closed when the connection ends; Err then tells why.
	Messages() <-chan core.Message
	Err() error
	Close() error
}

// View is the rendering side. Callbacks run on the session loop and receive copies.
type View interface {
	RosterChanged(domain.Roster)
	DocumentChanged(domain.SharedDocument)
	BoardChanged([]domain.Element)
	MediaError(error)
	// Disconnected reports a transport failure. It is not called for Close.
	Disconnected(error)
}

type Config struct {
	Relay Relay
	Links core.LinkFactory
	Mic   mesh.Microphone
	View  View

	Debounce             time.Duration
	MaxPendingCandidates int
	// Scheduler overrides the loop-bound timer, for tests.
	Scheduler core.Scheduler
}

type Session struct {
	relay Relay
	view  View
	loop  *Loop
	media *mesh.LocalMedia

	tracker *roster.Tracker
	peers   *mesh.Negotiator
	text    *textsync.Synchronizer
	board   *board.Synchronizer

	started   atomic.Bool
	closeOnce sync.Once
	closed    chan struct{}
}

func NewSession(cfg Config) *Session {
	s := &Session{
		relay:  cfg.Relay,
		view:   cfg.View,
		loop:   NewLoop(256),
		media:  mesh.NewLocalMedia(cfg.Mic),
		closed: make(chan struct{}),
	}
	if s.view == nil {
		s.view = NopView{}
	}
	sched := cfg.Scheduler
	if sched == nil {
		sched = s.loop.Scheduler()
	}

	s.peers = mesh.NewNegotiator(mesh.Config{
		Self:                 s.self,
		Out:                  cfg.Relay,
		Links:                cfg.Links,
		Post:                 func(fn func()) { s.loop.Post(fn) },
		Track:                s.media.Track,
		MaxPendingCandidates: cfg.MaxPendingCandidates,
		OnRemoteTrack:        s.drainRemote,
	})
	s.tracker = roster.NewTracker(s.peers, s.view.RosterChanged)
	s.text = textsync.New(textsync.Config{
		Out:       cfg.Relay,
		Scheduler: sched,
		Debounce:  cfg.Debounce,
		OnChange:  s.view.DocumentChanged,
	})
	s.board = board.New(board.Config{
		Self:     s.self,
		Out:      cfg.Relay,
		OnChange: s.view.BoardChanged,
	})
	return s
}

func (s *Session) self() domain.ConnectionID { return s.tracker.Self() }

// Run drives the session until the relay connection ends or ctx is done.
func (s *Session) Run(ctx context.Context) error {
	// The loop outlives ctx so shutdown can still run on it.
	s.started.Store(true)
	go s.loop.Run(context.WithoutCancel(ctx))

	msgs := s.relay.Messages()
	for {
		select {
		case <-ctx.Done():
			s.Close()
			return ctx.Err()
		case <-s.closed:
			return nil
		case msg, ok := <-msgs:
			if !ok {
				err := s.relay.Err()
				s.shutdown(err)
				return err
			}
			s.loop.Post(func() { s.dispatch(msg) })
		}
	}
}

// Close ends the session: pending broadcasts are cancelled, every audio
// connection is closed, the microphone is released and the relay closed.
func (s *Session) Close() {
	s.shutdown(nil)
}

func (s *Session) shutdown(cause error) {
	s.closeOnce.Do(func() {
		teardown := func() {
			s.text.Stop()
			s.peers.CloseAll()
			if cause != nil {
				s.view.Disconnected(cause)
			}
		}
		if !s.started.Load() || !s.loop.Do(teardown) {
			teardown()
		}
		s.media.Release()
		if err := s.relay.Close(); err != nil {
			log.Warn().Err(err).Str("module", "app.orch").Msg("relay close")
		}
		s.loop.Stop()
		close(s.closed)
		log.Info().Str("module", "app.orch").Bool("transport_failure", cause != nil).Msg("session closed")
	})
}

// Done is closed after the session has shut down.
func (s *Session) Done() <-chan struct{} { return s.closed }

// EditText applies a local edit; the broadcast is debounced.
func (s *Session) EditText(text string) {
	s.loop.Post(func() { s.text.Edit(text) })
}

func (s *Session) SetLanguage(lang domain.Language) error {
	if _, err := domain.ParseLanguage(string(lang)); err != nil {
		return err
	}
	var err error
	s.loop.Do(func() { err = s.text.SetLanguage(lang) })
	return err
}

// Board runs fn against the whiteboard on the session loop.
func (s *Session) Board(fn func(b *board.Synchronizer)) {
	s.loop.Do(func() { fn(s.board) })
}

// Snapshot is a consistent read of the replicated state.
type Snapshot struct {
	Self        domain.ConnectionID
	Roster      domain.Roster
	Document    domain.SharedDocument
	Elements    []domain.Element
	Connections map[domain.ConnectionID]mesh.State
	MicOn       bool
}

func (s *Session) Snapshot() Snapshot {
	var snap Snapshot
	s.loop.Do(func() {
		snap = Snapshot{
			Self:        s.tracker.Self(),
			Roster:      s.tracker.Roster(),
			Document:    s.text.Document(),
			Elements:    s.board.Elements(),
			Connections: s.peers.Connections(),
		}
	})
	snap.MicOn = s.media.Active()
	return snap
}

// ExportSVG writes the current whiteboard as SVG.
func (s *Session) ExportSVG(w io.Writer) error {
	var elements []domain.Element
	s.loop.Do(func() { elements = s.board.Elements() })
	return board.WriteSVG(w, elements)
}

// NopView discards all notifications.
type NopView struct{}

func (NopView) RosterChanged(domain.Roster)           {}
func (NopView) DocumentChanged(domain.SharedDocument) {}
func (NopView) BoardChanged([]domain.Element)         {}
func (NopView) MediaError(error)                      {}
func (NopView) Disconnected(error)                    {}
