// Package mesh negotiates one direct audio link per remote participant.
package mesh

import (
	"errors"
	"fmt"

	"github.com/dkeye/CodeSync/internal/core"
	"github.com/dkeye/CodeSync/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const DefaultMaxPendingCandidates = 64

var (
	ErrNoLink        = errors.New("mesh: link setup failed")
	ErrLinkFailed    = errors.New("mesh: link failed")
	ErrSignalFailure = errors.New("mesh: signaling send failed")
)

type Config struct {
	Self  func() domain.ConnectionID
	Out   core.Outbox
	Links core.LinkFactory
	// Post runs fn on the owner's loop. Link callbacks arrive on transport
	// goroutines and are hopped through it.
	Post func(fn func())
	// Track returns the local audio track, or nil while the microphone is off.
	Track func() webrtc.TrackLocal

	MaxPendingCandidates int
	OnFailure            func(peer domain.ConnectionID, err error)
	OnRemoteTrack        func(peer domain.ConnectionID, track *webrtc.TrackRemote)
}

// Negotiator runs the per-peer offer/answer state machines. All methods must
// be called from the owner's loop; it holds no locks.
type Negotiator struct {
	cfg      Config
	conns    map[domain.ConnectionID]*Connection
	pending  map[domain.ConnectionID][]webrtc.ICECandidateInit
	// departed holds one entry per peer that left during this session; relay
	// ids are never reused, so it is bounded by the peers seen and emptied by
	// CloseAll.
	departed map[domain.ConnectionID]struct{}
	closed   bool
}

func NewNegotiator(cfg Config) *Negotiator {
	if cfg.MaxPendingCandidates <= 0 {
		cfg.MaxPendingCandidates = DefaultMaxPendingCandidates
	}
	if cfg.Post == nil {
		cfg.Post = func(fn func()) { fn() }
	}
	if cfg.Track == nil {
		cfg.Track = func() webrtc.TrackLocal { return nil }
	}
	return &Negotiator{
		cfg:      cfg,
		conns:    make(map[domain.ConnectionID]*Connection),
		pending:  make(map[domain.ConnectionID][]webrtc.ICECandidateInit),
		departed: make(map[domain.ConnectionID]struct{}),
	}
}

// State returns the peer's connection state; absent peers report Closed.
func (n *Negotiator) State(peer domain.ConnectionID) State {
	if c, ok := n.conns[peer]; ok {
		return c.state
	}
	return StateClosed
}

// Connections returns a snapshot of peer -> state.
func (n *Negotiator) Connections() map[domain.ConnectionID]State {
	out := make(map[domain.ConnectionID]State, len(n.conns))
	for id, c := range n.conns {
		out[id] = c.state
	}
	return out
}

// Initiate starts the caller path toward peer.
func (n *Negotiator) Initiate(peer domain.ConnectionID) {
	logger := log.With().Str("module", "app.mesh").Str("peer", string(peer)).Logger()
	if n.gone(peer) {
		logger.Debug().Msg("initiate toward departed peer ignored")
		return
	}
	if c, ok := n.conns[peer]; ok {
		logger.Debug().Str("state", c.state.String()).Msg("connection exists, initiate ignored")
		return
	}

	c, err := n.open(peer)
	if err != nil {
		n.fail(peer, nil, err)
		return
	}
	offer, err := c.link.CreateOffer()
	if err != nil {
		n.fail(peer, c, fmt.Errorf("create offer: %w", err))
		return
	}
	c.state = StateOffering
	if err := n.send(core.ActionOffer, core.DescriptionPayload{PeerID: peer, SDP: offer}); err != nil {
		n.fail(peer, c, err)
		return
	}
	c.state = StateAwaitingAnswer
	logger.Info().Msg("offer sent")
}

// HandleOffer runs the callee path. An offer that collides with our own
// outstanding offer is resolved by id: the smaller id answers.
func (n *Negotiator) HandleOffer(p core.DescriptionPayload) {
	peer := p.FromID
	logger := log.With().Str("module", "app.mesh").Str("peer", string(peer)).Logger()
	if peer == "" {
		logger.Debug().Msg("offer without sender dropped")
		return
	}
	if n.gone(peer) {
		logger.Debug().Msg("offer from departed peer ignored")
		return
	}
	if c, ok := n.conns[peer]; ok {
		switch c.state {
		case StateOffering, StateAwaitingAnswer:
			if n.cfg.Self() >= peer {
				logger.Debug().Msg("offer collision, keeping caller role")
				return
			}
			logger.Info().Msg("offer collision, yielding to remote offer")
			n.close(c)
		default:
			logger.Debug().Str("state", c.state.String()).Msg("duplicate offer ignored")
			return
		}
	}

	c, err := n.open(peer)
	if err != nil {
		n.fail(peer, nil, err)
		return
	}
	c.state = StateAnswering
	if err := c.link.ApplyRemoteDescription(p.SDP); err != nil {
		n.fail(peer, c, fmt.Errorf("apply offer: %w", err))
		return
	}
	answer, err := c.link.CreateAnswer()
	if err != nil {
		n.fail(peer, c, fmt.Errorf("create answer: %w", err))
		return
	}
	if err := n.send(core.ActionAnswer, core.DescriptionPayload{PeerID: peer, SDP: answer}); err != nil {
		n.fail(peer, c, err)
		return
	}
	c.state = StateConnected
	logger.Info().Msg("answer sent")
}

// HandleAnswer completes the caller path. Answers in any state other than
// AwaitingAnswer are stale or duplicated and are dropped.
func (n *Negotiator) HandleAnswer(p core.DescriptionPayload) {
	logger := log.With().Str("module", "app.mesh").Str("peer", string(p.FromID)).Logger()
	c, ok := n.conns[p.FromID]
	if !ok || c.state != StateAwaitingAnswer {
		logger.Debug().Msg("unexpected answer ignored")
		return
	}
	if err := c.link.ApplyRemoteDescription(p.SDP); err != nil {
		n.fail(p.FromID, c, fmt.Errorf("apply answer: %w", err))
		return
	}
	c.state = StateConnected
	logger.Info().Msg("connected")
}

// HandleCandidate applies a remote candidate to the peer's connection in any
// live state, or holds it until the connection exists.
func (n *Negotiator) HandleCandidate(p core.CandidatePayload) {
	peer := p.FromID
	logger := log.With().Str("module", "app.mesh").Str("peer", string(peer)).Logger()
	if peer == "" {
		return
	}
	if n.gone(peer) {
		logger.Debug().Msg("candidate for departed peer ignored")
		return
	}
	if c, ok := n.conns[peer]; ok {
		if err := c.link.AddCandidate(p.Candidate); err != nil {
			logger.Warn().Err(err).Msg("add candidate")
		}
		return
	}
	if len(n.pending[peer]) >= n.cfg.MaxPendingCandidates {
		logger.Debug().Msg("candidate buffer full, dropping")
		return
	}
	n.pending[peer] = append(n.pending[peer], p.Candidate)
	logger.Debug().Int("buffered", len(n.pending[peer])).Msg("candidate buffered")
}

// Teardown closes the peer's connection for good. Repeated calls are no-ops.
func (n *Negotiator) Teardown(peer domain.ConnectionID) {
	if !n.closed {
		n.departed[peer] = struct{}{}
	}
	delete(n.pending, peer)
	if c, ok := n.conns[peer]; ok {
		n.close(c)
		log.Info().Str("module", "app.mesh").Str("peer", string(peer)).Msg("connection torn down")
	}
}

// CloseAll closes every connection, used on session shutdown. Afterwards
// every peer is treated as departed.
func (n *Negotiator) CloseAll() {
	n.closed = true
	for _, c := range n.conns {
		n.close(c)
	}
	clear(n.pending)
	clear(n.departed)
}

func (n *Negotiator) gone(peer domain.ConnectionID) bool {
	if n.closed {
		return true
	}
	_, ok := n.departed[peer]
	return ok
}

// AttachTrack hands the freshly acquired local track to every connection
// that is negotiating or connected.
func (n *Negotiator) AttachTrack(track webrtc.TrackLocal) {
	for _, c := range n.conns {
		if !c.state.carriesMedia() {
			continue
		}
		if err := c.link.SetTrack(track); err != nil {
			log.Warn().Err(err).Str("module", "app.mesh").Str("peer", string(c.Peer)).Msg("attach track")
		}
	}
}

// DetachTrack removes the local track from every connection.
func (n *Negotiator) DetachTrack() {
	for _, c := range n.conns {
		if err := c.link.SetTrack(nil); err != nil {
			log.Warn().Err(err).Str("module", "app.mesh").Str("peer", string(c.Peer)).Msg("detach track")
		}
	}
}

func (n *Negotiator) open(peer domain.ConnectionID) (*Connection, error) {
	c := &Connection{Peer: peer, state: StateIdle}
	link, err := n.cfg.Links.NewLink(peer, core.LinkHandlers{
		OnCandidate: func(ci webrtc.ICECandidateInit) {
			n.cfg.Post(func() { n.sendCandidate(c, ci) })
		},
		OnFailed: func() {
			n.cfg.Post(func() { n.linkFailed(c) })
		},
		OnRemoteTrack: func(track *webrtc.TrackRemote) {
			if n.cfg.OnRemoteTrack != nil {
				n.cfg.OnRemoteTrack(peer, track)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoLink, err)
	}
	c.link = link
	n.conns[peer] = c

	if track := n.cfg.Track(); track != nil {
		if err := link.SetTrack(track); err != nil {
			log.Warn().Err(err).Str("module", "app.mesh").Str("peer", string(peer)).Msg("attach track at creation")
		}
	}
	for _, ci := range n.pending[peer] {
		if err := link.AddCandidate(ci); err != nil {
			log.Warn().Err(err).Str("module", "app.mesh").Str("peer", string(peer)).Msg("replay candidate")
		}
	}
	delete(n.pending, peer)
	return c, nil
}

func (n *Negotiator) sendCandidate(c *Connection, ci webrtc.ICECandidateInit) {
	if c.state == StateClosed {
		return
	}
	if err := n.send(core.ActionICECandidate, core.CandidatePayload{PeerID: c.Peer, Candidate: ci}); err != nil {
		log.Warn().Err(err).Str("module", "app.mesh").Str("peer", string(c.Peer)).Msg("send candidate")
	}
}

func (n *Negotiator) linkFailed(c *Connection) {
	if c.state == StateClosed {
		return
	}
	n.fail(c.Peer, c, ErrLinkFailed)
}

func (n *Negotiator) send(action core.Action, payload any) error {
	msg, err := core.NewMessage(action, payload)
	if err != nil {
		return err
	}
	if err := n.cfg.Out.Send(msg); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSignalFailure, action, err)
	}
	return nil
}

// fail closes the connection without retrying. A later membership event may
// start a fresh handshake.
func (n *Negotiator) fail(peer domain.ConnectionID, c *Connection, err error) {
	log.Error().Err(err).Str("module", "app.mesh").Str("peer", string(peer)).Msg("negotiation failed")
	if c != nil {
		n.close(c)
	}
	if n.cfg.OnFailure != nil {
		n.cfg.OnFailure(peer, err)
	}
}

func (n *Negotiator) close(c *Connection) {
	if c.state == StateClosed {
		return
	}
	c.state = StateClosed
	if cur, ok := n.conns[c.Peer]; ok && cur == c {
		delete(n.conns, c.Peer)
	}
	if c.link != nil {
		if err := c.link.Close(); err != nil {
			log.Warn().Err(err).Str("module", "app.mesh").Str("peer", string(c.Peer)).Msg("close link")
		}
	}
}
