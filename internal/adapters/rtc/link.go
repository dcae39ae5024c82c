package rtc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/CodeSync/internal/core"
	"github.com/dkeye/CodeSync/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrNoTransceiver = errors.New("rtc: audio transceiver missing")

func DefaultWebRTCConfig() webrtc.Configuration {
	return WebRTCConfig([]string{"stun:stun.l.google.com:19302"})
}

func WebRTCConfig(iceServers []string) webrtc.Configuration {
	cfg := webrtc.Configuration{}
	if len(iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return cfg
}

// LinkFactory builds pion peer connections that share one API instance.
type LinkFactory struct {
	api *webrtc.API
	cfg webrtc.Configuration
}

func NewLinkFactory(cfg webrtc.Configuration) (*LinkFactory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	return &LinkFactory{api: webrtc.NewAPI(webrtc.WithMediaEngine(m)), cfg: cfg}, nil
}

func (f *LinkFactory) NewLink(peer domain.ConnectionID, h core.LinkHandlers) (core.PeerLink, error) {
	pc, err := f.api.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, err
	}
	// One sendrecv audio transceiver per link; mic toggles swap its track
	// without renegotiation.
	tr, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	})
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("add audio transceiver: %w", err)
	}
	l := &Link{pc: pc, tr: tr, idle: tr.Sender().Track(), peer: peer}
	l.wire(h)
	go l.readRTCP()
	return l, nil
}

// Link is one direct peer connection carrying a single audio transceiver.
type Link struct {
	pc   *webrtc.PeerConnection
	tr   *webrtc.RTPTransceiver
	// idle is the silent placeholder the transceiver was created with; it
	// stands in while the microphone is off.
	idle webrtc.TrackLocal
	peer domain.ConnectionID

	mu        sync.Mutex
	remoteSet bool
	held      []webrtc.ICECandidateInit
}

func (l *Link) wire(h core.LinkHandlers) {
	l.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && h.OnCandidate != nil {
			h.OnCandidate(cand.ToJSON())
		}
	})

	l.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "adapters.rtc").Str("peer", string(l.peer)).Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed && h.OnFailed != nil {
			h.OnFailed()
		}
	})

	l.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "adapters.rtc").
			Str("peer", string(l.peer)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if h.OnRemoteTrack != nil {
			h.OnRemoteTrack(track)
		}
	})
}

func (l *Link) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (l *Link) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

// ApplyRemoteDescription sets the remote side and flushes held candidates.
func (l *Link) ApplyRemoteDescription(sd webrtc.SessionDescription) error {
	if err := l.pc.SetRemoteDescription(sd); err != nil {
		return err
	}
	l.mu.Lock()
	l.remoteSet = true
	held := l.held
	l.held = nil
	l.mu.Unlock()

	for _, ci := range held {
		if err := l.pc.AddICECandidate(ci); err != nil {
			log.Warn().Err(err).Str("module", "adapters.rtc").Str("peer", string(l.peer)).Msg("apply held candidate")
		}
	}
	return nil
}

func (l *Link) AddCandidate(ci webrtc.ICECandidateInit) error {
	l.mu.Lock()
	if !l.remoteSet {
		l.held = append(l.held, ci)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()
	return l.pc.AddICECandidate(ci)
}

func (l *Link) SetTrack(track webrtc.TrackLocal) error {
	if l.tr == nil {
		return ErrNoTransceiver
	}
	if track == nil {
		track = l.idle
	}
	return l.tr.Sender().ReplaceTrack(track)
}

func (l *Link) Close() error {
	if err := l.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "adapters.rtc").Str("peer", string(l.peer)).Msg("close error")
		return err
	}
	log.Info().Str("module", "adapters.rtc").Str("peer", string(l.peer)).Msg("closed")
	return nil
}

// readRTCP drains RTCP arriving on the sender until the connection closes.
func (l *Link) readRTCP() {
	buf := make([]byte, 1500)
	for {
		if _, _, err := l.tr.Sender().Read(buf); err != nil {
			return
		}
	}
}
