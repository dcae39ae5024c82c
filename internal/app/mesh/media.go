package mesh

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrPermissionDenied = errors.New("mesh: microphone permission denied")
	ErrAcquireAborted   = errors.New("mesh: microphone acquisition aborted")
)

const (
	opusClockRate   = 48000
	opusPayloadType = 111
)

// Microphone is the user-gated capture device.
type Microphone interface {
	// Open blocks until access is granted or refused.
	Open(ctx context.Context) (FrameSource, error)
}

// FrameSource yields encoded Opus frames, paced in real time.
type FrameSource interface {
	ReadFrame(ctx context.Context) (frame []byte, dur time.Duration, err error)
	Close() error
}

// LocalMedia is the process-wide microphone. It is acquired at most once at a
// time and shared read-only, as a single track, by every connection.
// Acquire runs off the session loop, so the struct is mutex guarded.
type LocalMedia struct {
	mic Microphone

	mu     sync.Mutex
	track  *webrtc.TrackLocalStaticRTP
	cancel context.CancelFunc
	done   chan struct{}
	// pending is set by Reserve until the reserved Acquire settles.
	pending bool
	// gen is bumped by Release; an Acquire started under an older gen is discarded.
	gen uint64
}

func NewLocalMedia(mic Microphone) *LocalMedia {
	return &LocalMedia{mic: mic}
}

// Reserve claims the microphone for an upcoming Acquire. It reports false if
// the microphone is already on or an acquisition is in flight.
func (m *LocalMedia) Reserve() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.track != nil || m.pending {
		return false
	}
	m.pending = true
	return true
}

// Acquire opens the microphone and starts pumping frames into a local track.
// A second call while active returns the existing track. If Release runs
// while the microphone is being opened, the result is discarded and
// ErrAcquireAborted is returned.
func (m *LocalMedia) Acquire(ctx context.Context) (*webrtc.TrackLocalStaticRTP, error) {
	m.mu.Lock()
	if m.track != nil {
		t := m.track
		m.pending = false
		m.mu.Unlock()
		return t, nil
	}
	gen := m.gen
	m.mu.Unlock()

	track, src, err := m.open(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		if src != nil {
			_ = src.Close()
		}
		return nil, ErrAcquireAborted
	}
	m.pending = false
	if err != nil {
		return nil, err
	}
	if m.track != nil {
		// Lost a race with a concurrent Acquire.
		_ = src.Close()
		return m.track, nil
	}
	pumpCtx, cancel := context.WithCancel(context.Background())
	m.track = track
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.pump(pumpCtx, src, track, m.done)
	log.Info().Str("module", "app.mesh").Str("track_id", track.ID()).Msg("microphone acquired")
	return track, nil
}

func (m *LocalMedia) open(ctx context.Context) (*webrtc.TrackLocalStaticRTP, FrameSource, error) {
	src, err := m.mic.Open(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("open microphone: %w", err)
	}
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: opusClockRate, Channels: 2},
		"audio", "codesync-"+uuid.NewString(),
	)
	if err != nil {
		_ = src.Close()
		return nil, nil, fmt.Errorf("create local track: %w", err)
	}
	return track, src, nil
}

// Track returns the active track or nil.
func (m *LocalMedia) Track() webrtc.TrackLocal {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.track == nil {
		return nil
	}
	return m.track
}

func (m *LocalMedia) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.track != nil
}

// Busy reports whether the microphone is on or being acquired.
func (m *LocalMedia) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.track != nil || m.pending
}

// Release stops the capture pump and aborts an acquisition in flight.
// Connections drop the track separately via Negotiator.DetachTrack. Safe to
// call when inactive.
func (m *LocalMedia) Release() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.track, m.cancel, m.done = nil, nil, nil
	m.pending = false
	m.gen++
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Info().Str("module", "app.mesh").Msg("microphone released")
}

func (m *LocalMedia) pump(ctx context.Context, src FrameSource, track *webrtc.TrackLocalStaticRTP, done chan struct{}) {
	defer close(done)
	defer func() { _ = src.Close() }()

	logger := log.With().Str("module", "app.mesh").Str("track_id", track.ID()).Logger()
	seq := uint16(rand.Uint32())
	ts := rand.Uint32()
	for {
		frame, dur, err := src.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error().Err(err).Msg("capture read error, stopping")
			}
			return
		}
		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    opusPayloadType,
				SequenceNumber: seq,
				Timestamp:      ts,
			},
			Payload: frame,
		}
		if err := track.WriteRTP(pkt); err != nil {
			logger.Debug().Err(err).Msg("write RTP")
		}
		seq++
		ts += uint32(dur.Seconds() * opusClockRate)
	}
}
