package orch

import (
	"context"
	"errors"

	"github.com/dkeye/CodeSync/internal/app/mesh"
	"github.com/dkeye/CodeSync/internal/core"
	"github.com/dkeye/CodeSync/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// ToggleMic turns the microphone on or off. Turning it on waits for the
// user-gated capture off-loop; a refusal is reported through View.MediaError
// and leaves text and whiteboard sync untouched. Toggling again while the
// capture is still pending turns it back off and discards the result.
func (s *Session) ToggleMic(ctx context.Context) {
	if !s.media.Reserve() {
		s.loop.Do(s.peers.DetachTrack)
		s.media.Release()
		return
	}
	go func() {
		track, err := s.media.Acquire(ctx)
		posted := s.loop.Post(func() {
			switch {
			case errors.Is(err, mesh.ErrAcquireAborted):
				log.Debug().Str("module", "app.orch").Msg("microphone toggled off before capture started")
			case err != nil:
				log.Warn().Err(err).Str("module", "app.orch").Msg("microphone unavailable")
				s.view.MediaError(err)
			case s.media.Track() != webrtc.TrackLocal(track):
				log.Debug().Str("module", "app.orch").Msg("microphone released before attach")
			default:
				s.peers.AttachTrack(track)
			}
		})
		if !posted && err == nil {
			// Session closed while the user was deciding.
			s.media.Release()
		}
	}()
}

// SetSpeaking announces the local speaking indicator to the session.
func (s *Session) SetSpeaking(speaking bool) {
	s.loop.Post(func() {
		self := s.tracker.Self()
		if self == "" {
			return
		}
		action := core.ActionStoppedSpeaking
		if speaking {
			action = core.ActionSpeaking
		}
		msg, err := core.NewMessage(action, core.PresencePayload{ConnectionID: self})
		if err == nil {
			err = s.relay.Send(msg)
		}
		if err != nil {
			log.Error().Err(err).Str("module", "app.orch").Msg("send speaking state")
		}
	})
}

// drainRemote consumes a peer's audio until the track ends. Playback is the
// renderer's concern; the headless client only counts packets.
func (s *Session) drainRemote(peer domain.ConnectionID, track *webrtc.TrackRemote) {
	go func() {
		logger := log.With().Str("module", "app.orch").Str("peer", string(peer)).Str("track_id", track.ID()).Logger()
		logger.Info().Str("codec", track.Codec().MimeType).Msg("remote audio started")
		packets := 0
		for {
			if _, _, err := track.ReadRTP(); err != nil {
				logger.Info().Err(err).Int("packets", packets).Msg("remote audio ended")
				return
			}
			packets++
		}
	}()
}
