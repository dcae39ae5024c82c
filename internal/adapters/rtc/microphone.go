package rtc

import (
	"context"
	"time"

	"github.com/dkeye/CodeSync/internal/app/mesh"
)

const frameDuration = 20 * time.Millisecond

// opusSilence is a single Opus frame that decodes to 20ms of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SilenceMicrophone always grants access and streams silent frames. It stands
// in for a capture device on headless hosts.
type SilenceMicrophone struct{}

func (SilenceMicrophone) Open(ctx context.Context) (mesh.FrameSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &silenceSource{ticker: time.NewTicker(frameDuration)}, nil
}

type silenceSource struct {
	ticker *time.Ticker
}

func (s *silenceSource) ReadFrame(ctx context.Context) ([]byte, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case <-s.ticker.C:
		return opusSilence, frameDuration, nil
	}
}

func (s *silenceSource) Close() error {
	s.ticker.Stop()
	return nil
}

// DeniedMicrophone refuses every request.
type DeniedMicrophone struct{}

func (DeniedMicrophone) Open(context.Context) (mesh.FrameSource, error) {
	return nil, mesh.ErrPermissionDenied
}

// NewMicrophone picks a device by config name; anything other than "denied"
// gets silence.
func NewMicrophone(name string) mesh.Microphone {
	if name == "denied" {
		return DeniedMicrophone{}
	}
	return SilenceMicrophone{}
}
