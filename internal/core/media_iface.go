package core

//go:generate mockgen -source=media_iface.go -destination=mocks/mock_media.go -package=mocks

import (
	"github.com/dkeye/CodeSync/internal/domain"
	"github.com/pion/webrtc/v4"
)

// PeerLink is the direct audio channel to one remote participant. It hides
// the callback-driven peer connection behind plain calls; the negotiation
// state machine lives with the caller.
type PeerLink interface {
	// CreateOffer generates and applies a local offer.
	CreateOffer() (webrtc.SessionDescription, error)
	// CreateAnswer generates and applies a local answer to the applied remote offer.
	CreateAnswer() (webrtc.SessionDescription, error)
	ApplyRemoteDescription(webrtc.SessionDescription) error
	// AddCandidate applies a remote ICE candidate. Candidates arriving before
	// the remote description are held by the link and applied afterwards.
	AddCandidate(webrtc.ICECandidateInit) error
	// SetTrack attaches the local audio track; nil detaches it.
	SetTrack(webrtc.TrackLocal) error
	Close() error
}

// LinkHandlers are invoked from transport goroutines; receivers must hop
// back onto their own loop before touching state.
type LinkHandlers struct {
	OnCandidate   func(webrtc.ICECandidateInit)
	OnRemoteTrack func(*webrtc.TrackRemote)
	OnFailed      func()
}

type LinkFactory interface {
	NewLink(peer domain.ConnectionID, h LinkHandlers) (PeerLink, error)
}
