package mesh

import (
	"github.com/dkeye/CodeSync/internal/core"
	"github.com/dkeye/CodeSync/internal/domain"
)

type State int32

const (
	StateIdle State = iota
	StateOffering
	StateAwaitingAnswer
	StateAnswering
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOffering:
		return "offering"
	case StateAwaitingAnswer:
		return "awaiting_answer"
	case StateAnswering:
		return "answering"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// carriesMedia reports whether a connection in s should hold the local track.
func (s State) carriesMedia() bool {
	return s == StateOffering || s == StateAwaitingAnswer || s == StateConnected
}

// Connection is the negotiator's record for one remote participant.
type Connection struct {
	Peer  domain.ConnectionID
	state State
	link  core.PeerLink
}

func (c *Connection) State() State { return c.state }
