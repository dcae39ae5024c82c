// Package roster tracks session membership and presence as reported by the relay.
package roster

import (
	"github.com/dkeye/CodeSync/internal/core"
	"github.com/dkeye/CodeSync/internal/domain"
	"github.com/rs/zerolog/log"
)

// Peers is the slice of the negotiator the tracker drives.
type Peers interface {
	Initiate(peer domain.ConnectionID)
	Teardown(peer domain.ConnectionID)
}

// Tracker holds the roster and speaking flags. It never infers membership:
// every join or leave replaces the roster with the relay's full list.
// Not safe for concurrent use; callers serialize on the session loop.
type Tracker struct {
	self     domain.ConnectionID
	roster   domain.Roster
	speaking map[domain.ConnectionID]bool

	peers    Peers
	onChange func(domain.Roster)
}

func NewTracker(peers Peers, onChange func(domain.Roster)) *Tracker {
	if onChange == nil {
		onChange = func(domain.Roster) {}
	}
	return &Tracker{
		speaking: make(map[domain.ConnectionID]bool),
		peers:    peers,
		onChange: onChange,
	}
}

// SetSelf records the id learned from WELCOME.
func (t *Tracker) SetSelf(id domain.ConnectionID) {
	t.self = id
	log.Info().Str("module", "app.roster").Str("sid", string(id)).Msg("self id assigned")
}

func (t *Tracker) Self() domain.ConnectionID { return t.self }

// HandleJoined applies USER_JOINED. Only the joiner calls out: on our own
// join confirmation we initiate toward everyone already present, and a later
// joiner is left to initiate toward us.
func (t *Tracker) HandleJoined(p core.MembershipPayload) {
	t.reset(p.Roster)
	logger := log.With().Str("module", "app.roster").Str("joined", string(p.ConnectionID)).Logger()

	if t.self == "" {
		logger.Warn().Msg("join before welcome, handshakes skipped")
		return
	}
	if p.ConnectionID != t.self {
		logger.Info().Str("username", p.Username).Msg("participant joined")
		return
	}
	for _, member := range p.Roster {
		if member.ID == t.self {
			continue
		}
		logger.Debug().Str("peer", string(member.ID)).Msg("initiating handshake")
		t.peers.Initiate(member.ID)
	}
}

// HandleLeft applies USER_LEFT and tears down the departed peer's connection.
func (t *Tracker) HandleLeft(p core.MembershipPayload) {
	if p.ConnectionID != "" && p.ConnectionID != t.self {
		t.peers.Teardown(p.ConnectionID)
		delete(t.speaking, p.ConnectionID)
	}
	log.Info().Str("module", "app.roster").Str("left", string(p.ConnectionID)).Str("username", p.Username).Msg("participant left")
	t.reset(p.Roster)
}

// SetSpeaking updates one participant's indicator; unknown ids are ignored.
func (t *Tracker) SetSpeaking(id domain.ConnectionID, speaking bool) {
	if !t.roster.Contains(id) {
		log.Debug().Str("module", "app.roster").Str("peer", string(id)).Msg("speaking update for unknown participant")
		return
	}
	if t.speaking[id] == speaking {
		return
	}
	if speaking {
		t.speaking[id] = true
	} else {
		delete(t.speaking, id)
	}
	t.onChange(t.Roster())
}

// Roster returns a copy with speaking flags applied.
func (t *Tracker) Roster() domain.Roster {
	out := t.roster.Clone()
	for i := range out {
		out[i].Speaking = t.speaking[out[i].ID]
	}
	return out
}

func (t *Tracker) reset(r domain.Roster) {
	t.roster = r.Clone()
	for id := range t.speaking {
		if !t.roster.Contains(id) {
			delete(t.speaking, id)
		}
	}
	t.onChange(t.Roster())
}
