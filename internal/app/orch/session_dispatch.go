package orch

import (
	"github.com/dkeye/CodeSync/internal/core"
	"github.com/rs/zerolog/log"
)

// dispatch routes one inbound relay message. Undecodable or unknown messages
// are dropped; nothing here may stop the loop.
func (s *Session) dispatch(msg core.Message) {
	switch msg.Action {
	case core.ActionWelcome:
		if p, ok := decode[core.WelcomePayload](msg); ok {
			s.tracker.SetSelf(p.ConnectionID)
		}
	case core.ActionUserJoined:
		if p, ok := decode[core.MembershipPayload](msg); ok {
			s.tracker.HandleJoined(p)
		}
	case core.ActionUserLeft:
		if p, ok := decode[core.MembershipPayload](msg); ok {
			s.tracker.HandleLeft(p)
		}
	case core.ActionSpeaking, core.ActionStoppedSpeaking:
		if p, ok := decode[core.PresencePayload](msg); ok {
			s.tracker.SetSpeaking(p.ConnectionID, msg.Action == core.ActionSpeaking)
		}
	case core.ActionCodeChange:
		if p, ok := decode[core.CodePayload](msg); ok {
			s.text.HandleCode(p)
		}
	case core.ActionLanguageChange:
		if p, ok := decode[core.LanguagePayload](msg); ok {
			s.text.HandleLanguage(p)
		}
	case core.ActionOffer:
		if p, ok := decode[core.DescriptionPayload](msg); ok {
			s.peers.HandleOffer(p)
		}
	case core.ActionAnswer:
		if p, ok := decode[core.DescriptionPayload](msg); ok {
			s.peers.HandleAnswer(p)
		}
	case core.ActionICECandidate:
		if p, ok := decode[core.CandidatePayload](msg); ok {
			s.peers.HandleCandidate(p)
		}
	case core.ActionWhiteboardDraw:
		if p, ok := decode[core.DrawPayload](msg); ok {
			s.board.HandleDraw(p)
		}
	default:
		log.Debug().Str("module", "app.orch").Str("action", string(msg.Action)).Msg("unknown action")
	}
}

func decode[T any](msg core.Message) (T, bool) {
	var p T
	if err := msg.Decode(&p); err != nil {
		log.Debug().Err(err).Str("module", "app.orch").Msg("malformed message dropped")
		return p, false
	}
	return p, true
}
