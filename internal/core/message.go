package core

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/CodeSync/internal/domain"
	"github.com/pion/webrtc/v4"
)

type Action string

const (
	ActionWelcome         Action = "WELCOME"
	ActionUserJoined      Action = "USER_JOINED"
	ActionUserLeft        Action = "USER_LEFT"
	ActionCodeChange      Action = "CODE_CHANGE"
	ActionLanguageChange  Action = "LANGUAGE_CHANGE"
	ActionOffer           Action = "WEBRTC_OFFER"
	ActionAnswer          Action = "WEBRTC_ANSWER"
	ActionICECandidate    Action = "WEBRTC_ICE_CANDIDATE"
	ActionSpeaking        Action = "USER_SPEAKING"
	ActionStoppedSpeaking Action = "USER_STOPPED_SPEAKING"
	ActionWhiteboardDraw  Action = "WHITEBOARD_DRAW"
)

// Targeted reports whether the relay forwards the action to a single peer
// instead of fanning it out to the whole session.
func (a Action) Targeted() bool {
	return a == ActionOffer || a == ActionAnswer || a == ActionICECandidate
}

// Message is the relay envelope. Payload stays raw until a consumer decodes it.
type Message struct {
	Action  Action          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewMessage(action Action, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", action, err)
	}
	return Message{Action: action, Payload: raw}, nil
}

func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("decode %s: empty payload", m.Action)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s: %w", m.Action, err)
	}
	return nil
}

func ParseMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("parse envelope: %w", err)
	}
	if m.Action == "" {
		return Message{}, fmt.Errorf("parse envelope: missing action")
	}
	return m, nil
}

type WelcomePayload struct {
	ConnectionID domain.ConnectionID `json:"socketId"`
}

// MembershipPayload carries USER_JOINED and USER_LEFT. Roster is always the
// relay's full member list after the change.
type MembershipPayload struct {
	ConnectionID domain.ConnectionID `json:"socketId"`
	Username     string              `json:"username"`
	Roster       domain.Roster       `json:"clients"`
}

type CodePayload struct {
	Text string `json:"code"`
}

type LanguagePayload struct {
	Language string `json:"language"`
}

// PresencePayload carries the speaking indicator.
type PresencePayload struct {
	ConnectionID domain.ConnectionID `json:"socketId"`
}

// DescriptionPayload is an offer or an answer. PeerID addresses the target on
// the way out; the relay stamps FromID on the way in.
type DescriptionPayload struct {
	PeerID domain.ConnectionID       `json:"socketId,omitempty"`
	FromID domain.ConnectionID       `json:"fromSocketId,omitempty"`
	SDP    webrtc.SessionDescription `json:"sdp"`
}

type CandidatePayload struct {
	PeerID    domain.ConnectionID     `json:"socketId,omitempty"`
	FromID    domain.ConnectionID     `json:"fromSocketId,omitempty"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// DrawPayload is a full whiteboard state. Origin and Seq version the state so
// receivers can recognize their own broadcasts coming back.
type DrawPayload struct {
	Elements []domain.Element   `json:"elements"`
	Origin   domain.ConnectionID `json:"origin,omitempty"`
	Seq      uint64              `json:"seq,omitempty"`
}
