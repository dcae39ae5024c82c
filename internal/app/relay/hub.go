// Package relay is the session fan-out server: it assigns connection ids,
// announces joins and leaves with the full roster, forwards negotiation
// messages to their target and broadcasts everything else.
package relay

import (
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/dkeye/CodeSync/internal/core"
	"github.com/dkeye/CodeSync/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrRateLimited = errors.New("relay: rate limited")
	ErrNoSession   = errors.New("relay: member not in session")
	ErrNoTarget    = errors.New("relay: target not in session")
)

type SessionInfo struct {
	ID          domain.SessionID `json:"id"`
	MemberCount int              `json:"member_count"`
}

type Hub struct {
	mu    sync.RWMutex
	rooms map[domain.SessionID]*Room

	policy  Policy
	limiter *RateLimiter
}

func NewHub(policy Policy, limiter *RateLimiter) *Hub {
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &Hub{
		rooms:   make(map[domain.SessionID]*Room),
		policy:  policy,
		limiter: limiter,
	}
}

// Join adds m to the session, creating it on first join. The joiner gets
// WELCOME first, then every member including the joiner gets USER_JOINED.
// The hub lock is held across the insert so a concurrent dropIfEmpty cannot
// orphan the room.
func (h *Hub) Join(sid domain.SessionID, m *Member) {
	welcome, err := encode(core.ActionWelcome, core.WelcomePayload{ConnectionID: m.ID})
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("encode")
		return
	}

	h.mu.Lock()
	room, ok := h.rooms[sid]
	if !ok {
		room = NewRoom(sid)
		h.rooms[sid] = room
		log.Info().Str("module", "relay").Str("session", string(sid)).Msg("session created")
	}
	res, err := room.Admit(m, welcome, func(roster domain.Roster) (core.Frame, error) {
		return encode(core.ActionUserJoined, core.MembershipPayload{
			ConnectionID: m.ID,
			Username:     m.Username,
			Roster:       roster,
		})
	})
	h.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("encode")
	}
	h.applyPolicy(room, res.Dropped)
}

// Leave removes a member and tells the rest. Unknown members are ignored, so
// a kick followed by the transport's own cleanup is harmless.
func (h *Hub) Leave(sid domain.SessionID, id domain.ConnectionID) {
	h.limiter.Forget(id)
	room, ok := h.get(sid)
	if !ok {
		return
	}
	_, res, ok := room.Depart(id, func(m *Member, roster domain.Roster) (core.Frame, error) {
		return encode(core.ActionUserLeft, core.MembershipPayload{
			ConnectionID: m.ID,
			Username:     m.Username,
			Roster:       roster,
		})
	})
	if !ok {
		return
	}
	h.dropIfEmpty(sid, room)
	h.applyPolicy(room, res.Dropped)
}

// Route handles one frame read from a member.
func (h *Hub) Route(sid domain.SessionID, from domain.ConnectionID, data []byte) error {
	if !h.limiter.Allow(from) {
		return ErrRateLimited
	}
	room, ok := h.get(sid)
	if !ok {
		return ErrNoSession
	}
	if _, ok := room.Get(from); !ok {
		return ErrNoSession
	}
	msg, err := core.ParseMessage(data)
	if err != nil {
		return err
	}
	if msg.Action.Targeted() {
		return h.forward(room, from, msg)
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.publish(room, frame)
	return nil
}

func (h *Hub) List() []SessionInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]SessionInfo, 0, len(h.rooms))
	for id, r := range h.rooms {
		out = append(out, SessionInfo{ID: id, MemberCount: r.Len()})
	}
	slices.SortFunc(out, func(a, b SessionInfo) int { return strings.Compare(string(a.ID), string(b.ID)) })
	return out
}

func (h *Hub) Members(sid domain.SessionID) (domain.Roster, bool) {
	room, ok := h.get(sid)
	if !ok {
		return nil, false
	}
	return room.Roster(), true
}

// forward delivers an offer, answer or candidate to the peer named in the
// payload, stamping the sender. Other payload fields pass through untouched.
func (h *Hub) forward(room *Room, from domain.ConnectionID, msg core.Message) error {
	var payload map[string]any
	if err := msg.Decode(&payload); err != nil {
		return err
	}
	target, _ := payload["socketId"].(string)
	dst, ok := room.Get(domain.ConnectionID(target))
	if !ok {
		log.Debug().Str("module", "relay").Str("action", string(msg.Action)).Str("target", target).Msg("target not in session")
		return ErrNoTarget
	}
	payload["fromSocketId"] = string(from)
	h.sendTo(room, dst, msg.Action, payload)
	return nil
}

func (h *Hub) sendTo(room *Room, m *Member, action core.Action, payload any) {
	frame, err := encode(action, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("encode")
		return
	}
	if err := m.Conn.TrySend(frame); err != nil {
		h.applyPolicy(room, []*Member{m})
	}
}

func (h *Hub) publish(room *Room, frame core.Frame) {
	res := room.Broadcast(frame)
	if len(res.Dropped) > 0 {
		h.applyPolicy(room, res.Dropped)
	}
}

func (h *Hub) applyPolicy(room *Room, slow []*Member) {
	for _, m := range slow {
		switch h.policy.OnBackPressure(room, m) {
		case KickMember:
			log.Warn().Str("module", "relay").Str("session", string(room.ID)).Str("sid", string(m.ID)).Msg("kicking slow member")
			m.Conn.Close()
			h.Leave(room.ID, m.ID)
		case DropFrame, NoAction:
		}
	}
}

func (h *Hub) get(sid domain.SessionID) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[sid]
	return r, ok
}

func (h *Hub) dropIfEmpty(sid domain.SessionID, room *Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.rooms[sid]; ok && cur == room && room.Len() == 0 {
		delete(h.rooms, sid)
		log.Info().Str("module", "relay").Str("session", string(sid)).Msg("session destroyed")
	}
}

func encode(action core.Action, payload any) (core.Frame, error) {
	msg, err := core.NewMessage(action, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}
