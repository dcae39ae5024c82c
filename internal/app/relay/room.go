package relay

import (
	"sync"

	"github.com/dkeye/CodeSync/internal/core"
	"github.com/dkeye/CodeSync/internal/domain"
	"github.com/rs/zerolog/log"
)

// Member binds a relay-assigned identity to its transport endpoint.
type Member struct {
	ID       domain.ConnectionID
	Username string
	Conn     core.SignalConnection
}

// PublishResult reports delivery stats and backpressure to the hub.
type PublishResult struct {
	SentTo  int
	Dropped []*Member
}

// Room is a threadsafe session member set kept in join order.
// It never closes adapter-owned resources.
type Room struct {
	ID domain.SessionID

	mu      sync.RWMutex
	order   []domain.ConnectionID
	members map[domain.ConnectionID]*Member
}

func NewRoom(id domain.SessionID) *Room {
	return &Room{ID: id, members: make(map[domain.ConnectionID]*Member)}
}

// Admit adds m and, without releasing the room, sends welcome to m and the
// announcement built from the new roster to every member. Membership frames
// therefore reach each member in roster order, never with a stale snapshot.
func (r *Room) Admit(m *Member, welcome core.Frame, announce func(domain.Roster) (core.Frame, error)) (PublishResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[m.ID]; !ok {
		r.order = append(r.order, m.ID)
	}
	r.members[m.ID] = m
	log.Info().Str("module", "relay").Str("session", string(r.ID)).Str("sid", string(m.ID)).Msg("member added")

	frame, err := announce(r.rosterLocked())
	if err != nil {
		return PublishResult{}, err
	}
	if err := m.Conn.TrySend(welcome); err != nil {
		res := r.broadcastLocked(frame, m)
		res.Dropped = append(res.Dropped, m)
		return res, nil
	}
	return r.broadcastLocked(frame, nil), nil
}

// Depart removes a member and announces the remaining roster to the rest
// under the same lock. It reports false if id was not a member.
func (r *Room) Depart(id domain.ConnectionID, announce func(*Member, domain.Roster) (core.Frame, error)) (*Member, PublishResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok {
		return nil, PublishResult{}, false
	}
	delete(r.members, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	log.Info().Str("module", "relay").Str("session", string(r.ID)).Str("sid", string(id)).Msg("member removed")

	if len(r.order) == 0 {
		return m, PublishResult{}, true
	}
	frame, err := announce(m, r.rosterLocked())
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("encode")
		return m, PublishResult{}, true
	}
	return m, r.broadcastLocked(frame, nil), true
}

func (r *Room) Get(id domain.ConnectionID) (*Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[id]
	return m, ok
}

func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (r *Room) Roster() domain.Roster {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rosterLocked()
}

// Broadcast sends frame to every member, sender included.
func (r *Room) Broadcast(frame core.Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.broadcastLocked(frame, nil)
}

// broadcastLocked sends to every member except skip.
func (r *Room) broadcastLocked(frame core.Frame, skip *Member) PublishResult {
	res := PublishResult{}
	for _, id := range r.order {
		m := r.members[id]
		if m == skip {
			continue
		}
		if err := m.Conn.TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "relay").Str("session", string(r.ID)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *Room) rosterLocked() domain.Roster {
	out := make(domain.Roster, 0, len(r.order))
	for _, id := range r.order {
		m := r.members[id]
		out = append(out, domain.Participant{ID: m.ID, Username: m.Username})
	}
	return out
}
