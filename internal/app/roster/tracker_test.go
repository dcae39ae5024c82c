package roster_test

import (
	"reflect"
	"testing"

	"github.com/dkeye/CodeSync/internal/app/roster"
	"github.com/dkeye/CodeSync/internal/core"
	"github.com/dkeye/CodeSync/internal/domain"
)

func eq(t *testing.T, got, want any) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

type peers struct {
	initiated []domain.ConnectionID
	torn      []domain.ConnectionID
}

func (p *peers) Initiate(id domain.ConnectionID) { p.initiated = append(p.initiated, id) }
func (p *peers) Teardown(id domain.ConnectionID) { p.torn = append(p.torn, id) }

var (
	alice = domain.Participant{ID: "a", Username: "alice"}
	bob   = domain.Participant{ID: "b", Username: "bob"}
	carol = domain.Participant{ID: "c", Username: "carol"}
)

func newTracker(self domain.ConnectionID) (*roster.Tracker, *peers, *[]domain.Roster) {
	p := &peers{}
	var seen []domain.Roster
	tr := roster.NewTracker(p, func(r domain.Roster) { seen = append(seen, r) })
	if self != "" {
		tr.SetSelf(self)
	}
	return tr, p, &seen
}

func TestOwnJoinInitiatesTowardExisting(t *testing.T) {
	tr, p, seen := newTracker("c")
	tr.HandleJoined(core.MembershipPayload{ConnectionID: "c", Username: "carol", Roster: domain.Roster{alice, bob, carol}})
	eq(t, p.initiated, []domain.ConnectionID{"a", "b"})
	eq(t, tr.Roster(), domain.Roster{alice, bob, carol})
	eq(t, len(*seen), 1)
}

func TestOtherJoinDoesNotInitiate(t *testing.T) {
	tr, p, _ := newTracker("a")
	tr.HandleJoined(core.MembershipPayload{ConnectionID: "b", Roster: domain.Roster{alice, bob}})
	eq(t, len(p.initiated), 0)
	eq(t, tr.Roster(), domain.Roster{alice, bob})
}

func TestJoinBeforeWelcomeSkipsHandshakes(t *testing.T) {
	tr, p, _ := newTracker("")
	tr.HandleJoined(core.MembershipPayload{ConnectionID: "b", Roster: domain.Roster{alice, bob}})
	eq(t, len(p.initiated), 0)
	eq(t, len(tr.Roster()), 2)
}

func TestLeaveTearsDownAndReplacesRoster(t *testing.T) {
	tr, p, _ := newTracker("a")
	tr.HandleJoined(core.MembershipPayload{ConnectionID: "a", Roster: domain.Roster{bob, alice}})
	tr.HandleLeft(core.MembershipPayload{ConnectionID: "b", Roster: domain.Roster{alice}})
	eq(t, p.torn, []domain.ConnectionID{"b"})
	eq(t, tr.Roster(), domain.Roster{alice})
}

func TestRosterIsReplacedNotMerged(t *testing.T) {
	tr, _, _ := newTracker("a")
	tr.HandleJoined(core.MembershipPayload{ConnectionID: "b", Roster: domain.Roster{alice, bob}})
	// The relay is authoritative even if its list disagrees with ours.
	tr.HandleJoined(core.MembershipPayload{ConnectionID: "c", Roster: domain.Roster{alice, carol}})
	eq(t, tr.Roster(), domain.Roster{alice, carol})
}

func TestSpeaking(t *testing.T) {
	tr, _, seen := newTracker("a")
	tr.HandleJoined(core.MembershipPayload{ConnectionID: "b", Roster: domain.Roster{alice, bob}})
	n := len(*seen)

	tr.SetSpeaking("b", true)
	eq(t, tr.Roster()[1].Speaking, true)
	tr.SetSpeaking("b", true)
	eq(t, len(*seen), n+1)

	tr.SetSpeaking("zed", true)
	eq(t, len(*seen), n+1)

	tr.HandleLeft(core.MembershipPayload{ConnectionID: "b", Roster: domain.Roster{alice}})
	tr.HandleJoined(core.MembershipPayload{ConnectionID: "b", Roster: domain.Roster{alice, bob}})
	eq(t, tr.Roster()[1].Speaking, false)
}

func TestRosterCopyIsIndependent(t *testing.T) {
	tr, _, _ := newTracker("a")
	tr.HandleJoined(core.MembershipPayload{ConnectionID: "a", Roster: domain.Roster{alice}})
	r := tr.Roster()
	r[0].Username = "mallory"
	eq(t, tr.Roster()[0].Username, "alice")
}
