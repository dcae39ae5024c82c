package orch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/CodeSync/internal/app/board"
	"github.com/dkeye/CodeSync/internal/app/mesh"
	"github.com/dkeye/CodeSync/internal/core"
	"github.com/dkeye/CodeSync/internal/core/coretest"
	"github.com/dkeye/CodeSync/internal/domain"
	"github.com/pion/webrtc/v4"
)

type fakeRelay struct {
	coretest.Outbox
	in     chan core.Message
	err    error
	mu     sync.Mutex
	closed bool
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{in: make(chan core.Message, 16)}
}

func (r *fakeRelay) Messages() <-chan core.Message { return r.in }
func (r *fakeRelay) Err() error                    { return r.err }

func (r *fakeRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeRelay) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *fakeRelay) push(t *testing.T, action core.Action, payload any) {
	t.Helper()
	msg, err := core.NewMessage(action, payload)
	if err != nil {
		t.Fatal(err)
	}
	r.in <- msg
}

type fakeLink struct {
	mu     sync.Mutex
	tracks []webrtc.TrackLocal
	closed bool
}

func (l *fakeLink) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "o"}, nil
}

func (l *fakeLink) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "a"}, nil
}

func (l *fakeLink) ApplyRemoteDescription(webrtc.SessionDescription) error { return nil }
func (l *fakeLink) AddCandidate(webrtc.ICECandidateInit) error             { return nil }

func (l *fakeLink) SetTrack(tr webrtc.TrackLocal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tracks = append(l.tracks, tr)
	return nil
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakeLink) state() (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tracks), l.closed
}

type fakeLinks struct {
	mu    sync.Mutex
	links map[domain.ConnectionID]*fakeLink
}

func (f *fakeLinks) NewLink(peer domain.ConnectionID, _ core.LinkHandlers) (core.PeerLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.links == nil {
		f.links = make(map[domain.ConnectionID]*fakeLink)
	}
	l := &fakeLink{}
	f.links[peer] = l
	return l, nil
}

func (f *fakeLinks) get(peer domain.ConnectionID) *fakeLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.links[peer]
}

type silentSource struct{}

func (silentSource) ReadFrame(ctx context.Context) ([]byte, time.Duration, error) {
	<-ctx.Done()
	return nil, 0, ctx.Err()
}
func (silentSource) Close() error { return nil }

type mic struct{ err error }

func (m mic) Open(context.Context) (mesh.FrameSource, error) {
	if m.err != nil {
		return nil, m.err
	}
	return silentSource{}, nil
}

// gatedMic holds Open until grant is closed.
type gatedMic struct {
	opened chan struct{}
	grant  chan struct{}
	opens  atomic.Int32
}

func (m *gatedMic) Open(ctx context.Context) (mesh.FrameSource, error) {
	m.opens.Add(1)
	select {
	case m.opened <- struct{}{}:
	default:
	}
	select {
	case <-m.grant:
		return silentSource{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type recView struct {
	mu           sync.Mutex
	rosters      []domain.Roster
	docs         []domain.SharedDocument
	boards       [][]domain.Element
	mediaErrs    []error
	disconnected []error
}

func (v *recView) RosterChanged(r domain.Roster) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rosters = append(v.rosters, r)
}

func (v *recView) DocumentChanged(d domain.SharedDocument) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.docs = append(v.docs, d)
}

func (v *recView) BoardChanged(els []domain.Element) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.boards = append(v.boards, els)
}

func (v *recView) MediaError(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.mediaErrs = append(v.mediaErrs, err)
}

func (v *recView) Disconnected(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.disconnected = append(v.disconnected, err)
}

func (v *recView) counts() (docs, mediaErrs, disconnected int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.docs), len(v.mediaErrs), len(v.disconnected)
}

type harness struct {
	relay *fakeRelay
	links *fakeLinks
	view  *recView
	clock *coretest.Scheduler
	s     *Session
	done  chan error
}

func start(t *testing.T, m mesh.Microphone) *harness {
	t.Helper()
	h := &harness{
		relay: newFakeRelay(),
		links: &fakeLinks{},
		view:  &recView{},
		clock: &coretest.Scheduler{},
		done:  make(chan error, 1),
	}
	h.s = NewSession(Config{
		Relay:     h.relay,
		Links:     h.links,
		Mic:       m,
		View:      h.view,
		Debounce:  300 * time.Millisecond,
		Scheduler: h.clock,
	})
	go func() { h.done <- h.s.Run(context.Background()) }()
	t.Cleanup(h.s.Close)
	return h
}

// join plays WELCOME and our own USER_JOINED with the given others present.
func (h *harness) join(t *testing.T, self domain.ConnectionID, others ...domain.Participant) {
	t.Helper()
	h.relay.push(t, core.ActionWelcome, core.WelcomePayload{ConnectionID: self})
	roster := append(domain.Roster{}, others...)
	roster = append(roster, domain.Participant{ID: self, Username: string(self)})
	h.relay.push(t, core.ActionUserJoined, core.MembershipPayload{ConnectionID: self, Username: string(self), Roster: roster})
	eventually(t, func() bool { return len(h.s.Snapshot().Roster) == len(roster) })
}

// advance moves the fake clock on the session loop.
func (h *harness) advance(d time.Duration) {
	h.s.loop.Do(func() { h.clock.Advance(d) })
}

func TestSessionJoinInitiatesTowardExisting(t *testing.T) {
	h := start(t, mic{})
	h.join(t, "c",
		domain.Participant{ID: "a", Username: "alice"},
		domain.Participant{ID: "b", Username: "bob"})

	snap := h.s.Snapshot()
	eq(t, snap.Self, domain.ConnectionID("c"))
	eq(t, snap.Connections, map[domain.ConnectionID]mesh.State{
		"a": mesh.StateAwaitingAnswer,
		"b": mesh.StateAwaitingAnswer,
	})
	eq(t, h.relay.Actions(), []core.Action{core.ActionOffer, core.ActionOffer})
}

func TestSessionLeaveTearsDown(t *testing.T) {
	h := start(t, mic{})
	h.join(t, "c", domain.Participant{ID: "a", Username: "alice"})
	h.relay.push(t, core.ActionUserLeft, core.MembershipPayload{
		ConnectionID: "a", Username: "alice",
		Roster: domain.Roster{{ID: "c", Username: "c"}},
	})
	eventually(t, func() bool { return len(h.s.Snapshot().Roster) == 1 })
	_, closed := h.links.get("a").state()
	eq(t, closed, true)
	eq(t, len(h.s.Snapshot().Connections), 0)
}

func TestSessionTextDebounceAndEcho(t *testing.T) {
	h := start(t, mic{})
	h.join(t, "a")

	for _, s := range []string{"f", "fo", "foo"} {
		h.s.EditText(s)
	}
	h.advance(100 * time.Millisecond)
	eq(t, h.relay.Actions(), []core.Action{})
	h.advance(300 * time.Millisecond)
	var p core.CodePayload
	eq(t, h.relay.Last(core.ActionCodeChange, &p), true)
	eq(t, p.Text, "foo")

	// The relay echoes to the sender; nothing changes.
	h.relay.push(t, core.ActionCodeChange, core.CodePayload{Text: "foo"})
	h.relay.push(t, core.ActionCodeChange, core.CodePayload{Text: "bar"})
	eventually(t, func() bool { return h.s.Snapshot().Document.Text == "bar" })
	docs, _, _ := h.view.counts()
	eq(t, docs, 1)
}

func TestSessionLanguage(t *testing.T) {
	h := start(t, mic{})
	h.join(t, "a")
	if err := h.s.SetLanguage(domain.LangGo); err != nil {
		t.Fatal(err)
	}
	eq(t, h.s.Snapshot().Document.Language, domain.LangGo)
	eq(t, errors.Is(h.s.SetLanguage("pascal"), domain.ErrUnknownLanguage), true)

	h.relay.push(t, core.ActionLanguageChange, core.LanguagePayload{Language: "css"})
	eventually(t, func() bool { return h.s.Snapshot().Document.Language == domain.LangCSS })
}

func TestSessionBoardAndSVG(t *testing.T) {
	h := start(t, mic{})
	h.join(t, "a")
	h.s.Board(func(b *board.Synchronizer) {
		if _, err := b.Add(domain.Element{Kind: domain.KindRect, X: 1, Y: 1, Width: 5, Height: 5}); err != nil {
			t.Error(err)
		}
	})
	var p core.DrawPayload
	eq(t, h.relay.Last(core.ActionWhiteboardDraw, &p), true)
	eq(t, p.Origin, domain.ConnectionID("a"))

	// Our own broadcast echoed back is ignored; a remote state replaces ours.
	h.relay.push(t, core.ActionWhiteboardDraw, p)
	h.relay.push(t, core.ActionWhiteboardDraw, core.DrawPayload{Origin: "b", Seq: 1, Elements: []domain.Element{
		{ID: "r", Kind: domain.KindCircle, CX: 5, CY: 5, R: 2},
	}})
	eventually(t, func() bool {
		els := h.s.Snapshot().Elements
		return len(els) == 1 && els[0].ID == "r"
	})

	var buf bytes.Buffer
	if err := h.s.ExportSVG(&buf); err != nil {
		t.Fatal(err)
	}
	eq(t, strings.Contains(buf.String(), `<circle cx="5" cy="5" r="2"`), true)
}

func TestSessionMalformedMessagesIgnored(t *testing.T) {
	h := start(t, mic{})
	h.join(t, "a")
	h.relay.in <- core.Message{Action: core.ActionCodeChange, Payload: json.RawMessage(`{"code": 7}`)}
	h.relay.in <- core.Message{Action: "MYSTERY", Payload: json.RawMessage(`{}`)}
	h.relay.push(t, core.ActionCodeChange, core.CodePayload{Text: "ok"})
	eventually(t, func() bool { return h.s.Snapshot().Document.Text == "ok" })
}

func TestSessionSpeaking(t *testing.T) {
	h := start(t, mic{})
	h.join(t, "a", domain.Participant{ID: "b", Username: "bob"})

	h.s.SetSpeaking(true)
	eventually(t, func() bool {
		var p core.PresencePayload
		return h.relay.Last(core.ActionSpeaking, &p) && p.ConnectionID == "a"
	})

	h.relay.push(t, core.ActionSpeaking, core.PresencePayload{ConnectionID: "b"})
	eventually(t, func() bool { return h.s.Snapshot().Roster[0].Speaking })
	h.relay.push(t, core.ActionStoppedSpeaking, core.PresencePayload{ConnectionID: "b"})
	eventually(t, func() bool { return !h.s.Snapshot().Roster[0].Speaking })
}

func TestSessionMicToggle(t *testing.T) {
	h := start(t, mic{})
	h.join(t, "c", domain.Participant{ID: "a", Username: "alice"})
	link := h.links.get("a")

	h.s.ToggleMic(context.Background())
	eventually(t, func() bool { n, _ := link.state(); return n == 1 })
	eq(t, h.s.Snapshot().MicOn, true)

	h.s.ToggleMic(context.Background())
	n, _ := link.state()
	eq(t, n, 2)
	eq(t, h.s.Snapshot().MicOn, false)
	eq(t, link.tracks[1] == nil, true)
}

func TestSessionMicToggledOffWhilePending(t *testing.T) {
	gm := &gatedMic{opened: make(chan struct{}, 1), grant: make(chan struct{})}
	h := start(t, gm)
	h.join(t, "c", domain.Participant{ID: "a", Username: "alice"})
	link := h.links.get("a")

	h.s.ToggleMic(context.Background())
	<-gm.opened
	// Second toggle before the capture is granted turns the mic off.
	h.s.ToggleMic(context.Background())
	eq(t, h.s.Snapshot().MicOn, false)
	close(gm.grant)

	h.s.ToggleMic(context.Background())
	eventually(t, func() bool { n, _ := link.state(); return n == 2 })
	eq(t, h.s.Snapshot().MicOn, true)
	eq(t, gm.opens.Load(), int32(2))

	link.mu.Lock()
	detached, attached := link.tracks[0], link.tracks[1]
	link.mu.Unlock()
	eq(t, detached == nil, true)
	eq(t, attached != nil, true)
	_, mediaErrs, _ := h.view.counts()
	eq(t, mediaErrs, 0)
}

func TestSessionMicDeniedKeepsSyncRunning(t *testing.T) {
	h := start(t, mic{err: mesh.ErrPermissionDenied})
	h.join(t, "a")
	h.s.ToggleMic(context.Background())
	eventually(t, func() bool { _, n, _ := h.view.counts(); return n == 1 })
	eq(t, h.s.Snapshot().MicOn, false)

	h.relay.push(t, core.ActionCodeChange, core.CodePayload{Text: "still here"})
	eventually(t, func() bool { return h.s.Snapshot().Document.Text == "still here" })
}

func TestSessionRelayFailure(t *testing.T) {
	h := start(t, mic{})
	h.join(t, "c", domain.Participant{ID: "a", Username: "alice"})
	h.s.EditText("pending")

	h.relay.err = errors.New("connection reset")
	close(h.relay.in)

	select {
	case err := <-h.done:
		eq(t, err, h.relay.err)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}
	_, _, disc := h.view.counts()
	eq(t, disc, 1)
	_, closed := h.links.get("a").state()
	eq(t, closed, true)
	eq(t, h.relay.isClosed(), true)
	eq(t, h.clock.Pending(), 0)
}

func TestSessionClose(t *testing.T) {
	h := start(t, mic{})
	h.join(t, "a")
	h.s.Close()
	select {
	case err := <-h.done:
		eq(t, err, nil)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}
	<-h.s.Done()
	_, _, disc := h.view.counts()
	eq(t, disc, 0)
	eq(t, h.relay.isClosed(), true)
	h.s.Close()
}

func TestSessionCloseBeforeRun(t *testing.T) {
	s := NewSession(Config{Relay: newFakeRelay(), Links: &fakeLinks{}, Mic: mic{}})
	s.Close()
	<-s.Done()
}
