package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/CodeSync/internal/adapters/signal"
	"github.com/dkeye/CodeSync/internal/app/relay"
	"github.com/dkeye/CodeSync/internal/config"
	"github.com/dkeye/CodeSync/internal/core"
	"github.com/dkeye/CodeSync/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
)

func eq(t *testing.T, got, want any) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func ok(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

type server struct {
	srv    *httptest.Server
	hub    *relay.Hub
	cancel context.CancelFunc
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	hub := relay.NewHub(relay.SimplePolicy{}, relay.NewRateLimiter(1000, time.Second))
	cfg := &config.Server{
		Mode:       "test",
		Secret:     "test-secret",
		ReadLimit:  1 << 20,
		PingPeriod: 54 * time.Second,
		SendBuffer: 64,
	}
	s := &server{srv: httptest.NewServer(SetupRouter(ctx, cfg, hub)), hub: hub, cancel: cancel}
	t.Cleanup(func() {
		cancel()
		s.srv.Close()
	})
	return s
}

func (s *server) dial(t *testing.T, session, name string) *signal.Client {
	t.Helper()
	c, err := signal.Dial(context.Background(), signal.DialConfig{
		URL:     "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws",
		Session: session,
		Name:    name,
	})
	ok(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func recv(t *testing.T, c *signal.Client, want core.Action, v any) {
	t.Helper()
	select {
	case msg, open := <-c.Messages():
		if !open {
			t.Fatalf("connection closed waiting for %s: %v", want, c.Err())
		}
		eq(t, msg.Action, want)
		if v != nil {
			ok(t, msg.Decode(v))
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", want)
	}
}

func send(t *testing.T, c *signal.Client, action core.Action, payload any) {
	t.Helper()
	msg, err := core.NewMessage(action, payload)
	ok(t, err)
	ok(t, c.Send(msg))
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	ok(t, err)
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		ok(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestRelayRoundTrip(t *testing.T) {
	s := newServer(t)

	alice := s.dial(t, "room", "alice")
	var wa core.WelcomePayload
	recv(t, alice, core.ActionWelcome, &wa)
	var ja core.MembershipPayload
	recv(t, alice, core.ActionUserJoined, &ja)
	eq(t, ja.Roster, domain.Roster{{ID: wa.ConnectionID, Username: "alice"}})

	bob := s.dial(t, "room", "bob")
	var wb core.WelcomePayload
	recv(t, bob, core.ActionWelcome, &wb)
	var jb core.MembershipPayload
	recv(t, bob, core.ActionUserJoined, &jb)
	eq(t, jb.ConnectionID, wb.ConnectionID)
	eq(t, jb.Roster, domain.Roster{{ID: wa.ConnectionID, Username: "alice"}, {ID: wb.ConnectionID, Username: "bob"}})
	recv(t, alice, core.ActionUserJoined, &ja)
	eq(t, ja.Roster, jb.Roster)

	// Broadcasts reach everyone, sender included.
	send(t, alice, core.ActionCodeChange, core.CodePayload{Text: "print(1)"})
	var code core.CodePayload
	recv(t, alice, core.ActionCodeChange, &code)
	recv(t, bob, core.ActionCodeChange, &code)
	eq(t, code.Text, "print(1)")

	// Offers reach only their target, stamped with the sender.
	send(t, bob, core.ActionOffer, core.DescriptionPayload{
		PeerID: wa.ConnectionID,
		SDP:    webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"},
	})
	var offer core.DescriptionPayload
	recv(t, alice, core.ActionOffer, &offer)
	eq(t, offer.FromID, wb.ConnectionID)
	eq(t, offer.SDP.SDP, "v=0")

	var sessions []relay.SessionInfo
	eq(t, getJSON(t, s.srv.URL+"/api/sessions", &sessions), http.StatusOK)
	eq(t, sessions, []relay.SessionInfo{{ID: "room", MemberCount: 2}})

	// A local close is not a transport failure.
	ok(t, bob.Close())
	eq(t, bob.Err(), nil)
	var left core.MembershipPayload
	recv(t, alice, core.ActionUserLeft, &left)
	eq(t, left.ConnectionID, wb.ConnectionID)
	eq(t, left.Roster, domain.Roster{{ID: wa.ConnectionID, Username: "alice"}})

	var members domain.Roster
	eq(t, getJSON(t, s.srv.URL+"/api/sessions/room/members", &members), http.StatusOK)
	eq(t, members, left.Roster)
}

func TestServerShutdownDisconnectsClients(t *testing.T) {
	s := newServer(t)
	c := s.dial(t, "room", "carol")
	recv(t, c, core.ActionWelcome, nil)
	recv(t, c, core.ActionUserJoined, nil)

	s.cancel()
	deadline := time.After(2 * time.Second)
drain:
	for {
		select {
		case _, open := <-c.Messages():
			if !open {
				break drain
			}
		case <-deadline:
			t.Fatal("client not disconnected")
		}
	}
	if c.Err() == nil {
		t.Fatal("expected transport error")
	}
}

func TestHandshakeValidation(t *testing.T) {
	s := newServer(t)
	eq(t, getJSON(t, s.srv.URL+"/ws?username=x", nil), http.StatusBadRequest)
	eq(t, getJSON(t, s.srv.URL+"/ws?roomId=r&username=%20", nil), http.StatusBadRequest)
	eq(t, getJSON(t, s.srv.URL+"/api/sessions/none/members", nil), http.StatusNotFound)

	var health map[string]string
	eq(t, getJSON(t, s.srv.URL+"/healthz", &health), http.StatusOK)
	eq(t, health["status"], "ok")

	var list []relay.SessionInfo
	eq(t, getJSON(t, s.srv.URL+"/api/sessions", &list), http.StatusOK)
	eq(t, list, []relay.SessionInfo{})
}

func TestClientTokenKeptInSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(sessions.Sessions("CodeSyncSessions", cookie.NewStore([]byte("test-secret"))))
	r.Use(ClientTokenMiddleware())
	r.GET("/token", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(clientTokenKey))
	})

	get := func(cookies ...*http.Cookie) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/token", nil)
		for _, ck := range cookies {
			req.AddCookie(ck)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		eq(t, w.Code, http.StatusOK)
		return w
	}

	first := get()
	token := first.Body.String()
	if token == "" {
		t.Fatal("no client token issued")
	}
	cookies := first.Result().Cookies()
	eq(t, len(cookies), 1)
	eq(t, cookies[0].Name, "CodeSyncSessions")
	if strings.Contains(cookies[0].Value, token) {
		t.Fatal("token stored in plain text")
	}

	again := get(cookies...)
	eq(t, again.Body.String(), token)
	eq(t, len(again.Result().Cookies()), 0)

	if other := get().Body.String(); other == token {
		t.Fatal("fresh client reused a token")
	}
}
