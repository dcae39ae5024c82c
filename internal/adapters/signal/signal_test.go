package signal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/CodeSync/internal/core"
	"github.com/gorilla/websocket"
)

// echoServer upgrades every request and hands the server side of the socket
// to the test.
func echoServer(t *testing.T) (string, <-chan *websocket.Conn) {
	t.Helper()
	conns := make(chan *websocket.Conn, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("roomId") == "" || r.URL.Query().Get("username") == "" {
			http.Error(w, "missing query", http.StatusBadRequest)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		conns <- ws
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), conns
}

func dial(t *testing.T, url string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), DialConfig{URL: url, Session: "s", Name: "n", SendBuffer: 8})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func serverSide(t *testing.T, conns <-chan *websocket.Conn) *websocket.Conn {
	t.Helper()
	select {
	case ws := <-conns:
		return ws
	case <-time.After(2 * time.Second):
		t.Fatal("no server connection")
		return nil
	}
}

func TestClientSendsInOrderAndReceives(t *testing.T) {
	url, conns := echoServer(t)
	c := dial(t, url)
	defer c.Close()
	ws := serverSide(t, conns)
	defer ws.Close()

	for _, text := range []string{"a", "b", "c"} {
		msg, err := core.NewMessage(core.ActionCodeChange, core.CodePayload{Text: text})
		if err != nil {
			t.Fatal(err)
		}
		if err := c.Send(msg); err != nil {
			t.Fatal(err)
		}
	}
	for _, want := range []string{"a", "b", "c"} {
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatal(err)
		}
		msg, err := core.ParseMessage(data)
		if err != nil {
			t.Fatal(err)
		}
		var p core.CodePayload
		if err := msg.Decode(&p); err != nil {
			t.Fatal(err)
		}
		if p.Text != want {
			t.Fatalf("got %q, want %q", p.Text, want)
		}
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`garbage`)); err != nil {
		t.Fatal(err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"action":"WELCOME","payload":{"socketId":"x"}}`)); err != nil {
		t.Fatal(err)
	}
	select {
	case msg := <-c.Messages():
		if msg.Action != core.ActionWelcome {
			t.Fatalf("got %s", msg.Action)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message")
	}
}

func TestClientCloseIsNotAFailure(t *testing.T) {
	url, conns := echoServer(t)
	c := dial(t, url)
	ws := serverSide(t, conns)
	defer ws.Close()

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if c.Err() != nil {
		t.Fatalf("unexpected error %v", c.Err())
	}
	if _, open := <-c.Messages(); open {
		t.Fatal("messages channel still open")
	}
	if err := c.Send(core.Message{Action: core.ActionCodeChange}); !errors.Is(err, ErrClosed) {
		t.Fatalf("got %v, want ErrClosed", err)
	}
	_, _, err := ws.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("server saw %v, want normal closure", err)
	}
	_ = c.Close()
}

func TestClientReportsRemoteDrop(t *testing.T) {
	url, conns := echoServer(t)
	c := dial(t, url)
	defer c.Close()
	ws := serverSide(t, conns)
	_ = ws.Close()

	select {
	case _, open := <-c.Messages():
		if open {
			t.Fatal("unexpected message")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("drop not noticed")
	}
	if c.Err() == nil {
		t.Fatal("expected transport error")
	}
}

func TestDialRejected(t *testing.T) {
	url, _ := echoServer(t)
	_, err := Dial(context.Background(), DialConfig{URL: url, Session: "", Name: "n"})
	if err == nil {
		t.Fatal("expected dial error")
	}
}

func TestServerConnBackpressure(t *testing.T) {
	url, conns := echoServer(t)
	c := dial(t, url)
	defer c.Close()
	ws := serverSide(t, conns)

	conn := NewWsSignalConn(ws, 2)
	if err := conn.TrySend(core.Frame("1")); err != nil {
		t.Fatal(err)
	}
	if err := conn.TrySend(core.Frame("2")); err != nil {
		t.Fatal(err)
	}
	if err := conn.TrySend(core.Frame("3")); !errors.Is(err, ErrBackpressure) {
		t.Fatalf("got %v, want ErrBackpressure", err)
	}
	conn.Close()
	conn.Close()
	if err := conn.TrySend(core.Frame("4")); !errors.Is(err, ErrClosed) {
		t.Fatalf("got %v, want ErrClosed", err)
	}
}
