package statefeed

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxelstack/meshview/internal/viewer"
)

func dialFeed(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing feed: %v", err)
	}
	return conn
}

func TestPublish_ReachesClient(t *testing.T) {
	f := New()
	srv := httptest.NewServer(f)
	defer srv.Close()

	conn := dialFeed(t, srv)
	defer conn.Close()

	f.Publish(viewer.Status{State: "loading", Progress: 40, View: "home", Mode: "none"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got viewer.Status
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("reading status: %v", err)
	}
	if got.State != "loading" || got.Progress != 40 {
		t.Errorf("unexpected status: %+v", got)
	}
}

func TestConnect_ReplaysLatestSnapshot(t *testing.T) {
	f := New()
	f.Publish(viewer.Status{State: "ready", Progress: 100, View: "top"})

	srv := httptest.NewServer(f)
	defer srv.Close()

	conn := dialFeed(t, srv)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got viewer.Status
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("reading replayed status: %v", err)
	}
	if got.State != "ready" || got.View != "top" {
		t.Errorf("unexpected replayed status: %+v", got)
	}
}

func TestCommands_RelayedToRenderLoop(t *testing.T) {
	f := New()
	srv := httptest.NewServer(f)
	defer srv.Close()

	conn := dialFeed(t, srv)
	defer conn.Close()

	err := conn.WriteJSON(Command{Cmd: "load", URL: "http://host/part.stl"})
	if err != nil {
		t.Fatalf("writing command: %v", err)
	}

	select {
	case cmd := <-f.Commands():
		if cmd.Cmd != "load" || cmd.URL != "http://host/part.stl" {
			t.Errorf("unexpected command: %+v", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command never arrived")
	}
}

func TestCommands_MalformedIgnored(t *testing.T) {
	f := New()
	srv := httptest.NewServer(f)
	defer srv.Close()

	conn := dialFeed(t, srv)
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("writing garbage: %v", err)
	}
	if err := conn.WriteJSON(Command{Cmd: "reset_view"}); err != nil {
		t.Fatalf("writing command: %v", err)
	}

	select {
	case cmd := <-f.Commands():
		if cmd.Cmd != "reset_view" {
			t.Errorf("expected reset_view after garbage, got %+v", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command never arrived")
	}
}

func TestPublish_DroppedClientRemoved(t *testing.T) {
	f := New()
	srv := httptest.NewServer(f)
	defer srv.Close()

	conn := dialFeed(t, srv)
	conn.Close()

	// Writes to the closed connection fail and evict the client.
	for i := 0; i < 3; i++ {
		f.Publish(viewer.Status{State: "idle"})
		time.Sleep(10 * time.Millisecond)
	}

	f.mu.Lock()
	n := len(f.clients)
	f.mu.Unlock()
	if n != 0 {
		t.Errorf("expected closed client evicted, %d still registered", n)
	}
}
