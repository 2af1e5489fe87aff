package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/tabtriage/tabtriage/internal/engine"
	"github.com/tabtriage/tabtriage/internal/storage"
	"github.com/tabtriage/tabtriage/internal/types"
)

func testServer(t *testing.T) (*Server, *httptest.Server, *engine.Engine) {
	t.Helper()
	db, err := storage.OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	eng := engine.New(engine.Options{DB: db, RunTimeout: 5 * time.Second})
	srv := New(0, eng)
	eng.SetPush(srv.Push)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go eng.Run(ctx)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts, eng
}

func dialWS(ctx context.Context, t *testing.T, base, path string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(base, "http") + path
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func writeJSON(ctx context.Context, t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readReply reads frames until the reply with the given id arrives,
// skipping pushed events.
func readReply(ctx context.Context, t *testing.T, conn *websocket.Conn, id string) SyncMsg {
	t.Helper()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg SyncMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Type == MsgEvent {
			continue
		}
		if msg.ID == id {
			return msg
		}
	}
}

func TestHostSnapshotReachesEngine(t *testing.T) {
	_, ts, eng := testServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(ctx, t, ts.URL, "/host")
	writeJSON(ctx, t, conn, map[string]any{
		"type": MsgSnapshot,
		"tabs": []map[string]any{
			{"id": 1, "url": "https://example.com/a", "title": "A", "windowId": 1},
			{"id": 2, "url": "https://example.com/b", "title": "B", "windowId": 1},
		},
	})

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := eng.GetState(ctx)
		if err != nil {
			t.Fatalf("GetState: %v", err)
		}
		if snap.UnitCount() == 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("snapshot never reached the engine")
}

func TestSyncGetState(t *testing.T) {
	_, ts, _ := testServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(ctx, t, ts.URL, "/sync")
	writeJSON(ctx, t, conn, SyncRequest{ID: "req-1", Op: OpGetState})

	msg := readReply(ctx, t, conn, "req-1")
	if msg.Type != MsgState {
		t.Fatalf("type = %q, want %q (%+v)", msg.Type, MsgState, msg)
	}
	if msg.State == nil {
		t.Fatal("state payload missing")
	}
	for _, tier := range types.Categories() {
		if _, ok := msg.State.Tiers[tier.String()]; !ok {
			t.Errorf("tier %s missing from state payload", tier)
		}
	}
}

func TestSyncClassify(t *testing.T) {
	_, ts, _ := testServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn := dialWS(ctx, t, ts.URL, "/sync")
	tabs, _ := json.Marshal([]map[string]any{
		{"id": 1, "url": "https://docs.example.com/guide", "title": "Guide"},
	})
	writeJSON(ctx, t, conn, SyncRequest{ID: "req-2", Op: OpClassify, Tabs: tabs})

	msg := readReply(ctx, t, conn, "req-2")
	if msg.Type != MsgClassifyResult {
		t.Fatalf("type = %q: %+v", msg.Type, msg)
	}
	total := 0
	for _, units := range msg.Tiers {
		total += len(units)
	}
	if total != 1 {
		t.Fatalf("classified %d units, want 1: %+v", total, msg.Tiers)
	}
}

func TestSyncCorrectAndListURLs(t *testing.T) {
	_, ts, _ := testServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(ctx, t, ts.URL, "/sync")
	writeJSON(ctx, t, conn, SyncRequest{
		ID: "c-1", Op: OpCorrect,
		Address: "https://example.com/keep", To: "important",
	})
	if msg := readReply(ctx, t, conn, "c-1"); msg.Type != MsgCorrectAck {
		t.Fatalf("correct reply = %+v", msg)
	}

	writeJSON(ctx, t, conn, SyncRequest{ID: "l-1", Op: OpListURLs})
	msg := readReply(ctx, t, conn, "l-1")
	if msg.Type != MsgURLs {
		t.Fatalf("list reply = %+v", msg)
	}
	if len(msg.URLs) != 1 || msg.URLs[0].Address != "https://example.com/keep" {
		t.Fatalf("urls = %+v", msg.URLs)
	}
	if msg.URLs[0].Category != "important" || msg.URLs[0].Provenance != "user_correction" {
		t.Errorf("record = %s/%s", msg.URLs[0].Category, msg.URLs[0].Provenance)
	}
}

func TestSyncUnknownOp(t *testing.T) {
	_, ts, _ := testServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(ctx, t, ts.URL, "/sync")
	writeJSON(ctx, t, conn, SyncRequest{ID: "x-1", Op: "bogus"})

	msg := readReply(ctx, t, conn, "x-1")
	if msg.Type != MsgError || msg.Error == "" {
		t.Fatalf("reply = %+v, want error", msg)
	}
}

func TestPushDeliveredToSyncClient(t *testing.T) {
	_, ts, _ := testServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	syncConn := dialWS(ctx, t, ts.URL, "/sync")
	hostConn := dialWS(ctx, t, ts.URL, "/host")

	// Give the server a moment to register the sync client.
	time.Sleep(50 * time.Millisecond)

	writeJSON(ctx, t, hostConn, map[string]any{
		"type": MsgTabCreated,
		"tab":  map[string]any{"id": 7, "url": "https://example.com/new", "title": "New"},
	})

	for {
		_, data, err := syncConn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg SyncMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Type != MsgEvent {
			continue
		}
		if msg.Event.Kind != types.EventCreated {
			t.Fatalf("event kind = %q, want created", msg.Event.Kind)
		}
		if msg.Event.Unit == nil || msg.Event.Unit.Address != "https://example.com/new" {
			t.Fatalf("event unit = %+v", msg.Event.Unit)
		}
		return
	}
}

func TestHostConnectionReplaced(t *testing.T) {
	srv, ts, _ := testServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first := dialWS(ctx, t, ts.URL, "/host")
	time.Sleep(50 * time.Millisecond)
	if !srv.HostConnected() {
		t.Fatal("first host connection not registered")
	}

	dialWS(ctx, t, ts.URL, "/host")
	time.Sleep(50 * time.Millisecond)

	// The replaced connection is closed by the server.
	if _, _, err := first.Read(ctx); err == nil {
		t.Fatal("replaced connection still readable")
	}
	if !srv.HostConnected() {
		t.Error("replacement connection not registered")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts, _ := testServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "tabtriage_classification_runs_total") {
		t.Error("triage metrics missing from exposition")
	}
}
