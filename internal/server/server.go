// Package server exposes the engine over local WebSocket endpoints:
// /host carries the browser extension's lifecycle feed, /sync carries
// presentation clients' request/response ops plus pushed state changes,
// and /metrics serves Prometheus text. Each role holds at most one live
// connection; a newer connection replaces the older one.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"nhooyr.io/websocket"

	"github.com/tabtriage/tabtriage/internal/applog"
	"github.com/tabtriage/tabtriage/internal/engine"
	"github.com/tabtriage/tabtriage/internal/metrics"
	"github.com/tabtriage/tabtriage/internal/storage"
	"github.com/tabtriage/tabtriage/internal/types"
)

const writeTimeout = 10 * time.Second

// Backend is the engine surface the server drives.
type Backend interface {
	HandleSnapshot(tabs []types.Tab)
	HandleCreated(tab types.Tab)
	HandleUpdated(tab types.Tab)
	HandleRemoved(instanceID int)
	GetState(ctx context.Context) (*types.StateSnapshot, error)
	Classify(ctx context.Context, tabs []types.Tab, exclude []string) (engine.ClassifyReply, error)
	Correct(ctx context.Context, address string, from, to types.Category) error
	ListURLs(ctx context.Context, savedOnly bool) ([]storage.URLRecord, error)
	SaveURL(ctx context.Context, address string, save bool) error
	DeleteURL(ctx context.Context, address string) error
	Clear(ctx context.Context) error
}

// Server manages the WebSocket connections for both roles.
type Server struct {
	port int
	eng  Backend

	mu       sync.Mutex
	hostConn *websocket.Conn
	viewer   *syncClient
}

// syncClient is one presentation connection with its outbound queue.
// Replies go through send and always arrive in order; pushes go through
// trySend and are dropped when the queue is full.
type syncClient struct {
	conn *websocket.Conn
	out  chan []byte
	done chan struct{}
}

func (c *syncClient) send(data []byte) bool {
	select {
	case c.out <- data:
		return true
	case <-c.done:
		return false
	}
}

func (c *syncClient) trySend(data []byte) bool {
	select {
	case c.out <- data:
		return true
	default:
		return false
	}
}

func (c *syncClient) writeLoop(ctx context.Context) {
	for {
		select {
		case data := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// New creates a server for the engine. Port 0 means the caller manages
// the listener.
func New(port int, eng Backend) *Server {
	return &Server{port: port, eng: eng}
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// HostConnected reports whether an extension is connected.
func (s *Server) HostConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hostConn != nil
}

// Push delivers one state change to the presentation client. Best
// effort: with no client, or a client too slow to drain its queue, the
// event is dropped and the engine never waits.
func (s *Server) Push(ev types.PushEvent) {
	s.mu.Lock()
	viewer := s.viewer
	s.mu.Unlock()
	if viewer == nil {
		metrics.PushesDropped.Inc()
		return
	}
	data, err := json.Marshal(SyncMsg{Type: MsgEvent, Event: toEventPayload(ev)})
	if err != nil {
		applog.Error("ws.push.marshal", err)
		return
	}
	if !viewer.trySend(data) {
		metrics.PushesDropped.Inc()
		applog.Warn("ws.push.dropped", "kind", ev.Type)
	}
}

// Handler returns the full HTTP handler: both WebSocket endpoints plus
// the metrics endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/host", s.handleHost)
	mux.HandleFunc("/sync", s.handleSync)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// ListenAndServe starts the server on the configured port, loopback only.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	applog.Info("server.start", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	return srv.ListenAndServe()
}

func (s *Server) handleHost(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		applog.Error("ws.accept", err, "role", "host")
		return
	}

	conn.SetReadLimit(16 << 20) // snapshots with many tabs can be large

	ctx := r.Context()
	s.mu.Lock()
	if s.hostConn != nil {
		applog.Info("ws.replaced", "role", "host")
		s.hostConn.CloseNow()
	}
	s.hostConn = conn
	s.mu.Unlock()
	metrics.ConnectedRoles.WithLabelValues("host").Set(1)
	applog.Info("ws.connected", "role", "host", "remote", r.RemoteAddr)

	defer func() {
		s.mu.Lock()
		if s.hostConn == conn {
			s.hostConn = nil
			metrics.ConnectedRoles.WithLabelValues("host").Set(0)
		}
		s.mu.Unlock()
		conn.CloseNow()
		applog.Info("ws.disconnected", "role", "host")
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg HostMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			applog.Error("ws.parse", err, "role", "host")
			continue
		}
		applog.Info("ws.recv", "role", "host", "type", msg.Type)
		// Dispatch inline: host events must reach the engine in
		// arrival order.
		s.dispatchHost(msg)
	}
}

func (s *Server) dispatchHost(msg HostMsg) {
	switch msg.Type {
	case MsgSnapshot:
		tabs, err := ParseSnapshot(msg)
		if err != nil {
			applog.Error("host.snapshot", err)
			return
		}
		s.eng.HandleSnapshot(tabs)
	case MsgTabCreated:
		tab, err := ParseTab(msg.Tab)
		if err != nil {
			applog.Error("host.created", err)
			return
		}
		s.eng.HandleCreated(tab)
	case MsgTabUpdated:
		tab, err := ParseTab(msg.Tab)
		if err != nil {
			applog.Error("host.updated", err)
			return
		}
		s.eng.HandleUpdated(tab)
	case MsgTabRemoved:
		s.eng.HandleRemoved(msg.TabID)
	default:
		applog.Warn("host.unknown", "type", msg.Type)
	}
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		applog.Error("ws.accept", err, "role", "sync")
		return
	}

	conn.SetReadLimit(16 << 20)

	ctx := r.Context()
	client := &syncClient{
		conn: conn,
		out:  make(chan []byte, 64),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	if s.viewer != nil {
		applog.Info("ws.replaced", "role", "sync")
		s.viewer.conn.CloseNow()
	}
	s.viewer = client
	s.mu.Unlock()
	metrics.ConnectedRoles.WithLabelValues("sync").Set(1)
	applog.Info("ws.connected", "role", "sync", "remote", r.RemoteAddr)

	go client.writeLoop(ctx)

	defer func() {
		close(client.done)
		s.mu.Lock()
		if s.viewer == client {
			s.viewer = nil
			metrics.ConnectedRoles.WithLabelValues("sync").Set(0)
		}
		s.mu.Unlock()
		conn.CloseNow()
		applog.Info("ws.disconnected", "role", "sync")
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var req SyncRequest
		if err := json.Unmarshal(data, &req); err != nil {
			applog.Error("ws.parse", err, "role", "sync")
			continue
		}
		applog.Info("ws.recv", "role", "sync", "op", req.Op, "id", req.ID)
		// Each request gets its own goroutine so a long classification
		// never stalls the read loop; ids correlate the replies.
		go s.serveRequest(ctx, client, req)
	}
}

func (s *Server) serveRequest(ctx context.Context, c *syncClient, req SyncRequest) {
	resp := s.dispatchSync(ctx, req)
	resp.ID = req.ID
	data, err := json.Marshal(resp)
	if err != nil {
		applog.Error("ws.marshal", err, "op", req.Op)
		return
	}
	if !c.send(data) {
		applog.Warn("ws.reply.lost", "op", req.Op, "id", req.ID)
	}
}

func (s *Server) dispatchSync(ctx context.Context, req SyncRequest) SyncMsg {
	switch req.Op {
	case OpGetState:
		snap, err := s.eng.GetState(ctx)
		if err != nil {
			return errorMsg(err)
		}
		return SyncMsg{Type: MsgState, State: toStatePayload(snap)}

	case OpClassify:
		tabs, err := ParseTabs(req.Tabs)
		if err != nil {
			return errorMsg(err)
		}
		reply, err := s.eng.Classify(ctx, tabs, req.Exclude)
		if err != nil {
			return errorMsg(err)
		}
		return SyncMsg{Type: MsgClassifyResult, Tiers: toTierPayload(reply.Tiers), Degraded: reply.Degraded}

	case OpCorrect:
		from, err := parseFrom(req.From)
		if err != nil {
			return errorMsg(err)
		}
		to, err := types.ParseCategory(req.To)
		if err != nil {
			return errorMsg(err)
		}
		if err := s.eng.Correct(ctx, req.Address, from, to); err != nil {
			return errorMsg(err)
		}
		return SyncMsg{Type: MsgCorrectAck}

	case OpListURLs:
		recs, err := s.eng.ListURLs(ctx, req.SavedOnly)
		if err != nil {
			return errorMsg(err)
		}
		return SyncMsg{Type: MsgURLs, URLs: toURLPayloads(recs)}

	case OpSaveURL:
		save := true
		if req.Save != nil {
			save = *req.Save
		}
		if err := s.eng.SaveURL(ctx, req.Address, save); err != nil {
			return errorMsg(err)
		}
		return SyncMsg{Type: MsgURLsAck}

	case OpDeleteURL:
		if err := s.eng.DeleteURL(ctx, req.Address); err != nil {
			return errorMsg(err)
		}
		return SyncMsg{Type: MsgURLsAck}

	case OpClear:
		if err := s.eng.Clear(ctx); err != nil {
			return errorMsg(err)
		}
		return SyncMsg{Type: MsgClearAck}

	default:
		return errorMsg(fmt.Errorf("unknown op %q", req.Op))
	}
}

func errorMsg(err error) SyncMsg {
	return SyncMsg{Type: MsgError, Error: err.Error()}
}
