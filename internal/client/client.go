// Package client implements the sync-protocol client the CLI uses to
// talk to a running serve daemon, plus a host-role helper for pushing
// imported snapshots.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/tabtriage/tabtriage/internal/server"
	"github.com/tabtriage/tabtriage/internal/types"
)

// Client is one sync connection. Methods are synchronous: one request,
// one correlated reply. Pushed events arriving in between are skipped
// except under Watch.
type Client struct {
	conn *websocket.Conn
}

// Dial connects to the sync endpoint of a daemon on the local port.
func Dial(ctx context.Context, port int) (*Client, error) {
	u := fmt.Sprintf("ws://127.0.0.1:%d/sync", port)
	conn, _, err := websocket.Dial(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon on port %d: %w", port, err)
	}
	conn.SetReadLimit(16 << 20)
	return &Client{conn: conn}, nil
}

// Close tears the connection down.
func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

// GetState fetches the full canonical state.
func (c *Client) GetState(ctx context.Context) (*server.StatePayload, error) {
	msg, err := c.roundTrip(ctx, server.SyncRequest{Op: server.OpGetState})
	if err != nil {
		return nil, err
	}
	if msg.State == nil {
		return nil, fmt.Errorf("state reply missing payload")
	}
	return msg.State, nil
}

// Classify runs the pipeline over a declared tab set and returns the
// assigned tiers plus the degradation marker, if any.
func (c *Client) Classify(ctx context.Context, tabs []types.Tab, exclude []string) (map[string][]server.UnitPayload, string, error) {
	raw, err := server.EncodeTabs(tabs)
	if err != nil {
		return nil, "", fmt.Errorf("encode tabs: %w", err)
	}
	msg, err := c.roundTrip(ctx, server.SyncRequest{Op: server.OpClassify, Tabs: raw, Exclude: exclude})
	if err != nil {
		return nil, "", err
	}
	return msg.Tiers, msg.Degraded, nil
}

// Correct reassigns an address to a tier as a user correction.
func (c *Client) Correct(ctx context.Context, address, from, to string) error {
	_, err := c.roundTrip(ctx, server.SyncRequest{
		Op: server.OpCorrect, Address: address, From: from, To: to,
	})
	return err
}

// ListURLs fetches persisted records, optionally only saved ones.
func (c *Client) ListURLs(ctx context.Context, savedOnly bool) ([]server.URLPayload, error) {
	msg, err := c.roundTrip(ctx, server.SyncRequest{Op: server.OpListURLs, SavedOnly: savedOnly})
	if err != nil {
		return nil, err
	}
	return msg.URLs, nil
}

// SaveURL sets or clears the saved flag on an address.
func (c *Client) SaveURL(ctx context.Context, address string, save bool) error {
	_, err := c.roundTrip(ctx, server.SyncRequest{Op: server.OpSaveURL, Address: address, Save: &save})
	return err
}

// DeleteURL removes a record and its event history.
func (c *Client) DeleteURL(ctx context.Context, address string) error {
	_, err := c.roundTrip(ctx, server.SyncRequest{Op: server.OpDeleteURL, Address: address})
	return err
}

// Clear resets the daemon's in-memory state.
func (c *Client) Clear(ctx context.Context) error {
	_, err := c.roundTrip(ctx, server.SyncRequest{Op: server.OpClear})
	return err
}

// Watch delivers pushed events to fn until ctx ends or the connection
// drops.
func (c *Client) Watch(ctx context.Context, fn func(server.EventPayload)) error {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return err
		}
		var msg server.SyncMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == server.MsgEvent && msg.Event != nil {
			fn(*msg.Event)
		}
	}
}

func (c *Client) roundTrip(ctx context.Context, req server.SyncRequest) (server.SyncMsg, error) {
	req.ID = uuid.NewString()
	data, err := json.Marshal(req)
	if err != nil {
		return server.SyncMsg{}, fmt.Errorf("marshal %s: %w", req.Op, err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return server.SyncMsg{}, fmt.Errorf("send %s: %w", req.Op, err)
	}
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return server.SyncMsg{}, fmt.Errorf("read %s reply: %w", req.Op, err)
		}
		var msg server.SyncMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.ID != req.ID {
			continue
		}
		if msg.Type == server.MsgError {
			return msg, errors.New(msg.Error)
		}
		return msg, nil
	}
}

// PushSnapshot connects as the host role and delivers one snapshot.
// Used by the import command to feed a Firefox session into a daemon.
func PushSnapshot(ctx context.Context, port int, tabs []types.Tab) error {
	raw, err := server.EncodeTabs(tabs)
	if err != nil {
		return fmt.Errorf("encode tabs: %w", err)
	}
	u := fmt.Sprintf("ws://127.0.0.1:%d/host", port)
	conn, _, err := websocket.Dial(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("connect to daemon on port %d: %w", port, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	msg := server.HostMsg{Type: server.MsgSnapshot, Tabs: raw}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("send snapshot: %w", err)
	}
	return nil
}
