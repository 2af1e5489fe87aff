package server

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tabtriage/tabtriage/internal/storage"
	"github.com/tabtriage/tabtriage/internal/types"
)

// Host message types, extension → server.
const (
	MsgSnapshot   = "snapshot"
	MsgTabCreated = "tab.created"
	MsgTabUpdated = "tab.updated"
	MsgTabRemoved = "tab.removed"
)

// Sync protocol ops, presentation client → server.
const (
	OpGetState  = "getState"
	OpClassify  = "classify"
	OpCorrect   = "correct"
	OpListURLs  = "urls.list"
	OpSaveURL   = "urls.save"
	OpDeleteURL = "urls.delete"
	OpClear     = "clear"
)

// Sync reply and push types, server → presentation client.
const (
	MsgState          = "state"
	MsgClassifyResult = "classify.result"
	MsgCorrectAck     = "correct.ack"
	MsgURLs           = "urls"
	MsgURLsAck        = "urls.ack"
	MsgClearAck       = "clear.ack"
	MsgEvent          = "event"
	MsgError          = "error"
)

// HostMsg is one message from the extension.
type HostMsg struct {
	Type  string          `json:"type"`
	Tabs  json.RawMessage `json:"tabs,omitempty"`
	Tab   json.RawMessage `json:"tab,omitempty"`
	TabID int             `json:"tabId,omitempty"`
}

// SyncRequest is one request from a presentation client.
type SyncRequest struct {
	ID        string          `json:"id"`
	Op        string          `json:"op"`
	Tabs      json.RawMessage `json:"tabs,omitempty"`
	Exclude   []string        `json:"exclude,omitempty"`
	Address   string          `json:"address,omitempty"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
	SavedOnly bool            `json:"savedOnly,omitempty"`
	Save      *bool           `json:"save,omitempty"` // nil means save
}

// SyncMsg is a reply or push to a presentation client. ID echoes the
// request for replies and is empty for pushes.
type SyncMsg struct {
	ID       string                   `json:"id,omitempty"`
	Type     string                   `json:"type"`
	State    *StatePayload            `json:"state,omitempty"`
	Tiers    map[string][]UnitPayload `json:"tiers,omitempty"`
	Degraded string                   `json:"degraded,omitempty"`
	URLs     []URLPayload             `json:"urls,omitempty"`
	Event    *EventPayload            `json:"event,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

// UnitPayload is one classification unit on the wire. Categories travel
// by name.
type UnitPayload struct {
	Address        string `json:"address"`
	Title          string `json:"title,omitempty"`
	Domain         string `json:"domain,omitempty"`
	Category       string `json:"category"`
	Provenance     string `json:"provenance,omitempty"`
	InstanceIDs    []int  `json:"instanceIds,omitempty"`
	DuplicateCount int    `json:"duplicateCount"`
	AlreadySaved   bool   `json:"alreadySaved,omitempty"`
}

// StatePayload is the full canonical state on the wire.
type StatePayload struct {
	Tiers      map[string][]UnitPayload `json:"tiers"`
	Duplicates map[string][]int         `json:"duplicates,omitempty"`
}

// URLPayload is one persisted record on the wire.
type URLPayload struct {
	Address         string `json:"address"`
	Title           string `json:"title,omitempty"`
	Domain          string `json:"domain,omitempty"`
	Category        string `json:"category"`
	Provenance      string `json:"provenance,omitempty"`
	Saved           bool   `json:"saved"`
	FirstSeen       string `json:"firstSeen,omitempty"`
	LastCategorized string `json:"lastCategorized,omitempty"`
}

// EventPayload is one pushed state change.
type EventPayload struct {
	Kind      string       `json:"kind"`
	Unit      *UnitPayload `json:"unit,omitempty"`
	Timestamp string       `json:"timestamp"`
}

type wireTab struct {
	ID         int    `json:"id"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	WindowID   int    `json:"windowId"`
	FavIconURL string `json:"favIconUrl"`
}

func (w wireTab) tab() types.Tab {
	return types.Tab{
		InstanceID: w.ID,
		Address:    w.URL,
		Title:      w.Title,
		WindowID:   w.WindowID,
		Favicon:    w.FavIconURL,
	}
}

// EncodeTabs converts tabs into their wire JSON array form.
func EncodeTabs(tabs []types.Tab) (json.RawMessage, error) {
	wire := make([]wireTab, 0, len(tabs))
	for _, t := range tabs {
		wire = append(wire, wireTab{
			ID:         t.InstanceID,
			URL:        t.Address,
			Title:      t.Title,
			WindowID:   t.WindowID,
			FavIconURL: t.Favicon,
		})
	}
	return json.Marshal(wire)
}

// ParseTabs converts a raw JSON tab array into tabs.
func ParseTabs(raw json.RawMessage) ([]types.Tab, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var wire []wireTab
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("parse tabs: %w", err)
	}
	tabs := make([]types.Tab, 0, len(wire))
	for _, w := range wire {
		tabs = append(tabs, w.tab())
	}
	return tabs, nil
}

// ParseSnapshot converts a HostMsg of type "snapshot" into tabs.
func ParseSnapshot(msg HostMsg) ([]types.Tab, error) {
	return ParseTabs(msg.Tabs)
}

// ParseTab converts a raw JSON tab into a Tab.
func ParseTab(raw json.RawMessage) (types.Tab, error) {
	var w wireTab
	if err := json.Unmarshal(raw, &w); err != nil {
		return types.Tab{}, fmt.Errorf("parse tab: %w", err)
	}
	return w.tab(), nil
}

func toUnitPayload(u types.Unit) UnitPayload {
	return UnitPayload{
		Address:        u.Address,
		Title:          u.Title,
		Domain:         u.Domain,
		Category:       u.Category.String(),
		Provenance:     string(u.Provenance),
		InstanceIDs:    u.DuplicateIDs,
		DuplicateCount: u.DuplicateCount,
		AlreadySaved:   u.AlreadySaved,
	}
}

func toTierPayload(tiers map[types.Category][]types.Unit) map[string][]UnitPayload {
	out := make(map[string][]UnitPayload, len(tiers))
	for tier, units := range tiers {
		list := make([]UnitPayload, 0, len(units))
		for _, u := range units {
			list = append(list, toUnitPayload(u))
		}
		out[tier.String()] = list
	}
	return out
}

func toStatePayload(snap *types.StateSnapshot) *StatePayload {
	return &StatePayload{
		Tiers:      toTierPayload(snap.Categorized),
		Duplicates: snap.DuplicateIndex,
	}
}

func toURLPayloads(recs []storage.URLRecord) []URLPayload {
	out := make([]URLPayload, 0, len(recs))
	for _, r := range recs {
		p := URLPayload{
			Address:    r.Address,
			Title:      r.Title,
			Domain:     r.Domain,
			Category:   r.Category.String(),
			Provenance: string(r.Provenance),
			Saved:      r.Saved,
		}
		if !r.FirstSeen.IsZero() {
			p.FirstSeen = r.FirstSeen.UTC().Format(time.RFC3339)
		}
		if r.LastCategorized != nil {
			p.LastCategorized = r.LastCategorized.UTC().Format(time.RFC3339)
		}
		out = append(out, p)
	}
	return out
}

func toEventPayload(ev types.PushEvent) *EventPayload {
	p := &EventPayload{
		Kind:      ev.Type,
		Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
	}
	if ev.Unit != nil {
		u := toUnitPayload(*ev.Unit)
		p.Unit = &u
	}
	return p
}

// parseFrom accepts the advisory source tier of a correction; an empty
// value means uncategorized.
func parseFrom(s string) (types.Category, error) {
	if strings.TrimSpace(s) == "" {
		return types.Uncategorized, nil
	}
	return types.ParseCategory(s)
}
