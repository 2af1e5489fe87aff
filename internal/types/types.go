package types

import (
	"fmt"
	"time"
)

// Tab represents a single live browser tab as reported by the host.
type Tab struct {
	InstanceID int // host-assigned tab ID; unique only while the tab is open
	Address    string
	Title      string
	WindowID   int
	Favicon    string
}

// Category is a priority tier assigned to a classification unit.
// The numeric order doubles as importance for merge precedence.
type Category int

const (
	Uncategorized Category = iota
	CanClose
	SaveLater
	Important
)

var categoryNames = map[Category]string{
	Uncategorized: "uncategorized",
	CanClose:      "can-close",
	SaveLater:     "save-later",
	Important:     "important",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// Valid reports whether c is one of the four known tiers.
func (c Category) Valid() bool {
	return c >= Uncategorized && c <= Important
}

// ParseCategory converts a wire/CLI name into a Category.
func ParseCategory(s string) (Category, error) {
	for c, name := range categoryNames {
		if name == s {
			return c, nil
		}
	}
	return Uncategorized, fmt.Errorf("unknown category %q", s)
}

// Categories lists the four tiers in ascending importance order.
func Categories() []Category {
	return []Category{Uncategorized, CanClose, SaveLater, Important}
}

// Provenance records which source produced a category verdict.
type Provenance string

const (
	ProvenanceRule       Provenance = "rule"
	ProvenanceLearned    Provenance = "learned"
	ProvenanceRemote     Provenance = "remote"
	ProvenanceHeuristic  Provenance = "heuristic"
	ProvenanceHistory    Provenance = "history"
	ProvenanceCorrection Provenance = "user_correction"
)

// Unit is one classification target: all currently-open tab instances
// sharing one exact address.
type Unit struct {
	ID             int // surrogate id, assigned in order of first appearance
	Address        string
	Title          string
	Domain         string
	Category       Category
	Provenance     Provenance
	DuplicateIDs   []int // host instance ids; first is the representative
	DuplicateCount int
	AlreadySaved   bool
}

// Clone returns a deep copy of the unit.
func (u *Unit) Clone() *Unit {
	c := *u
	c.DuplicateIDs = append([]int(nil), u.DuplicateIDs...)
	return &c
}

// Verdict is one stage's category decision for a unit. Ephemeral;
// discarded after being merged into canonical state.
type Verdict struct {
	UnitID     int
	Category   Category
	Provenance Provenance
	Confidence float64
}

// StateSnapshot is a deep copy of the canonical state handed to readers.
type StateSnapshot struct {
	Categorized    map[Category][]Unit
	DuplicateIndex map[string][]int // address → instance ids
}

// UnitCount returns the total number of units across all tiers.
func (s *StateSnapshot) UnitCount() int {
	n := 0
	for _, units := range s.Categorized {
		n += len(units)
	}
	return n
}

// Push event types emitted on reconciliation transitions.
const (
	EventCreated          = "created"
	EventNavigated        = "navigated"
	EventRemoved          = "removed"
	EventDuplicateCreated = "duplicate-created"
	EventRefresh          = "refresh"
)

// PushEvent is one change notification for the presentation process.
type PushEvent struct {
	Type      string
	Unit      *Unit // nil for bare refresh
	Timestamp time.Time
}
