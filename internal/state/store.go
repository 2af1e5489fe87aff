// Package state implements the canonical category state: one mapping
// from tier to classification units, plus an address index for
// duplicate lookups. The store is a plain single-writer structure
// owned by the engine loop; readers get deep-copied snapshots.
package state

import (
	"github.com/tabtriage/tabtriage/internal/types"
)

// Store holds the canonical assignment of units to tiers. An address
// appears in at most one tier's list at any time; the mutators enforce
// that by construction.
type Store struct {
	categorized map[types.Category][]*types.Unit
	byAddress   map[string]*types.Unit
}

// NewStore creates an empty store with all four tiers present.
func NewStore() *Store {
	s := &Store{
		categorized: make(map[types.Category][]*types.Unit),
		byAddress:   make(map[string]*types.Unit),
	}
	for _, c := range types.Categories() {
		s.categorized[c] = nil
	}
	return s
}

// Get returns the live unit for an address, if tracked.
func (s *Store) Get(address string) (*types.Unit, bool) {
	u, ok := s.byAddress[address]
	return u, ok
}

// Len returns the number of tracked units.
func (s *Store) Len() int {
	return len(s.byAddress)
}

// Counts returns the number of units per tier.
func (s *Store) Counts() map[types.Category]int {
	out := make(map[types.Category]int, 4)
	for _, c := range types.Categories() {
		out[c] = len(s.categorized[c])
	}
	return out
}

// Tier returns the live unit list for one tier. Callers must not hold
// the slice across mutations.
func (s *Store) Tier(tier types.Category) []*types.Unit {
	return s.categorized[tier]
}

// BulkReplace installs the result of a full classification run. The
// Uncategorized tier is cleared and rebuilt from fresh; in the other
// three tiers the fresh units come first and previously-assigned units
// whose addresses the run did not cover are preserved after them.
// Units the run moved between tiers are displaced from their old tier.
func (s *Store) BulkReplace(fresh map[types.Category][]*types.Unit) {
	covered := make(map[string]bool)
	for _, units := range fresh {
		for _, u := range units {
			covered[u.Address] = true
		}
	}

	next := make(map[types.Category][]*types.Unit, 4)
	next[types.Uncategorized] = append([]*types.Unit(nil), fresh[types.Uncategorized]...)
	for _, tier := range []types.Category{types.CanClose, types.SaveLater, types.Important} {
		list := append([]*types.Unit(nil), fresh[tier]...)
		for _, old := range s.categorized[tier] {
			if !covered[old.Address] {
				list = append(list, old)
			}
		}
		next[tier] = list
	}
	// Old Uncategorized units not covered by the run are dropped: they
	// were the run's input and anything left behind is stale.

	s.categorized = next
	s.byAddress = make(map[string]*types.Unit)
	for tier, units := range next {
		for _, u := range units {
			u.Category = tier
			s.byAddress[u.Address] = u
		}
	}
}

// Insert adds a unit to a tier, displacing any existing unit tracked
// under the same address.
func (s *Store) Insert(u *types.Unit, tier types.Category) {
	if _, ok := s.byAddress[u.Address]; ok {
		s.Remove(u.Address)
	}
	u.Category = tier
	s.categorized[tier] = append(s.categorized[tier], u)
	s.byAddress[u.Address] = u
}

// Remove deletes the unit for an address from its tier.
func (s *Store) Remove(address string) (*types.Unit, bool) {
	u, ok := s.byAddress[address]
	if !ok {
		return nil, false
	}
	s.categorized[u.Category] = without(s.categorized[u.Category], u)
	delete(s.byAddress, address)
	return u, true
}

// Move reassigns an address to another tier, keeping the unit intact.
func (s *Store) Move(address string, to types.Category) (*types.Unit, bool) {
	u, ok := s.byAddress[address]
	if !ok {
		return nil, false
	}
	if u.Category == to {
		return u, true
	}
	s.categorized[u.Category] = without(s.categorized[u.Category], u)
	u.Category = to
	s.categorized[to] = append(s.categorized[to], u)
	return u, true
}

// AppendDuplicate records one more open instance of an address.
func (s *Store) AppendDuplicate(address string, instanceID int) (*types.Unit, bool) {
	u, ok := s.byAddress[address]
	if !ok {
		return nil, false
	}
	u.DuplicateIDs = append(u.DuplicateIDs, instanceID)
	u.DuplicateCount = len(u.DuplicateIDs)
	return u, true
}

// RemoveDuplicate drops one instance id from a unit. If other ids
// remain, the first remaining one becomes the representative and the
// unit survives under its tier; removing the last id deletes the unit.
// deleted reports whether the unit was removed entirely.
func (s *Store) RemoveDuplicate(address string, instanceID int) (u *types.Unit, deleted bool) {
	u, ok := s.byAddress[address]
	if !ok {
		return nil, false
	}
	ids := u.DuplicateIDs[:0]
	for _, id := range u.DuplicateIDs {
		if id != instanceID {
			ids = append(ids, id)
		}
	}
	u.DuplicateIDs = ids
	u.DuplicateCount = len(ids)
	if u.DuplicateCount == 0 {
		s.Remove(address)
		return u, true
	}
	return u, false
}

// PatchTitle updates a unit's title in place. Category and membership
// are untouched.
func (s *Store) PatchTitle(address, title string) (*types.Unit, bool) {
	u, ok := s.byAddress[address]
	if !ok {
		return nil, false
	}
	u.Title = title
	return u, true
}

// Clear resets the store to empty. Only an explicit operation does
// this; no mutation path clears implicitly.
func (s *Store) Clear() {
	s.categorized = make(map[types.Category][]*types.Unit)
	for _, c := range types.Categories() {
		s.categorized[c] = nil
	}
	s.byAddress = make(map[string]*types.Unit)
}

// Snapshot deep-copies the store for readers outside the engine loop.
func (s *Store) Snapshot() *types.StateSnapshot {
	snap := &types.StateSnapshot{
		Categorized:    make(map[types.Category][]types.Unit, 4),
		DuplicateIndex: make(map[string][]int, len(s.byAddress)),
	}
	for _, tier := range types.Categories() {
		units := make([]types.Unit, 0, len(s.categorized[tier]))
		for _, u := range s.categorized[tier] {
			c := u.Clone()
			units = append(units, *c)
		}
		snap.Categorized[tier] = units
	}
	for address, u := range s.byAddress {
		snap.DuplicateIndex[address] = append([]int(nil), u.DuplicateIDs...)
	}
	return snap
}

func without(list []*types.Unit, target *types.Unit) []*types.Unit {
	for i, u := range list {
		if u == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
