// Package dedupe groups observed tab instances into classification
// units by exact address equality.
package dedupe

import (
	"fmt"
	"strings"

	"github.com/tabtriage/tabtriage/internal/addr"
	"github.com/tabtriage/tabtriage/internal/types"
)

// Result holds the output of one dedup pass.
type Result struct {
	Units     []*types.Unit          // classifiable units, first-appearance order
	Excluded  []*types.Unit          // already-saved units, kept for display only
	ByAddress map[string]*types.Unit // every address → its unit (both kinds)
}

// Run groups tabs by exact address equality after trimming whitespace.
// No further normalization: addresses differing by a trailing slash or
// query order are distinct units. Tabs whose address is in excluded are
// routed to Result.Excluded with AlreadySaved set and never reach the
// classification pipeline. Surrogate unit IDs are assigned in order of
// first appearance, classifiable units first.
func Run(tabs []types.Tab, excluded map[string]bool) (Result, error) {
	res := Result{ByAddress: make(map[string]*types.Unit)}

	for _, tab := range tabs {
		address := strings.TrimSpace(tab.Address)
		if address == "" {
			return Result{}, fmt.Errorf("tab %d has empty address: %w", tab.InstanceID, types.ErrValidation)
		}

		if unit, ok := res.ByAddress[address]; ok {
			unit.DuplicateIDs = append(unit.DuplicateIDs, tab.InstanceID)
			unit.DuplicateCount = len(unit.DuplicateIDs)
			continue
		}

		unit := &types.Unit{
			Address:        address,
			Title:          strings.TrimSpace(tab.Title),
			Domain:         addr.Domain(address),
			DuplicateIDs:   []int{tab.InstanceID},
			DuplicateCount: 1,
		}
		res.ByAddress[address] = unit

		if excluded[address] {
			unit.AlreadySaved = true
			res.Excluded = append(res.Excluded, unit)
		} else {
			res.Units = append(res.Units, unit)
		}
	}

	id := 0
	for _, u := range res.Units {
		id++
		u.ID = id
	}
	for _, u := range res.Excluded {
		id++
		u.ID = id
	}

	return res, nil
}
