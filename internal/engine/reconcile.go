package engine

import (
	"errors"
	"strings"

	"github.com/tabtriage/tabtriage/internal/addr"
	"github.com/tabtriage/tabtriage/internal/applog"
	"github.com/tabtriage/tabtriage/internal/dedupe"
	"github.com/tabtriage/tabtriage/internal/metrics"
	"github.com/tabtriage/tabtriage/internal/storage"
	"github.com/tabtriage/tabtriage/internal/titles"
	"github.com/tabtriage/tabtriage/internal/types"
)

// handleSnapshot rebuilds tracking from a full host snapshot: dedupe,
// then history lookup for known addresses, then one classification run
// over whatever is still uncategorized. Units already assigned a tier
// are not re-classified.
func (e *Engine) handleSnapshot(tabs []types.Tab) {
	metrics.LifecycleEvents.WithLabelValues("snapshot").Inc()

	clean := make([]types.Tab, 0, len(tabs))
	for _, t := range tabs {
		if strings.TrimSpace(t.Address) == "" {
			applog.Warn("engine.snapshot.skip", "reason", "empty address", "instance", t.InstanceID)
			continue
		}
		clean = append(clean, t)
	}

	saved, err := storage.SavedAddresses(e.db)
	if err != nil {
		applog.Error("engine.saved.load", err)
		saved = nil
	}

	res, err := dedupe.Run(clean, saved)
	if err != nil {
		applog.Error("engine.snapshot.dedupe", err)
		return
	}

	e.instances = make(map[int]string, len(clean))
	for _, t := range clean {
		e.instances[t.InstanceID] = strings.TrimSpace(t.Address)
	}

	addresses := make([]string, 0, len(res.Units))
	for _, u := range res.Units {
		addresses = append(addresses, u.Address)
	}
	records, err := storage.GetRecords(e.db, addresses)
	if err != nil {
		applog.Error("engine.history.bulk", err)
		records = nil
	}

	fresh := make(map[types.Category][]*types.Unit)
	var unresolved []*types.Unit
	for _, u := range res.Units {
		if rec, ok := records[u.Address]; ok && rec.Category != types.Uncategorized {
			u.Category = rec.Category
			u.Provenance = types.ProvenanceHistory
		} else {
			unresolved = append(unresolved, u)
		}
		fresh[u.Category] = append(fresh[u.Category], u)
	}
	for _, x := range res.Excluded {
		x.Category = types.CanClose
		fresh[types.CanClose] = append(fresh[types.CanClose], x)
	}

	e.store.BulkReplace(fresh)
	metrics.SetUnitCounts(e.store.Counts())
	e.emit(types.EventRefresh, nil)
	applog.Info("engine.snapshot",
		"tabs", len(clean), "units", len(res.Units),
		"excluded", len(res.Excluded), "unresolved", len(unresolved))

	if e.resolver != nil {
		for _, u := range res.Units {
			if titles.ShouldResolve(u.Title, u.Address) {
				e.resolver.Enqueue(u.Address)
			}
		}
	}

	if len(unresolved) > 0 {
		e.startRun(runSnapshot, unresolved, nil, nil)
	}
}

// handleCreated tracks one new tab instance. Same-address instances
// merge into the existing unit; otherwise a new unit enters at its
// historical tier, or Uncategorized when the address is unknown.
func (e *Engine) handleCreated(tab types.Tab) {
	address := strings.TrimSpace(tab.Address)
	if address == "" {
		applog.Warn("engine.created.skip", "reason", "empty address", "instance", tab.InstanceID)
		return
	}
	metrics.LifecycleEvents.WithLabelValues("created").Inc()

	u, merged := e.trackInstance(tab, address)
	if err := storage.AppendEvent(e.db, address, storage.EventOpen, tab.InstanceID); err != nil {
		applog.Error("engine.event.open", err, "address", addr.Truncate(address, 120))
	}

	kind := types.EventCreated
	if merged {
		kind = types.EventDuplicateCreated
	}
	e.emit(kind, u)
	metrics.SetUnitCounts(e.store.Counts())
}

// handleUpdated distinguishes navigation from a title change. A
// navigation silently moves the instance between units and emits a
// single notification; no open or close event is recorded.
func (e *Engine) handleUpdated(tab types.Tab) {
	address := strings.TrimSpace(tab.Address)
	old, tracked := e.instances[tab.InstanceID]
	if !tracked {
		e.handleCreated(tab)
		return
	}
	if address == "" || address == old {
		metrics.LifecycleEvents.WithLabelValues("title").Inc()
		e.handleTitle(old, tab.Title)
		return
	}

	metrics.LifecycleEvents.WithLabelValues("navigated").Inc()
	e.store.RemoveDuplicate(old, tab.InstanceID)
	u, _ := e.trackInstance(tab, address)
	e.emit(types.EventNavigated, u)
	metrics.SetUnitCounts(e.store.Counts())
}

// handleRemoved drops one instance. The unit survives while other
// duplicates remain; a close event is recorded either way.
func (e *Engine) handleRemoved(instanceID int) {
	address, ok := e.instances[instanceID]
	if !ok {
		applog.Warn("engine.removed.unknown", "instance", instanceID)
		return
	}
	metrics.LifecycleEvents.WithLabelValues("removed").Inc()
	delete(e.instances, instanceID)

	u, _ := e.store.RemoveDuplicate(address, instanceID)
	if err := storage.AppendEvent(e.db, address, storage.EventClose, instanceID); err != nil {
		applog.Error("engine.event.close", err, "address", addr.Truncate(address, 120))
	}

	e.emit(types.EventRemoved, u)
	metrics.SetUnitCounts(e.store.Counts())
}

// handleTitle patches a resolved or host-reported title onto the unit
// and its record.
func (e *Engine) handleTitle(address, title string) {
	title = strings.TrimSpace(title)
	if title == "" {
		return
	}
	u, ok := e.store.PatchTitle(address, title)
	if !ok {
		return
	}
	if err := storage.UpdateRecordTitle(e.db, address, title); err != nil {
		applog.Error("engine.title.persist", err, "address", addr.Truncate(address, 120))
	}
	e.emit(types.EventRefresh, u)
}

// trackInstance registers one live instance under its address and
// returns the unit it landed in, plus whether it merged into an
// existing one.
func (e *Engine) trackInstance(tab types.Tab, address string) (*types.Unit, bool) {
	e.instances[tab.InstanceID] = address

	if u, ok := e.store.Get(address); ok {
		e.store.AppendDuplicate(address, tab.InstanceID)
		return u, true
	}

	cat := types.Uncategorized
	var prov types.Provenance
	rec, err := storage.GetRecord(e.db, address)
	switch {
	case err == nil && rec.Category != types.Uncategorized:
		cat = rec.Category
		prov = types.ProvenanceHistory
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		// Storage trouble degrades to Uncategorized, never blocks.
		applog.Error("engine.history", err, "address", addr.Truncate(address, 120))
	}

	u := &types.Unit{
		Address:        address,
		Title:          strings.TrimSpace(tab.Title),
		Domain:         addr.Domain(address),
		Category:       cat,
		Provenance:     prov,
		DuplicateIDs:   []int{tab.InstanceID},
		DuplicateCount: 1,
	}
	e.store.Insert(u, cat)

	if e.resolver != nil && titles.ShouldResolve(u.Title, address) {
		e.resolver.Enqueue(address)
	}
	return u, false
}
