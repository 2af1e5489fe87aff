package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/tabtriage/tabtriage/internal/addr"
	"github.com/tabtriage/tabtriage/internal/applog"
	"github.com/tabtriage/tabtriage/internal/metrics"
	"github.com/tabtriage/tabtriage/internal/pipeline"
	"github.com/tabtriage/tabtriage/internal/storage"
	"github.com/tabtriage/tabtriage/internal/types"
)

// runSource tells finishRun how to install results. Snapshot runs merge
// back into live tracking (tabs may have closed or navigated since the
// run started); client runs install their declared set authoritatively.
type runSource int

const (
	runSnapshot runSource = iota
	runClient
)

// startRun launches one classification run. The pipeline gets clones so
// in-flight units never race with loop mutations; the completion
// re-enters the loop as a runDoneEvent and merges on top of whatever
// state exists by then.
func (e *Engine) startRun(source runSource, units, excluded []*types.Unit, reply chan ClassifyReply) {
	runID := uuid.NewString()
	e.lastRun = runID
	metrics.RunsTotal.Inc()

	clones := make([]*types.Unit, len(units))
	for i, u := range units {
		clones[i] = u.Clone()
	}
	excludedClones := make([]*types.Unit, len(excluded))
	for i, x := range excluded {
		excludedClones[i] = x.Clone()
	}

	policy := e.policy
	timeout := e.runTimeout
	applog.Info("run.start", "run", runID, "units", len(clones), "excluded", len(excludedClones))

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		out, err := pipeline.Classify(ctx, clones, policy)
		ev := runDoneEvent{
			runID:    runID,
			source:   source,
			units:    clones,
			excluded: excludedClones,
			outcome:  out,
			err:      err,
			reply:    reply,
		}
		select {
		case e.events <- ev:
		case <-e.done:
		}
	}()
}

// finishRun merges a completed run into canonical state. Verdicts are
// reconciled against persisted records, installed via bulk replace, and
// persisted; a user correction that landed while the run was in flight
// always survives.
func (e *Engine) finishRun(ev runDoneEvent) {
	if ev.err != nil {
		applog.Error("run.failed", ev.err, "run", ev.runID)
		if ev.reply != nil {
			ev.reply <- ClassifyReply{Err: ev.err}
		}
		return
	}
	if ev.runID != e.lastRun {
		// A newer run started meanwhile; this one still merges, the
		// newer completion will land on top.
		applog.Info("run.stale", "run", ev.runID)
	}

	addresses := make([]string, 0, len(ev.units))
	for _, u := range ev.units {
		addresses = append(addresses, u.Address)
	}
	records, err := storage.GetRecords(e.db, addresses)
	if err != nil {
		// The run still completes on in-memory state.
		applog.Error("run.records", err, "run", ev.runID)
		records = nil
	}

	covered := make(map[string]bool, len(ev.units)+len(ev.excluded))
	fresh := make(map[types.Category][]*types.Unit)
	persisted := 0

	for _, u := range ev.units {
		covered[u.Address] = true
		cat := types.Uncategorized
		var prov types.Provenance
		if v, ok := ev.outcome.Verdicts[u.ID]; ok {
			cat = v.Category
			prov = v.Provenance
		}
		if rec, ok := records[u.Address]; ok {
			cat, prov = mergeVerdict(cat, prov, rec)
		}

		if ev.source == runSnapshot {
			live, ok := e.store.Get(u.Address)
			if !ok {
				// Closed while the run was in flight. The verdict still
				// becomes history for the next encounter.
				if e.persistVerdict(u, cat, prov, records) {
					persisted++
				}
				continue
			}
			// Adopt live duplicate tracking; create/remove events kept
			// it current while we were classifying.
			u.DuplicateIDs = append([]int(nil), live.DuplicateIDs...)
			u.DuplicateCount = live.DuplicateCount
			if live.Title != "" {
				u.Title = live.Title
			}
		}

		u.Category = cat
		u.Provenance = prov
		fresh[cat] = append(fresh[cat], u)
		if e.persistVerdict(u, cat, prov, records) {
			persisted++
		}
		if prov != "" {
			metrics.Verdicts.WithLabelValues(string(prov)).Inc()
		}
	}

	for _, x := range ev.excluded {
		covered[x.Address] = true
		x.Category = types.CanClose
		fresh[types.CanClose] = append(fresh[types.CanClose], x)
	}

	// Units that appeared after the run started are not covered by it;
	// keep them tracked rather than letting the replace sweep them out.
	for _, live := range e.store.Tier(types.Uncategorized) {
		if !covered[live.Address] {
			fresh[types.Uncategorized] = append(fresh[types.Uncategorized], live)
		}
	}

	e.store.BulkReplace(fresh)
	metrics.SetUnitCounts(e.store.Counts())
	if ev.outcome.Degraded != "" {
		metrics.ProviderFailures.WithLabelValues(ev.outcome.Degraded).Inc()
	}
	if persisted > 0 {
		e.retrain()
	}
	e.emit(types.EventRefresh, nil)
	applog.Info("run.done",
		"run", ev.runID, "units", len(ev.units),
		"persisted", persisted, "degraded", ev.outcome.Degraded)

	if ev.reply != nil {
		ev.reply <- ClassifyReply{Tiers: tierCopies(fresh), Degraded: ev.outcome.Degraded}
	}
}

// mergeVerdict resolves a fresh verdict against the persisted record. A
// user correction wins from either side; otherwise the higher tier
// does, with the fresh verdict taking ties.
func mergeVerdict(cat types.Category, prov types.Provenance, rec storage.URLRecord) (types.Category, types.Provenance) {
	if prov == types.ProvenanceCorrection {
		return cat, prov
	}
	if rec.Provenance == types.ProvenanceCorrection {
		return rec.Category, rec.Provenance
	}
	if rec.Category > cat {
		return rec.Category, rec.Provenance
	}
	return cat, prov
}

// persistVerdict writes a finalized verdict as the address's record.
// History replays and empty verdicts never write, and unchanged records
// are skipped so runs stay idempotent.
func (e *Engine) persistVerdict(u *types.Unit, cat types.Category, prov types.Provenance, records map[string]storage.URLRecord) bool {
	if cat == types.Uncategorized || prov == "" || prov == types.ProvenanceHistory {
		return false
	}
	if rec, ok := records[u.Address]; ok && rec.Category == cat && rec.Provenance == prov {
		return false
	}
	err := storage.UpsertRecord(e.db, storage.URLRecord{
		Address:    u.Address,
		Title:      u.Title,
		Domain:     u.Domain,
		Category:   cat,
		Provenance: prov,
	})
	if err != nil {
		applog.Error("run.persist", err, "address", addr.Truncate(u.Address, 120))
		return false
	}
	return true
}

// tierCopies deep-copies the three assigned tiers for a classify reply.
func tierCopies(fresh map[types.Category][]*types.Unit) map[types.Category][]types.Unit {
	out := make(map[types.Category][]types.Unit, 3)
	for _, tier := range []types.Category{types.CanClose, types.SaveLater, types.Important} {
		units := make([]types.Unit, 0, len(fresh[tier]))
		for _, u := range fresh[tier] {
			units = append(units, *u.Clone())
		}
		out[tier] = units
	}
	return out
}
