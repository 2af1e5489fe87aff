package engine

import (
	"fmt"
	"strings"

	"github.com/tabtriage/tabtriage/internal/addr"
	"github.com/tabtriage/tabtriage/internal/applog"
	"github.com/tabtriage/tabtriage/internal/dedupe"
	"github.com/tabtriage/tabtriage/internal/metrics"
	"github.com/tabtriage/tabtriage/internal/storage"
	"github.com/tabtriage/tabtriage/internal/types"
)

// handleClassify runs the full pipeline over a client-declared tab set.
// Malformed input is the caller's bug and comes back as a validation
// error instead of being silently dropped.
func (e *Engine) handleClassify(req classifyRequest) {
	exclude := make(map[string]bool, len(req.exclude))
	for _, a := range req.exclude {
		exclude[strings.TrimSpace(a)] = true
	}

	res, err := dedupe.Run(req.tabs, exclude)
	if err != nil {
		req.reply <- ClassifyReply{Err: err}
		return
	}

	e.instances = make(map[int]string, len(req.tabs))
	for _, t := range req.tabs {
		e.instances[t.InstanceID] = strings.TrimSpace(t.Address)
	}

	e.startRun(runClient, res.Units, res.Excluded, req.reply)
}

// handleCorrect moves a unit to the user's chosen tier and persists the
// verdict with user provenance. The unit need not be live; the record
// is written regardless so the correction binds future encounters.
func (e *Engine) handleCorrect(req correctRequest) {
	address := strings.TrimSpace(req.address)
	if address == "" {
		req.reply <- fmt.Errorf("%w: empty address", types.ErrValidation)
		return
	}
	if !req.to.Valid() {
		req.reply <- fmt.Errorf("%w: category %d", types.ErrValidation, int(req.to))
		return
	}

	title := ""
	domain := addr.Domain(address)
	if u, ok := e.store.Get(address); ok {
		if u.Category != req.from {
			applog.Warn("engine.correct.stale",
				"address", addr.Truncate(address, 120),
				"expected", req.from.String(), "actual", u.Category.String())
		}
		e.store.Move(address, req.to)
		u.Provenance = types.ProvenanceCorrection
		title = u.Title
		e.emit(types.EventRefresh, u)
	}

	err := storage.UpsertRecord(e.db, storage.URLRecord{
		Address:    address,
		Title:      title,
		Domain:     domain,
		Category:   req.to,
		Provenance: types.ProvenanceCorrection,
	})
	if err != nil {
		applog.Error("engine.correct.persist", err, "address", addr.Truncate(address, 120))
		req.reply <- err
		return
	}

	metrics.Verdicts.WithLabelValues(string(types.ProvenanceCorrection)).Inc()
	metrics.SetUnitCounts(e.store.Counts())
	applog.Info("engine.correct",
		"address", addr.Truncate(address, 120),
		"from", req.from.String(), "to", req.to.String())
	e.retrain()
	req.reply <- nil
}

func (e *Engine) handleListURLs(req listURLsRequest) {
	recs, err := storage.ListRecords(e.db, req.savedOnly)
	if err != nil {
		applog.Error("engine.urls.list", err)
	}
	req.reply <- listURLsReply{records: recs, err: err}
}

func (e *Engine) handleSaveURL(req saveURLRequest) {
	address := strings.TrimSpace(req.address)
	if address == "" {
		req.reply <- fmt.Errorf("%w: empty address", types.ErrValidation)
		return
	}
	err := storage.SetSaved(e.db, address, req.save)
	if err != nil {
		applog.Error("engine.urls.save", err, "address", addr.Truncate(address, 120))
	} else {
		applog.Info("engine.urls.save", "address", addr.Truncate(address, 120), "saved", req.save)
	}
	req.reply <- err
}

func (e *Engine) handleDeleteURL(req deleteURLRequest) {
	address := strings.TrimSpace(req.address)
	if address == "" {
		req.reply <- fmt.Errorf("%w: empty address", types.ErrValidation)
		return
	}
	err := storage.DeleteRecord(e.db, address)
	if err != nil {
		applog.Error("engine.urls.delete", err, "address", addr.Truncate(address, 120))
	} else {
		applog.Info("engine.urls.delete", "address", addr.Truncate(address, 120))
	}
	req.reply <- err
}

// handleClear drops all in-memory tiers and live tracking. Persisted
// records survive; only the working state resets.
func (e *Engine) handleClear(req clearRequest) {
	e.store.Clear()
	e.instances = make(map[int]string)
	metrics.SetUnitCounts(e.store.Counts())
	e.emit(types.EventRefresh, nil)
	applog.Info("engine.clear")
	req.reply <- struct{}{}
}
