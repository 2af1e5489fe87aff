package engine

import (
	"context"

	"github.com/tabtriage/tabtriage/internal/pipeline"
	"github.com/tabtriage/tabtriage/internal/storage"
	"github.com/tabtriage/tabtriage/internal/types"
)

// event is anything the dispatch loop processes. Concrete types carry
// their own payload; requests additionally carry a buffered reply
// channel so the loop never blocks answering.
type event interface{}

type snapshotEvent struct{ tabs []types.Tab }
type createdEvent struct{ tab types.Tab }
type updatedEvent struct{ tab types.Tab }
type removedEvent struct{ instanceID int }

type runDoneEvent struct {
	runID    string
	source   runSource
	units    []*types.Unit
	excluded []*types.Unit
	outcome  pipeline.Outcome
	err      error
	reply    chan ClassifyReply
}

type stateRequest struct{ reply chan *types.StateSnapshot }

type classifyRequest struct {
	tabs    []types.Tab
	exclude []string
	reply   chan ClassifyReply
}

type correctRequest struct {
	address string
	from    types.Category
	to      types.Category
	reply   chan error
}

type listURLsRequest struct {
	savedOnly bool
	reply     chan listURLsReply
}

type listURLsReply struct {
	records []storage.URLRecord
	err     error
}

type saveURLRequest struct {
	address string
	save    bool
	reply   chan error
}

type deleteURLRequest struct {
	address string
	reply   chan error
}

type clearRequest struct{ reply chan struct{} }

// ClassifyReply is the result of a classification request: deep copies
// of the three assigned tiers as produced by the run, plus the degraded
// marker when the remote stage was skipped.
type ClassifyReply struct {
	Tiers    map[types.Category][]types.Unit
	Degraded string
	Err      error
}

// HandleSnapshot enqueues a full host snapshot. Blocks until the loop
// accepts it, which keeps host ordering intact under load.
func (e *Engine) HandleSnapshot(tabs []types.Tab) {
	e.events <- snapshotEvent{tabs: tabs}
}

// HandleCreated enqueues a single tab creation.
func (e *Engine) HandleCreated(tab types.Tab) {
	e.events <- createdEvent{tab: tab}
}

// HandleUpdated enqueues a tab navigation or title change.
func (e *Engine) HandleUpdated(tab types.Tab) {
	e.events <- updatedEvent{tab: tab}
}

// HandleRemoved enqueues a tab close.
func (e *Engine) HandleRemoved(instanceID int) {
	e.events <- removedEvent{instanceID: instanceID}
}

// GetState returns a deep copy of the current canonical state.
func (e *Engine) GetState(ctx context.Context) (*types.StateSnapshot, error) {
	req := stateRequest{reply: make(chan *types.StateSnapshot, 1)}
	if err := e.send(ctx, req); err != nil {
		return nil, err
	}
	select {
	case snap := <-req.reply:
		return snap, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Classify runs the full pipeline over a declared tab set and waits for
// the run to complete. Addresses in exclude skip classification and land
// in CanClose marked as already saved.
func (e *Engine) Classify(ctx context.Context, tabs []types.Tab, exclude []string) (ClassifyReply, error) {
	req := classifyRequest{tabs: tabs, exclude: exclude, reply: make(chan ClassifyReply, 1)}
	if err := e.send(ctx, req); err != nil {
		return ClassifyReply{}, err
	}
	select {
	case reply := <-req.reply:
		return reply, reply.Err
	case <-ctx.Done():
		return ClassifyReply{}, ctx.Err()
	}
}

// Correct applies a user correction: the unit moves to the target tier
// and the verdict is persisted with user provenance, which no later
// automatic run may overwrite.
func (e *Engine) Correct(ctx context.Context, address string, from, to types.Category) error {
	req := correctRequest{address: address, from: from, to: to, reply: make(chan error, 1)}
	if err := e.send(ctx, req); err != nil {
		return err
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListURLs returns persisted records, optionally only saved ones.
func (e *Engine) ListURLs(ctx context.Context, savedOnly bool) ([]storage.URLRecord, error) {
	req := listURLsRequest{savedOnly: savedOnly, reply: make(chan listURLsReply, 1)}
	if err := e.send(ctx, req); err != nil {
		return nil, err
	}
	select {
	case r := <-req.reply:
		return r.records, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SaveURL sets or clears the saved flag on a record, creating the
// record when saving an unknown address.
func (e *Engine) SaveURL(ctx context.Context, address string, save bool) error {
	req := saveURLRequest{address: address, save: save, reply: make(chan error, 1)}
	if err := e.send(ctx, req); err != nil {
		return err
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DeleteURL removes a record and its event history.
func (e *Engine) DeleteURL(ctx context.Context, address string) error {
	req := deleteURLRequest{address: address, reply: make(chan error, 1)}
	if err := e.send(ctx, req); err != nil {
		return err
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clear resets all in-memory tiers. Persisted records are untouched.
func (e *Engine) Clear(ctx context.Context) error {
	req := clearRequest{reply: make(chan struct{}, 1)}
	if err := e.send(ctx, req); err != nil {
		return err
	}
	select {
	case <-req.reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) send(ctx context.Context, ev event) error {
	select {
	case e.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
