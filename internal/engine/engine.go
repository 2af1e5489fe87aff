// Package engine owns the canonical classification state. Every
// mutation — host lifecycle events, sync protocol calls, classification
// run completions, resolved titles — funnels through one dispatch loop
// goroutine, so state updates are serialized and need no locks.
// Classification runs execute in their own goroutines and re-enter the
// loop as events when they complete.
package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/tabtriage/tabtriage/internal/applog"
	"github.com/tabtriage/tabtriage/internal/learned"
	"github.com/tabtriage/tabtriage/internal/pipeline"
	"github.com/tabtriage/tabtriage/internal/provider"
	"github.com/tabtriage/tabtriage/internal/rules"
	"github.com/tabtriage/tabtriage/internal/state"
	"github.com/tabtriage/tabtriage/internal/storage"
	"github.com/tabtriage/tabtriage/internal/titles"
	"github.com/tabtriage/tabtriage/internal/types"
)

// Options configures a new engine. Nil optional fields disable the
// corresponding stage or feature.
type Options struct {
	DB            *sql.DB
	Provider      provider.Provider   // nil disables the remote stage
	Rules         []rules.Rule        // initial rule set
	RulesUpdates  <-chan []rules.Rule // hot-reloaded rule sets, may be nil
	Resolver      *titles.Resolver    // nil disables title resolution
	UseLearned    bool
	MinConfidence float64
	RunTimeout    time.Duration // deadline per classification run, default 90s
}

// Engine is the single-writer owner of canonical state. Public methods
// are safe to call from any goroutine; they enqueue onto the dispatch
// loop and, for requests, wait on a reply channel.
type Engine struct {
	db         *sql.DB
	store      *state.Store
	policy     pipeline.Policy
	useLearned bool
	runTimeout time.Duration
	resolver   *titles.Resolver
	rulesCh    <-chan []rules.Rule

	events chan event
	done   chan struct{}
	push   func(types.PushEvent)

	// instances maps live host instance ids to the tracked address.
	// Owned by the loop goroutine.
	instances map[int]string
	lastRun   string
}

// New creates an engine. Call Run to start the dispatch loop.
func New(opts Options) *Engine {
	e := &Engine{
		db:    opts.DB,
		store: state.NewStore(),
		policy: pipeline.Policy{
			Rules:         opts.Rules,
			MinConfidence: opts.MinConfidence,
			Provider:      opts.Provider,
		},
		useLearned: opts.UseLearned,
		runTimeout: opts.RunTimeout,
		resolver:   opts.Resolver,
		rulesCh:    opts.RulesUpdates,
		events:     make(chan event, 64),
		done:       make(chan struct{}),
		instances:  make(map[int]string),
	}
	if e.runTimeout == 0 {
		e.runTimeout = 90 * time.Second
	}
	return e
}

// SetPush installs the push sink for state change notifications.
// Must be called before Run.
func (e *Engine) SetPush(fn func(types.PushEvent)) {
	e.push = fn
}

// Run is the dispatch loop. It blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	applog.Info("engine.start")
	defer close(e.done)

	e.retrain()

	var resolved <-chan titles.Result
	if e.resolver != nil {
		resolved = e.resolver.Results
	}

	for {
		select {
		case <-ctx.Done():
			applog.Info("engine.stop")
			return
		case ev := <-e.events:
			e.dispatch(ev)
		case rs := <-e.rulesCh: // nil channel when hot reload is off
			e.policy.Rules = rs
			applog.Info("engine.rules.reloaded", "count", len(rs))
		case res := <-resolved:
			e.handleTitle(res.Address, res.Title)
		}
	}
}

func (e *Engine) dispatch(ev event) {
	switch ev := ev.(type) {
	case snapshotEvent:
		e.handleSnapshot(ev.tabs)
	case createdEvent:
		e.handleCreated(ev.tab)
	case updatedEvent:
		e.handleUpdated(ev.tab)
	case removedEvent:
		e.handleRemoved(ev.instanceID)
	case runDoneEvent:
		e.finishRun(ev)
	case stateRequest:
		ev.reply <- e.store.Snapshot()
	case classifyRequest:
		e.handleClassify(ev)
	case correctRequest:
		e.handleCorrect(ev)
	case listURLsRequest:
		e.handleListURLs(ev)
	case saveURLRequest:
		e.handleSaveURL(ev)
	case deleteURLRequest:
		e.handleDeleteURL(ev)
	case clearRequest:
		e.handleClear(ev)
	}
}

// emit pushes one change notification. No-op when no sink is installed;
// the sink itself decides whether to drop.
func (e *Engine) emit(kind string, u *types.Unit) {
	if e.push == nil {
		return
	}
	var clone *types.Unit
	if u != nil {
		clone = u.Clone()
	}
	e.push(types.PushEvent{Type: kind, Unit: clone, Timestamp: time.Now()})
}

// retrain rebuilds the learned model from persisted records.
func (e *Engine) retrain() {
	if !e.useLearned {
		return
	}
	recs, err := storage.ListCategorized(e.db)
	if err != nil {
		applog.Error("engine.retrain", err)
		return
	}
	examples := make([]learned.Example, 0, len(recs))
	for _, r := range recs {
		examples = append(examples, learned.Example{
			Address:    r.Address,
			Title:      r.Title,
			Category:   r.Category,
			Provenance: r.Provenance,
		})
	}
	e.policy.Learned = learned.Train(examples)
	applog.Info("engine.retrain", "examples", len(examples))
}
