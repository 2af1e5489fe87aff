// Package pipeline orchestrates the classification stages: static
// rules, the optional learned model, the remote provider, and the
// heuristic fallback. Each stage only sees units the earlier stages
// left unresolved, so the earliest verdict always wins.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/tabtriage/tabtriage/internal/applog"
	"github.com/tabtriage/tabtriage/internal/learned"
	"github.com/tabtriage/tabtriage/internal/provider"
	"github.com/tabtriage/tabtriage/internal/rules"
	"github.com/tabtriage/tabtriage/internal/types"
)

// Policy enumerates which stages run. A nil Learned model or nil
// Provider disables that stage.
type Policy struct {
	Rules         []rules.Rule
	Learned       *learned.Model
	MinConfidence float64 // learned verdicts below this fall through
	Provider      provider.Provider
}

// Degradation reasons reported when the remote stage fell back to the
// heuristic.
const (
	DegradedUnavailable   = "provider-unavailable"
	DegradedRequestFailed = "provider-request-failed"
	DegradedUnparseable   = "provider-reply-unparseable"
)

// Outcome is the result of one classification run.
type Outcome struct {
	// Verdicts maps unit ID → verdict for every unit a stage resolved.
	// Units absent from the map stay Uncategorized: that happens only
	// when a successful remote reply omitted them.
	Verdicts map[int]types.Verdict

	// Degraded names the reason the remote stage fell back to the
	// heuristic, or "" when it did not.
	Degraded string
}

// Classify runs the stages over the units in order. Stage-local
// failures degrade to later stages and are never returned as errors;
// only malformed input fails.
func Classify(ctx context.Context, units []*types.Unit, policy Policy) (Outcome, error) {
	out := Outcome{Verdicts: make(map[int]types.Verdict)}

	seen := make(map[int]bool, len(units))
	for _, u := range units {
		if u == nil {
			return Outcome{}, fmt.Errorf("nil unit: %w", types.ErrValidation)
		}
		if u.ID <= 0 || seen[u.ID] {
			return Outcome{}, fmt.Errorf("unit %q has duplicate or unset id %d: %w", u.Address, u.ID, types.ErrValidation)
		}
		seen[u.ID] = true
	}
	if len(units) == 0 {
		return out, nil
	}

	// Stage 1: static rules, declaration order, first enabled match wins.
	remaining := make([]*types.Unit, 0, len(units))
	for _, u := range units {
		if cat, ok := rules.Apply(policy.Rules, u); ok {
			out.Verdicts[u.ID] = types.Verdict{UnitID: u.ID, Category: cat, Provenance: types.ProvenanceRule}
			continue
		}
		remaining = append(remaining, u)
	}

	// Stage 2: learned model; low confidence falls through silently.
	if policy.Learned != nil && len(remaining) > 0 {
		next := remaining[:0]
		for _, u := range remaining {
			if cat, conf, ok := policy.Learned.Predict(u); ok && conf >= policy.MinConfidence {
				out.Verdicts[u.ID] = types.Verdict{UnitID: u.ID, Category: cat, Provenance: types.ProvenanceLearned, Confidence: conf}
				continue
			}
			next = append(next, u)
		}
		remaining = next
	}

	if len(remaining) == 0 {
		return out, nil
	}

	// Stage 3: remote provider, one prompt for all remaining units.
	if policy.Provider != nil {
		replies, err := remoteStage(ctx, policy.Provider, remaining)
		if err == nil {
			// Units the reply omitted stay unresolved; the heuristic
			// only covers total remote failure, not partial replies.
			for _, u := range remaining {
				if cat, ok := replies[u.ID]; ok {
					out.Verdicts[u.ID] = types.Verdict{UnitID: u.ID, Category: cat, Provenance: types.ProvenanceRemote}
				}
			}
			return out, nil
		}
		out.Degraded = degradationReason(err)
		applog.Warn("pipeline.degraded", "provider", policy.Provider.Name(), "reason", out.Degraded, "units", len(remaining))
	}

	// Stage 4: heuristic fallback. Guarantees every remaining unit a
	// real tier; never fails.
	for _, u := range remaining {
		out.Verdicts[u.ID] = types.Verdict{UnitID: u.ID, Category: Guess(u), Provenance: types.ProvenanceHeuristic}
	}
	return out, nil
}

func remoteStage(ctx context.Context, p provider.Provider, units []*types.Unit) (map[int]types.Category, error) {
	prompt, err := provider.BuildPrompt(units)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrRequestFailed, err)
	}
	raw, err := p.Classify(ctx, prompt)
	if err != nil {
		return nil, err
	}
	valid := make(map[int]bool, len(units))
	for _, u := range units {
		valid[u.ID] = true
	}
	return provider.ParseReply(raw, valid)
}

func degradationReason(err error) string {
	switch {
	case errors.Is(err, provider.ErrUnavailable):
		return DegradedUnavailable
	case errors.Is(err, provider.ErrUnparseable):
		return DegradedUnparseable
	default:
		return DegradedRequestFailed
	}
}
