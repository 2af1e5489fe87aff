package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/tabtriage/tabtriage/internal/learned"
	"github.com/tabtriage/tabtriage/internal/provider"
	"github.com/tabtriage/tabtriage/internal/rules"
	"github.com/tabtriage/tabtriage/internal/types"
)

type fakeProvider struct {
	reply      string
	err        error
	calls      int
	lastPrompt string
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Classify(ctx context.Context, prompt string) (string, error) {
	f.calls++
	f.lastPrompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func unit(id int, address, title string) *types.Unit {
	return &types.Unit{ID: id, Address: address, Title: title, Domain: domainOf(address)}
}

func domainOf(address string) string {
	s := strings.TrimPrefix(strings.TrimPrefix(address, "https://"), "http://")
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimPrefix(s, "www.")
}

func mustRules(t *testing.T, doc string) []rules.Rule {
	t.Helper()
	rs, err := rules.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse rules: %v", err)
	}
	return rs
}

// Mirrors the full pipeline flow: a rule catches B, the remote verdict
// covers A and C, and the rule-stage unit never reaches the provider.
func TestClassifyStageOrder(t *testing.T) {
	rs := mustRules(t, `
rules:
  - {name: b, kind: domain, pattern: b.example, category: can-close}
`)
	fake := &fakeProvider{reply: `{"1":3,"3":2}`}
	units := []*types.Unit{
		unit(1, "https://a.example/", "A"),
		unit(2, "https://b.example/", "B"),
		unit(3, "https://c.example/", "C"),
	}

	out, err := Classify(context.Background(), units, Policy{Rules: rs, Provider: fake})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if out.Degraded != "" {
		t.Errorf("Degraded = %q, want clean run", out.Degraded)
	}
	want := map[int]struct {
		cat  types.Category
		prov types.Provenance
	}{
		1: {types.Important, types.ProvenanceRemote},
		2: {types.CanClose, types.ProvenanceRule},
		3: {types.SaveLater, types.ProvenanceRemote},
	}
	for id, w := range want {
		v, ok := out.Verdicts[id]
		if !ok {
			t.Fatalf("unit %d unresolved", id)
		}
		if v.Category != w.cat || v.Provenance != w.prov {
			t.Errorf("unit %d = %v/%v, want %v/%v", id, v.Category, v.Provenance, w.cat, w.prov)
		}
	}

	if fake.calls != 1 {
		t.Errorf("provider calls = %d, want 1", fake.calls)
	}
	if strings.Contains(fake.lastPrompt, "b.example") {
		t.Error("rule-resolved unit leaked into the remote prompt")
	}
}

func TestClassifyLearnedStage(t *testing.T) {
	examples := make([]learned.Example, 6)
	for i := range examples {
		examples[i] = learned.Example{
			Address:  fmt.Sprintf("https://jira.example.com/browse/T-%d", i),
			Title:    fmt.Sprintf("T-%d ticket", i),
			Category: types.Important,
		}
	}
	model := learned.Train(examples)
	fake := &fakeProvider{reply: `{}`}

	units := []*types.Unit{unit(1, "https://jira.example.com/browse/T-99", "T-99 ticket")}
	out, err := Classify(context.Background(), units, Policy{
		Learned:       model,
		MinConfidence: 0.6,
		Provider:      fake,
	})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	v := out.Verdicts[1]
	if v.Provenance != types.ProvenanceLearned || v.Category != types.Important {
		t.Errorf("verdict = %+v, want learned/important", v)
	}
	if v.Confidence < 0.6 {
		t.Errorf("confidence = %v, want >= threshold", v.Confidence)
	}
	if fake.calls != 0 {
		t.Errorf("provider calls = %d, want 0 — nothing left for the remote stage", fake.calls)
	}
}

func TestClassifyLowConfidenceFallsThrough(t *testing.T) {
	examples := []learned.Example{
		{Address: "https://mixed.example/a", Title: "alpha", Category: types.Important},
		{Address: "https://mixed.example/b", Title: "beta", Category: types.CanClose},
		{Address: "https://mixed.example/c", Title: "gamma", Category: types.SaveLater},
		{Address: "https://mixed.example/d", Title: "delta", Category: types.Important},
		{Address: "https://mixed.example/e", Title: "epsilon", Category: types.CanClose},
		{Address: "https://mixed.example/f", Title: "zeta", Category: types.SaveLater},
	}
	model := learned.Train(examples)
	fake := &fakeProvider{reply: `{"1":1}`}

	units := []*types.Unit{unit(1, "https://mixed.example/new", "new page")}
	out, err := Classify(context.Background(), units, Policy{
		Learned:       model,
		MinConfidence: 0.9, // an evenly split domain cannot reach this
		Provider:      fake,
	})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if v := out.Verdicts[1]; v.Provenance != types.ProvenanceRemote {
		t.Errorf("provenance = %v, want remote after low-confidence fall-through", v.Provenance)
	}
}

func TestClassifyRemoteFailureFallsToHeuristic(t *testing.T) {
	for _, tt := range []struct {
		err  error
		want string
	}{
		{provider.ErrUnavailable, DegradedUnavailable},
		{provider.ErrRequestFailed, DegradedRequestFailed},
		{fmt.Errorf("%w: gibberish", provider.ErrUnparseable), DegradedUnparseable},
	} {
		fake := &fakeProvider{err: tt.err}
		units := []*types.Unit{unit(1, "https://news.ycombinator.com/item?id=1", "HN")}
		out, err := Classify(context.Background(), units, Policy{Provider: fake})
		if err != nil {
			t.Fatalf("Classify: %v", err)
		}
		if out.Degraded != tt.want {
			t.Errorf("Degraded = %q, want %q", out.Degraded, tt.want)
		}
		v, ok := out.Verdicts[1]
		if !ok || v.Provenance != types.ProvenanceHeuristic {
			t.Fatalf("verdict = %+v, want a heuristic assignment", v)
		}
		if v.Category == types.Uncategorized {
			t.Error("heuristic left the unit uncategorized")
		}
	}
}

func TestClassifyUnparseableReplyFallsToHeuristic(t *testing.T) {
	fake := &fakeProvider{reply: "I cannot classify these tabs, sorry."}
	units := []*types.Unit{unit(1, "https://a.example/", "A")}
	out, err := Classify(context.Background(), units, Policy{Provider: fake})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if out.Degraded != DegradedUnparseable {
		t.Errorf("Degraded = %q, want %q", out.Degraded, DegradedUnparseable)
	}
	if out.Verdicts[1].Provenance != types.ProvenanceHeuristic {
		t.Errorf("verdict = %+v, want heuristic", out.Verdicts[1])
	}
}

// A successful but partial reply leaves omitted units unresolved; the
// heuristic covers only total remote failure.
func TestClassifyPartialReplyLeavesUnresolved(t *testing.T) {
	fake := &fakeProvider{reply: `{"1":3}`}
	units := []*types.Unit{
		unit(1, "https://a.example/", "A"),
		unit(2, "https://b.example/", "B"),
	}
	out, err := Classify(context.Background(), units, Policy{Provider: fake})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if _, ok := out.Verdicts[2]; ok {
		t.Error("unit 2 should stay unresolved after a partial reply")
	}
	if out.Degraded != "" {
		t.Errorf("Degraded = %q, want clean", out.Degraded)
	}
}

func TestClassifyNoProviderUsesHeuristic(t *testing.T) {
	units := []*types.Unit{unit(1, "https://en.wikipedia.org/wiki/Go", "Go")}
	out, err := Classify(context.Background(), units, Policy{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	v := out.Verdicts[1]
	if v.Provenance != types.ProvenanceHeuristic || v.Category != types.SaveLater {
		t.Errorf("verdict = %+v, want heuristic/save-later", v)
	}
}

func TestClassifyValidation(t *testing.T) {
	_, err := Classify(context.Background(), []*types.Unit{unit(1, "https://a.example/", "A"), unit(1, "https://b.example/", "B")}, Policy{})
	if !errors.Is(err, types.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation for duplicate ids", err)
	}

	_, err = Classify(context.Background(), []*types.Unit{nil}, Policy{})
	if !errors.Is(err, types.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation for nil unit", err)
	}
}
