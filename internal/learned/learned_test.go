package learned

import (
	"testing"

	"github.com/tabtriage/tabtriage/internal/types"
)

func trainingSet() []Example {
	return []Example{
		{Address: "https://jira.example.com/browse/T-1", Title: "T-1 fix login", Category: types.Important},
		{Address: "https://jira.example.com/browse/T-2", Title: "T-2 flaky test", Category: types.Important},
		{Address: "https://jira.example.com/browse/T-3", Title: "T-3 review", Category: types.Important},
		{Address: "https://news.site.example/item/1", Title: "Show: a thing", Category: types.CanClose},
		{Address: "https://news.site.example/item/2", Title: "Ask: another thing", Category: types.CanClose},
		{Address: "https://blog.example.com/go-generics", Title: "Understanding Go generics", Category: types.SaveLater},
	}
}

func TestPredictKnownDomain(t *testing.T) {
	m := Train(trainingSet())
	cat, conf, ok := m.Predict(&types.Unit{
		Address: "https://jira.example.com/browse/T-9",
		Domain:  "jira.example.com",
		Title:   "T-9 new bug",
	})
	if !ok {
		t.Fatal("expected a prediction for a well-known domain")
	}
	if cat != types.Important {
		t.Errorf("category = %v, want important", cat)
	}
	if conf <= 0.5 {
		t.Errorf("confidence = %v, want > 0.5 for an unambiguous domain", conf)
	}
}

func TestPredictNoEvidence(t *testing.T) {
	m := Train(trainingSet())
	_, _, ok := m.Predict(&types.Unit{
		Address: "https://never-seen.example/",
		Domain:  "never-seen.example",
		Title:   "zzqx",
	})
	if ok {
		t.Error("expected no prediction without evidence")
	}
}

func TestPredictUntrained(t *testing.T) {
	m := Train(trainingSet()[:2]) // below the training floor
	_, _, ok := m.Predict(&types.Unit{Domain: "jira.example.com"})
	if ok {
		t.Error("expected no prediction from an undertrained model")
	}

	var nilModel *Model
	if _, _, ok := nilModel.Predict(&types.Unit{Domain: "jira.example.com"}); ok {
		t.Error("nil model must not predict")
	}
}

func TestCorrectionOutweighsAutomatic(t *testing.T) {
	examples := []Example{
		{Address: "https://forum.example.com/a", Title: "thread a", Category: types.CanClose, Provenance: types.ProvenanceRemote},
		{Address: "https://forum.example.com/b", Title: "thread b", Category: types.CanClose, Provenance: types.ProvenanceRemote},
		{Address: "https://forum.example.com/c", Title: "thread c", Category: types.SaveLater, Provenance: types.ProvenanceCorrection},
		{Address: "https://other.example.com/1", Title: "one", Category: types.Important},
		{Address: "https://other.example.com/2", Title: "two", Category: types.Important},
	}
	m := Train(examples)
	cat, _, ok := m.Predict(&types.Unit{Domain: "forum.example.com", Title: "thread d"})
	if !ok {
		t.Fatal("expected a prediction")
	}
	if cat != types.SaveLater {
		t.Errorf("category = %v, want save-later — one correction outweighs two automatic verdicts", cat)
	}
}

func TestUncategorizedExamplesSkipped(t *testing.T) {
	examples := make([]Example, 10)
	for i := range examples {
		examples[i] = Example{Address: "https://x.example/", Category: types.Uncategorized}
	}
	m := Train(examples)
	if m.Trained() != 0 {
		t.Errorf("Trained() = %d, want 0", m.Trained())
	}
}
