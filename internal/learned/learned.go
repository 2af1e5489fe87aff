// Package learned implements the optional learned-model stage of the
// classification pipeline: a frequency model over domains and title
// tokens, trained from persisted URL records. Predictions carry a
// confidence score; the pipeline drops low-confidence verdicts.
package learned

import (
	"strings"
	"unicode"

	"github.com/tabtriage/tabtriage/internal/addr"
	"github.com/tabtriage/tabtriage/internal/types"
)

// minExamples is the training floor below which the model reports
// itself unavailable rather than guessing from noise.
const minExamples = 5

// domainWeight makes a same-domain precedent count more than a shared
// title token.
const domainWeight = 2.0

// correctionWeight boosts examples the user explicitly corrected.
const correctionWeight = 3.0

// Example is one training record, typically a persisted URL record.
type Example struct {
	Address    string
	Title      string
	Category   types.Category
	Provenance types.Provenance
}

type votes [4]float64

// Model is a trained frequency model. Immutable after Train; the
// engine swaps in a freshly trained model rather than mutating one.
type Model struct {
	domains map[string]*votes
	tokens  map[string]*votes
	trained int
}

// Train builds a model from persisted examples. Uncategorized examples
// are skipped — they carry no signal.
func Train(examples []Example) *Model {
	m := &Model{
		domains: make(map[string]*votes),
		tokens:  make(map[string]*votes),
	}
	for _, ex := range examples {
		if ex.Category == types.Uncategorized || !ex.Category.Valid() {
			continue
		}
		weight := 1.0
		if ex.Provenance == types.ProvenanceCorrection {
			weight = correctionWeight
		}
		if domain := addr.Domain(ex.Address); domain != "" {
			bump(m.domains, domain, ex.Category, weight)
		}
		for _, tok := range tokenize(ex.Title) {
			bump(m.tokens, tok, ex.Category, weight)
		}
		m.trained++
	}
	return m
}

// Trained returns the number of examples the model was built from.
func (m *Model) Trained() int {
	if m == nil {
		return 0
	}
	return m.trained
}

// Predict returns a category and confidence for the unit. ok is false
// when the model is untrained or has no evidence for this unit; the
// pipeline treats that as a silent fall-through.
func (m *Model) Predict(u *types.Unit) (types.Category, float64, bool) {
	if m == nil || m.trained < minExamples {
		return types.Uncategorized, 0, false
	}

	var total votes
	if v, ok := m.domains[u.Domain]; ok {
		for c := range total {
			total[c] += v[c] * domainWeight
		}
	}
	for _, tok := range tokenize(u.Title) {
		if v, ok := m.tokens[tok]; ok {
			for c := range total {
				total[c] += v[c]
			}
		}
	}

	sum := 0.0
	best := types.Uncategorized
	for c := types.CanClose; c <= types.Important; c++ {
		sum += total[c]
		if total[c] > total[best] {
			best = c
		}
	}
	if sum == 0 || best == types.Uncategorized {
		return types.Uncategorized, 0, false
	}
	return best, total[best] / sum, true
}

func bump(table map[string]*votes, key string, cat types.Category, weight float64) {
	v, ok := table[key]
	if !ok {
		v = &votes{}
		table[key] = v
	}
	v[cat] += weight
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"this": true, "that": true, "your": true, "how": true, "what": true,
}

func tokenize(title string) []string {
	fields := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var out []string
	for _, f := range fields {
		if len(f) < 3 || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}
