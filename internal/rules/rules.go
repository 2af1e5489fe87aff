// Package rules implements the static rule stage of the classification
// pipeline. Rules live in a YAML file and are evaluated in declaration
// order; the first enabled match wins.
package rules

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tabtriage/tabtriage/internal/types"
)

// Kind selects what part of a unit a rule matches against.
type Kind string

const (
	KindDomain  Kind = "domain"  // exact match on the unit's domain
	KindAddress Kind = "address" // substring of the address
	KindTitle   Kind = "title"   // substring of the title
	KindRegex   Kind = "regex"   // regexp on address or title
)

// Rule is one compiled classification rule.
type Rule struct {
	Name     string
	Kind     Kind
	Pattern  string
	Category types.Category
	Enabled  bool

	re *regexp.Regexp // set for KindRegex
}

// Match reports whether the rule applies to the unit. Disabled rules
// never match.
func (r *Rule) Match(u *types.Unit) bool {
	if !r.Enabled {
		return false
	}
	switch r.Kind {
	case KindDomain:
		return u.Domain != "" && u.Domain == strings.ToLower(r.Pattern)
	case KindAddress:
		return strings.Contains(strings.ToLower(u.Address), strings.ToLower(r.Pattern))
	case KindTitle:
		return strings.Contains(strings.ToLower(u.Title), strings.ToLower(r.Pattern))
	case KindRegex:
		return r.re != nil && (r.re.MatchString(u.Address) || r.re.MatchString(u.Title))
	}
	return false
}

// Apply evaluates rules in declaration order against the unit and
// returns the first enabled match. Never fails.
func Apply(rules []Rule, u *types.Unit) (types.Category, bool) {
	for i := range rules {
		if rules[i].Match(u) {
			return rules[i].Category, true
		}
	}
	return types.Uncategorized, false
}

type fileRule struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	Pattern  string `yaml:"pattern"`
	Category string `yaml:"category"`
	Enabled  *bool  `yaml:"enabled"` // omitted means enabled
}

type ruleFile struct {
	Rules []fileRule `yaml:"rules"`
}

// Parse compiles a YAML rules document. Invalid kinds, categories, or
// regexps are load-time errors so the rule stage itself can never fail.
func Parse(data []byte) ([]Rule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}

	var out []Rule
	for i, fr := range f.Rules {
		kind := Kind(fr.Kind)
		switch kind {
		case KindDomain, KindAddress, KindTitle, KindRegex:
		default:
			return nil, fmt.Errorf("rule %d (%s): unknown kind %q", i+1, fr.Name, fr.Kind)
		}

		cat, err := types.ParseCategory(fr.Category)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i+1, fr.Name, err)
		}
		if cat == types.Uncategorized {
			return nil, fmt.Errorf("rule %d (%s): rules cannot assign uncategorized", i+1, fr.Name)
		}

		r := Rule{
			Name:     fr.Name,
			Kind:     kind,
			Pattern:  fr.Pattern,
			Category: cat,
			Enabled:  fr.Enabled == nil || *fr.Enabled,
		}
		if kind == KindRegex {
			re, err := regexp.Compile(fr.Pattern)
			if err != nil {
				return nil, fmt.Errorf("rule %d (%s): compile pattern: %w", i+1, fr.Name, err)
			}
			r.re = re
		}
		out = append(out, r)
	}
	return out, nil
}

// Load reads and compiles the rules file. A missing file is not an
// error — it just means the rule stage has nothing to match.
func Load(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(data)
}
