// Package analyzer classifies follow-up questions and pulls structured data
// (numeric series, tables) out of free-form model answers.
package analyzer

import (
	"regexp"
	"strings"
)

// Intent is what a follow-up question asks for.
type Intent string

const (
	IntentPrice         Intent = "price"
	IntentTable         Intent = "table"
	IntentVisualization Intent = "visualization"
	IntentSummary       Intent = "summary"
	IntentGeneral       Intent = "general"
)

// Rule maps keyword cues to an intent.
type Rule struct {
	Intent Intent
	// Words match case-insensitively on word boundaries.
	Words []string
	// Symbols match anywhere in the question.
	Symbols []string

	pattern *regexp.Regexp
}

func newRule(intent Intent, symbols []string, words ...string) Rule {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return Rule{
		Intent:  intent,
		Words:   words,
		Symbols: symbols,
		pattern: regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`),
	}
}

// Matches reports whether question carries any of the rule's cues.
func (r Rule) Matches(question string) bool {
	for _, s := range r.Symbols {
		if strings.Contains(question, s) {
			return true
		}
	}
	return r.pattern.MatchString(question)
}

// Rules are evaluated in order and the first match wins. "compare" is a
// table cue only, so "compare prices in a chart" is a price question and
// "compare them in a chart" is a table question.
var Rules = []Rule{
	newRule(IntentPrice, []string{"$"},
		"price", "prices", "pricing", "priced", "cost", "costs", "cheap", "cheaper", "cheapest",
		"expensive", "how much"),
	newRule(IntentTable, nil,
		"table", "tables", "tabular", "list", "compare", "comparison", "breakdown"),
	newRule(IntentVisualization, nil,
		"graph", "graphs", "chart", "charts", "plot", "visualize", "visualise", "visualization", "trend", "trends"),
	newRule(IntentSummary, nil,
		"summary", "summarize", "summarise", "overview", "tl;dr"),
}

// Classify returns the intent of the first rule question matches, or
// IntentGeneral.
func Classify(question string) Intent {
	for _, r := range Rules {
		if r.Matches(question) {
			return r.Intent
		}
	}
	return IntentGeneral
}

// WantsChart reports whether question carries a visualization cue,
// regardless of which intent won classification.
func WantsChart(question string) bool {
	for _, r := range Rules {
		if r.Intent == IntentVisualization {
			return r.Matches(question)
		}
	}
	return false
}
