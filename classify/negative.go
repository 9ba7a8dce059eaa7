package classify

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Confidence grades a negative financing verdict.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// NegativeResult explains why a description does or does not rule out owner financing.
type NegativeResult struct {
	IsNegative     bool       `json:"is_negative"`
	Confidence     Confidence `json:"confidence"`
	Reason         string     `json:"reason"`
	MatchedPattern string     `json:"matched_pattern,omitempty"`
}

const (
	reasonNoDescription  = "No description provided"
	reasonClean          = "No negative financing indicators detected"
	reasonDirectNegation = "Direct negation before financing term"
	reasonListNegation   = "Negation applies to list containing financing term"
	reasonRejection      = "Rejection phrase follows financing term"
	reasonCashOnly       = "Explicitly requires cash only"
)

type negativeDetector struct {
	financingTerm   *regexp.Regexp
	listTail        *regexp.Regexp
	negation        *regexp.Regexp
	listNegator     *regexp.Regexp
	directWindow    int
	lookbehind      int
	rejectionWindow int
	rejections      []*regexp.Regexp
	cashOnly        []*regexp.Regexp
}

func compileNegative(rules NegativeRules) (negativeDetector, error) {
	var d negativeDetector
	if rules.FinancingTerm == "" || rules.ListTerm == "" {
		return d, errors.New("keyword tables: negative.financing_term and negative.list_term are required")
	}
	if len(rules.NegationWords) == 0 {
		return d, errors.New("keyword tables: negative.negation_words must not be empty")
	}
	if len(rules.ListNegationWords) == 0 {
		rules.ListNegationWords = []string{"no", "not"}
	}
	d.directWindow = withDefault(rules.DirectWindow, 15)
	d.lookbehind = withDefault(rules.LookbehindWindow, 50)
	d.rejectionWindow = withDefault(rules.RejectionWindow, 100)
	listWindow := withDefault(rules.ListWindow, 150)

	var err error
	if d.financingTerm, err = compilePattern(rules.FinancingTerm); err != nil {
		return d, fmt.Errorf("keyword tables: negative.financing_term: %w", err)
	}
	if d.listTail, err = compilePattern(fmt.Sprintf(`^[^.!?]{0,%d}?%s`, listWindow, rules.ListTerm)); err != nil {
		return d, fmt.Errorf("keyword tables: negative.list_term: %w", err)
	}
	if d.negation, err = compilePattern(wordAlternation(rules.NegationWords)); err != nil {
		return d, fmt.Errorf("keyword tables: negative.negation_words: %w", err)
	}
	if d.listNegator, err = compilePattern(wordAlternation(rules.ListNegationWords)); err != nil {
		return d, fmt.Errorf("keyword tables: negative.list_negation_words: %w", err)
	}
	for _, p := range rules.RejectionPhrases {
		words := strings.Fields(p)
		if len(words) == 0 {
			continue
		}
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		re, err := compilePattern(strings.Join(words, `\s+`))
		if err != nil {
			return d, fmt.Errorf("keyword tables: rejection phrase %q: %w", p, err)
		}
		d.rejections = append(d.rejections, re)
	}
	for _, p := range rules.CashOnly {
		re, err := compilePattern(p)
		if err != nil {
			return d, fmt.Errorf("keyword tables: cash_only %q: %w", p, err)
		}
		d.cashOnly = append(d.cashOnly, re)
	}
	return d, nil
}

func withDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func wordAlternation(words []string) string {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			quoted = append(quoted, regexp.QuoteMeta(w))
		}
	}
	return `\b(` + strings.Join(quoted, "|") + `)\b`
}

// DetectNegativeFinancing runs the negative financing strategies in order of
// confidence and stops at the first hit. Negation words that open one of the
// positive phrases ("no bank needed") are not treated as negations.
func (t *Tables) DetectNegativeFinancing(description string) NegativeResult {
	if strings.TrimSpace(description) == "" {
		return NegativeResult{Confidence: ConfidenceLow, Reason: reasonNoDescription}
	}

	exempt := t.positiveNegationStarts(description)
	d := &t.negative

	if r, ok := d.directNegation(description, exempt); ok {
		return r
	}
	if r, ok := d.listNegation(description, exempt); ok {
		return r
	}
	if r, ok := d.rejectionPhrase(description); ok {
		return r
	}
	if r, ok := d.cashOnlyRequirement(description); ok {
		return r
	}
	return NegativeResult{Confidence: ConfidenceHigh, Reason: reasonClean}
}

// positiveNegationStarts returns the offsets of negation words that begin a
// positive owner-finance phrase match.
func (t *Tables) positiveNegationStarts(text string) map[int]bool {
	exempt := make(map[int]bool)
	for _, p := range t.ownerFinance {
		if !t.negative.negation.MatchString(p.keyword) {
			continue
		}
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			if n := t.negative.negation.FindStringIndex(text[loc[0]:loc[1]]); n != nil && n[0] == 0 {
				exempt[loc[0]] = true
			}
		}
	}
	return exempt
}

func (d *negativeDetector) directNegation(text string, exempt map[int]bool) (NegativeResult, bool) {
	for _, m := range d.financingTerm.FindAllStringIndex(text, -1) {
		start := m[0] - d.lookbehind
		if start < 0 {
			start = 0
		}
		preceding := text[start:m[0]]
		for _, n := range d.negation.FindAllStringIndex(preceding, -1) {
			negStart, negEnd := start+n[0], start+n[1]
			if exempt[negStart] {
				continue
			}
			between := text[negEnd:m[0]]
			if m[0]-negEnd < d.directWindow && !strings.ContainsAny(between, ".!?") {
				return NegativeResult{
					IsNegative:     true,
					Confidence:     ConfidenceHigh,
					Reason:         reasonDirectNegation,
					MatchedPattern: strings.TrimSpace(text[negStart:m[1]]),
				}, true
			}
		}
	}
	return NegativeResult{}, false
}

func (d *negativeDetector) listNegation(text string, exempt map[int]bool) (NegativeResult, bool) {
	for _, n := range d.listNegator.FindAllStringIndex(text, -1) {
		if exempt[n[0]] {
			continue
		}
		if loc := d.listTail.FindStringIndex(text[n[1]:]); loc != nil {
			return NegativeResult{
				IsNegative:     true,
				Confidence:     ConfidenceHigh,
				Reason:         reasonListNegation,
				MatchedPattern: text[n[0] : n[1]+loc[1]],
			}, true
		}
	}
	return NegativeResult{}, false
}

// rejectionPhrase looks for a rejection within rejectionWindow characters
// after a financing term, stopping at the end of the term's sentence.
func (d *negativeDetector) rejectionPhrase(text string) (NegativeResult, bool) {
	for _, m := range d.financingTerm.FindAllStringIndex(text, -1) {
		end := m[1] + d.rejectionWindow
		if end > len(text) {
			end = len(text)
		}
		following := text[m[1]:end]
		if i := strings.IndexAny(following, ".!?"); i >= 0 {
			following = following[:i]
		}
		for _, re := range d.rejections {
			if re.MatchString(following) {
				words := strings.Fields(following)
				if len(words) > 5 {
					words = words[:5]
				}
				return NegativeResult{
					IsNegative:     true,
					Confidence:     ConfidenceHigh,
					Reason:         reasonRejection,
					MatchedPattern: text[m[0]:m[1]] + " " + strings.Join(words, " ") + "...",
				}, true
			}
		}
	}
	return NegativeResult{}, false
}

func (d *negativeDetector) cashOnlyRequirement(text string) (NegativeResult, bool) {
	for _, re := range d.cashOnly {
		if m := re.FindString(text); m != "" {
			return NegativeResult{
				IsNegative:     true,
				Confidence:     ConfidenceHigh,
				Reason:         reasonCashOnly,
				MatchedPattern: m,
			}, true
		}
	}
	return NegativeResult{}, false
}
