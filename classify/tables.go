package classify

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var defaultTablesYAML []byte

// separator matches what may sit between the words of a phrase.
const separator = `[\s\-/_]*`

// TablesFile is the on-disk shape of the keyword tables.
type TablesFile struct {
	Version             string               `yaml:"version"`
	OwnerFinance        []string             `yaml:"owner_finance"`
	Negative            NegativeRules        `yaml:"negative"`
	FinancingTypes      []FinancingTypeGroup `yaml:"financing_types"`
	NeedsWork           []string             `yaml:"needs_work"`
	NeedsWorkExclusions []string             `yaml:"needs_work_exclusions"`
}

// NegativeRules configures the negative financing detector.
type NegativeRules struct {
	FinancingTerm     string   `yaml:"financing_term"`
	ListTerm          string   `yaml:"list_term"`
	NegationWords     []string `yaml:"negation_words"`
	ListNegationWords []string `yaml:"list_negation_words"`
	DirectWindow      int      `yaml:"direct_window"`
	LookbehindWindow  int      `yaml:"lookbehind_window"`
	ListWindow        int      `yaml:"list_window"`
	RejectionWindow   int      `yaml:"rejection_window"`
	RejectionPhrases  []string `yaml:"rejection_phrases"`
	CashOnly          []string `yaml:"cash_only"`
}

// FinancingTypeGroup is one financing category and the patterns that select it.
type FinancingTypeGroup struct {
	Name     FinancingType `yaml:"name"`
	Patterns []string      `yaml:"patterns"`
}

type phrase struct {
	keyword string
	re      *regexp.Regexp
}

type financingCategory struct {
	name     FinancingType
	patterns []*regexp.Regexp
}

// Tables is the compiled, immutable form of a TablesFile.
type Tables struct {
	version        string
	ownerFinance   []phrase
	negative       negativeDetector
	financingTypes []financingCategory
	needsWork      []string
}

// Version returns the version string the tables were loaded with.
func (t *Tables) Version() string {
	return t.version
}

// NeedsWorkKeywords returns a copy of the needs-work trigger list.
func (t *Tables) NeedsWorkKeywords() []string {
	return append([]string(nil), t.needsWork...)
}

// OwnerFinanceKeywords returns the owner-finance phrases in priority order.
func (t *Tables) OwnerFinanceKeywords() []string {
	out := make([]string, 0, len(t.ownerFinance))
	for _, p := range t.ownerFinance {
		out = append(out, p.keyword)
	}
	return out
}

// FinancingTypes returns the category names in priority order.
func (t *Tables) FinancingTypes() []FinancingType {
	out := make([]FinancingType, 0, len(t.financingTypes))
	for _, c := range t.financingTypes {
		out = append(out, c.name)
	}
	return out
}

// DefaultTables returns the tables compiled into the binary.
func DefaultTables() *Tables {
	t, err := ParseTables(defaultTablesYAML)
	if err != nil {
		panic(fmt.Sprintf("classify: embedded tables are invalid: %v", err))
	}
	return t
}

// LoadTables reads and compiles a tables file from disk.
func LoadTables(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keyword tables %s: %w", path, err)
	}
	return ParseTables(data)
}

// ParseTables decodes and compiles a YAML tables document.
func ParseTables(data []byte) (*Tables, error) {
	var file TablesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode keyword tables: %w", err)
	}
	return Compile(file)
}

// Compile validates a TablesFile and builds its matchers.
func Compile(file TablesFile) (*Tables, error) {
	if strings.TrimSpace(file.Version) == "" {
		return nil, errors.New("keyword tables: version is required")
	}
	if len(file.OwnerFinance) == 0 {
		return nil, errors.New("keyword tables: owner_finance must not be empty")
	}
	if len(file.FinancingTypes) == 0 {
		return nil, errors.New("keyword tables: financing_types must not be empty")
	}

	t := &Tables{version: file.Version}

	seen := make(map[string]bool)
	for _, kw := range file.OwnerFinance {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		t.ownerFinance = append(t.ownerFinance, phrase{keyword: kw, re: phrasePattern(kw)})
	}

	neg, err := compileNegative(file.Negative)
	if err != nil {
		return nil, err
	}
	t.negative = neg

	names := make(map[FinancingType]bool)
	for _, group := range file.FinancingTypes {
		if group.Name == "" {
			return nil, errors.New("keyword tables: financing type without a name")
		}
		if names[group.Name] {
			return nil, fmt.Errorf("keyword tables: duplicate financing type %q", group.Name)
		}
		names[group.Name] = true
		cat := financingCategory{name: group.Name}
		for _, p := range group.Patterns {
			re, err := compilePattern(p)
			if err != nil {
				return nil, fmt.Errorf("keyword tables: financing type %q: %w", group.Name, err)
			}
			cat.patterns = append(cat.patterns, re)
		}
		if len(cat.patterns) == 0 {
			return nil, fmt.Errorf("keyword tables: financing type %q has no patterns", group.Name)
		}
		t.financingTypes = append(t.financingTypes, cat)
	}

	exclusions := make([]string, 0, len(file.NeedsWorkExclusions))
	for _, ex := range file.NeedsWorkExclusions {
		if ex = strings.ToLower(strings.TrimSpace(ex)); ex != "" {
			exclusions = append(exclusions, ex)
		}
	}
	seen = make(map[string]bool)
	for _, kw := range file.NeedsWork {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		for _, ex := range exclusions {
			if strings.Contains(kw, ex) {
				return nil, fmt.Errorf("keyword tables: needs_work keyword %q contains excluded word %q", kw, ex)
			}
		}
		seen[kw] = true
		t.needsWork = append(t.needsWork, kw)
	}

	return t, nil
}

// phrasePattern turns "rent to own" into a case-insensitive pattern that also
// accepts "rent-to-own", "rent  to own" and "RentToOwn".
func phrasePattern(keyword string) *regexp.Regexp {
	words := strings.Fields(strings.NewReplacer("-", " ", "/", " ", "_", " ").Replace(keyword))
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)\b` + strings.Join(words, separator) + `\b`)
}

// compilePattern compiles a table pattern. All table matching is case-insensitive.
func compilePattern(p string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + p)
}
