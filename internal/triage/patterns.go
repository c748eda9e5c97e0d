package triage

import (
	"os"
	"regexp"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/email-analyzer/internal/model"
)

// KindPatterns is one row of the extraction table: an entity kind and the
// ordered patterns that produce it. When a pattern has a capture group, the
// first group is the entity value; otherwise the whole match is.
type KindPatterns struct {
	Kind      model.EntityKind
	Patterns  []*regexp.Regexp
	MinLength int
}

// PatternTable is the declarative extraction table processed in order.
type PatternTable []KindPatterns

// sep matches the punctuation and label words allowed between an entity
// prefix and its number.
const sep = `(?:\s*(?:no\.?|num(?:ber)?|#))?[\s:#\-]*`

// DefaultPatterns returns the built-in extraction table.
func DefaultPatterns() PatternTable {
	return PatternTable{
		{
			Kind: model.EntityPONumbers,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\bP\.?O\.?` + sep + `(\d{7,12})\b`),
				regexp.MustCompile(`(?i)\bpurchase\s+order` + sep + `(\d{7,12})\b`),
			},
		},
		{
			Kind: model.EntityQuoteNumbers,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\bquote` + sep + `(\d{6,10})\b`),
				regexp.MustCompile(`(?i)\bQ#\s*(\d{6,10})\b`),
				regexp.MustCompile(`(?i)\bquotation` + sep + `(\d{6,10})\b`),
			},
		},
		{
			Kind: model.EntityCaseNumbers,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\bcase` + sep + `(\d{5,10})\b`),
				regexp.MustCompile(`(?i)\b(?:ticket|incident|SR)` + sep + `([A-Z]{0,4}-?\d{4,10})\b`),
			},
		},
		{
			Kind: model.EntityPartNumbers,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\b(?:part|p/n|pn|sku|model)(?:\s*(?:no\.?|num(?:ber)?))?[\s:#]+([A-Z0-9\-]*\d[A-Z0-9\-]*)`),
			},
			MinLength: 4,
		},
		{
			Kind: model.EntityDollarAmounts,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`\$\s?(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d{1,2})?`),
			},
		},
		{
			Kind: model.EntityDates,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
				regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`),
				regexp.MustCompile(`(?i)\b(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?\s+\d{1,2}(?:st|nd|rd|th)?\b(?:,?\s+\d{4})?`),
			},
		},
	}
}

// With returns a copy of the table with extra rows merged in. Patterns for
// an existing kind are appended after the built-in ones.
func (t PatternTable) With(extra PatternTable) PatternTable {
	out := make(PatternTable, len(t))
	copy(out, t)
	for _, row := range extra {
		merged := false
		for i := range out {
			if out[i].Kind == row.Kind {
				out[i].Patterns = append(append([]*regexp.Regexp{}, out[i].Patterns...), row.Patterns...)
				if row.MinLength > out[i].MinLength {
					out[i].MinLength = row.MinLength
				}
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, row)
		}
	}
	return out
}

// patternFile is the on-disk shape of extra extraction rows.
type patternFile struct {
	Patterns []struct {
		Kind      string   `yaml:"kind"`
		Regex     []string `yaml:"regex"`
		MinLength int      `yaml:"min_length"`
	} `yaml:"patterns"`
}

// LoadPatterns reads extra extraction rows from a YAML file:
//
//	patterns:
//	  - kind: contract_ids
//	    regex: ['(?i)\bcontract\s*#?\s*([A-Z]{2}-\d{4,8})']
func LoadPatterns(path string) (PatternTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "triage: read patterns %s", path)
	}
	return ParsePatterns(data)
}

// ParsePatterns parses the YAML pattern-file format.
func ParsePatterns(data []byte) (PatternTable, error) {
	var f patternFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "triage: parse patterns")
	}

	table := make(PatternTable, 0, len(f.Patterns))
	for _, p := range f.Patterns {
		if p.Kind == "" {
			return nil, eris.New("triage: pattern row without kind")
		}
		row := KindPatterns{Kind: model.EntityKind(p.Kind), MinLength: p.MinLength}
		for _, expr := range p.Regex {
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, eris.Wrapf(err, "triage: compile pattern for %s", p.Kind)
			}
			row.Patterns = append(row.Patterns, re)
		}
		table = append(table, row)
	}
	return table, nil
}
