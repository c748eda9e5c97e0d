package resilience

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/email-analyzer/internal/model"
)

// ErrNoStructuredData is the failure signal for a response that yields no
// JSON object even after repair.
var ErrNoStructuredData = eris.New("resilience: no structured data in model response")

var fencedBlock = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n?(.*?)```")

// Parsed is the tagged result of reading a model response. Data is set when
// Provenance is model or repaired; Err is set otherwise.
type Parsed struct {
	Provenance model.Provenance
	Data       map[string]any
	Candidate  string
	Err        error
}

// OK reports whether structured data was recovered.
func (p Parsed) OK() bool {
	return p.Err == nil && p.Data != nil
}

// ExtractJSON narrows raw model text to the first candidate JSON object:
// the content of the first fenced code block if it holds braces, otherwise
// the span from the first '{' to the last '}'. It returns "" when neither
// exists.
func ExtractJSON(raw string) string {
	if c := candidates(raw); len(c) > 0 {
		return c[0]
	}
	return ""
}

// candidates lists the spans worth parsing, in order: the first fenced
// block, the text outside fences, then the whole response. Duplicates are
// dropped.
func candidates(raw string) []string {
	var out []string
	add := func(text string) {
		c := objectSpan(text)
		if c == "" {
			return
		}
		for _, seen := range out {
			if seen == c {
				return
			}
		}
		out = append(out, c)
	}
	if m := fencedBlock.FindStringSubmatch(raw); m != nil {
		add(m[1])
		add(fencedBlock.ReplaceAllString(raw, " "))
	}
	add(raw)
	return out
}

func objectSpan(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return ""
	}
	return strings.TrimSpace(text[start : end+1])
}

// Parse extracts, parses and if necessary repairs a JSON object from raw.
// Candidates are tried in order until one decodes. It never panics and
// never returns an error value directly; failure is reported through
// Parsed.Err.
func Parse(raw string) Parsed {
	cands := candidates(raw)
	if len(cands) == 0 {
		return Parsed{Err: ErrNoStructuredData}
	}

	var firstErr error
	for _, candidate := range cands {
		if data, err := decodeObject(candidate); err == nil {
			return Parsed{Provenance: model.ProvenanceModel, Data: data, Candidate: candidate}
		}
		repaired := Repair(candidate)
		data, err := decodeObject(repaired)
		if err == nil {
			return Parsed{Provenance: model.ProvenanceRepaired, Data: data, Candidate: repaired}
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return Parsed{Candidate: cands[0], Err: eris.Wrap(ErrNoStructuredData, firstErr.Error())}
}

// Repair rewrites the common ways models break JSON: bare identifier keys,
// single-quoted strings, trailing commas and Python literals. Text inside
// double-quoted strings is copied unchanged.
func Repair(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)
	prev := byte(0) // last significant byte written outside a string

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '"':
			j := stringEnd(s, i, '"')
			b.WriteString(s[i:j])
			prev = '"'
			i = j
		case c == '\'':
			j := stringEnd(s, i, '\'')
			end := j
			if j-1 > i && s[j-1] == '\'' {
				end = j - 1
			}
			writeDoubleQuoted(&b, s[i+1:end])
			prev = '"'
			i = j
		case c == ',':
			if k := skipSpace(s, i+1); k < len(s) && (s[k] == '}' || s[k] == ']') {
				i++
				continue
			}
			b.WriteByte(c)
			prev = c
			i++
		case isIdentStart(c):
			j := i + 1
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			word := s[i:j]
			k := skipSpace(s, j)
			switch {
			case (prev == '{' || prev == ',') && k < len(s) && s[k] == ':':
				b.WriteString(`"` + word + `"`)
			case word == "True":
				b.WriteString("true")
			case word == "False":
				b.WriteString("false")
			case word == "None":
				b.WriteString("null")
			default:
				b.WriteString(word)
			}
			prev = 'a'
			i = j
		default:
			b.WriteByte(c)
			if !isSpace(c) {
				prev = c
			}
			i++
		}
	}
	return b.String()
}

// stringEnd returns the index just past the string opened by quote at i,
// or len(s) when it is unterminated.
func stringEnd(s string, i int, quote byte) int {
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case quote:
			return j + 1
		}
	}
	return len(s)
}

// writeDoubleQuoted re-quotes the body of a single-quoted string.
func writeDoubleQuoted(b *strings.Builder, body string) {
	body = strings.ReplaceAll(body, `\'`, `'`)
	b.WriteByte('"')
	for i := 0; i < len(body); i++ {
		switch c := body[i]; c {
		case '\\':
			b.WriteByte(c)
			if i+1 < len(body) {
				i++
				b.WriteByte(body[i])
			}
		case '"':
			b.WriteString(`\"`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
}

func skipSpace(s string, i int) int {
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	return i
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c == '-' || (c >= '0' && c <= '9')
}

func decodeObject(s string) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, eris.New("resilience: response is not an object")
	}
	return out, nil
}
