package memgraph

import (
	"path"
	"strings"
	"unicode"

	"mission-control/backend/internal/constants"
	"mission-control/backend/internal/state"
)

// DefaultRelation is used when a relation normalizes to nothing
const DefaultRelation = "related_to"

// RelationNodeHints are normalized labels that mark a node as a reified
// relation even when its kind is not "relation".
var RelationNodeHints = map[string]struct{}{
	"mentions_topic": {},
	"related_to":     {},
	"relates_to":     {},
	"depends_on":     {},
	"part_of":        {},
	"uses":           {},
	"works_on":       {},
	"owns":           {},
	"prefers":        {},
	"decided":        {},
	"blocks":         {},
	"supports":       {},
	"contradicts":    {},
	"action_item":    {},
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {}, "be": {},
	"been": {}, "to": {}, "of": {}, "and": {}, "or": {}, "in": {}, "on": {}, "for": {},
	"with": {}, "at": {}, "by": {}, "it": {}, "its": {}, "this": {}, "that": {}, "as": {},
	"from": {}, "into": {}, "about": {}, "has": {}, "have": {}, "had": {}, "we": {},
	"i": {}, "you": {}, "they": {}, "our": {}, "my": {}, "user": {},
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// NormalizeRelation lowercases x, collapses non-alphanumeric runs to "_" and
// trims underscores. An empty result becomes DefaultRelation.
func NormalizeRelation(x string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(x) {
		if isAlnum(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	if b.Len() == 0 {
		return DefaultRelation
	}
	return b.String()
}

// CanonicalText lowercases x, strips punctuation and stopwords, collapses
// whitespace and truncates to constants.CanonicalMaxLength bytes.
func CanonicalText(x string) string {
	fields := strings.FieldsFunc(strings.ToLower(x), func(r rune) bool { return !isAlnum(r) })
	kept := fields[:0]
	for _, f := range fields {
		if _, stop := stopwords[f]; stop {
			continue
		}
		kept = append(kept, f)
	}
	out := strings.Join(kept, " ")
	if len(out) > constants.CanonicalMaxLength {
		out = strings.TrimSpace(truncateRunes(out, constants.CanonicalMaxLength))
	}
	return out
}

// truncateRunes cuts s to at most n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// DocumentIndex maps a lowercase document base name to its newest mtime.
type DocumentIndex map[string]int64

// NewDocumentIndex indexes documents by both name and path base name.
func NewDocumentIndex(docs []state.SourceDocument) DocumentIndex {
	idx := make(DocumentIndex, len(docs))
	for _, d := range docs {
		for _, key := range []string{d.Name, d.Path} {
			k := provenanceKey(key)
			if k == "" {
				continue
			}
			if d.MtimeMs > idx[k] {
				idx[k] = d.MtimeMs
			}
		}
	}
	return idx
}

// Lookup returns the mtime of the named document, or 0 when unknown.
func (d DocumentIndex) Lookup(name string) int64 {
	if d == nil {
		return 0
	}
	return d[provenanceKey(name)]
}

func provenanceKey(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return strings.ToLower(path.Base(strings.ReplaceAll(name, "\\", "/")))
}

// EvidenceProvenance returns the markdown file names mentioned in evidence.
func EvidenceProvenance(evidence string) []string {
	tokens := strings.FieldsFunc(evidence, func(r rune) bool {
		if unicode.IsSpace(r) {
			return true
		}
		switch r {
		case '|', ',', ';', '(', ')', '[', ']':
			return true
		}
		return false
	})
	var out []string
	for _, tok := range tokens {
		tok = strings.Trim(tok, "`'\"<>")
		if idx := strings.LastIndex(tok, ":"); idx > 0 && !strings.HasSuffix(strings.ToLower(tok), ".md") {
			// "notes.md:12" carries a line reference
			tok = tok[:idx]
		}
		if strings.HasSuffix(strings.ToLower(tok), ".md") {
			out = append(out, provenanceKey(tok))
		}
	}
	return out
}

// NodeProvenance returns the document names a node claims to come from:
// its file: tags plus its source when that is a markdown file.
func NodeProvenance(n *state.GraphNode) []string {
	var out []string
	for _, tag := range n.Tags {
		if name, ok := strings.CutPrefix(tag, "file:"); ok {
			if k := provenanceKey(name); k != "" {
				out = append(out, k)
			}
		}
	}
	if strings.HasSuffix(strings.ToLower(n.Source), ".md") {
		out = append(out, provenanceKey(n.Source))
	}
	return out
}
