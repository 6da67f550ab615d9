package telemetry

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"mission-control/backend/internal/memgraph"
	"mission-control/backend/internal/state"
)

// DefaultConfidenceHint is used for facts in documents without a confidence in their frontmatter
const DefaultConfidenceHint = 0.6

// maxTopicLength bounds the "Topic:" prefix of a bullet; longer prefixes are treated as prose
const maxTopicLength = 60

var (
	headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)
	bulletPattern  = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+(.*)$`)
	checkboxPrefix = regexp.MustCompile(`^\[[ xX]\]\s*`)
)

// frontmatter is the optional YAML header of a memory document
type frontmatter struct {
	Title      string   `yaml:"title"`
	Tags       []string `yaml:"tags"`
	Confidence *float64 `yaml:"confidence"`
}

// ScanDocuments reads *.md at the top of workspaceDir and everywhere under memoryDir.
// A missing memoryDir is not an error.
func ScanDocuments(ctx context.Context, workspaceDir, memoryDir string) ([]state.SourceDocument, error) {
	seen := make(map[string]struct{})
	var docs []state.SourceDocument

	add := func(path, source string) error {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		if _, dup := seen[abs]; dup {
			return nil
		}
		seen[abs] = struct{}{}

		doc, err := ReadDocument(path, source)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
		return nil
	}

	entries, err := os.ReadDir(workspaceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace %s: %w", workspaceDir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !isMarkdown(entry.Name()) {
			continue
		}
		if err := add(filepath.Join(workspaceDir, entry.Name()), state.SourceWorkspace); err != nil {
			return nil, err
		}
	}

	if memoryDir != "" {
		err := filepath.WalkDir(memoryDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) && path == memoryDir {
					return fs.SkipAll
				}
				return nil // Skip entries we can't access
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() || !isMarkdown(d.Name()) {
				return nil
			}
			return add(path, state.SourceMemory)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory dir %s: %w", memoryDir, err)
		}
	}

	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Source != docs[j].Source {
			return docs[i].Source == state.SourceWorkspace
		}
		return docs[i].Path < docs[j].Path
	})
	return docs, nil
}

// ReadDocument reads and parses one markdown file
func ReadDocument(path, source string) (state.SourceDocument, error) {
	info, err := os.Stat(path)
	if err != nil {
		return state.SourceDocument{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return state.SourceDocument{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	doc := ParseDocument(filepath.Base(path), path, source, content)
	doc.MtimeMs = info.ModTime().UnixMilli()
	doc.Size = info.Size()
	return doc, nil
}

// ParseDocument splits markdown content into heading chunks and bullet facts.
func ParseDocument(name, path, source string, content []byte) state.SourceDocument {
	doc := state.SourceDocument{
		ID:     shortHash(source, path),
		Name:   name,
		Path:   path,
		Source: source,
		Size:   int64(len(content)),
		Chunks: []state.SourceChunk{},
		Facts:  []state.SourceFact{},
	}

	body, offset, meta := splitFrontmatter(content)
	hint := DefaultConfidenceHint
	if meta.Confidence != nil && *meta.Confidence >= 0 && *meta.Confidence <= 1 {
		hint = *meta.Confidence
	}
	doc.Tags = meta.Tags

	defaultTopic := strings.TrimSuffix(name, filepath.Ext(name))
	if meta.Title != "" {
		defaultTopic = meta.Title
	}

	lines := strings.Split(strings.ReplaceAll(string(body), "\r\n", "\n"), "\n")

	chunkLabel := defaultTopic
	chunkStart := offset + 1
	var chunkText []string
	flush := func(end int) {
		text := strings.TrimSpace(strings.Join(chunkText, "\n"))
		if text != "" {
			doc.Chunks = append(doc.Chunks, state.SourceChunk{
				ID:        fmt.Sprintf("%s#%d", doc.ID, len(doc.Chunks)),
				Label:     chunkLabel,
				Text:      text,
				StartLine: chunkStart,
				EndLine:   end,
			})
		}
		chunkText = chunkText[:0]
	}

	inFence := false
	for i, line := range lines {
		lineNo := offset + i + 1
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			chunkText = append(chunkText, line)
			continue
		}
		if inFence {
			chunkText = append(chunkText, line)
			continue
		}

		if m := headingPattern.FindStringSubmatch(trimmed); m != nil {
			flush(lineNo - 1)
			chunkLabel = cleanInline(m[2])
			chunkStart = lineNo
			continue
		}
		chunkText = append(chunkText, line)

		if fact, ok := parseFact(trimmed, chunkLabel, hint); ok {
			fact.ID = fmt.Sprintf("%s:%d", doc.ID, lineNo)
			fact.Line = lineNo
			doc.Facts = append(doc.Facts, fact)
		}
	}
	flush(offset + len(lines))

	return doc
}

// parseFact turns a bullet line into a fact. "Topic: statement" bullets carry
// their own topic; other bullets are filed under the enclosing heading.
func parseFact(line, heading string, hint float64) (state.SourceFact, bool) {
	m := bulletPattern.FindStringSubmatch(line)
	if m == nil {
		return state.SourceFact{}, false
	}
	text := strings.TrimSpace(checkboxPrefix.ReplaceAllString(m[1], ""))
	if text == "" {
		return state.SourceFact{}, false
	}

	if idx := strings.Index(text, ":"); idx > 0 && idx <= maxTopicLength {
		topic := cleanInline(text[:idx])
		statement := strings.TrimSpace(text[idx+1:])
		if topic != "" && statement != "" && !strings.HasPrefix(statement, "//") {
			return state.SourceFact{
				Topic:          topic,
				Statement:      cleanInline(statement),
				Canonical:      memgraph.CanonicalText(topic),
				ConfidenceHint: hint,
			}, true
		}
	}

	statement := cleanInline(text)
	return state.SourceFact{
		Topic:          heading,
		Statement:      statement,
		Canonical:      memgraph.CanonicalText(statement),
		ConfidenceHint: hint,
	}, true
}

// splitFrontmatter separates a leading "---" YAML block. It returns the body,
// the number of lines consumed and the parsed header. Malformed YAML is ignored.
func splitFrontmatter(content []byte) ([]byte, int, frontmatter) {
	var meta frontmatter
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return content, 0, meta
	}
	rest := normalized[4:]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return content, 0, meta
	}
	header := rest[:end]
	body := rest[end+4:]
	if nl := bytes.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = nil
	}

	if err := yaml.Unmarshal(header, &meta); err != nil {
		meta = frontmatter{}
	}
	consumed := bytes.Count(header, []byte("\n")) + 3
	return body, consumed, meta
}

// cleanInline strips emphasis markers and code ticks around a markdown span
func cleanInline(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "*_`")
	return strings.TrimSpace(s)
}

func isMarkdown(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".md")
}

func shortHash(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:6])
}
