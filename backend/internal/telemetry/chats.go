package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"mission-control/backend/internal/state"
)

// maxTranscriptLine is the longest transcript line the reader accepts
const maxTranscriptLine = 4 * 1024 * 1024

// transcriptLine is one JSON object of a session transcript. The message may
// sit at the top level or nested under "message".
type transcriptLine struct {
	Type      string          `json:"type"`
	Role      string          `json:"role"`
	Timestamp json.RawMessage `json:"timestamp"`
	Content   json.RawMessage `json:"content"`
	Message   *struct {
		Role      string          `json:"role"`
		Timestamp json.RawMessage `json:"timestamp"`
		Content   json.RawMessage `json:"content"`
	} `json:"message"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ReadRecentMessages returns up to limit chat messages from dir/*.jsonl, newest
// first. Transcripts are read newest file first. A missing dir yields no messages.
func ReadRecentMessages(ctx context.Context, dir string, limit int) ([]state.RecentChatMessage, error) {
	if dir == "" || limit <= 0 {
		return []state.RecentChatMessage{}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []state.RecentChatMessage{}, nil
		}
		return nil, fmt.Errorf("failed to read sessions dir %s: %w", dir, err)
	}

	type transcript struct {
		path  string
		mtime time.Time
	}
	var files []transcript
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, transcript{path: filepath.Join(dir, entry.Name()), mtime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool {
		if !files[i].mtime.Equal(files[j].mtime) {
			return files[i].mtime.After(files[j].mtime)
		}
		return files[i].path < files[j].path
	})

	messages := []state.RecentChatMessage{}
	for _, f := range files {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if len(messages) >= limit {
			break
		}
		msgs, err := readTranscript(f.path, f.mtime.UnixMilli())
		if err != nil {
			return nil, err
		}
		messages = append(messages, msgs...)
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].TimestampMs > messages[j].TimestampMs
	})
	if len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

// readTranscript parses one transcript. Lines that are not chat messages are
// skipped; messages without a timestamp take the file mtime.
func readTranscript(path string, fallbackMs int64) ([]state.RecentChatMessage, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript %s: %w", path, err)
	}
	defer file.Close()

	sessionKey := strings.TrimSuffix(filepath.Base(path), ".jsonl")
	var out []state.RecentChatMessage

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxTranscriptLine)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		msg, ok := ParseTranscriptLine([]byte(line))
		if !ok {
			continue
		}
		msg.SessionKey = sessionKey
		if msg.TimestampMs == 0 {
			msg.TimestampMs = fallbackMs
		}
		out = append(out, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan transcript %s: %w", path, err)
	}
	return out, nil
}

// ParseTranscriptLine decodes one transcript line into a chat message
func ParseTranscriptLine(raw []byte) (state.RecentChatMessage, bool) {
	var line transcriptLine
	if err := json.Unmarshal(raw, &line); err != nil {
		return state.RecentChatMessage{}, false
	}

	role, ts, content := line.Role, line.Timestamp, line.Content
	if line.Message != nil {
		role = firstNonEmpty(line.Message.Role, role)
		content = line.Message.Content
		if len(line.Message.Timestamp) > 0 {
			ts = line.Message.Timestamp
		}
	}
	if role == "" {
		return state.RecentChatMessage{}, false
	}
	text := contentText(content)
	if text == "" {
		return state.RecentChatMessage{}, false
	}
	return state.RecentChatMessage{
		Role:        role,
		TimestampMs: parseTimestamp(ts),
		Text:        text,
	}, true
}

func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Text != "" && (p.Type == "" || p.Type == "text") {
			texts = append(texts, p.Text)
		}
	}
	return strings.TrimSpace(strings.Join(texts, "\n"))
}

// parseTimestamp accepts epoch milliseconds, epoch seconds or an RFC3339 string
func parseTimestamp(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n < 1e11 {
			return int64(n * 1000)
		}
		return int64(n)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UnixMilli()
		}
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
