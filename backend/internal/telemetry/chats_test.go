package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTranscriptLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		ok   bool
		role string
		text string
		tsMs int64
	}{
		{
			name: "flat string content",
			line: `{"role":"user","timestamp":1700000000000,"content":"hello alpha"}`,
			ok: true, role: "user", text: "hello alpha", tsMs: 1700000000000,
		},
		{
			name: "nested message with parts",
			line: `{"type":"message","timestamp":"2026-01-02T03:04:05Z","message":{"role":"assistant","content":[{"type":"text","text":"one"},{"type":"tool_use","text":"skip"},{"type":"text","text":"two"}]}}`,
			ok: true, role: "assistant", text: "one\ntwo", tsMs: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).UnixMilli(),
		},
		{
			name: "epoch seconds",
			line: `{"role":"user","timestamp":1700000000,"content":"hi"}`,
			ok: true, role: "user", text: "hi", tsMs: 1700000000000,
		},
		{name: "session header", line: `{"type":"session","id":"abc"}`, ok: false},
		{name: "empty content", line: `{"role":"user","content":""}`, ok: false},
		{name: "not json", line: `garbage`, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := ParseTranscriptLine([]byte(tt.line))
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			assert.Equal(t, tt.role, msg.Role)
			assert.Equal(t, tt.text, msg.Text)
			assert.Equal(t, tt.tsMs, msg.TimestampMs)
		})
	}
}

func TestReadRecentMessages(t *testing.T) {
	dir := t.TempDir()
	older := filepath.Join(dir, "older.jsonl")
	newer := filepath.Join(dir, "newer.jsonl")

	writeFile(t, older,
		`{"role":"user","timestamp":1700000001000,"content":"first"}`+"\n"+
			`{"role":"assistant","timestamp":1700000002000,"content":"second"}`+"\n")
	writeFile(t, newer,
		`{"type":"session"}`+"\n"+
			`{"role":"user","timestamp":1700000003000,"content":"third"}`+"\n\n"+
			`{"role":"user","content":"undated"}`+"\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	base := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, base, base))
	require.NoError(t, os.Chtimes(newer, base.Add(time.Minute), base.Add(time.Minute)))

	msgs, err := ReadRecentMessages(context.Background(), dir, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 4)

	// The undated message takes the file mtime, which is newer than every timestamp
	assert.Equal(t, "undated", msgs[0].Text)
	assert.Equal(t, base.Add(time.Minute).UnixMilli(), msgs[0].TimestampMs)
	assert.Equal(t, "newer", msgs[0].SessionKey)
	assert.Equal(t, "third", msgs[1].Text)
	assert.Equal(t, "second", msgs[2].Text)
	assert.Equal(t, "first", msgs[3].Text)
	assert.Equal(t, "older", msgs[3].SessionKey)
}

func TestReadRecentMessages_Limit(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "s.jsonl"),
		`{"role":"user","timestamp":1700000001000,"content":"a"}`+"\n"+
			`{"role":"user","timestamp":1700000003000,"content":"c"}`+"\n"+
			`{"role":"user","timestamp":1700000002000,"content":"b"}`+"\n")

	msgs, err := ReadRecentMessages(context.Background(), dir, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "c", msgs[0].Text)
	assert.Equal(t, "b", msgs[1].Text)
}

func TestReadRecentMessages_Disabled(t *testing.T) {
	msgs, err := ReadRecentMessages(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	msgs, err = ReadRecentMessages(context.Background(), filepath.Join(t.TempDir(), "missing"), 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
