package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// lumberjack starts a mill goroutine per file logger that Close never stops.
var ignoreMill = goleak.IgnoreAnyFunction("gopkg.in/natefinch/lumberjack%2ev2.(*Logger).millRun")

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, ignoreMill)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"warn", WarnLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{"bogus", InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(LoggerConfig{Level: WarnLevel, Stderr: &buf})

	l.Debug("hidden debug")
	l.Info("hidden info")
	l.Warn("shown warn", "units", 3)
	l.Error("shown error")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown warn")
	assert.Contains(t, out, "units")
	assert.Contains(t, out, "shown error")

	buf.Reset()
	l.SetLevel(DebugLevel)
	l.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(LoggerConfig{Level: InfoLevel, Stderr: &buf})
	l.SetJSONOutput(true)

	l.Info("encoded map", "tokens", 42)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "encoded map", entry["message"])
	assert.EqualValues(t, 42, entry["tokens"])
	assert.Contains(t, entry, "timestamp")
}

func TestLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bt.log")
	var buf bytes.Buffer
	l := New(LoggerConfig{Level: InfoLevel, Stderr: &buf, File: path, MaxSizeMB: 1})

	l.Info("to file", "vuln", "xss")
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"vuln":"xss"`)
	assert.Contains(t, buf.String(), "to file")
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Error("discarded")
}

func TestProgressSpinner(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreMill)

	var buf syncBuffer
	p := NewProgressSpinner(&buf, "lexing")
	p.Start()
	p.Start()
	p.Message("correlating")
	p.Stop()
	p.Stop()

	assert.True(t, strings.HasSuffix(buf.String(), "\r\033[K"))
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
