package logtail

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

const sample = `2026/10/15 10:00:00 DEBU realtime: dialing url=ws://localhost/ws
2026/10/15 10:00:01 INFO realtime: connected
2026/10/15 10:00:02 WARN realtime: unexpected close code=1006
  stack line
2026/10/15 10:00:03 INFO app: job created id=j1
2026/10/15 10:00:04 ERRO upload: chunk failed index=2
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reel.log")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestRead(t *testing.T) {
	path := writeLog(t, sample)
	all := strings.Split(strings.TrimSuffix(sample, "\n"), "\n")

	tests := []struct {
		name     string
		maxLines int
		minLevel log.Level
		expected []string
	}{
		{name: "zero lines", maxLines: 0, minLevel: log.DebugLevel, expected: nil},
		{name: "everything", maxLines: 20, minLevel: log.DebugLevel, expected: all},
		{name: "tail", maxLines: 2, minLevel: log.DebugLevel, expected: all[4:]},
		{name: "info and up", maxLines: 20, minLevel: log.InfoLevel, expected: all[1:]},
		{
			name:     "warnings keep continuation lines",
			maxLines: 20,
			minLevel: log.WarnLevel,
			expected: []string{all[2], all[3], all[5]},
		},
		{name: "errors tail", maxLines: 1, minLevel: log.ErrorLevel, expected: all[5:]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Read(path, tt.maxLines, tt.minLevel)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if len(got) == 0 && len(tt.expected) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Read() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestRead_MissingFile(t *testing.T) {
	lines, err := Read(filepath.Join(t.TempDir(), "nope.log"), 10, log.DebugLevel)
	if err != nil || lines != nil {
		t.Fatalf("Read() = %v, %v; want nil, nil", lines, err)
	}
}

func TestRead_LongLine(t *testing.T) {
	long := "2026/10/15 10:00:00 INFO " + strings.Repeat("x", 100*1024)
	path := writeLog(t, long+"\n")
	lines, err := Read(path, 5, log.DebugLevel)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(lines) != 1 || lines[0] != long {
		t.Fatalf("got %d lines", len(lines))
	}
}

func TestLineLevel(t *testing.T) {
	tests := []struct {
		line string
		want log.Level
		ok   bool
	}{
		{"2026/10/15 10:00:00 WARN x", log.WarnLevel, true},
		{"ERRO boom", log.ErrorLevel, true},
		{"  continuation", 0, false},
		{"a b c d INFO", 0, false},
	}
	for _, tt := range tests {
		got, ok := LineLevel(tt.line)
		if got != tt.want || ok != tt.ok {
			t.Errorf("LineLevel(%q) = %v, %v; want %v, %v", tt.line, got, ok, tt.want, tt.ok)
		}
	}
}
