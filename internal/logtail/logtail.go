package logtail

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Level labels written by the charmbracelet/log text formatter.
var levelLabels = map[string]log.Level{
	"DEBU": log.DebugLevel,
	"INFO": log.InfoLevel,
	"WARN": log.WarnLevel,
	"ERRO": log.ErrorLevel,
	"FATA": log.FatalLevel,
}

// Read returns at most maxLines lines from the end of the log at path whose
// level is at least minLevel. A missing file yields no lines. Lines that carry
// no level label inherit the level of the line before them.
func Read(path string, maxLines int, minLevel log.Level) ([]string, error) {
	if maxLines <= 0 {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	ring := make([]string, maxLines)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	count, idx := 0, 0
	current := log.InfoLevel
	for scanner.Scan() {
		line := scanner.Text()
		if lvl, ok := LineLevel(line); ok {
			current = lvl
		}
		if current < minLevel {
			continue
		}
		ring[idx] = line
		idx = (idx + 1) % maxLines
		if count < maxLines {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	lines := make([]string, count)
	if count == maxLines {
		for i := range count {
			lines[i] = ring[(idx+i)%maxLines]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, nil
}

// LineLevel finds the level label among the first few fields of line.
func LineLevel(line string) (log.Level, bool) {
	fields := strings.Fields(line)
	if len(fields) > 4 {
		fields = fields[:4]
	}
	for _, f := range fields {
		if lvl, ok := levelLabels[f]; ok {
			return lvl, true
		}
	}
	return 0, false
}
