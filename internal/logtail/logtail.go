package logtail

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// maxLineBytes bounds a single log line; longer lines fail the read.
const maxLineBytes = 1 << 20

// Entry is one decoded line of the client log.
type Entry struct {
	Time      time.Time
	Level     string
	Component string
	Message   string
	Error     string
	// Fields holds the remaining structured fields, formatted as key=value.
	Fields []string
}

// Tail returns the last n lines of the file at path, oldest first. n <= 0
// returns every line. A missing file yields no lines.
func Tail(path string, n int) ([]string, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer func() { _ = file.Close() }()

	var r ring
	if n > 0 {
		r.buf = make([]string, n)
	}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		r.push(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	return r.lines(), nil
}

// ring keeps the most recent lines. A nil buf keeps everything.
type ring struct {
	buf   []string
	all   []string
	next  int
	count int
}

func (r *ring) push(line string) {
	if r.buf == nil {
		r.all = append(r.all, line)
		return
	}
	r.buf[r.next] = line
	r.next = (r.next + 1) % len(r.buf)
	r.count = min(r.count+1, len(r.buf))
}

func (r *ring) lines() []string {
	if r.buf == nil {
		return r.all
	}
	out := make([]string, 0, r.count)
	start := (r.next - r.count + len(r.buf)) % len(r.buf)
	for i := range r.count {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

// ReadEntries decodes the last n lines of the log at path.
func ReadEntries(path string, n int) ([]Entry, error) {
	lines, err := Tail(path, n)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		entries = append(entries, Parse(line))
	}
	return entries, nil
}

// Parse decodes one JSON log line. Lines that are not JSON objects become an
// entry carrying the raw text as the message.
func Parse(line string) Entry {
	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return Entry{Message: line}
	}

	e := Entry{
		Level:     stringField(fields, "level"),
		Component: stringField(fields, "component"),
		Message:   stringField(fields, "message"),
		Error:     stringField(fields, "error"),
	}
	if ts := stringField(fields, "time"); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			e.Time = t
		}
	}
	for _, k := range []string{"level", "component", "message", "error", "time"} {
		delete(fields, k)
	}
	e.Fields = formatFields(fields)
	return e
}

func stringField(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// formatFields renders fields as sorted key=value pairs.
func formatFields(fields map[string]any) []string {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+stringField(fields, k))
	}
	return out
}

// LevelTag returns a fixed-width tag for level.
func LevelTag(level string) string {
	switch strings.ToLower(level) {
	case "trace":
		return "TRC"
	case "debug":
		return "DBG"
	case "info":
		return "INF"
	case "warn":
		return "WRN"
	case "error":
		return "ERR"
	case "fatal":
		return "FTL"
	case "panic":
		return "PNC"
	default:
		return "???"
	}
}
