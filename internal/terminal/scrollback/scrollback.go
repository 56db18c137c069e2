// Package scrollback retains recent terminal lines on the backend.
//
// The rendering surface normally supplies a serialized capture of its
// scrollback when a session is saved. When it has not, the plain text kept
// here is used instead.
package scrollback

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/termhost/internal/shared/clock"
)

// DefaultMaxLines is the number of lines kept when no limit is configured.
const DefaultMaxLines = 1000

// LineType classifies a retained line.
type LineType string

const (
	LineOutput LineType = "output"
	LineInput  LineType = "input"
	LineError  LineType = "error"
)

// Line is one retained line of terminal content.
type Line struct {
	Content   string    `json:"content"`
	Type      LineType  `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// ansiPattern matches CSI, OSC and two-byte escape sequences.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-?]*[ -/]*[@-~]|\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)|\x1b[@-Z\\-_=>]`)

// StripANSI removes terminal escape sequences from s.
func StripANSI(s string) string {
	if !strings.Contains(s, "\x1b") {
		return s
	}
	return ansiPattern.ReplaceAllString(s, "")
}

// Buffer is a bounded ring of lines. Output is split on newlines; a
// trailing partial line is held until its newline arrives.
type Buffer struct {
	clock clock.Clock

	mu      sync.Mutex
	lines   []Line
	head    int
	size    int
	partial strings.Builder
}

// New creates a buffer retaining at most maxLines lines.
func New(maxLines int, c clock.Clock) *Buffer {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	return &Buffer{
		clock: clock.OrReal(c),
		lines: make([]Line, maxLines),
	}
}

// AppendOutput records process output.
func (b *Buffer) AppendOutput(data string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		i := strings.IndexByte(data, '\n')
		if i < 0 {
			b.partial.WriteString(data)
			return
		}
		b.partial.WriteString(data[:i])
		line := strings.TrimSuffix(b.partial.String(), "\r")
		b.partial.Reset()
		b.pushLocked(Line{Content: line, Type: LineOutput, Timestamp: b.clock.Now()})
		data = data[i+1:]
	}
}

// AppendInput records a line the user typed.
func (b *Buffer) AppendInput(line string) {
	b.append(strings.TrimRight(line, "\r\n"), LineInput)
}

// AppendError records a backend-generated error line.
func (b *Buffer) AppendError(line string) {
	b.append(line, LineError)
}

func (b *Buffer) append(content string, t LineType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pushLocked(Line{Content: content, Type: t, Timestamp: b.clock.Now()})
}

func (b *Buffer) pushLocked(l Line) {
	b.lines[b.head] = l
	b.head = (b.head + 1) % len(b.lines)
	if b.size < len(b.lines) {
		b.size++
	}
}

// Lines returns retained lines, oldest first. A pending partial line is
// included as the last output line.
func (b *Buffer) Lines() []Line {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Line, 0, b.size+1)
	start := (b.head - b.size + len(b.lines)) % len(b.lines)
	for i := 0; i < b.size; i++ {
		out = append(out, b.lines[(start+i)%len(b.lines)])
	}
	if b.partial.Len() > 0 {
		out = append(out, Line{Content: b.partial.String(), Type: LineOutput, Timestamp: b.clock.Now()})
	}
	return out
}

// Len returns the number of complete retained lines.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// PlainText returns the retained content with escape sequences removed,
// one line per row.
func (b *Buffer) PlainText() string {
	lines := b.Lines()
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = StripANSI(l.Content)
	}
	return strings.Join(parts, "\n")
}

// Reset drops every retained line.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head, b.size = 0, 0
	b.partial.Reset()
}
