package progress

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/ErginDapaj/Condown/internal/domain/media"
)

// maxDisplay caps non-terminal progress; only the terminal success event reports 100.
const maxDisplay = 99

// Extractor pulls a raw 0-100 percentage out of one line of tool output.
type Extractor func(line string) (float64, bool)

// PhaseMarker emits a Phase event the first time any of its tokens appears in a line.
type PhaseMarker struct {
	Tokens  []string
	Name    string
	Message string
	// Percent, when set, is the raw progress the phase implies. It is
	// reported like any other reading, so it never moves progress backwards.
	Percent float64
}

// Range maps a phase's raw progress onto a slice of the overall display range.
type Range struct {
	Floor   float64
	Ceiling float64
}

// Full is the identity range.
var Full = Range{Floor: 0, Ceiling: 100}

// Map applies displayed = floor + raw*(ceiling-floor)/100.
func (r Range) Map(raw float64) float64 {
	if raw < 0 {
		raw = 0
	}
	if raw > 100 {
		raw = 100
	}
	return r.Floor + raw*(r.Ceiling-r.Floor)/100
}

// Rules configures a Parser.
type Rules struct {
	Extract Extractor
	Phases  []PhaseMarker
	Range   Range
	// Label prefixes percent messages, e.g. "Downloading" yields "Downloading... 42%".
	Label string
}

// Parser turns chunks of tool output into normalized progress events.
//
// Feed and Flush operate on the parser's own line buffer. Additional
// streams of the same process can share the monotonic state through
// Writer, each with its own buffer.
type Parser struct {
	rules Rules

	mu          sync.Mutex
	buf         lineBuffer
	emitted     bool
	lastRaw     float64
	lastDisplay float64
	seenPhases  map[string]bool
}

// NewParser creates a parser; a zero Range means Full.
func NewParser(rules Rules) *Parser {
	if rules.Range == (Range{}) {
		rules.Range = Full
	}
	if rules.Label == "" {
		rules.Label = "Processing"
	}
	return &Parser{rules: rules, seenPhases: make(map[string]bool)}
}

// Feed consumes a chunk and returns events for every complete line in it.
func (p *Parser) Feed(chunk []byte) []media.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var events []media.Event
	for _, line := range p.buf.push(chunk) {
		events = append(events, p.lineLocked(line)...)
	}
	return events
}

// Flush parses any trailing partial line.
func (p *Parser) Flush() []media.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	line, ok := p.buf.drain()
	if !ok {
		return nil
	}
	return p.lineLocked(line)
}

// Line parses one complete line.
func (p *Parser) Line(line string) []media.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lineLocked(line)
}

func (p *Parser) lineLocked(line string) []media.Event {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	var events []media.Event
	for _, marker := range p.rules.Phases {
		if p.seenPhases[marker.Name] || !containsAny(line, marker.Tokens) {
			continue
		}
		p.seenPhases[marker.Name] = true
		events = append(events, media.Phase{Name: marker.Name, Message: marker.Message})
		if marker.Percent > 0 {
			if ev, ok := p.advanceLocked(marker.Percent, marker.Message); ok {
				events = append(events, ev)
			}
		}
	}

	if p.rules.Extract == nil {
		return events
	}
	raw, ok := p.rules.Extract(line)
	if !ok || math.IsNaN(raw) || math.IsInf(raw, 0) {
		return events
	}
	if ev, ok := p.advanceLocked(raw, ""); ok {
		events = append(events, ev)
	}
	return events
}

// advanceLocked records a raw reading and returns the Progress to emit, if
// the reading moves the display forward. An empty message is derived from
// the label.
func (p *Parser) advanceLocked(raw float64, message string) (media.Progress, bool) {
	if raw > 100 {
		raw = 100
	}
	if p.emitted && raw <= p.lastRaw {
		return media.Progress{}, false
	}
	display := math.Min(roundTenth(p.rules.Range.Map(raw)), maxDisplay)
	if p.emitted && display <= p.lastDisplay {
		p.lastRaw = raw
		return media.Progress{}, false
	}

	p.emitted = true
	p.lastRaw = raw
	p.lastDisplay = display
	if message == "" {
		message = fmt.Sprintf("%s... %d%%", p.rules.Label, int(math.Round(raw)))
	}
	return media.Progress{Percent: display, Message: message}, true
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

func containsAny(line string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(line, t) {
			return true
		}
	}
	return false
}

// MarkerPercent matches "<marker> ... NN.N%" lines.
func MarkerPercent(marker string) Extractor {
	re := regexp.MustCompile(regexp.QuoteMeta(marker) + `\s+(\d+(?:\.\d+)?)%`)
	return func(line string) (float64, bool) {
		m := re.FindStringSubmatch(line)
		if m == nil {
			return 0, false
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
}

// AnyPercent matches the first "NN.N%" token of a line.
func AnyPercent() Extractor {
	re := regexp.MustCompile(`(\d+(?:\.\d+)?)%`)
	return func(line string) (float64, bool) {
		m := re.FindStringSubmatch(line)
		if m == nil {
			return 0, false
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
}

// lineBuffer splits arbitrary chunks on \n or \r, retaining the trailing partial line.
type lineBuffer struct {
	partial []byte
}

func (b *lineBuffer) push(chunk []byte) []string {
	var lines []string
	start := 0
	data := append(b.partial, chunk...)
	for i, c := range data {
		if c == '\n' || c == '\r' {
			if i > start {
				lines = append(lines, string(data[start:i]))
			}
			start = i + 1
		}
	}
	b.partial = append([]byte(nil), data[start:]...)
	return lines
}

func (b *lineBuffer) drain() (string, bool) {
	if len(b.partial) == 0 {
		return "", false
	}
	line := string(b.partial)
	b.partial = nil
	return line, true
}
