package progress

import (
	"sync"

	"github.com/ErginDapaj/Condown/internal/domain/media"
)

// Sink receives progress events. Emit is fire-and-forget: implementations
// swallow their own delivery failures.
type Sink interface {
	Emit(event media.Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(event media.Event)

// Emit calls f.
func (f SinkFunc) Emit(event media.Event) {
	if f != nil {
		f(event)
	}
}

type discard struct{}

func (discard) Emit(media.Event) {}

// Discard drops every event.
var Discard Sink = discard{}

// OrDiscard returns s, or Discard when s is nil.
func OrDiscard(s Sink) Sink {
	if s == nil {
		return Discard
	}
	return s
}

// Monotonic forwards Progress events only when their percent moves forward,
// so a job made of several sub-processes still reports a non-decreasing stream.
type Monotonic struct {
	next Sink

	mu   sync.Mutex
	last float64
	seen bool
}

// NewMonotonic wraps next.
func NewMonotonic(next Sink) *Monotonic {
	return &Monotonic{next: OrDiscard(next)}
}

// Emit implements Sink.
func (m *Monotonic) Emit(event media.Event) {
	if p, ok := event.(media.Progress); ok {
		m.mu.Lock()
		if m.seen && p.Percent <= m.last {
			m.mu.Unlock()
			return
		}
		m.seen = true
		m.last = p.Percent
		m.mu.Unlock()
	}
	m.next.Emit(event)
}

// Last returns the highest percent forwarded so far.
func (m *Monotonic) Last() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Writer feeds process output into a shared Parser and emits the resulting
// events. It never returns a write error: progress is advisory and a broken
// sink must not stall the supervised process.
type Writer struct {
	parser *Parser
	sink   Sink

	mu  sync.Mutex
	buf lineBuffer
}

// Writer returns an io.Writer bound to p's monotonic state with its own line buffer.
func (p *Parser) Writer(sink Sink) *Writer {
	return &Writer{parser: p, sink: OrDiscard(sink)}
}

// Write implements io.Writer.
func (w *Writer) Write(chunk []byte) (int, error) {
	w.mu.Lock()
	lines := w.buf.push(chunk)
	w.mu.Unlock()
	for _, line := range lines {
		w.emit(w.parser.Line(line))
	}
	return len(chunk), nil
}

// Flush parses any trailing partial line.
func (w *Writer) Flush() {
	w.mu.Lock()
	line, ok := w.buf.drain()
	w.mu.Unlock()
	if ok {
		w.emit(w.parser.Line(line))
	}
}

func (w *Writer) emit(events []media.Event) {
	for _, ev := range events {
		w.sink.Emit(ev)
	}
}
