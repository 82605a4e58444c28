package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"

	mediadomain "github.com/ErginDapaj/Condown/internal/domain/media"
)

type progressFrame struct {
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

type errorFrame struct {
	Error    string `json:"error"`
	Complete bool   `json:"complete"`
}

type successFrame struct {
	Success     bool     `json:"success"`
	Complete    bool     `json:"complete"`
	Percent     *float64 `json:"percent,omitempty"`
	Filename    string   `json:"filename"`
	Path        string   `json:"path"`
	DownloadURL string   `json:"downloadUrl"`
}

// responder writes job events to a client as server-sent event frames. It is
// a progress.Sink; write failures are swallowed and only ever end the stream.
type responder struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu       sync.Mutex
	gone     bool
	last     float64
	terminal sync.Once
	done     bool
}

// newResponder sends the event-stream headers and returns a sink bound to w.
func newResponder(w http.ResponseWriter) *responder {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}
	return &responder{w: w, flusher: flusher}
}

// Emit writes one progress frame. Phase events carry the last percent seen.
func (r *responder) Emit(event mediadomain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	switch e := event.(type) {
	case mediadomain.Progress:
		r.last = e.Percent
		r.writeLocked(progressFrame{Percent: e.Percent, Message: e.Message})
	case mediadomain.Phase:
		r.writeLocked(progressFrame{Percent: r.last, Message: e.Message})
	}
}

// Succeed writes the terminal success frame. Percent is included when
// withPercent is set.
func (r *responder) Succeed(artifact mediadomain.Artifact, withPercent bool) {
	frame := successFrame{
		Success:     true,
		Complete:    true,
		Filename:    artifact.Filename,
		Path:        artifact.Path,
		DownloadURL: "/api/download/" + url.PathEscape(artifact.Filename),
	}
	if withPercent {
		full := 100.0
		frame.Percent = &full
	}
	r.finish(frame)
}

// Fail writes the terminal error frame.
func (r *responder) Fail(err error) {
	r.finish(errorFrame{Error: clientMessage(err), Complete: true})
}

func (r *responder) finish(frame any) {
	r.terminal.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.writeLocked(frame)
		r.done = true
	})
}

func (r *responder) writeLocked(frame any) {
	if r.gone {
		return
	}
	var buf bytes.Buffer
	buf.WriteString("data: ")
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(frame); err != nil {
		return
	}
	buf.Truncate(buf.Len() - 1)
	buf.WriteString("\n\n")

	if _, err := r.w.Write(buf.Bytes()); err != nil {
		r.gone = true
		return
	}
	if r.flusher != nil {
		r.flusher.Flush()
	}
}

// clientMessage returns the text shown to a client for err. Invalid input
// carries its own user-facing reason.
func clientMessage(err error) string {
	var invalid *mediadomain.InvalidInputError
	if errors.As(err, &invalid) && invalid.Reason != "" {
		return invalid.Reason
	}
	return err.Error()
}
