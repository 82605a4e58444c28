package cli

import (
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	mediadomain "github.com/ErginDapaj/Condown/internal/domain/media"
)

// printer renders job progress for a terminal as a redrawn bar, or as plain
// lines when output is redirected. It is a progress.Sink.
type printer struct {
	mu  sync.Mutex
	out io.Writer
	bar *progressbar.ProgressBar

	lastWhole   int
	lastMessage string
}

func newPrinter(out io.Writer, tty bool) *printer {
	p := &printer{out: out, lastWhole: -1}
	if tty {
		p.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetWidth(30),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionClearOnFinish(),
		)
	}
	return p
}

func (p *printer) Emit(event mediadomain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e := event.(type) {
	case mediadomain.Progress:
		whole := int(math.Floor(e.Percent))
		if p.bar != nil {
			p.bar.Describe(e.Message)
			_ = p.bar.Set(whole)
			return
		}
		// Plain output prints a line per whole percent or new message.
		if whole == p.lastWhole && e.Message == p.lastMessage {
			return
		}
		p.lastWhole, p.lastMessage = whole, e.Message
		fmt.Fprintf(p.out, "[%5.1f%%] %s\n", e.Percent, e.Message)
	case mediadomain.Phase:
		if p.bar != nil {
			p.bar.Describe(e.Message)
			return
		}
		p.lastMessage = e.Message
		fmt.Fprintln(p.out, e.Message)
	}
}

// Finish clears the bar so result lines start on a fresh line.
func (p *printer) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}
