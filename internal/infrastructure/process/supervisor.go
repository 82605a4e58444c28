package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ErginDapaj/Condown/internal/domain/media"
)

const (
	defaultStderrTail = 8192
	defaultWaitDelay  = 5 * time.Second
)

// Command describes one supervised invocation.
//
// Stdout and Stderr are optional subscriptions. A nil writer leaves that
// stream unattached; supervision then relies on the exit status alone.
// Subscriptions with a Flush method are flushed once the process exits.
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Env     []string
	Timeout time.Duration
	Stdout  io.Writer
	Stderr  io.Writer
}

// Supervisor runs external processes and resolves each to exactly one outcome.
type Supervisor struct {
	logger    *slog.Logger
	waitDelay time.Duration
	tailSize  int

	// afterWait runs once the exit status has been recorded.
	afterWait func()
}

// NewSupervisor creates a supervisor logging through logger.
func NewSupervisor(logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{logger: logger, waitDelay: defaultWaitDelay, tailSize: defaultStderrTail}
}

// Run starts the command and blocks until it has been reaped. The first of
// timeout, context cancellation, or process exit decides the returned error;
// later signals for the same invocation are ignored. A nil error means the
// process exited with status 0.
//
// Errors are *media.SpawnError, *media.ExitError, media.ErrTimeout, or the
// context's error.
func (s *Supervisor) Run(ctx context.Context, c Command) error {
	cmd := exec.Command(c.Name, c.Args...) //nolint:gosec
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = c.Env
	}
	cmd.WaitDelay = s.waitDelay
	configure(cmd)

	tail := newTailBuffer(s.tailSize)
	if c.Stdout != nil {
		cmd.Stdout = c.Stdout
	}
	if c.Stderr != nil {
		cmd.Stderr = io.MultiWriter(tail, c.Stderr)
	} else {
		cmd.Stderr = tail
	}

	log := s.logger.With("command", c.Name)
	if err := cmd.Start(); err != nil {
		log.WarnContext(ctx, "process start failed", "error", err)
		return &media.SpawnError{Command: c.Name, Err: err}
	}
	log.DebugContext(ctx, "process started", "pid", cmd.Process.Pid, "args", c.Args, "timeout", c.Timeout)

	var outcome settler
	kill := func(reason string) {
		if err := terminate(cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
			log.WarnContext(ctx, "process kill failed", "reason", reason, "error", err)
		}
	}

	var timer *time.Timer
	if c.Timeout > 0 {
		timer = time.AfterFunc(c.Timeout, func() {
			if outcome.resolve(media.ErrTimeout) {
				log.WarnContext(ctx, "process timed out", "timeout", c.Timeout)
				kill("timeout")
			}
		})
	}

	exited := make(chan struct{})
	var watcher sync.WaitGroup
	watcher.Add(1)
	go func() {
		defer watcher.Done()
		select {
		case <-ctx.Done():
			if outcome.resolve(ctx.Err()) {
				kill("canceled")
			}
		case <-exited:
		}
	}()

	waitErr := cmd.Wait()
	outcome.resolve(exitResult(c.Name, waitErr, tail.String()))
	if s.afterWait != nil {
		s.afterWait()
	}
	if timer != nil {
		timer.Stop()
	}
	close(exited)
	watcher.Wait()
	flush(c.Stdout)
	flush(c.Stderr)

	err := outcome.result()
	if err != nil {
		log.DebugContext(ctx, "process failed", "error", err)
	} else {
		log.DebugContext(ctx, "process finished")
	}
	return err
}

func flush(w io.Writer) {
	if f, ok := w.(interface{ Flush() }); ok {
		f.Flush()
	}
}

func exitResult(name string, waitErr error, stderr string) error {
	if waitErr == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return &media.ExitError{Command: name, ExitCode: exitErr.ExitCode(), Stderr: lastLines(stderr, 5)}
	}
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		// The process exited cleanly but a descendant kept its output open.
		return nil
	}
	return fmt.Errorf("%s: %w", name, waitErr)
}

// settler records the first outcome offered to it.
type settler struct {
	mu      sync.Mutex
	settled bool
	err     error
}

// resolve stores err if nothing has been stored yet and reports whether it won.
func (s *settler) resolve(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settled {
		return false
	}
	s.settled = true
	s.err = err
	return true
}

func (s *settler) result() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append([]byte(nil), t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// lastLines returns up to n trailing non-empty, non-progress lines joined by "; ".
func lastLines(s string, n int) string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == '\r' })
	var keep []string
	for i := len(fields) - 1; i >= 0 && len(keep) < n; i-- {
		line := strings.TrimSpace(fields[i])
		if line == "" || strings.HasPrefix(line, "[download]") {
			continue
		}
		keep = append([]string{line}, keep...)
	}
	return strings.Join(keep, "; ")
}
