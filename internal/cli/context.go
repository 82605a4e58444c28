package cli

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/ErginDapaj/Condown/internal/config"
	mediadomain "github.com/ErginDapaj/Condown/internal/domain/media"
	"github.com/ErginDapaj/Condown/internal/infrastructure/filesystem"
	"github.com/ErginDapaj/Condown/internal/infrastructure/progress"
	"github.com/ErginDapaj/Condown/internal/logging"
)

type jobRunner interface {
	Convert(ctx context.Context, input string, format mediadomain.Format, quality mediadomain.QualityTier, outputDir string, sink progress.Sink) (mediadomain.Artifact, error)
	Retrieve(ctx context.Context, url string, quality mediadomain.QualityTier, format mediadomain.Format, outputDir string, strategy mediadomain.Strategy, sink progress.Sink) (mediadomain.Artifact, error)
	FetchMetadata(ctx context.Context, url string) (mediadomain.Metadata, error)
}

type serviceBuilder func(cfg config.Config, logger *slog.Logger) jobRunner

// commandContext lazily loads configuration and builds the job runner the
// first time a command needs them.
type commandContext struct {
	streams    Streams
	build      serviceBuilder
	configFlag string
	verbose    bool

	once   sync.Once
	cfg    config.Config
	runner jobRunner
	err    error
}

func newCommandContext(streams Streams, build serviceBuilder) *commandContext {
	if streams.In == nil {
		streams.In = os.Stdin
	}
	if streams.Out == nil {
		streams.Out = os.Stdout
	}
	if streams.Err == nil {
		streams.Err = os.Stderr
	}
	return &commandContext{streams: streams, build: build}
}

func (c *commandContext) ensure() (jobRunner, config.Config, error) {
	c.once.Do(func() {
		cfg, err := config.Load(strings.TrimSpace(c.configFlag))
		if err != nil {
			c.err = err
			return
		}
		level := "warn"
		if c.verbose {
			level = "debug"
		}
		logger, err := logging.New(level, cfg.Logging.Format, c.streams.Err)
		if err != nil {
			c.err = err
			return
		}
		c.cfg = cfg
		c.runner = c.build(cfg, logger)
	})
	return c.runner, c.cfg, c.err
}

// defaultDownloadsDir is the destination of retrievals that name none.
func defaultDownloadsDir(cfg config.Config) string {
	return filesystem.NewStore(cfg.Paths.BaseDir, cfg.Paths.UploadsDir, cfg.Paths.DownloadsDir, cfg.Paths.OutputDir).DownloadsDir
}

// interactive reports whether both stdin and stdout are terminals.
func (c *commandContext) interactive() bool {
	return isTerminal(c.streams.In) && isTerminal(c.streams.Out)
}

func isTerminal(v any) bool {
	file, ok := v.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
