package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ErginDapaj/Condown/internal/domain/media"
	"github.com/ErginDapaj/Condown/internal/infrastructure/process"
	"github.com/ErginDapaj/Condown/internal/infrastructure/progress"
)

const (
	defaultTimeout         = 10 * time.Minute
	defaultMetadataTimeout = 30 * time.Second

	downloadMarker = "[download]"
)

// Runner executes one supervised process.
type Runner interface {
	Run(ctx context.Context, c process.Command) error
}

// Options configures the retrieval adapter.
type Options struct {
	Path            string
	Timeout         time.Duration
	MetadataTimeout time.Duration
}

// Client wraps yt-dlp invocations.
type Client struct {
	runner Runner
	logger *slog.Logger
	opts   Options
}

// NewClient creates the yt-dlp adapter. Zero timeouts fall back to 10 minutes
// for downloads and 30 seconds for metadata.
func NewClient(runner Runner, logger *slog.Logger, opts Options) *Client {
	if opts.Path == "" {
		opts.Path = "yt-dlp"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MetadataTimeout <= 0 {
		opts.MetadataTimeout = defaultMetadataTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{runner: runner, logger: logger, opts: opts}
}

type videoInfo struct {
	Title       string  `json:"title"`
	FullTitle   string  `json:"fulltitle"`
	Channel     string  `json:"channel"`
	Uploader    string  `json:"uploader"`
	Duration    float64 `json:"duration"`
	ViewCount   int64   `json:"view_count"`
	Description string  `json:"description"`
}

// FetchMetadata dumps the video's JSON description without downloading media.
// Every failure, including the metadata timeout, is a *media.MetadataError.
func (c *Client) FetchMetadata(ctx context.Context, url string) (media.Metadata, error) {
	var out bytes.Buffer
	err := c.runner.Run(ctx, process.Command{
		Name:    c.opts.Path,
		Args:    []string{"--dump-json", "--no-warnings", "--no-playlist", "--", url},
		Timeout: c.opts.MetadataTimeout,
		Stdout:  &out,
	})
	if err != nil {
		return media.Metadata{}, &media.MetadataError{URL: url, Err: err}
	}

	var info videoInfo
	if err := json.Unmarshal(firstLine(out.Bytes()), &info); err != nil {
		return media.Metadata{}, &media.MetadataError{URL: url, Err: fmt.Errorf("decode metadata: %w", err)}
	}
	return info.metadata(), nil
}

func (v videoInfo) metadata() media.Metadata {
	return media.Metadata{
		Title:       firstNonEmpty(v.Title, v.FullTitle, "Unknown"),
		Channel:     firstNonEmpty(v.Channel, v.Uploader, "Unknown"),
		Duration:    v.Duration,
		ViewCount:   v.ViewCount,
		Description: v.Description,
	}
}

// Download lets yt-dlp pick and merge streams into output. Percentages of
// the download are remapped onto r; the first merge line emits a Phase.
func (c *Client) Download(ctx context.Context, url, output string, format media.Format, quality media.QualityTier, r progress.Range, sink progress.Sink) error {
	args := []string{
		"-o", output,
		"--merge-output-format", format.Ext(),
		"--no-mtime",
		"--no-playlist",
		"--no-warnings",
		"--progress",
		"--newline",
		"--no-download-archive",
	}
	if selector := FormatSelector(quality); selector != "" {
		args = append(args, "-f", selector)
	}
	args = append(args, "--", url)

	parser := progress.NewParser(progress.Rules{
		Extract: progress.MarkerPercent(downloadMarker),
		Phases:  []progress.PhaseMarker{mergeMarker},
		Range:   r,
		Label:   "Downloading",
	})
	c.logger.DebugContext(ctx, "download started", "url", url, "output", output, "quality", quality)
	err := c.runner.Run(ctx, process.Command{
		Name:    c.opts.Path,
		Args:    args,
		Timeout: c.opts.Timeout,
		Stdout:  parser.Writer(sink),
		Stderr:  parser.Writer(sink),
	})
	if err != nil {
		c.removePartials(ctx, output)
	}
	return err
}

// DownloadVideoStream fetches only the video stream for quality into output.
func (c *Client) DownloadVideoStream(ctx context.Context, url, output string, format media.Format, quality media.QualityTier, r progress.Range, sink progress.Sink) error {
	return c.downloadStream(ctx, url, VideoStreamSelector(quality, format), output, "Downloading video", r, sink)
}

// DownloadAudioStream fetches only the best audio stream into output.
func (c *Client) DownloadAudioStream(ctx context.Context, url, output string, r progress.Range, sink progress.Sink) error {
	return c.downloadStream(ctx, url, AudioStreamSelector(), output, "Downloading audio", r, sink)
}

// downloadStream fetches a single stream without merging; callers remux the parts.
func (c *Client) downloadStream(ctx context.Context, url, selector, output, label string, r progress.Range, sink progress.Sink) error {
	args := []string{
		"-f", selector,
		"-o", output,
		"--no-mtime",
		"--no-playlist",
		"--newline",
		"--", url,
	}
	parser := progress.NewParser(progress.Rules{
		Extract: progress.AnyPercent(),
		Range:   r,
		Label:   label,
	})
	c.logger.DebugContext(ctx, "stream download started", "url", url, "output", output, "selector", selector)
	err := c.runner.Run(ctx, process.Command{
		Name:    c.opts.Path,
		Args:    args,
		Timeout: c.opts.Timeout,
		Stdout:  parser.Writer(sink),
		Stderr:  parser.Writer(sink),
	})
	if err != nil {
		c.removePartials(ctx, output)
	}
	return err
}

// removePartials deletes what an interrupted run leaves beside output: the
// .part and .ytdl files, the merger's .temp file and per-format fragments
// such as "Clip.f137.mp4". Failures are logged and otherwise ignored.
func (c *Client) removePartials(ctx context.Context, output string) {
	dir := filepath.Dir(output)
	base := filepath.Base(output)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.WarnContext(ctx, "partial cleanup failed", "dir", dir, "error", err)
		}
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !isPartial(entry.Name(), base) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.logger.WarnContext(ctx, "partial cleanup failed", "path", path, "error", err)
			continue
		}
		c.logger.DebugContext(ctx, "removed partial download", "path", path)
	}
}

// isPartial reports whether name is a leftover of downloading base.
func isPartial(name, base string) bool {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	switch {
	case strings.HasPrefix(name, base+".part"), name == base+".ytdl", name == stem+".temp"+ext:
		return true
	case strings.HasPrefix(name, stem+".f"):
		id, rest, ok := strings.Cut(strings.TrimPrefix(name, stem+".f"), ".")
		return ok && rest != "" && isFormatID(id)
	}
	return false
}

// isFormatID matches yt-dlp format ids such as "137" or "251-drc".
func isFormatID(id string) bool {
	if id == "" || id[0] < '0' || id[0] > '9' {
		return false
	}
	for _, r := range id {
		if (r < '0' || r > '9') && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && r != '-' {
			return false
		}
	}
	return true
}

var mergeMarker = progress.PhaseMarker{
	Tokens:  []string{"[Merger]", "Merging"},
	Name:    media.PhaseMerging,
	Message: "Merging video and audio...",
	Percent: 95,
}

var heights = map[media.QualityTier]int{
	media.Quality4K:    2160,
	media.Quality2K:    1440,
	media.Quality1080p: 1080,
	media.Quality720p:  720,
}

// FormatSelector returns the -f expression for quality; empty lets the tool
// choose its default best format.
func FormatSelector(quality media.QualityTier) string {
	switch quality {
	case media.QualityAudio:
		return "bestaudio"
	case media.QualityBest:
		return ""
	}
	h, ok := heights[quality]
	if !ok {
		return ""
	}
	return fmt.Sprintf("bestvideo[height<=%[1]d]+bestaudio/best[height<=%[1]d]/bestvideo[height<=%[1]d]+bestaudio", h)
}

// VideoStreamSelector selects the video-only stream for the separate-stream
// path, preferring the requested container.
func VideoStreamSelector(quality media.QualityTier, format media.Format) string {
	h, ok := heights[quality]
	if !ok {
		h = 1080
	}
	return fmt.Sprintf("bestvideo[height<=%[1]d][ext=%[2]s]/bestvideo[height<=%[1]d]", h, format.Ext())
}

// AudioStreamSelector selects the audio-only stream.
func AudioStreamSelector() string {
	return "bestaudio"
}

func firstLine(b []byte) []byte {
	b = bytes.TrimSpace(b)
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		return b[:i]
	}
	return b
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
