package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ErginDapaj/Condown/internal/domain/media"
	"github.com/ErginDapaj/Condown/internal/infrastructure/process"
	"github.com/ErginDapaj/Condown/internal/infrastructure/progress"
)

const (
	defaultProbeTimeout = 30 * time.Second
	videoBitrate        = "5000k"
)

// Runner executes one supervised process.
type Runner interface {
	Run(ctx context.Context, c process.Command) error
}

// Options configures the encoder adapter.
type Options struct {
	FFmpegPath   string
	FFprobePath  string
	Timeout      time.Duration
	ProbeTimeout time.Duration
}

// Encoder wraps ffmpeg/ffprobe calls.
type Encoder struct {
	runner Runner
	logger *slog.Logger
	opts   Options
}

// NewEncoder creates the ffmpeg adapter.
func NewEncoder(runner Runner, logger *slog.Logger, opts Options) *Encoder {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.FFprobePath == "" {
		opts.FFprobePath = "ffprobe"
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Encoder{runner: runner, logger: logger, opts: opts}
}

var resolutions = map[media.QualityTier]string{
	media.Quality4K:    "3840x2160",
	media.Quality2K:    "2560x1440",
	media.Quality1080p: "1920x1080",
	media.Quality720p:  "1280x720",
	media.Quality480p:  "854x480",
}

var muxers = map[media.Format]string{
	media.FormatMP4:  "mp4",
	media.FormatAVI:  "avi",
	media.FormatMKV:  "matroska",
	media.FormatWebM: "webm",
	media.FormatMOV:  "mov",
}

// Encode converts input into output and reports progress to sink. The output
// is written to a temporary sibling and renamed on success, so a failed run
// never leaves a partial artifact at output.
func (e *Encoder) Encode(ctx context.Context, input, output string, format media.Format, quality media.QualityTier, sink progress.Sink) error {
	muxer, ok := muxers[format]
	if !ok {
		return &media.InvalidInputError{Field: "format", Value: string(format)}
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return err
	}

	tmpPath := output + ".part"
	_ = os.Remove(tmpPath)

	args := []string{"-y", "-i", input, "-progress", "pipe:1", "-nostats"}
	args = append(args, videoArgs(format, quality)...)
	args = append(args, "-f", muxer, tmpPath)

	parser := progress.NewParser(progress.Rules{
		Extract: e.timeExtractor(ctx, input),
		Label:   "Converting",
	})
	err := e.runner.Run(ctx, process.Command{
		Name:    e.opts.FFmpegPath,
		Args:    args,
		Timeout: e.opts.Timeout,
		Stdout:  parser.Writer(sink),
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := requireNonEmpty(tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, output)
}

func videoArgs(format media.Format, quality media.QualityTier) []string {
	size, resize := resolutions[quality]
	if !resize {
		return nil
	}
	codec := "libx264"
	if format == media.FormatWebM {
		codec = "libvpx-vp9"
	}
	return []string{"-c:v", codec, "-s", size, "-b:v", videoBitrate}
}

// Merge remuxes a video-only and an audio-only file into output, copying the
// video stream and encoding audio to AAC. Progress is remapped onto r.
func (e *Encoder) Merge(ctx context.Context, videoPath, audioPath, output string, r progress.Range, sink progress.Sink) error {
	args := []string{
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-strict", "experimental",
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-progress", "pipe:1",
		"-nostats",
		output,
	}
	parser := progress.NewParser(progress.Rules{
		Extract: e.timeExtractor(ctx, videoPath),
		Range:   r,
		Label:   "Merging",
	})
	err := e.runner.Run(ctx, process.Command{
		Name:    e.opts.FFmpegPath,
		Args:    args,
		Timeout: e.opts.Timeout,
		Stdout:  parser.Writer(sink),
	})
	if err != nil {
		_ = os.Remove(output)
		return err
	}
	return requireNonEmpty(output)
}

// ProbeDuration returns the container duration of inputPath in seconds.
func (e *Encoder) ProbeDuration(ctx context.Context, inputPath string) (float64, error) {
	var out bytes.Buffer
	err := e.runner.Run(ctx, process.Command{
		Name: e.opts.FFprobePath,
		Args: []string{
			"-v", "error",
			"-show_entries", "format=duration",
			"-of", "default=nokey=1:noprint_wrappers=1",
			inputPath,
		},
		Timeout: e.opts.ProbeTimeout,
		Stdout:  &out,
	})
	if err != nil {
		return 0, err
	}
	value := strings.TrimSpace(out.String())
	if value == "" || value == "N/A" {
		return 0, errors.New("duration missing")
	}
	return strconv.ParseFloat(value, 64)
}

// timeExtractor probes inputPath and returns an extractor relative to its
// duration. Without a duration the job still runs, just without percentages.
func (e *Encoder) timeExtractor(ctx context.Context, inputPath string) progress.Extractor {
	seconds, err := e.ProbeDuration(ctx, inputPath)
	if err != nil || seconds <= 0 {
		e.logger.DebugContext(ctx, "duration probe failed, progress disabled", "input", inputPath, "error", err)
		return nil
	}
	return TimeExtractor(time.Duration(seconds * float64(time.Second)))
}

// TimeExtractor reads ffmpeg -progress key=value lines and converts the
// encoded position to a percentage of total.
func TimeExtractor(total time.Duration) progress.Extractor {
	return func(line string) (float64, bool) {
		if total <= 0 {
			return 0, false
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return 0, false
		}
		var pos time.Duration
		switch strings.TrimSpace(key) {
		case "out_time_us", "out_time_ms":
			// out_time_ms carries microseconds as well.
			us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil || us < 0 {
				return 0, false
			}
			pos = time.Duration(us) * time.Microsecond
		case "out_time":
			d, err := parseClock(strings.TrimSpace(value))
			if err != nil {
				return 0, false
			}
			pos = d
		case "progress":
			if strings.TrimSpace(value) == "end" {
				return 100, true
			}
			return 0, false
		default:
			return 0, false
		}
		return float64(pos) / float64(total) * 100, true
	}
}

// parseClock parses HH:MM:SS.ffffff.
func parseClock(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, err
	}
	if h < 0 || m < 0 || sec < 0 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec*float64(time.Second)), nil
}

func requireNonEmpty(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", path, media.ErrEmptyOutput)
		}
		return err
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s: %w", path, media.ErrEmptyOutput)
	}
	return nil
}
