package ffmpeg

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ErginDapaj/Condown/internal/domain/media"
	"github.com/ErginDapaj/Condown/internal/infrastructure/process"
	"github.com/ErginDapaj/Condown/internal/infrastructure/progress"
)

type recorder struct {
	mu     sync.Mutex
	events []media.Event
}

func (r *recorder) Emit(ev media.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) percents() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []float64
	for _, ev := range r.events {
		if p, ok := ev.(media.Progress); ok {
			out = append(out, p.Percent)
		}
	}
	return out
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

// fakeTools installs an ffprobe reporting a 10 second duration and an ffmpeg
// that records its arguments, prints -progress output, and writes its last
// argument as the output file.
func fakeTools(t *testing.T, ffmpegExit int) (*Encoder, string) {
	t.Helper()
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args.txt")
	probe := writeScript(t, dir, "ffprobe", `echo 10.000000`)
	body := `printf '%s\n' "$@" > "` + argsFile + `"
for last; do :; done
printf 'frame=1\nout_time_us=2500000\nprogress=continue\n'
printf 'out_time_us=2000000\nout_time=00:00:05.000000\nprogress=continue\n'
printf 'out_time_us=10000000\nprogress=end\n'
echo "encoder noise" 1>&2`
	if ffmpegExit != 0 {
		body += "\nexit " + strconv.Itoa(ffmpegExit)
	} else {
		body += `
printf 'data' > "$last"`
	}
	ff := writeScript(t, dir, "ffmpeg", body)

	enc := NewEncoder(process.NewSupervisor(nil), nil, Options{FFmpegPath: ff, FFprobePath: probe})
	return enc, argsFile
}

func readArgs(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestEncode_ProgressAndRename(t *testing.T) {
	enc, argsFile := fakeTools(t, 0)
	out := filepath.Join(t.TempDir(), "nested", "clip.mkv")

	rec := &recorder{}
	err := enc.Encode(t.Context(), "/videos/clip.avi", out, media.FormatMKV, media.Quality720p, rec)
	require.NoError(t, err)

	require.FileExists(t, out)
	require.NoFileExists(t, out+".part")
	require.Equal(t, []float64{25, 50, 99}, rec.percents())

	args := readArgs(t, argsFile)
	assert.Contains(t, strings.Join(args, " "), "-c:v libx264 -s 1280x720 -b:v 5000k")
	assert.Contains(t, strings.Join(args, " "), "-f matroska "+out+".part")
	assert.Contains(t, strings.Join(args, " "), "-progress pipe:1 -nostats")
}

func TestEncode_OriginalQualityKeepsCodecs(t *testing.T) {
	enc, argsFile := fakeTools(t, 0)
	out := filepath.Join(t.TempDir(), "clip.mp4")

	require.NoError(t, enc.Encode(t.Context(), "in.mov", out, media.FormatMP4, media.QualityOriginal, nil))

	joined := strings.Join(readArgs(t, argsFile), " ")
	assert.NotContains(t, joined, "-c:v")
	assert.NotContains(t, joined, "-b:v")
}

func TestEncode_FailureLeavesNoArtifact(t *testing.T) {
	enc, _ := fakeTools(t, 1)
	out := filepath.Join(t.TempDir(), "clip.webm")

	err := enc.Encode(t.Context(), "in.mp4", out, media.FormatWebM, media.Quality480p, progress.Discard)

	var exitErr *media.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 1, exitErr.ExitCode)
	require.Equal(t, "encoder noise", exitErr.Stderr)
	require.NoFileExists(t, out)
	require.NoFileExists(t, out+".part")
}

func TestEncode_UnknownFormat(t *testing.T) {
	enc := NewEncoder(process.NewSupervisor(nil), nil, Options{})
	err := enc.Encode(t.Context(), "in.flv", "out.flv", "FLV", media.QualityOriginal, nil)
	var invalid *media.InvalidInputError
	require.ErrorAs(t, err, &invalid)
}

func TestEncode_EmptyOutput(t *testing.T) {
	dir := t.TempDir()
	probe := writeScript(t, dir, "ffprobe", `echo N/A`)
	ff := writeScript(t, dir, "ffmpeg", `exit 0`)
	enc := NewEncoder(process.NewSupervisor(nil), nil, Options{FFmpegPath: ff, FFprobePath: probe})

	out := filepath.Join(dir, "clip.mov")
	err := enc.Encode(t.Context(), "x", out, media.FormatMOV, media.QualityOriginal, nil)
	require.ErrorIs(t, err, media.ErrEmptyOutput)
	require.Equal(t, media.FailureDisk, media.Classify(err))
}

func TestMerge_RemapsOntoRange(t *testing.T) {
	enc, argsFile := fakeTools(t, 0)
	out := filepath.Join(t.TempDir(), "merged.mp4")

	rec := &recorder{}
	err := enc.Merge(t.Context(), "v.mp4", "a.m4a", out, progress.Range{Floor: 75, Ceiling: 100}, rec)
	require.NoError(t, err)
	require.Equal(t, []float64{81.3, 87.5, 99}, rec.percents())

	joined := strings.Join(readArgs(t, argsFile), " ")
	assert.Contains(t, joined, "-i v.mp4 -i a.m4a -c:v copy -c:a aac")
	assert.Contains(t, joined, "-map 0:v:0 -map 1:a:0")
}

func TestProbeDuration(t *testing.T) {
	enc, _ := fakeTools(t, 0)
	d, err := enc.ProbeDuration(t.Context(), "anything")
	require.NoError(t, err)
	require.InDelta(t, 10, d, 1e-9)
}

func TestProbeDuration_Missing(t *testing.T) {
	dir := t.TempDir()
	probe := writeScript(t, dir, "ffprobe", `echo ""`)
	enc := NewEncoder(process.NewSupervisor(nil), nil, Options{FFprobePath: probe})
	_, err := enc.ProbeDuration(t.Context(), "x")
	require.Error(t, err)
}

func TestTimeExtractor(t *testing.T) {
	extract := TimeExtractor(40 * time.Second)

	tests := []struct {
		line string
		want float64
		ok   bool
	}{
		{"out_time_us=10000000", 25, true},
		{"out_time_ms=20000000", 50, true},
		{"out_time=00:00:30.000000", 75, true},
		{"progress=end", 100, true},
		{"progress=continue", 0, false},
		{"out_time_us=N/A", 0, false},
		{"frame=12", 0, false},
		{"garbage", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := extract(tt.line)
			require.Equal(t, tt.ok, ok)
			if ok {
				require.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}

	_, ok := TimeExtractor(0)("out_time_us=1")
	require.False(t, ok)
}

func TestParseClock(t *testing.T) {
	d, err := parseClock("01:02:03.500000")
	require.NoError(t, err)
	require.Equal(t, time.Hour+2*time.Minute+3500*time.Millisecond, d)

	_, err = parseClock("1:2")
	require.Error(t, err)
	_, err = parseClock("-1:00:00")
	require.Error(t, err)
}
