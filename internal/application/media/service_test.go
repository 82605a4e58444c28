package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mediadomain "github.com/ErginDapaj/Condown/internal/domain/media"
	"github.com/ErginDapaj/Condown/internal/infrastructure/progress"
)

type stubEncoder struct {
	encodeCalls int
	mergeCalls  int
	lastQuality mediadomain.QualityTier
	encodeErr   error
	mergeErr    error
	writeOutput bool
}

func (s *stubEncoder) Encode(_ context.Context, _, output string, _ mediadomain.Format, quality mediadomain.QualityTier, sink progress.Sink) error {
	s.encodeCalls++
	s.lastQuality = quality
	if s.encodeErr != nil {
		return s.encodeErr
	}
	sink.Emit(mediadomain.Progress{Percent: 50, Message: "Converting... 50%"})
	if s.writeOutput {
		return os.WriteFile(output, []byte("encoded"), 0o644)
	}
	return nil
}

func (s *stubEncoder) Merge(_ context.Context, videoPath, audioPath, output string, r progress.Range, sink progress.Sink) error {
	s.mergeCalls++
	if _, err := os.Stat(videoPath); err != nil {
		return err
	}
	if _, err := os.Stat(audioPath); err != nil {
		return err
	}
	if s.mergeErr != nil {
		return s.mergeErr
	}
	sink.Emit(mediadomain.Progress{Percent: r.Map(50), Message: "Merging... 50%"})
	return os.WriteFile(output, []byte("merged"), 0o644)
}

type stubRetriever struct {
	meta    mediadomain.Metadata
	metaErr error

	downloadCalls int
	videoCalls    int
	audioCalls    int
	lastQuality   mediadomain.QualityTier
	downloadErr   error
	audioErr      error
	leaveScript   bool
}

func (s *stubRetriever) FetchMetadata(context.Context, string) (mediadomain.Metadata, error) {
	return s.meta, s.metaErr
}

func (s *stubRetriever) Download(_ context.Context, _, output string, _ mediadomain.Format, quality mediadomain.QualityTier, r progress.Range, sink progress.Sink) error {
	s.downloadCalls++
	s.lastQuality = quality
	if s.leaveScript {
		_ = os.WriteFile(filepath.Join(filepath.Dir(output), "1700-player-script.js"), nil, 0o644)
	}
	if s.downloadErr != nil {
		return s.downloadErr
	}
	sink.Emit(mediadomain.Progress{Percent: r.Map(12), Message: "Downloading... 12%"})
	sink.Emit(mediadomain.Progress{Percent: r.Map(8), Message: "Downloading... 8%"})
	return os.WriteFile(output, []byte("video"), 0o644)
}

func (s *stubRetriever) DownloadVideoStream(_ context.Context, _, output string, _ mediadomain.Format, _ mediadomain.QualityTier, r progress.Range, sink progress.Sink) error {
	s.videoCalls++
	sink.Emit(mediadomain.Progress{Percent: r.Map(50), Message: "Downloading video... 50%"})
	return os.WriteFile(output, []byte("v"), 0o644)
}

func (s *stubRetriever) DownloadAudioStream(_ context.Context, _, output string, r progress.Range, sink progress.Sink) error {
	s.audioCalls++
	if s.audioErr != nil {
		return s.audioErr
	}
	sink.Emit(mediadomain.Progress{Percent: r.Map(50), Message: "Downloading audio... 50%"})
	return os.WriteFile(output, []byte("a"), 0o644)
}

type stubWorkspace struct {
	swept []string
}

func (s *stubWorkspace) EnsureDir(dir string) error { return os.MkdirAll(dir, 0o755) }

func (s *stubWorkspace) SweepTempScripts(dir string) ([]string, error) {
	s.swept = append(s.swept, dir)
	matches, _ := filepath.Glob(filepath.Join(dir, "*-player-script.js"))
	for _, m := range matches {
		_ = os.Remove(m)
	}
	return matches, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []mediadomain.Event
}

func (e *eventLog) Emit(ev mediadomain.Event) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}

func (e *eventLog) percents() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []float64
	for _, ev := range e.events {
		if p, ok := ev.(mediadomain.Progress); ok {
			out = append(out, p.Percent)
		}
	}
	return out
}

func (e *eventLog) phases() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, ev := range e.events {
		if p, ok := ev.(mediadomain.Phase); ok {
			out = append(out, p.Name)
		}
	}
	return out
}

func requireStrictlyIncreasing(t *testing.T, values []float64) {
	t.Helper()
	for i := 1; i < len(values); i++ {
		require.Greater(t, values[i], values[i-1], "at index %d in %v", i, values)
	}
}

func newInput(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("source"), 0o644))
	return path
}

func TestConvert_ExistingOutputSpawnsNothing(t *testing.T) {
	enc := &stubEncoder{writeOutput: true}
	svc := NewService(enc, &stubRetriever{}, &stubWorkspace{}, nil)

	input := newInput(t, "clip.avi")
	outDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "clip.mp4"), []byte("old"), 0o644))

	events := &eventLog{}
	_, err := svc.Convert(t.Context(), input, mediadomain.FormatMP4, mediadomain.Quality720p, outDir, events)

	var exists *mediadomain.AlreadyExistsError
	require.ErrorAs(t, err, &exists)
	require.Equal(t, 0, enc.encodeCalls)
	require.Empty(t, events.percents())

	data, readErr := os.ReadFile(filepath.Join(outDir, "clip.mp4"))
	require.NoError(t, readErr)
	require.Equal(t, "old", string(data))
}

func TestConvert_MP4At720p(t *testing.T) {
	enc := &stubEncoder{writeOutput: true}
	svc := NewService(enc, &stubRetriever{}, &stubWorkspace{}, nil)

	input := newInput(t, "holiday.mov")
	outDir := filepath.Join(t.TempDir(), "converted")

	events := &eventLog{}
	artifact, err := svc.Convert(t.Context(), input, "mp4", "720p", outDir, events)
	require.NoError(t, err)

	require.Equal(t, filepath.Join(outDir, "holiday.mp4"), artifact.Path)
	require.Equal(t, "holiday.mp4", artifact.Filename)
	require.Equal(t, ".mp4", filepath.Ext(artifact.Path))
	require.Equal(t, outDir, filepath.Dir(artifact.Path))
	require.Equal(t, mediadomain.Quality720p, enc.lastQuality)

	require.Equal(t, []float64{0, 50, 100}, events.percents())
}

func TestConvert_RejectsInvalidInputBeforeSpawn(t *testing.T) {
	enc := &stubEncoder{}
	svc := NewService(enc, &stubRetriever{}, &stubWorkspace{}, nil)

	tests := []struct {
		name    string
		input   string
		format  mediadomain.Format
		quality mediadomain.QualityTier
	}{
		{"unknown format", newInput(t, "a.mp4"), "FLV", mediadomain.QualityOriginal},
		{"unknown quality", newInput(t, "a.mp4"), mediadomain.FormatMKV, "8K"},
		{"unsupported extension", newInput(t, "notes.txt"), mediadomain.FormatMKV, mediadomain.QualityOriginal},
		{"missing input", filepath.Join(t.TempDir(), "gone.mp4"), mediadomain.FormatMKV, mediadomain.QualityOriginal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Convert(t.Context(), tt.input, tt.format, tt.quality, t.TempDir(), nil)
			require.Equal(t, mediadomain.FailureInvalidInput, mediadomain.Classify(err))
		})
	}
	require.Equal(t, 0, enc.encodeCalls)
}

func TestConvert_ZeroExitWithoutOutputFails(t *testing.T) {
	enc := &stubEncoder{writeOutput: false}
	svc := NewService(enc, &stubRetriever{}, &stubWorkspace{}, nil)

	events := &eventLog{}
	_, err := svc.Convert(t.Context(), newInput(t, "a.mkv"), mediadomain.FormatMP4, mediadomain.QualityOriginal, t.TempDir(), events)
	require.ErrorIs(t, err, mediadomain.ErrEmptyOutput)
	require.NotContains(t, events.percents(), 100.0)
}

func TestConvert_EncoderFailurePropagates(t *testing.T) {
	toolErr := &mediadomain.ExitError{Command: "ffmpeg", ExitCode: 1, Stderr: "Invalid data found when processing input"}
	svc := NewService(&stubEncoder{encodeErr: toolErr}, &stubRetriever{}, &stubWorkspace{}, nil)

	_, err := svc.Convert(t.Context(), newInput(t, "a.mkv"), mediadomain.FormatMP4, mediadomain.QualityOriginal, t.TempDir(), nil)
	require.ErrorIs(t, err, toolErr)
	require.Equal(t, mediadomain.FailureTool, mediadomain.Classify(err))
}

func TestRetrieve_SingleProcess(t *testing.T) {
	ret := &stubRetriever{meta: mediadomain.Metadata{Title: `My: "Talk"`}, leaveScript: true}
	enc := &stubEncoder{}
	ws := &stubWorkspace{}
	svc := NewService(enc, ret, ws, nil)

	outDir := t.TempDir()
	events := &eventLog{}
	artifact, err := svc.Retrieve(t.Context(), "https://youtu.be/abc", "1440p", "mp4", outDir, "", events)
	require.NoError(t, err)

	require.Equal(t, filepath.Join(outDir, "My_ _Talk_.mp4"), artifact.Path)
	require.Equal(t, mediadomain.Quality2K, ret.lastQuality)
	require.Equal(t, 1, ret.downloadCalls)
	require.Equal(t, 0, ret.videoCalls+ret.audioCalls)
	require.Equal(t, 0, enc.mergeCalls)

	got := events.percents()
	require.InDeltaSlice(t, []float64{0, 2, 3, 4, 10, 20.8, 100}, got, 1e-9)
	requireStrictlyIncreasing(t, got)
	require.Equal(t, []string{outDir}, ws.swept)
	require.NoFileExists(t, filepath.Join(outDir, "1700-player-script.js"))
}

func TestRetrieve_MetadataTimeoutIssuesNoDownload(t *testing.T) {
	ret := &stubRetriever{metaErr: &mediadomain.MetadataError{URL: "u", Err: mediadomain.ErrTimeout}}
	svc := NewService(&stubEncoder{}, ret, &stubWorkspace{}, nil)

	events := &eventLog{}
	_, err := svc.Retrieve(t.Context(), "https://www.youtube.com/watch?v=x", mediadomain.QualityBest, mediadomain.FormatMP4, t.TempDir(), mediadomain.StrategySingle, events)

	var metaErr *mediadomain.MetadataError
	require.ErrorAs(t, err, &metaErr)
	require.Equal(t, mediadomain.FailureTimeout, mediadomain.Classify(err))
	require.Equal(t, 0, ret.downloadCalls)
	require.Equal(t, []float64{0}, events.percents())
}

func TestRetrieve_AudioNeverMerges(t *testing.T) {
	ret := &stubRetriever{meta: mediadomain.Metadata{Title: "Song"}}
	enc := &stubEncoder{}
	svc := NewService(enc, ret, &stubWorkspace{}, nil)

	outDir := t.TempDir()
	artifact, err := svc.Retrieve(t.Context(), "https://youtu.be/abc", mediadomain.QualityAudio, mediadomain.FormatWebM, outDir, mediadomain.StrategySeparate, nil)
	require.NoError(t, err)

	require.Equal(t, 0, enc.mergeCalls)
	require.Equal(t, 0, ret.videoCalls+ret.audioCalls)
	require.Equal(t, "Song.webm", artifact.Filename)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestRetrieve_SeparateStreamsMergeAndCleanUp(t *testing.T) {
	ret := &stubRetriever{meta: mediadomain.Metadata{Title: "Clip"}}
	enc := &stubEncoder{}
	svc := NewService(enc, ret, &stubWorkspace{}, nil)

	outDir := t.TempDir()
	events := &eventLog{}
	artifact, err := svc.Retrieve(t.Context(), "https://youtu.be/abc", mediadomain.Quality1080p, mediadomain.FormatMP4, outDir, mediadomain.StrategySeparate, events)
	require.NoError(t, err)

	require.Equal(t, 1, enc.mergeCalls)
	require.Equal(t, 0, ret.downloadCalls)
	require.FileExists(t, artifact.Path)
	require.NoFileExists(t, filepath.Join(outDir, "Clip_video.mp4"))
	require.NoFileExists(t, filepath.Join(outDir, "Clip_audio.mp4"))

	got := events.percents()
	require.InDeltaSlice(t, []float64{0, 2, 3, 4, 5, 22.5, 45, 57.5, 75, 87.5, 100}, got, 1e-9)
	assert.Equal(t, []string{mediadomain.PhaseMerging, mediadomain.PhaseFinalizing}, events.phases())
}

func TestRetrieve_MergeFailureCleansStreams(t *testing.T) {
	ret := &stubRetriever{meta: mediadomain.Metadata{Title: "Clip"}}
	enc := &stubEncoder{mergeErr: errors.New("ffmpeg failed with exit code 1")}
	svc := NewService(enc, ret, &stubWorkspace{}, nil)

	outDir := t.TempDir()
	_, err := svc.Retrieve(t.Context(), "https://youtu.be/abc", mediadomain.Quality4K, mediadomain.FormatMP4, outDir, mediadomain.StrategySeparate, nil)

	var mergeErr *mediadomain.MergeError
	require.ErrorAs(t, err, &mergeErr)
	require.Equal(t, mediadomain.FailureMerge, mediadomain.Classify(err))
	require.NoFileExists(t, filepath.Join(outDir, "Clip_video.mp4"))
	require.NoFileExists(t, filepath.Join(outDir, "Clip_audio.mp4"))
}

func TestRetrieve_AudioStreamFailureSkipsMerge(t *testing.T) {
	ret := &stubRetriever{meta: mediadomain.Metadata{Title: "Clip"}, audioErr: &mediadomain.ExitError{Command: "yt-dlp", ExitCode: 1}}
	enc := &stubEncoder{}
	svc := NewService(enc, ret, &stubWorkspace{}, nil)

	outDir := t.TempDir()
	_, err := svc.Retrieve(t.Context(), "https://youtu.be/abc", mediadomain.Quality1080p, mediadomain.FormatMP4, outDir, mediadomain.StrategySeparate, nil)
	require.Error(t, err)
	require.Equal(t, 0, enc.mergeCalls)
	require.NoFileExists(t, filepath.Join(outDir, "Clip_video.mp4"))
}

func TestRetrieve_ExistingOutputIsRejected(t *testing.T) {
	ret := &stubRetriever{meta: mediadomain.Metadata{Title: "Clip"}}
	svc := NewService(&stubEncoder{}, ret, &stubWorkspace{}, nil)

	outDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "Clip.mp4"), []byte("x"), 0o644))

	_, err := svc.Retrieve(t.Context(), "https://youtu.be/abc", mediadomain.QualityBest, mediadomain.FormatMP4, outDir, "", nil)
	require.ErrorIs(t, err, os.ErrExist)
	require.Equal(t, 0, ret.downloadCalls)
}

func TestRetrieve_InvalidURL(t *testing.T) {
	ret := &stubRetriever{}
	svc := NewService(&stubEncoder{}, ret, &stubWorkspace{}, nil)

	_, err := svc.Retrieve(t.Context(), "https://vimeo.com/1", mediadomain.QualityBest, mediadomain.FormatMP4, t.TempDir(), "", nil)
	var invalid *mediadomain.InvalidInputError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "Invalid YouTube URL", invalid.Reason)
	require.Equal(t, 0, ret.downloadCalls)
}

func TestRetrieve_DownloadFailureClassified(t *testing.T) {
	ret := &stubRetriever{
		meta:        mediadomain.Metadata{Title: "Clip"},
		downloadErr: &mediadomain.ExitError{Command: "yt-dlp", ExitCode: 1, Stderr: "ERROR: Sign in to confirm you're not a bot"},
	}
	svc := NewService(&stubEncoder{}, ret, &stubWorkspace{}, nil)

	_, err := svc.Retrieve(t.Context(), "https://youtu.be/abc", mediadomain.QualityBest, mediadomain.FormatMP4, t.TempDir(), "", nil)
	require.Equal(t, mediadomain.FailureAccessDenied, mediadomain.Classify(err))
}

func TestRun_UnknownKind(t *testing.T) {
	svc := NewService(&stubEncoder{}, &stubRetriever{}, &stubWorkspace{}, nil)
	_, err := svc.Run(t.Context(), mediadomain.JobRequest{Kind: "transcribe"}, nil)
	require.Equal(t, mediadomain.FailureInvalidInput, mediadomain.Classify(err))
}

func TestFetchMetadata_ValidatesURL(t *testing.T) {
	ret := &stubRetriever{meta: mediadomain.Metadata{Title: "T"}}
	svc := NewService(&stubEncoder{}, ret, &stubWorkspace{}, nil)

	meta, err := svc.FetchMetadata(t.Context(), " youtube.com/watch?v=1 ")
	require.NoError(t, err)
	require.Equal(t, "T", meta.Title)

	_, err = svc.FetchMetadata(t.Context(), "ftp://example.com")
	require.Error(t, err)
}

func TestRetrievalStateString(t *testing.T) {
	for s := stateFetchingMetadata; s <= stateFailed; s++ {
		require.NotContains(t, s.String(), "state(", fmt.Sprint(int(s)))
	}
	require.Equal(t, "state(42)", retrievalState(42).String())
}
