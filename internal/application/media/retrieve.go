package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	mediadomain "github.com/ErginDapaj/Condown/internal/domain/media"
	"github.com/ErginDapaj/Condown/internal/infrastructure/progress"
)

// Sub-ranges of overall progress for each retrieval stage.
var (
	downloadRange = progress.Range{Floor: 10, Ceiling: 100}
	videoRange    = progress.Range{Floor: 5, Ceiling: 40}
	audioRange    = progress.Range{Floor: 45, Ceiling: 70}
	mergeRange    = progress.Range{Floor: 75, Ceiling: 100}
)

type retrievalState int

const (
	stateFetchingMetadata retrievalState = iota
	stateSelectingFormat
	stateDownloading
	stateMerging
	stateFinalizing
	stateDone
	stateFailed
)

func (s retrievalState) String() string {
	switch s {
	case stateFetchingMetadata:
		return "fetching_metadata"
	case stateSelectingFormat:
		return "selecting_format"
	case stateDownloading:
		return "downloading"
	case stateMerging:
		return "merging"
	case stateFinalizing:
		return "finalizing"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Retrieve runs a retrieval job.
func (s *Service) Retrieve(ctx context.Context, url string, quality mediadomain.QualityTier, format mediadomain.Format, outputDir string, strategy mediadomain.Strategy, sink progress.Sink) (mediadomain.Artifact, error) {
	return s.Run(ctx, mediadomain.JobRequest{
		Kind:      mediadomain.JobRetrieve,
		Source:    url,
		Format:    format,
		Quality:   quality,
		OutputDir: outputDir,
		Strategy:  strategy,
	}, sink)
}

// retrieval carries the state of one retrieval job between transitions.
type retrieval struct {
	svc  *Service
	log  *slog.Logger
	req  mediadomain.JobRequest
	sink progress.Sink

	url        string
	meta       mediadomain.Metadata
	outputPath string
	separate   bool
	videoPath  string
	audioPath  string
	err        error
}

func (s *Service) retrieve(ctx context.Context, log *slog.Logger, req mediadomain.JobRequest, sink progress.Sink) (mediadomain.Artifact, error) {
	req, err := normalizeRetrieval(req)
	if err != nil {
		return mediadomain.Artifact{}, err
	}

	job := &retrieval{svc: s, log: log, req: req, sink: sink, url: req.Source}
	defer job.sweep(ctx)

	state := stateFetchingMetadata
	for state != stateDone && state != stateFailed {
		next := job.step(ctx, state)
		log.DebugContext(ctx, "retrieval transition", "from", state, "to", next)
		state = next
	}
	if state == stateFailed {
		return mediadomain.Artifact{}, job.err
	}
	return mediadomain.Artifact{Path: job.outputPath, Filename: filepath.Base(job.outputPath)}, nil
}

// step performs the work of state and returns the state to enter next.
func (r *retrieval) step(ctx context.Context, state retrievalState) retrievalState {
	switch state {
	case stateFetchingMetadata:
		return r.fetchMetadata(ctx)
	case stateSelectingFormat:
		return r.selectFormat()
	case stateDownloading:
		return r.download(ctx)
	case stateMerging:
		return r.merge(ctx)
	case stateFinalizing:
		return r.finalize()
	default:
		return r.fail(fmt.Errorf("unexpected retrieval state %s", state))
	}
}

func (r *retrieval) fail(err error) retrievalState {
	r.err = err
	return stateFailed
}

func (r *retrieval) fetchMetadata(ctx context.Context) retrievalState {
	r.sink.Emit(mediadomain.Progress{Percent: 0, Message: "Fetching video information..."})
	meta, err := r.svc.retriever.FetchMetadata(ctx, r.url)
	if err != nil {
		return r.fail(err)
	}
	r.meta = meta
	r.sink.Emit(mediadomain.Progress{Percent: 2, Message: "Video info retrieved. Preparing download..."})

	if err := r.svc.workspace.EnsureDir(r.req.OutputDir); err != nil {
		return r.fail(err)
	}
	title := mediadomain.SanitizeTitle(meta.Title)
	r.outputPath = filepath.Join(r.req.OutputDir, title+"."+r.req.Format.Ext())
	if err := checkAbsent(r.outputPath); err != nil {
		return r.fail(err)
	}
	return stateSelectingFormat
}

func (r *retrieval) selectFormat() retrievalState {
	r.sink.Emit(mediadomain.Progress{Percent: 3, Message: "Selecting format..."})
	// Audio-only retrievals have nothing to merge.
	r.separate = r.req.Strategy == mediadomain.StrategySeparate && r.req.Quality != mediadomain.QualityAudio
	if r.separate {
		base := mediadomain.SanitizeTitle(r.meta.Title)
		ext := r.req.Format.Ext()
		r.videoPath = filepath.Join(r.req.OutputDir, base+"_video."+ext)
		r.audioPath = filepath.Join(r.req.OutputDir, base+"_audio."+ext)
	}
	return stateDownloading
}

func (r *retrieval) download(ctx context.Context) retrievalState {
	r.sink.Emit(mediadomain.Progress{Percent: 4, Message: "Initializing download..."})
	if !r.separate {
		r.sink.Emit(mediadomain.Progress{Percent: 10, Message: "Starting download..."})
		if err := r.svc.retriever.Download(ctx, r.url, r.outputPath, r.req.Format, r.req.Quality, downloadRange, r.sink); err != nil {
			return r.fail(err)
		}
		return stateFinalizing
	}

	r.sink.Emit(mediadomain.Progress{Percent: videoRange.Floor, Message: "Downloading video stream..."})
	if err := r.svc.retriever.DownloadVideoStream(ctx, r.url, r.videoPath, r.req.Format, r.req.Quality, videoRange, r.sink); err != nil {
		return r.fail(fmt.Errorf("video stream: %w", err))
	}
	r.sink.Emit(mediadomain.Progress{Percent: audioRange.Floor, Message: "Downloading audio stream..."})
	if err := r.svc.retriever.DownloadAudioStream(ctx, r.url, r.audioPath, audioRange, r.sink); err != nil {
		return r.fail(fmt.Errorf("audio stream: %w", err))
	}
	return stateMerging
}

func (r *retrieval) merge(ctx context.Context) retrievalState {
	r.sink.Emit(mediadomain.Phase{Name: mediadomain.PhaseMerging, Message: "Merging video and audio..."})
	r.sink.Emit(mediadomain.Progress{Percent: mergeRange.Floor, Message: "Merging video and audio..."})
	if err := r.svc.encoder.Merge(ctx, r.videoPath, r.audioPath, r.outputPath, mergeRange, r.sink); err != nil {
		return r.fail(&mediadomain.MergeError{Err: err})
	}
	return stateFinalizing
}

func (r *retrieval) finalize() retrievalState {
	r.sink.Emit(mediadomain.Phase{Name: mediadomain.PhaseFinalizing, Message: "Finalizing..."})
	if err := checkArtifact(r.outputPath); err != nil {
		return r.fail(err)
	}
	r.sink.Emit(mediadomain.Progress{Percent: 100, Message: "Download complete!"})
	return stateDone
}

// sweep removes separate-stream parts and leftover tool scripts whatever the
// outcome. Failures here are logged, never surfaced.
func (r *retrieval) sweep(ctx context.Context) {
	for _, part := range []string{r.videoPath, r.audioPath} {
		if part == "" {
			continue
		}
		if err := os.Remove(part); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.log.WarnContext(ctx, "stream part cleanup failed", "path", part, "error", err)
		}
	}
	if r.req.OutputDir == "" {
		return
	}
	removed, err := r.svc.workspace.SweepTempScripts(r.req.OutputDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		r.log.WarnContext(ctx, "temp script sweep failed", "dir", r.req.OutputDir, "error", err)
	}
	for _, name := range removed {
		r.log.DebugContext(ctx, "removed temp file", "file", name)
	}
}

// normalizeRetrieval validates req and returns it with canonical field values.
func normalizeRetrieval(req mediadomain.JobRequest) (mediadomain.JobRequest, error) {
	var err error
	if req.Source, err = mediadomain.ValidateRetrievalURL(req.Source); err != nil {
		return req, err
	}
	if req.Format, err = mediadomain.ParseRetrievalFormat(string(req.Format)); err != nil {
		return req, err
	}
	if req.Quality, err = mediadomain.ParseRetrievalQuality(string(req.Quality)); err != nil {
		return req, err
	}
	if req.Strategy, err = mediadomain.ParseStrategy(string(req.Strategy)); err != nil {
		return req, err
	}
	if req.OutputDir == "" {
		return req, &mediadomain.InvalidInputError{Field: "output", Reason: "output directory is required"}
	}
	return req, nil
}
