package media

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	mediadomain "github.com/ErginDapaj/Condown/internal/domain/media"
	"github.com/ErginDapaj/Condown/internal/infrastructure/progress"
)

// Convert runs a conversion job.
func (s *Service) Convert(ctx context.Context, input string, format mediadomain.Format, quality mediadomain.QualityTier, outputDir string, sink progress.Sink) (mediadomain.Artifact, error) {
	return s.Run(ctx, mediadomain.JobRequest{
		Kind:      mediadomain.JobConvert,
		Source:    input,
		Format:    format,
		Quality:   quality,
		OutputDir: outputDir,
	}, sink)
}

func (s *Service) convert(ctx context.Context, log *slog.Logger, req mediadomain.JobRequest, sink progress.Sink) (mediadomain.Artifact, error) {
	req, err := normalizeConversion(req)
	if err != nil {
		return mediadomain.Artifact{}, err
	}
	if err := s.workspace.EnsureDir(req.OutputDir); err != nil {
		return mediadomain.Artifact{}, err
	}

	outputPath := mediadomain.OutputPath(req.Source, req.OutputDir, req.Format)
	if err := checkAbsent(outputPath); err != nil {
		return mediadomain.Artifact{}, err
	}

	sink.Emit(mediadomain.Progress{Percent: 0, Message: "Starting conversion..."})
	log.DebugContext(ctx, "encoding", "output", outputPath)
	if err := s.encoder.Encode(ctx, req.Source, outputPath, req.Format, req.Quality, sink); err != nil {
		return mediadomain.Artifact{}, err
	}
	if err := checkArtifact(outputPath); err != nil {
		return mediadomain.Artifact{}, err
	}

	sink.Emit(mediadomain.Progress{Percent: 100, Message: "Conversion complete!"})
	return mediadomain.Artifact{Path: outputPath, Filename: filepath.Base(outputPath)}, nil
}

// normalizeConversion validates req before anything is spawned and returns
// it with canonical field values.
func normalizeConversion(req mediadomain.JobRequest) (mediadomain.JobRequest, error) {
	var err error
	if req.Format, err = mediadomain.ParseConversionFormat(string(req.Format)); err != nil {
		return req, err
	}
	if req.Quality, err = mediadomain.ParseConversionQuality(string(req.Quality)); err != nil {
		return req, err
	}
	if req.OutputDir == "" {
		return req, &mediadomain.InvalidInputError{Field: "output", Reason: "output directory is required"}
	}
	if !mediadomain.IsSupportedVideoExt(filepath.Ext(req.Source)) {
		return req, &mediadomain.InvalidInputError{Field: "input", Value: req.Source, Reason: "unsupported video file type"}
	}
	info, err := os.Stat(req.Source)
	if err != nil || info.IsDir() {
		return req, &mediadomain.InvalidInputError{Field: "input", Value: req.Source, Reason: "input file not found"}
	}
	return req, nil
}
