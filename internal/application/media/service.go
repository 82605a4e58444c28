package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	mediadomain "github.com/ErginDapaj/Condown/internal/domain/media"
	"github.com/ErginDapaj/Condown/internal/infrastructure/progress"
)

// Service runs conversion and retrieval jobs to completion.
type Service struct {
	encoder   Encoder
	retriever Retriever
	workspace Workspace
	logger    *slog.Logger
}

// NewService creates a media use-case service with injected ports.
func NewService(encoder Encoder, retriever Retriever, workspace Workspace, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{encoder: encoder, retriever: retriever, workspace: workspace, logger: logger}
}

// Run executes req and blocks until the job settles. Progress is delivered to
// sink as a non-decreasing percentage stream; the returned error is the single
// terminal outcome. Run never emits terminal frames itself, the caller renders
// success or failure from the return values.
func (s *Service) Run(ctx context.Context, req mediadomain.JobRequest, sink progress.Sink) (mediadomain.Artifact, error) {
	log := s.logger.With("job_id", uuid.NewString(), "kind", req.Kind, "source", req.Source)
	log.InfoContext(ctx, "job started", "format", req.Format, "quality", req.Quality, "output_dir", req.OutputDir)

	events := progress.NewMonotonic(sink)
	var (
		artifact mediadomain.Artifact
		err      error
	)
	switch req.Kind {
	case mediadomain.JobConvert:
		artifact, err = s.convert(ctx, log, req, events)
	case mediadomain.JobRetrieve:
		artifact, err = s.retrieve(ctx, log, req, events)
	default:
		err = &mediadomain.InvalidInputError{Field: "kind", Value: string(req.Kind)}
	}

	if err != nil {
		log.WarnContext(ctx, "job failed", "reason", mediadomain.Classify(err), "error", err)
		return mediadomain.Artifact{}, err
	}
	log.InfoContext(ctx, "job finished", "path", artifact.Path)
	return artifact, nil
}

// FetchMetadata validates url and fetches its description.
func (s *Service) FetchMetadata(ctx context.Context, url string) (mediadomain.Metadata, error) {
	valid, err := mediadomain.ValidateRetrievalURL(url)
	if err != nil {
		return mediadomain.Metadata{}, err
	}
	return s.retriever.FetchMetadata(ctx, valid)
}

// checkAbsent fails with AlreadyExistsError when path is taken. Other stat
// failures are left for the job itself to surface.
func checkAbsent(path string) error {
	if _, err := os.Stat(path); err == nil {
		return &mediadomain.AlreadyExistsError{Path: path}
	}
	return nil
}

// checkArtifact verifies a tool left a non-empty file at path.
func checkArtifact(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", path, mediadomain.ErrEmptyOutput)
		}
		return err
	}
	if info.IsDir() || info.Size() == 0 {
		return fmt.Errorf("%s: %w", path, mediadomain.ErrEmptyOutput)
	}
	return nil
}
