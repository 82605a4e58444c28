package media

import (
	"context"

	mediadomain "github.com/ErginDapaj/Condown/internal/domain/media"
	"github.com/ErginDapaj/Condown/internal/infrastructure/progress"
)

// Encoder is an application port for transcoding and remuxing.
type Encoder interface {
	Encode(ctx context.Context, input, output string, format mediadomain.Format, quality mediadomain.QualityTier, sink progress.Sink) error
	Merge(ctx context.Context, videoPath, audioPath, output string, r progress.Range, sink progress.Sink) error
}

// Retriever is an application port for remote video retrieval.
type Retriever interface {
	FetchMetadata(ctx context.Context, url string) (mediadomain.Metadata, error)
	Download(ctx context.Context, url, output string, format mediadomain.Format, quality mediadomain.QualityTier, r progress.Range, sink progress.Sink) error
	DownloadVideoStream(ctx context.Context, url, output string, format mediadomain.Format, quality mediadomain.QualityTier, r progress.Range, sink progress.Sink) error
	DownloadAudioStream(ctx context.Context, url, output string, r progress.Range, sink progress.Sink) error
}

// Workspace is an application port for output directory housekeeping.
type Workspace interface {
	EnsureDir(dir string) error
	SweepTempScripts(dir string) ([]string, error)
}
