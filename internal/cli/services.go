package cli

import (
	"log/slog"

	appmedia "github.com/ErginDapaj/Condown/internal/application/media"
	"github.com/ErginDapaj/Condown/internal/config"
	"github.com/ErginDapaj/Condown/internal/infrastructure/ffmpeg"
	"github.com/ErginDapaj/Condown/internal/infrastructure/filesystem"
	"github.com/ErginDapaj/Condown/internal/infrastructure/process"
	"github.com/ErginDapaj/Condown/internal/infrastructure/ytdlp"
)

func newService(cfg config.Config, logger *slog.Logger) jobRunner {
	supervisor := process.NewSupervisor(logger)
	encoder := ffmpeg.NewEncoder(supervisor, logger, ffmpeg.Options{
		FFmpegPath:  cfg.Tools.FFmpeg,
		FFprobePath: cfg.Tools.FFprobe,
		Timeout:     cfg.ConversionTimeout(),
	})
	retriever := ytdlp.NewClient(supervisor, logger, ytdlp.Options{
		Path:            cfg.Tools.YtDlp,
		Timeout:         cfg.RetrievalTimeout(),
		MetadataTimeout: cfg.MetadataTimeout(),
	})
	store := filesystem.NewStore(cfg.Paths.BaseDir, cfg.Paths.UploadsDir, cfg.Paths.DownloadsDir, cfg.Paths.OutputDir)
	return appmedia.NewService(encoder, retriever, store, logger)
}
