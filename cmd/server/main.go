package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	appmedia "github.com/ErginDapaj/Condown/internal/application/media"
	"github.com/ErginDapaj/Condown/internal/config"
	"github.com/ErginDapaj/Condown/internal/infrastructure/ffmpeg"
	"github.com/ErginDapaj/Condown/internal/infrastructure/filesystem"
	"github.com/ErginDapaj/Condown/internal/infrastructure/process"
	"github.com/ErginDapaj/Condown/internal/infrastructure/ytdlp"
	"github.com/ErginDapaj/Condown/internal/logging"
	httptransport "github.com/ErginDapaj/Condown/internal/transport/http"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "configuration file path")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	for ext, typ := range map[string]string{
		".mp4":  "video/mp4",
		".mkv":  "video/x-matroska",
		".webm": "video/webm",
		".mov":  "video/quicktime",
		".avi":  "video/x-msvideo",
	} {
		_ = mime.AddExtensionType(ext, typ)
	}

	store := filesystem.NewStore(cfg.Paths.BaseDir, cfg.Paths.UploadsDir, cfg.Paths.DownloadsDir, cfg.Paths.OutputDir)
	if err := store.EnsureDirs(); err != nil {
		return fmt.Errorf("storage init failed: %w", err)
	}
	sweepStartup(ctx, logger, store)

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
	mediaService := appmedia.NewService(encoder, retriever, store, logger)

	handler := httptransport.NewHandler(mediaService, store, logger, httptransport.Options{
		DownloadsDir:    store.DownloadsDir,
		OutputDir:       store.OutputDir,
		DefaultStrategy: cfg.Strategy(),
		MaxUploadBytes:  cfg.Server.MaxUploadBytes,
	})
	router := httptransport.NewRouter(handler, cfg.Server.PublicDir)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Range"},
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server started", "addr", cfg.Server.Addr, "base_dir", cfg.Paths.BaseDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// sweepStartup removes player scripts left in the base dir by earlier runs.
func sweepStartup(ctx context.Context, logger *slog.Logger, store *filesystem.Store) {
	removed, err := store.SweepTempScripts(store.BaseDir)
	if err != nil {
		logger.WarnContext(ctx, "startup temp sweep incomplete", "dir", store.BaseDir, "error", err)
	}
	for _, name := range removed {
		logger.InfoContext(ctx, "cleaned up temporary file", "file", name)
	}
}
