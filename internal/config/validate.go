package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ErginDapaj/Condown/internal/domain/media"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr must be set")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return errors.New("server.max_upload_bytes must be positive")
	}
	for name, dir := range map[string]string{
		"paths.uploads_dir":   c.Paths.UploadsDir,
		"paths.downloads_dir": c.Paths.DownloadsDir,
		"paths.output_dir":    c.Paths.OutputDir,
	} {
		if strings.TrimSpace(dir) == "" {
			return fmt.Errorf("%s must be set", name)
		}
	}
	for name, bin := range map[string]string{
		"tools.ffmpeg":  c.Tools.FFmpeg,
		"tools.ffprobe": c.Tools.FFprobe,
		"tools.ytdlp":   c.Tools.YtDlp,
	} {
		if strings.TrimSpace(bin) == "" {
			return fmt.Errorf("%s must be set", name)
		}
	}
	if err := c.validateJobs(); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "", "console", "text", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateJobs() error {
	if c.Jobs.RetrievalTimeout < 0 {
		return errors.New("jobs.retrieval_timeout must not be negative")
	}
	if c.Jobs.MetadataTimeout < 0 {
		return errors.New("jobs.metadata_timeout must not be negative")
	}
	if c.Jobs.ConversionTimeout < 0 {
		return errors.New("jobs.conversion_timeout must not be negative")
	}
	if _, err := media.ParseStrategy(c.Jobs.Strategy); err != nil {
		return fmt.Errorf("jobs.strategy: %w", err)
	}
	return nil
}
