package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/ErginDapaj/Condown/internal/domain/media"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "condown.toml"

// Server contains HTTP listener settings.
type Server struct {
	Addr           string `toml:"addr"`
	PublicDir      string `toml:"public_dir"`
	MaxUploadBytes int64  `toml:"max_upload_bytes"`
}

// Paths contains the working directories. Relative names resolve against BaseDir.
type Paths struct {
	BaseDir      string `toml:"base_dir"`
	UploadsDir   string `toml:"uploads_dir"`
	DownloadsDir string `toml:"downloads_dir"`
	OutputDir    string `toml:"output_dir"`
}

// Tools contains external executable locations.
type Tools struct {
	FFmpeg  string `toml:"ffmpeg"`
	FFprobe string `toml:"ffprobe"`
	YtDlp   string `toml:"ytdlp"`
}

// Jobs contains job limits in seconds. Zero disables a timeout.
type Jobs struct {
	RetrievalTimeout  int    `toml:"retrieval_timeout"`
	MetadataTimeout   int    `toml:"metadata_timeout"`
	ConversionTimeout int    `toml:"conversion_timeout"`
	Strategy          string `toml:"strategy"`
}

// Logging contains log output settings.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config holds runtime settings for the server and the CLI.
type Config struct {
	Server  Server  `toml:"server"`
	Paths   Paths   `toml:"paths"`
	Tools   Tools   `toml:"tools"`
	Jobs    Jobs    `toml:"jobs"`
	Logging Logging `toml:"logging"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Server: Server{
			Addr:           ":3000",
			PublicDir:      "public",
			MaxUploadBytes: 5 << 30,
		},
		Paths: Paths{
			BaseDir:      ".",
			UploadsDir:   "uploads",
			DownloadsDir: "downloads",
			OutputDir:    "output",
		},
		Tools: Tools{
			FFmpeg:  "ffmpeg",
			FFprobe: "ffprobe",
			YtDlp:   "yt-dlp",
		},
		Jobs: Jobs{
			RetrievalTimeout: 600,
			MetadataTimeout:  30,
			Strategy:         string(media.StrategySingle),
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds a config from defaults, an optional TOML file and environment
// overrides, in that order. An explicit path must exist; without one,
// DefaultFile is read only when present.
func Load(path string) (Config, error) {
	cfg := Default()

	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}
	if resolved != "" {
		if err := cfg.decodeFile(resolved); err != nil {
			return Config{}, err
		}
	}

	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolvePath(path string) (string, error) {
	if path == "" {
		path = strings.TrimSpace(os.Getenv("CONDOWN_CONFIG"))
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("stat config: %w", err)
		}
		return path, nil
	}
	info, err := os.Stat(DefaultFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", nil
	}
	return DefaultFile, nil
}

func (c *Config) decodeFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := toml.NewDecoder(file).DisallowUnknownFields()
	if err := decoder.Decode(c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if port := getEnv("PORT", ""); port != "" {
		c.Server.Addr = ":" + port
	}
	c.Server.Addr = getEnv("SERVER_ADDR", c.Server.Addr)
	c.Server.PublicDir = getEnv("PUBLIC_DIR", c.Server.PublicDir)
	c.Paths.BaseDir = getEnv("CONDOWN_BASE_DIR", c.Paths.BaseDir)
	c.Paths.UploadsDir = getEnv("UPLOADS_DIR", c.Paths.UploadsDir)
	c.Paths.DownloadsDir = getEnv("DOWNLOADS_DIR", c.Paths.DownloadsDir)
	c.Paths.OutputDir = getEnv("OUTPUT_DIR", c.Paths.OutputDir)
	c.Tools.FFmpeg = getEnv("FFMPEG_PATH", c.Tools.FFmpeg)
	c.Tools.FFprobe = getEnv("FFPROBE_PATH", c.Tools.FFprobe)
	c.Tools.YtDlp = getEnv("YTDLP_PATH", c.Tools.YtDlp)
	c.Jobs.RetrievalTimeout = getEnvInt("RETRIEVAL_TIMEOUT_SECONDS", c.Jobs.RetrievalTimeout)
	c.Jobs.MetadataTimeout = getEnvInt("METADATA_TIMEOUT_SECONDS", c.Jobs.MetadataTimeout)
	c.Jobs.ConversionTimeout = getEnvInt("CONVERSION_TIMEOUT_SECONDS", c.Jobs.ConversionTimeout)
	c.Jobs.Strategy = getEnv("RETRIEVAL_STRATEGY", c.Jobs.Strategy)
	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)
}

func (c *Config) normalize() {
	if strings.TrimSpace(c.Paths.BaseDir) == "" {
		c.Paths.BaseDir = "."
	}
	if abs, err := filepath.Abs(c.Paths.BaseDir); err == nil {
		c.Paths.BaseDir = abs
	}
	if c.Server.PublicDir != "" && !filepath.IsAbs(c.Server.PublicDir) {
		c.Server.PublicDir = filepath.Join(c.Paths.BaseDir, c.Server.PublicDir)
	}
	c.Jobs.Strategy = strings.ToLower(strings.TrimSpace(c.Jobs.Strategy))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
}

// RetrievalTimeout bounds one retrieval tool invocation.
func (c Config) RetrievalTimeout() time.Duration { return seconds(c.Jobs.RetrievalTimeout) }

// MetadataTimeout bounds the pre-download metadata fetch.
func (c Config) MetadataTimeout() time.Duration { return seconds(c.Jobs.MetadataTimeout) }

// ConversionTimeout bounds one encoder invocation. Zero means unbounded.
func (c Config) ConversionTimeout() time.Duration { return seconds(c.Jobs.ConversionTimeout) }

// Strategy returns the configured retrieval strategy.
func (c Config) Strategy() media.Strategy { return media.Strategy(c.Jobs.Strategy) }

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	var out int
	_, err := fmt.Sscanf(value, "%d", &out)
	if err != nil || out < 0 {
		return fallback
	}
	return out
}
