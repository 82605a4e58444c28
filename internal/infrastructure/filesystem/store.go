package filesystem

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/ErginDapaj/Condown/internal/domain/media"
)

// tempScriptMarker identifies player scripts the retrieval tool leaves behind.
const tempScriptMarker = "-player-script.js"

var outputDirPattern = regexp.MustCompile(`^[a-zA-Z0-9_/\-]+$`)

// commonDirs are offered by ListDirectories whether or not they exist yet.
var commonDirs = []string{
	"downloads",
	"output",
	"downloads/youtube",
	"downloads/videos",
	"downloads/audio",
	"output/converted",
	"output/videos",
}

var hiddenDirs = map[string]bool{"node_modules": true, "src": true, "public": true}

// Store manages the working directories and artifact lookup.
type Store struct {
	BaseDir      string
	UploadsDir   string
	DownloadsDir string
	OutputDir    string
}

// NewStore creates a filesystem adapter. Relative directory names are
// resolved against baseDir.
func NewStore(baseDir, uploadsDir, downloadsDir, outputDir string) *Store {
	return &Store{
		BaseDir:      baseDir,
		UploadsDir:   under(baseDir, uploadsDir),
		DownloadsDir: under(baseDir, downloadsDir),
		OutputDir:    under(baseDir, outputDir),
	}
}

func under(base, dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(base, dir)
}

// EnsureDirs creates uploads, downloads and output roots.
func (s *Store) EnsureDirs() error {
	for _, dir := range []string{s.UploadsDir, s.DownloadsDir, s.OutputDir} {
		if err := s.EnsureDir(dir); err != nil {
			return err
		}
	}
	return nil
}

// EnsureDir creates dir and its parents; an existing directory is not an error.
func (s *Store) EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// ResolveOutputDir validates a client-supplied output directory and returns
// its location under the base dir. An empty value selects fallback.
func (s *Store) ResolveOutputDir(raw, fallback string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return fallback, nil
	}
	if strings.Contains(value, "..") || filepath.IsAbs(value) || strings.HasPrefix(value, "/") {
		return "", &media.InvalidInputError{Field: "output", Value: raw, Reason: "Invalid output path. Use relative paths only."}
	}
	if !outputDirPattern.MatchString(value) {
		return "", &media.InvalidInputError{Field: "output", Value: raw, Reason: "Invalid characters in output path."}
	}
	full := filepath.Join(s.BaseDir, filepath.FromSlash(value))
	if !isWithinDir(s.BaseDir, full) {
		return "", &media.InvalidInputError{Field: "output", Value: raw, Reason: "Invalid output path. Use relative paths only."}
	}
	return full, nil
}

// UploadPath returns a fresh, collision-free path in the uploads dir that
// keeps the extension of originalName.
func (s *Store) UploadPath(originalName string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	return filepath.Join(s.UploadsDir, uuid.NewString()+ext)
}

// SweepTempScripts deletes leftover player scripts directly inside dir and
// returns the removed file names. Removal failures of single files are
// collected into the returned error without stopping the sweep.
func (s *Store) SweepTempScripts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var removed []string
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.Contains(entry.Name(), tempScriptMarker) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, entry.Name())
	}
	return removed, errors.Join(errs...)
}

// Directory is an output location a client may pick.
type Directory struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	FullPath string `json:"fullPath"`
	Create   bool   `json:"create,omitempty"`
}

// ListDirectories returns the common output locations, flagged Create when
// missing, followed by other visible top-level directories of the base dir.
func (s *Store) ListDirectories() ([]Directory, error) {
	dirs := make([]Directory, 0, len(commonDirs))
	known := make(map[string]bool, len(commonDirs))
	for _, rel := range commonDirs {
		full := filepath.Join(s.BaseDir, filepath.FromSlash(rel))
		info, err := os.Stat(full)
		dirs = append(dirs, Directory{
			Name:     filepath.Base(rel),
			Path:     rel,
			FullPath: full,
			Create:   err != nil || !info.IsDir(),
		})
		known[rel] = true
	}

	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		return dirs, fmt.Errorf("read base dir: %w", err)
	}
	var extra []Directory
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || strings.HasPrefix(name, ".") || hiddenDirs[name] || known[name] {
			continue
		}
		extra = append(extra, Directory{Name: name, Path: name, FullPath: filepath.Join(s.BaseDir, name)})
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i].Name < extra[j].Name })
	return append(dirs, extra...), nil
}

// LocateArtifact finds filename in the downloads dir, then in the output dir.
func (s *Store) LocateArtifact(filename string) (string, error) {
	name := strings.TrimSpace(filename)
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", &media.InvalidInputError{Field: "filename", Value: filename}
	}
	for _, root := range []string{s.DownloadsDir, s.OutputDir} {
		full := filepath.Join(root, name)
		if !isWithinDir(root, full) {
			continue
		}
		info, err := os.Stat(full)
		if err == nil && info.Mode().IsRegular() {
			return full, nil
		}
	}
	return "", fmt.Errorf("%s: %w", name, os.ErrNotExist)
}

func isWithinDir(basePath, targetPath string) bool {
	baseAbs, err := filepath.Abs(basePath)
	if err != nil {
		return false
	}
	targetAbs, err := filepath.Abs(targetPath)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(baseAbs, targetAbs)
	if err != nil {
		return false
	}
	sep := string(os.PathSeparator)
	if rel == ".." || strings.HasPrefix(rel, ".."+sep) {
		return false
	}
	return true
}
