package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"

	mediadomain "github.com/ErginDapaj/Condown/internal/domain/media"
	"github.com/ErginDapaj/Condown/internal/infrastructure/filesystem"
	"github.com/ErginDapaj/Condown/internal/infrastructure/progress"
)

// multipartMemory is the part of an upload kept in memory before spilling to disk.
const multipartMemory = 32 << 20

type mediaUseCases interface {
	Convert(ctx context.Context, input string, format mediadomain.Format, quality mediadomain.QualityTier, outputDir string, sink progress.Sink) (mediadomain.Artifact, error)
	Retrieve(ctx context.Context, url string, quality mediadomain.QualityTier, format mediadomain.Format, outputDir string, strategy mediadomain.Strategy, sink progress.Sink) (mediadomain.Artifact, error)
	FetchMetadata(ctx context.Context, url string) (mediadomain.Metadata, error)
}

type workspaceStore interface {
	ResolveOutputDir(raw, fallback string) (string, error)
	UploadPath(originalName string) string
	ListDirectories() ([]filesystem.Directory, error)
	LocateArtifact(filename string) (string, error)
}

// Options tunes request handling.
type Options struct {
	// DownloadsDir and OutputDir are used when a request names no output.
	DownloadsDir    string
	OutputDir       string
	DefaultStrategy mediadomain.Strategy
	MaxUploadBytes  int64
}

type Handler struct {
	media  mediaUseCases
	store  workspaceStore
	logger *slog.Logger
	opts   Options
}

// NewHandler wires HTTP handlers with application use cases.
func NewHandler(mediaService mediaUseCases, store workspaceStore, logger *slog.Logger, opts Options) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{media: mediaService, store: store, logger: logger, opts: opts}
}

type infoRequest struct {
	URL string `json:"url"`
}

type retrieveRequest struct {
	URL      string `json:"url"`
	Quality  string `json:"quality"`
	Format   string `json:"format"`
	Output   string `json:"output"`
	Strategy string `json:"strategy"`
}

// VideoInfo handles POST /api/youtube/info.
func (h *Handler) VideoInfo(w http.ResponseWriter, r *http.Request) {
	var req infoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if _, err := mediadomain.ValidateRetrievalURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid YouTube URL")
		return
	}

	meta, err := h.media.FetchMetadata(r.Context(), req.URL)
	if err != nil {
		h.logger.WarnContext(r.Context(), "video info failed", "url", req.URL, "reason", mediadomain.Classify(err), "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// Retrieve handles POST /api/youtube/download and streams job progress.
func (h *Handler) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if _, err := mediadomain.ValidateRetrievalURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid YouTube URL")
		return
	}

	resp := newResponder(w)
	outputDir, err := h.store.ResolveOutputDir(req.Output, h.opts.DownloadsDir)
	if err != nil {
		resp.Fail(err)
		return
	}

	strategy := mediadomain.Strategy(req.Strategy)
	if strategy == "" {
		strategy = h.opts.DefaultStrategy
	}
	artifact, err := h.media.Retrieve(
		jobContext(r),
		req.URL,
		mediadomain.QualityTier(orDefault(req.Quality, string(mediadomain.QualityBest))),
		mediadomain.Format(orDefault(req.Format, string(mediadomain.FormatMP4))),
		outputDir,
		strategy,
		resp,
	)
	if err != nil {
		resp.Fail(err)
		return
	}
	resp.Succeed(artifact, false)
}

// Convert handles POST /api/convert. The upload is stored under a fresh name
// and removed once the job settles.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	if h.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Uploaded file is too large")
			return
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("video")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No video file uploaded")
		return
	}
	defer file.Close()

	inputPath := h.store.UploadPath(header.Filename)
	if err := saveUpload(file, inputPath); err != nil {
		h.logger.ErrorContext(r.Context(), "upload save failed", "path", inputPath, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer func() {
		if err := os.Remove(inputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			h.logger.WarnContext(r.Context(), "upload cleanup failed", "path", inputPath, "error", err)
		}
	}()

	resp := newResponder(w)
	outputDir, err := h.store.ResolveOutputDir(r.FormValue("output"), h.opts.OutputDir)
	if err != nil {
		resp.Fail(err)
		return
	}

	resp.Emit(mediadomain.Progress{Percent: 0, Message: "Upload complete. Starting conversion..."})
	artifact, err := h.media.Convert(
		jobContext(r),
		inputPath,
		mediadomain.Format(orDefault(r.FormValue("format"), string(mediadomain.FormatMP4))),
		mediadomain.QualityTier(orDefault(r.FormValue("quality"), string(mediadomain.QualityOriginal))),
		outputDir,
		resp,
	)
	if err != nil {
		resp.Fail(err)
		return
	}
	resp.Succeed(artifact, true)
}

// ListDirectories handles GET /api/directories.
func (h *Handler) ListDirectories(w http.ResponseWriter, r *http.Request) {
	dirs, err := h.store.ListDirectories()
	if err != nil {
		h.logger.WarnContext(r.Context(), "directory listing incomplete", "error", err)
	}
	if dirs == nil {
		dirs = []filesystem.Directory{}
	}
	writeJSON(w, http.StatusOK, dirs)
}

// DownloadArtifact handles GET /api/download/{filename}.
func (h *Handler) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["filename"]
	full, err := h.store.LocateArtifact(name)
	if err != nil {
		var invalid *mediadomain.InvalidInputError
		if errors.As(err, &invalid) {
			writeError(w, http.StatusBadRequest, "Invalid filename")
			return
		}
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	attachment(w, filepath.Base(full))
	streamFile(w, r, full, contentTypeFor(full))
}

type formatsResponse struct {
	ConversionFormats   []mediadomain.Format `json:"conversionFormats"`
	ConversionQualities []mediadomain.Option `json:"conversionQualities"`
	DownloadQualities   []mediadomain.Option `json:"downloadQualities"`
	DownloadFormats     []mediadomain.Format `json:"downloadFormats"`
}

// Formats handles GET /api/formats.
func (h *Handler) Formats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, formatsResponse{
		ConversionFormats:   mediadomain.ConversionFormats(),
		ConversionQualities: mediadomain.ConversionQualities(),
		DownloadQualities:   mediadomain.RetrievalQualities(),
		DownloadFormats:     mediadomain.RetrievalFormats(),
	})
}

// jobContext detaches a job from the request so a client that stops
// listening does not kill the running tool. Jobs stay bounded by their own
// timeouts.
func jobContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func saveUpload(src io.Reader, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
