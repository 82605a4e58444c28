package media

import (
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var allowedVideoExts = map[string]bool{
	".mp4":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
	".mov":  true,
	".flv":  true,
	".wmv":  true,
	".m4v":  true,
	".3gp":  true,
}

var (
	retrievalURLPattern = regexp.MustCompile(`^(https?://)?(www\.)?(youtube\.com|youtu\.be)/.+`)
	unsafeTitleChars    = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
)

// IsSupportedVideoExt reports whether extension is accepted as conversion input.
func IsSupportedVideoExt(ext string) bool {
	return allowedVideoExts[strings.ToLower(strings.TrimSpace(ext))]
}

// OutputPath derives the artifact path from the input basename and the target
// format extension inside outputDir.
func OutputPath(inputPath, outputDir string, format Format) string {
	base := filepath.Base(inputPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outputDir, base+"."+format.Ext())
}

// ValidateRetrievalURL checks raw against the provider's address pattern.
func ValidateRetrievalURL(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" || !retrievalURLPattern.MatchString(value) {
		return "", &InvalidInputError{Field: "url", Value: raw, Reason: "Invalid YouTube URL"}
	}
	return value, nil
}

// SanitizeTitle replaces filesystem-unsafe characters so the title can be used
// as a filename component.
func SanitizeTitle(title string) string {
	value := strings.TrimSpace(norm.NFC.String(title))
	if value == "" {
		return "video"
	}
	value = unsafeTitleChars.ReplaceAllString(value, "_")
	// A leading dot would hide the file on unix systems.
	if strings.HasPrefix(value, ".") {
		value = "_" + value[1:]
	}
	return value
}
