package media

import (
	"strings"
)

// JobKind describes the kind of media job.
type JobKind string

const (
	JobConvert  JobKind = "convert"
	JobRetrieve JobKind = "retrieve"
)

// QualityTier is an enumerated resolution/bitrate preset.
type QualityTier string

const (
	QualityOriginal QualityTier = "original"
	Quality4K       QualityTier = "4K"
	Quality2K       QualityTier = "2K"
	Quality1080p    QualityTier = "1080p"
	Quality720p     QualityTier = "720p"
	Quality480p     QualityTier = "480p"
	QualityBest     QualityTier = "best"
	QualityAudio    QualityTier = "audio"
)

// Format is an output container format.
type Format string

const (
	FormatMP4  Format = "MP4"
	FormatAVI  Format = "AVI"
	FormatMKV  Format = "MKV"
	FormatWebM Format = "WebM"
	FormatMOV  Format = "MOV"
)

// Ext returns the lowercase file extension without the dot.
func (f Format) Ext() string {
	return strings.ToLower(string(f))
}

// Strategy selects how a retrieval job fetches streams.
type Strategy string

const (
	// StrategySingle lets the retrieval tool select and merge streams in one process.
	StrategySingle Strategy = "single"
	// StrategySeparate fetches video and audio separately and remuxes them afterwards.
	StrategySeparate Strategy = "separate"
)

// Option pairs a display name with a request value.
type Option struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

var conversionFormats = []Format{FormatMP4, FormatAVI, FormatMKV, FormatWebM, FormatMOV}

var retrievalFormats = []Format{FormatMP4, FormatWebM}

var conversionQualities = []Option{
	{Name: "Keep original resolution", Value: string(QualityOriginal)},
	{Name: "2160p (4K)", Value: string(Quality4K)},
	{Name: "1440p (2K)", Value: string(Quality2K)},
	{Name: "1080p (Full HD)", Value: string(Quality1080p)},
	{Name: "720p (HD)", Value: string(Quality720p)},
	{Name: "480p (SD)", Value: string(Quality480p)},
}

var retrievalQualities = []Option{
	{Name: "1080p (Full HD)", Value: string(Quality1080p)},
	{Name: "720p (HD)", Value: string(Quality720p)},
	{Name: "1440p (2K)", Value: string(Quality2K)},
	{Name: "2160p (4K)", Value: string(Quality4K)},
	{Name: "Best available", Value: string(QualityBest)},
	{Name: "Audio only", Value: string(QualityAudio)},
}

// ConversionFormats lists formats accepted by conversion jobs.
func ConversionFormats() []Format { return append([]Format(nil), conversionFormats...) }

// RetrievalFormats lists formats accepted by retrieval jobs.
func RetrievalFormats() []Format { return append([]Format(nil), retrievalFormats...) }

// ConversionQualities lists quality tiers for conversion jobs.
func ConversionQualities() []Option { return append([]Option(nil), conversionQualities...) }

// RetrievalQualities lists quality tiers for retrieval jobs.
func RetrievalQualities() []Option { return append([]Option(nil), retrievalQualities...) }

// ParseConversionFormat matches raw case-insensitively against conversion formats.
func ParseConversionFormat(raw string) (Format, error) {
	return parseFormat(raw, conversionFormats)
}

// ParseRetrievalFormat matches raw case-insensitively against retrieval formats.
func ParseRetrievalFormat(raw string) (Format, error) {
	return parseFormat(raw, retrievalFormats)
}

func parseFormat(raw string, allowed []Format) (Format, error) {
	value := strings.TrimSpace(raw)
	for _, f := range allowed {
		if strings.EqualFold(value, string(f)) {
			return f, nil
		}
	}
	return "", &InvalidInputError{Field: "format", Value: raw}
}

// ParseConversionQuality validates a conversion quality tier.
func ParseConversionQuality(raw string) (QualityTier, error) {
	q := normalizeQuality(raw)
	for _, o := range conversionQualities {
		if string(q) == o.Value {
			return q, nil
		}
	}
	return "", &InvalidInputError{Field: "quality", Value: raw}
}

// ParseRetrievalQuality validates a retrieval quality tier.
func ParseRetrievalQuality(raw string) (QualityTier, error) {
	q := normalizeQuality(raw)
	for _, o := range retrievalQualities {
		if string(q) == o.Value {
			return q, nil
		}
	}
	return "", &InvalidInputError{Field: "quality", Value: raw}
}

func normalizeQuality(raw string) QualityTier {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "original":
		return QualityOriginal
	case "4k", "2160p", "2160":
		return Quality4K
	case "2k", "1440p", "1440":
		return Quality2K
	case "1080p", "1080":
		return Quality1080p
	case "720p", "720":
		return Quality720p
	case "480p", "480":
		return Quality480p
	case "best":
		return QualityBest
	case "audio":
		return QualityAudio
	default:
		return QualityTier(raw)
	}
}

// ParseStrategy validates a retrieval strategy; empty means single.
func ParseStrategy(raw string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(StrategySingle):
		return StrategySingle, nil
	case string(StrategySeparate):
		return StrategySeparate, nil
	default:
		return "", &InvalidInputError{Field: "strategy", Value: raw}
	}
}

// JobRequest is an immutable description of desired work.
type JobRequest struct {
	Kind      JobKind
	Source    string
	Format    Format
	Quality   QualityTier
	OutputDir string
	Strategy  Strategy
}

// Artifact is the successful result of a job.
type Artifact struct {
	Path     string
	Filename string
}
