package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	mediadomain "github.com/ErginDapaj/Condown/internal/domain/media"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	selStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Bold(true)
)

var accessDeniedTips = []string{
	"YouTube may have updated their API",
	"The video might be region or age-restricted",
	"Try again in a few minutes",
	"Check if the video plays in your browser",
}

// reportFailure prints err with guidance for its failure kind and returns it
// marked as reported.
func reportFailure(w io.Writer, err error) error {
	fmt.Fprintln(w, errorStyle.Render("Error: "+err.Error()))
	switch mediadomain.Classify(err) {
	case mediadomain.FailureAccessDenied:
		fmt.Fprintln(w)
		fmt.Fprintln(w, warnStyle.Render("Troubleshooting tips:"))
		for _, tip := range accessDeniedTips {
			fmt.Fprintln(w, warnStyle.Render("  - "+tip))
		}
	case mediadomain.FailureUnavailable:
		fmt.Fprintln(w, warnStyle.Render("This video may be private, deleted, or region-restricted."))
	case mediadomain.FailureAlreadyExists:
		fmt.Fprintln(w, warnStyle.Render("Remove the existing file or choose another output directory."))
	}
	return &reportedError{err: err}
}

func printMetadata(w io.Writer, meta mediadomain.Metadata) {
	fmt.Fprintln(w, infoStyle.Render("Title: "+meta.Title))
	fmt.Fprintln(w, infoStyle.Render("Channel: "+meta.Channel))
	fmt.Fprintln(w, infoStyle.Render("Duration: "+mediadomain.FormatDuration(meta.Duration)))
}
