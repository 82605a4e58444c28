package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	mediadomain "github.com/ErginDapaj/Condown/internal/domain/media"
)

// infoConcurrency bounds parallel metadata fetches.
const infoConcurrency = 4

type convertOptions struct {
	input   string
	output  string
	format  string
	quality string
}

type downloadOptions struct {
	url      string
	output   string
	format   string
	quality  string
	separate bool
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var opts convertOptions
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a video file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.input == "" {
				if !ctx.interactive() {
					return errors.New("--input is required")
				}
				return ctx.runMenuOnce(cmd.Context(), actionConvert)
			}
			return ctx.convert(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "Input video file path")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output directory path (default: next to the input)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", string(mediadomain.FormatMP4), "Output format (MP4, AVI, MKV, WebM, MOV)")
	cmd.Flags().StringVarP(&opts.quality, "quality", "q", string(mediadomain.QualityOriginal), "Output quality (original, 4K, 2K, 1080p, 720p, 480p)")
	return cmd
}

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var opts downloadOptions
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download a YouTube video",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.url == "" {
				if !ctx.interactive() {
					return errors.New("--url is required")
				}
				return ctx.runMenuOnce(cmd.Context(), actionDownload)
			}
			if _, err := mediadomain.ValidateRetrievalURL(opts.url); err != nil {
				return errors.New("invalid YouTube URL")
			}
			return ctx.download(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.url, "url", "u", "", "YouTube video URL")
	cmd.Flags().StringVarP(&opts.quality, "quality", "q", string(mediadomain.QualityBest), "Video quality (1080p, 720p, 2K, 4K, best, audio)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", string(mediadomain.FormatMP4), "Output format (MP4, WebM)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output directory path (default: the downloads directory)")
	cmd.Flags().BoolVar(&opts.separate, "separate-streams", false, "Fetch video and audio separately and merge them locally")
	return cmd
}

func newInfoCommand(ctx *commandContext) *cobra.Command {
	var urls []string
	cmd := &cobra.Command{
		Use:   "info [url...]",
		Short: "Show information about YouTube videos",
		RunE: func(cmd *cobra.Command, args []string) error {
			all := append(append([]string(nil), urls...), args...)
			if len(all) == 0 {
				return errors.New("at least one --url is required")
			}
			return ctx.info(cmd.Context(), all)
		},
	}
	cmd.Flags().StringArrayVarP(&urls, "url", "u", nil, "YouTube video URL (repeatable)")
	return cmd
}

func newFormatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List supported formats and qualities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(ctx.streams.Out, renderFormats())
			return nil
		},
	}
}

func (c *commandContext) convert(ctx context.Context, opts convertOptions) error {
	runner, _, err := c.ensure()
	if err != nil {
		return err
	}
	out := c.streams.Out

	outputDir := opts.output
	if strings.TrimSpace(outputDir) == "" {
		outputDir = filepath.Dir(opts.input)
	}
	outputDir, err = filepath.Abs(outputDir)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, warnStyle.Render("Converting video..."))
	p := newPrinter(out, isTerminal(out))
	artifact, err := runner.Convert(ctx, opts.input, mediadomain.Format(opts.format), mediadomain.QualityTier(opts.quality), outputDir, p)
	p.Finish()
	if err != nil {
		return reportFailure(c.streams.Err, err)
	}

	fmt.Fprintln(out, okStyle.Render("Conversion complete!"))
	fmt.Fprintln(out, infoStyle.Render("Output: "+artifact.Path+sizeSuffix(artifact.Path)))
	return nil
}

func (c *commandContext) download(ctx context.Context, opts downloadOptions) error {
	runner, cfg, err := c.ensure()
	if err != nil {
		return err
	}
	out := c.streams.Out

	outputDir := opts.output
	if strings.TrimSpace(outputDir) == "" {
		outputDir = defaultDownloadsDir(cfg)
	}
	outputDir, err = filepath.Abs(outputDir)
	if err != nil {
		return err
	}
	strategy := cfg.Strategy()
	if opts.separate {
		strategy = mediadomain.StrategySeparate
	}

	fmt.Fprintln(out, warnStyle.Render("Fetching video information..."))
	meta, err := runner.FetchMetadata(ctx, opts.url)
	if err != nil {
		return reportFailure(c.streams.Err, err)
	}
	printMetadata(out, meta)

	fmt.Fprintln(out)
	fmt.Fprintln(out, warnStyle.Render("Downloading video..."))
	p := newPrinter(out, isTerminal(out))
	artifact, err := runner.Retrieve(ctx, opts.url, mediadomain.QualityTier(opts.quality), mediadomain.Format(opts.format), outputDir, strategy, p)
	p.Finish()
	if err != nil {
		return reportFailure(c.streams.Err, err)
	}

	fmt.Fprintln(out, okStyle.Render("Download complete!"))
	fmt.Fprintln(out, infoStyle.Render("Saved to: "+artifact.Path+sizeSuffix(artifact.Path)))
	return nil
}

// info fetches metadata for every url concurrently and prints the results
// in argument order. The first failure is reported after all fetches end.
func (c *commandContext) info(ctx context.Context, urls []string) error {
	runner, _, err := c.ensure()
	if err != nil {
		return err
	}

	results := make([]mediadomain.Metadata, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(infoConcurrency)
	for i, url := range urls {
		g.Go(func() error {
			meta, err := runner.FetchMetadata(gctx, url)
			if err != nil {
				return fmt.Errorf("%s: %w", url, err)
			}
			results[i] = meta
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return reportFailure(c.streams.Err, err)
	}

	out := c.streams.Out
	for i, meta := range results {
		if i > 0 {
			fmt.Fprintln(out)
		}
		printMetadata(out, meta)
		fmt.Fprintln(out, infoStyle.Render("Views: "+humanize.Comma(meta.ViewCount)))
		if desc := firstLine(meta.Description); desc != "" {
			fmt.Fprintln(out, mutedStyle.Render(desc))
		}
	}
	return nil
}

func renderFormats() string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Job", "Formats", "Qualities"})
	tw.AppendRow(table.Row{"convert", strings.Join(formatValues(mediadomain.ConversionFormats()), ", "), strings.Join(optionValues(mediadomain.ConversionQualities()), ", ")})
	tw.AppendRow(table.Row{"download", strings.Join(formatValues(mediadomain.RetrievalFormats()), ", "), strings.Join(optionValues(mediadomain.RetrievalQualities()), ", ")})
	return tw.Render()
}

func sizeSuffix(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	return " (" + humanize.Bytes(uint64(info.Size())) + ")"
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}
