package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/webframp/relnotes/changelog"
	"github.com/webframp/relnotes/media"
	"github.com/webframp/relnotes/widget"
)

type renderOptions struct {
	listAll      bool
	path         string
	format       string
	featureURL   string
	mediaBaseURL string
	timeout      time.Duration
	resolver     media.Resolver
}

func newRenderCmd() *cobra.Command {
	opts := renderOptions{}

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the changelog once and print it",
		Example: `  relnotes render
  relnotes render --all --format json
  relnotes render --changelog changelog.json --format html > notes.html`,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch opts.format {
			case "text", "html", "json":
			default:
				return fmt.Errorf("unknown format %q: want text, html or json", opts.format)
			}
			return render(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opts.listAll, "all", false, "show every version, not only the current one")
	f.StringVar(&opts.path, "changelog", "", "changelog JSON file (default: embedded changelog)")
	f.StringVar(&opts.format, "format", "text", "output format: text, html or json")
	f.StringVar(&opts.featureURL, "feature-url", "https://relnotes.example.com/features/", "prefix for change links")
	f.StringVar(&opts.mediaBaseURL, "media-base-url", "", "base url for relative media references")
	f.DurationVar(&opts.timeout, "media-timeout", media.DefaultTimeout, "timeout for each media lookup")
	return cmd
}

func render(ctx context.Context, out io.Writer, opts renderOptions) error {
	doc, err := changelog.Load(opts.path)
	if err != nil {
		return err
	}

	resolver := opts.resolver
	if resolver == nil {
		page, err := media.NewPageResolver(opts.mediaBaseURL, media.WithRequestTimeout(opts.timeout))
		if err != nil {
			return err
		}
		resolver = page
	}

	w, err := widget.New(ctx, doc, widget.Options{
		ListAll:            opts.listAll,
		Resolver:           resolver,
		MediaTimeout:       opts.timeout,
		DocumentOrder:      true,
		FeatureURLTemplate: opts.featureURL,
	})
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Wait(ctx); err != nil {
		return err
	}

	state, versions := w.Snapshot()
	switch opts.format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(widget.Views(versions, opts.featureURL))
	case "html":
		return widget.RenderHTML(out, widget.Project(state, versions, opts.featureURL))
	default:
		return widget.RenderText(out, widget.Project(state, versions, opts.featureURL), widget.DefaultTextStyle())
	}
}
