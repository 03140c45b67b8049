package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tendant/simple-content-derivatives/internal/config"
	"github.com/tendant/simple-content-derivatives/pkg/pipeline"
	"github.com/tendant/simple-content-derivatives/pkg/runner"
)

type generateOptions struct {
	bucket      string
	contentDir  string
	changedFrom string
	changedTo   string
	all         bool
	thumbSize   int
	webSize     int
	workers     int
	keepGoing   bool
	storeDir    string
	jsonOutput  bool
}

func bindGenerateFlags(flags *pflag.FlagSet, opts *generateOptions) {
	flags.StringVar(&opts.bucket, "bucket", "astro-images", "Bucket name")
	flags.StringVar(&opts.contentDir, "content-dir", "content/images", "Image YAML directory")
	flags.StringVar(&opts.changedFrom, "changed-from", "", "Git revision to diff from")
	flags.StringVar(&opts.changedTo, "changed-to", "", "Git revision to diff to")
	flags.BoolVar(&opts.all, "all", false, "Process all image YAML files")
	flags.IntVar(&opts.thumbSize, "thumb-size", config.DefaultThumbSize, "Thumbnail long edge in px")
	flags.IntVar(&opts.webSize, "web-size", config.DefaultWebSize, "Web image long edge in px")
	flags.IntVar(&opts.workers, "workers", 1, "Descriptors processed at once")
	flags.BoolVar(&opts.keepGoing, "keep-going", false, "Continue past failed descriptors and report them at the end")
	flags.StringVar(&opts.storeDir, "store-dir", "", "Use a local directory as the object store instead of S3")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Print the run report as JSON")
}

// apply overrides cfg with the flags set on the command line. Unset flags
// leave environment values in place.
func (o *generateOptions) apply(flags *pflag.FlagSet, cfg *config.Config) {
	if flags.Changed("bucket") {
		cfg.Bucket = o.bucket
	}
	if flags.Changed("content-dir") {
		cfg.ContentDir = o.contentDir
	}
	if flags.Changed("thumb-size") {
		cfg.ThumbSize = o.thumbSize
	}
	if flags.Changed("web-size") {
		cfg.WebSize = o.webSize
	}
	if flags.Changed("workers") {
		cfg.Workers = o.workers
	}
	if flags.Changed("keep-going") {
		cfg.KeepGoing = o.keepGoing
	}
	if flags.Changed("store-dir") {
		cfg.StoreDir = o.storeDir
	}
}

func (o *generateOptions) selection() runner.Selection {
	return runner.Selection{
		All:  o.all,
		From: o.changedFrom,
		To:   o.changedTo,
	}
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate missing web/thumb images in S3-compatible object storage",
		Long: `Generate reads image descriptors from the content directory and makes
sure every referenced version has its web and thumbnail renditions. Existing
renditions are never regenerated.

Select descriptors with --all, or with --changed-from and --changed-to to
process only the files a git revision range touched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := ctx.logger()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			opts.apply(cmd.Flags(), &cfg)

			r, err := runner.New(log, cfg)
			if err != nil {
				return err
			}

			report, err := r.Generate(cmd.Context(), opts.selection())
			if report != nil && opts.jsonOutput {
				if encErr := printReport(cmd, report); encErr != nil && err == nil {
					err = encErr
				}
			}
			return err
		},
	}

	bindGenerateFlags(cmd.Flags(), opts)
	return cmd
}

func printReport(cmd *cobra.Command, report *pipeline.Report) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
