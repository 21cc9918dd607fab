package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ivoronin/dupehound/internal/interactive"
	"github.com/ivoronin/dupehound/internal/pipeline"
	"github.com/ivoronin/dupehound/internal/renderer"
	"github.com/ivoronin/dupehound/internal/walker"
)

// findOptions holds CLI flags for the find command.
type findOptions struct {
	includeTypes []string
	excludeTypes []string
	minDepth     int
	maxDepth     int
	followLinks  bool
	minSizeStr   string
	strict       bool
	workers      int
	noProgress   bool
	interactive  bool
}

// newFindCmd creates the find subcommand.
func newFindCmd() *cobra.Command {
	opts := &findOptions{
		minSizeStr: "1",
		minDepth:   walker.DepthUnbounded,
		maxDepth:   walker.DepthUnbounded,
		workers:    runtime.NumCPU(),
	}

	cmd := &cobra.Command{
		Use:   "find [dir]",
		Short: "Find duplicate files under a directory",
		Long: `Scans a directory tree for byte-identical regular files and prints the
duplicate groups.

By default files are compared by a digest of their first 16KiB (candidates
already share their exact byte length, so this is usually enough). Use
--strict to digest entire file contents instead.

With --interactive, each duplicate group is presented for review and selected
files are deleted after confirmation.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runFind(dir, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.includeTypes, "types", "t", nil, "File extensions to include (default all)")
	cmd.Flags().StringSliceVarP(&opts.excludeTypes, "exclude-types", "T", nil, "File extensions to exclude (wins over --types)")
	cmd.Flags().IntVar(&opts.minDepth, "min-depth", opts.minDepth, "Minimum directory depth relative to the root")
	cmd.Flags().IntVar(&opts.maxDepth, "max-depth", opts.maxDepth, "Maximum directory depth relative to the root")
	cmd.Flags().BoolVarP(&opts.followLinks, "follow-links", "L", false, "Traverse symbolic links")
	cmd.Flags().StringVarP(&opts.minSizeStr, "min-size", "m", opts.minSizeStr, "Minimum file size (e.g., 100, 1K, 10M, 1G)")
	cmd.Flags().BoolVarP(&opts.strict, "strict", "s", false, "Digest entire file contents instead of the first 16KiB")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", opts.workers, "Number of parallel workers")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Disable progress output")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "Delete files interactively")

	return cmd
}

// drainErrors consumes errors from a channel and writes them to stderr.
// Clears progress bar line before printing to avoid visual collision.
func drainErrors(errs <-chan error) {
	for err := range errs {
		fmt.Fprintf(os.Stderr, "\r\033[Kerror: %v\n", err)
	}
}

// runFind executes the pipeline and hands the result to the chosen sink.
func runFind(dir string, opts *findOptions) error {
	minSize, err := parseSize(opts.minSizeStr)
	if err != nil {
		return fmt.Errorf("invalid --min-size: %w", err)
	}

	errors := make(chan error, 100)
	go drainErrors(errors)
	defer close(errors)

	cfg := pipeline.Config{
		Root:         dir,
		IncludeTypes: opts.includeTypes,
		ExcludeTypes: opts.excludeTypes,
		MinDepth:     opts.minDepth,
		MaxDepth:     opts.maxDepth,
		FollowLinks:  opts.followLinks,
		MinSize:      minSize,
		Strict:       opts.strict,
		Workers:      opts.workers,
		ShowProgress: !opts.noProgress,
	}

	result, err := pipeline.New(cfg, errors).Run()
	if err != nil {
		return err
	}

	if opts.interactive {
		return interactive.New(os.Stdout, result.Root).Run(result.Digests)
	}

	renderer.New(os.Stdout, result.Root, result.MaxPathLen).Print(result.Digests)
	return nil
}
