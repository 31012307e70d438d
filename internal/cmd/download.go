package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/bucketnav/internal/observability"
	"github.com/3leaps/bucketnav/pkg/archive"
	"github.com/3leaps/bucketnav/pkg/browse"
	"github.com/3leaps/bucketnav/pkg/output"
	"github.com/3leaps/bucketnav/pkg/provider"
)

var downloadAllCmd = &cobra.Command{
	Use:   "download-all <prefix/>",
	Short: "Download the files of a folder page as one ZIP",
	Long: `Download every file shown on one listing page of a folder as a single
uncompressed ZIP archive. Entries keep the page's file order.

The archive is named after the folder ("photos/2024/" gives 2024.zip) and
written to the current directory unless --output is given; "-" writes it to
stdout. Progress records go to stderr as JSONL.

The page must hold at least two files and archive.allow_download_all must
be enabled.

Example:
  bucketnav download-all photos/2024/
  bucketnav download-all photos/2024/ --page 2 --output /tmp/p2.zip
  bucketnav download-all docs/ --output - > docs.zip`,
	Args: cobra.ExactArgs(1),
	RunE: runDownloadAll,
}

var (
	downloadOutput string
	downloadPage   int
	downloadQuiet  bool
)

func init() {
	rootCmd.AddCommand(downloadAllCmd)
	downloadAllCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "Archive path, or - for stdout")
	downloadAllCmd.Flags().IntVar(&downloadPage, "page", 1, "Listing page whose files are archived")
	downloadAllCmd.Flags().BoolVarP(&downloadQuiet, "quiet", "q", false, "Suppress progress records")
}

var errDownloadAllUnavailable = errors.New("download-all needs at least two files on the page and archive.allow_download_all enabled")

func runDownloadAll(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := prefixArg(args[0]); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid prefix", err)
	}
	if downloadPage < 1 {
		return exitError(foundry.ExitInvalidArgument, "Invalid --page value", fmt.Errorf("page must be >= 1"))
	}

	p, bcfg, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeProvider(p)
	getter, ok := p.(provider.ObjectGetter)
	if !ok {
		return exitError(foundry.ExitInvalidArgument, "Backend cannot read objects", errors.New("provider has no GetObject"))
	}

	pg := browse.NewPaginator(p, bcfg, browse.WithLogger(observability.CLILogger))
	page, err := pg.ResetForNewPrefix(ctx, args[0])
	for err == nil && page.Number < downloadPage && page.HasNext {
		page, err = pg.Next(ctx)
	}
	if err != nil {
		return serviceError("Failed to list prefix", err, zap.String("prefix", args[0]))
	}
	if page.Number < downloadPage {
		return exitError(foundry.ExitInvalidArgument, "Page out of range", fmt.Errorf("prefix %q has %d page(s)", page.Prefix, page.Number))
	}
	if !archive.CanDownloadAll(page.Entries, appConfig.Archive.AllowDownloadAll) {
		return exitError(foundry.ExitInvalidArgument, "Download-all unavailable", errDownloadAllUnavailable)
	}
	files := archive.Sources(page.Entries)

	dest := downloadOutput
	if dest == "" {
		dest = archive.Name(page.Prefix)
	}
	out := cmd.OutOrStdout()
	var f *os.File
	if dest != "-" {
		f, err = os.Create(filepath.Clean(dest))
		if err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to create archive", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	progress := newWriter(cmd.ErrOrStderr())
	defer func() { _ = progress.Close() }()

	b := archive.New(getter, archive.Options{
		Concurrency: appConfig.Archive.Concurrency,
		ChunkSize:   int(appConfig.Archive.ChunkSize),
		Logger:      observability.CLILogger,
		OnProgress: func(pr archive.Progress) {
			if downloadQuiet {
				return
			}
			_ = progress.WriteProgress(ctx, &output.ProgressRecord{
				Phase:          output.PhaseArchiving,
				Prefix:         page.Prefix,
				BytesTotal:     pr.BytesTransferred,
				FilesCompleted: pr.FilesCompleted,
				FileCount:      pr.FileCount,
				Fraction:       pr.Fraction,
			})
		},
	})

	observability.CLILogger.Debug("Building archive", zap.String("dest", dest), zap.Int("files", len(files)))
	res, err := b.Build(ctx, files, out)
	if err != nil {
		if f != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
		return serviceError("Archive failed", err, zap.String("prefix", page.Prefix))
	}
	if f != nil {
		if err := f.Close(); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write archive", err)
		}
	}

	_ = progress.WriteMutation(ctx, &output.MutationRecord{
		Op:      output.OpArchive,
		Source:  bcfg.Absolute(page.Prefix),
		Target:  dest,
		Outcome: output.OutcomeDone,
		Objects: res.FilesCompleted,
		Bytes:   res.BytesTransferred,
	})
	observability.CLILogger.Info("Archive written",
		zap.String("dest", dest),
		zap.Int("files", res.FilesCompleted),
		zap.Int64("bytes", res.BytesTransferred))
	return nil
}
