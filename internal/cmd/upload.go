package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/bucketnav/internal/observability"
	"github.com/3leaps/bucketnav/pkg/output"
	"github.com/3leaps/bucketnav/pkg/transfer"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <local-path>... --to <prefix/>",
	Short: "Upload local files and folders",
	Long: `Upload local files and folders below a root-relative prefix.

A file uploads under its base name. A folder uploads every file below it
and keeps the folder name as the first key segment. Content types are
detected from file contents unless --content-type is given.

Failed files are reported and do not stop the others.

Example:
  bucketnav upload report.pdf --to docs/
  bucketnav upload ./holidays --to photos/
  bucketnav upload data.bin --to raw/ --content-type application/x-custom`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

var (
	uploadTo          string
	uploadContentType string
)

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().StringVar(&uploadTo, "to", "", "Destination prefix, relative to the root")
	uploadCmd.Flags().StringVar(&uploadContentType, "content-type", "", "Content type for every file (default: detected)")
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := prefixArg(uploadTo); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid --to prefix", err)
	}

	files, err := transfer.CollectUploads(args...)
	if err != nil {
		return exitError(foundry.ExitFileNotFound, "Failed to collect upload files", err)
	}
	if uploadContentType != "" {
		for i := range files {
			files[i].ContentType = uploadContentType
		}
	}

	s, err := openMutation(cmd, "upload")
	if err != nil {
		return err
	}
	defer s.close()

	observability.CLILogger.Debug("Uploading files", zap.Int("files", len(files)), zap.String("to", uploadTo))
	sum, err := s.mutator.Upload(ctx, files, uploadTo)
	if err != nil {
		return serviceError("Upload failed", err, zap.String("to", uploadTo))
	}

	for _, key := range sum.Uploaded {
		_ = s.out.WriteMutation(ctx, &output.MutationRecord{Op: output.OpUpload, Target: key, Outcome: output.OutcomeDone})
	}
	for _, f := range sum.Failed {
		observability.CLILogger.Warn("Upload failed", zap.String("file", f.Rel), zap.Error(f.Err))
		_ = s.out.WriteError(ctx, &output.ErrorRecord{Code: transfer.ErrorCode(f.Err), Message: f.Err.Error(), Key: f.Key})
	}

	outcome := output.OutcomeDone
	if len(sum.Failed) > 0 {
		outcome = output.OutcomePartial
	}
	_ = s.out.WriteMutation(ctx, &output.MutationRecord{
		Op:      output.OpUpload,
		Target:  s.cfg.Absolute(uploadTo),
		Outcome: outcome,
		Objects: len(sum.Uploaded),
		Failed:  len(sum.Failed),
		Bytes:   sum.Bytes,
	})

	observability.CLILogger.Info("Upload complete",
		zap.Int("uploaded", len(sum.Uploaded)),
		zap.Int("failed", len(sum.Failed)),
		zap.Int64("bytes", sum.Bytes))
	if len(sum.Failed) > 0 {
		return exitError(foundry.ExitExternalServiceUnavailable, "Upload incomplete",
			fmt.Errorf("%d of %d file(s) failed", len(sum.Failed), len(files)))
	}
	return nil
}
