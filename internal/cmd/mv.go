package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/bucketnav/internal/observability"
	"github.com/3leaps/bucketnav/pkg/keyspace"
	"github.com/3leaps/bucketnav/pkg/output"
	"github.com/3leaps/bucketnav/pkg/transfer"
)

var mvCmd = &cobra.Command{
	Use:   "mv <key-or-prefix/> <new-name>",
	Short: "Rename an object or a folder in place",
	Long: `Rename an object or a folder, keeping it in the same parent folder.
The path is relative to the configured root; a trailing "/" names a folder.

The rename copies first and removes the original only when every copy
succeeded. When the store refuses deletes the original is copied to the
trash instead.

Example:
  bucketnav mv photos/beach.jpg beach-2024.jpg
  bucketnav mv photos/2024/ holidays-2024`,
	Args: cobra.ExactArgs(2),
	RunE: runMv,
}

func init() {
	rootCmd.AddCommand(mvCmd)
}

func runMv(cmd *cobra.Command, args []string) error {
	if keyspace.IsPrefix(args[0]) {
		return runMvPrefix(cmd, args[0], args[1])
	}
	return runMvObject(cmd, args[0], args[1])
}

func runMvObject(cmd *cobra.Command, rel, input string) error {
	ctx := cmd.Context()
	name, err := transfer.ValidateNewName(keyspace.Name(rel), input)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid new name", err)
	}

	s, err := openMutation(cmd, "rename")
	if err != nil {
		return err
	}
	defer s.close()

	src := s.cfg.Absolute(rel)
	dst := transfer.RenameTarget(src, name)
	res, err := s.mutator.RenameObject(ctx, src, dst)

	rec := &output.MutationRecord{Op: output.OpRename, Source: src, Target: dst}
	if res != nil {
		rec.Outcome = deleteRecord(&res.DeleteResult).Outcome
		rec.TrashKey = res.TrashKey
	}
	s.report(ctx, rec, err)
	if err != nil {
		return serviceError("Rename failed", err, zap.String("src", src), zap.String("dst", dst))
	}
	observability.CLILogger.Info("Renamed object",
		zap.String("src", src), zap.String("dst", dst), zap.Bool("trashed", res.Trashed()))
	return nil
}

func runMvPrefix(cmd *cobra.Command, rel, input string) error {
	ctx := cmd.Context()
	if err := prefixArg(rel); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid prefix", err)
	}
	name, err := transfer.ValidateNewFolderName(keyspace.FolderName(rel), input)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid new name", err)
	}

	s, err := openMutation(cmd, "rename")
	if err != nil {
		return err
	}
	defer s.close()

	newRel := transfer.RenamePrefixTarget(keyspace.NormalizePrefix(rel), name)
	res, err := s.mutator.RenamePrefix(ctx, rel, newRel)

	rec := &output.MutationRecord{Op: output.OpRename, Source: s.cfg.Absolute(rel), Target: s.cfg.Absolute(newRel)}
	if res != nil {
		rec.Source, rec.Target = res.Old, res.New
		rec.Objects, rec.Failed = len(res.Copied), len(res.Failed)
		switch {
		case len(res.Failed) > 0:
			rec.Outcome = output.OutcomePartial
		case res.Removal != nil:
			rec.Outcome = removeRecord(res.Removal).Outcome
			if res.Removal.Trash != nil {
				rec.TrashKey = res.Removal.Trash.Root
			}
		}
	}
	s.report(ctx, rec, err)
	if err != nil {
		return serviceError("Folder rename failed", err, zap.String("old", rec.Source), zap.String("new", rec.Target))
	}
	observability.CLILogger.Info("Renamed folder",
		zap.String("old", res.Old), zap.String("new", res.New), zap.Int("objects", len(res.Copied)))
	return nil
}
