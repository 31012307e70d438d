package cmd

import (
	"errors"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/bucketnav/internal/observability"
	"github.com/3leaps/bucketnav/pkg/keyspace"
	"github.com/3leaps/bucketnav/pkg/output"
	"github.com/3leaps/bucketnav/pkg/transfer"
)

var rmCmd = &cobra.Command{
	Use:   "rm <key-or-prefix/>",
	Short: "Delete an object or a folder, falling back to the trash",
	Long: `Delete an object or, with a trailing "/", every object under a folder.
The path is relative to the configured root.

When the store refuses the delete, the object or the whole folder is copied
to a timestamped location under the trash prefix instead, and the original
stays in place. A folder delete stops at the first refused key and then
trashes the folder as a whole.

With --trash the delete is not attempted and the copy to trash is made
directly.

Example:
  bucketnav rm photos/old.jpg
  bucketnav rm photos/2019/
  bucketnav rm photos/2019/ --trash`,
	Args: cobra.ExactArgs(1),
	RunE: runRm,
}

var rmTrashOnly bool

func init() {
	rootCmd.AddCommand(rmCmd)
	rmCmd.Flags().BoolVar(&rmTrashOnly, "trash", false, "Copy to trash without attempting the delete")
}

func runRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rel := args[0]
	isPrefix := keyspace.IsPrefix(rel)
	if isPrefix {
		if err := prefixArg(rel); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid prefix", err)
		}
		if keyspace.NormalizePrefix(rel) == "" {
			return exitError(foundry.ExitInvalidArgument, "Refusing to delete the root", transfer.ErrEmptyPrefix)
		}
	}

	s, err := openMutation(cmd, "delete")
	if err != nil {
		return err
	}
	defer s.close()

	switch {
	case isPrefix && rmTrashOnly:
		res, err := s.mutator.TrashPrefix(ctx, rel)
		if res != nil {
			s.report(ctx, trashRecord(res), err)
		}
		if err != nil {
			return serviceError("Trash failed", err, zap.String("prefix", rel))
		}
		observability.CLILogger.Info("Moved folder to trash",
			zap.String("prefix", res.Prefix), zap.String("trash", res.Root), zap.Int("objects", len(res.Copied)))

	case isPrefix:
		res, err := s.mutator.RemovePrefix(ctx, rel)
		if res != nil {
			s.report(ctx, removeRecord(res), err)
		}
		if err != nil {
			return serviceError("Folder delete failed", err, zap.String("prefix", rel))
		}
		if res.Trash != nil {
			observability.CLILogger.Info("Delete refused, moved folder to trash",
				zap.String("prefix", res.Prefix), zap.String("trash", res.Trash.Root))
			return nil
		}
		observability.CLILogger.Info("Deleted folder", zap.String("prefix", res.Prefix))

	default:
		key := s.cfg.Absolute(rel)
		var res *transfer.DeleteResult
		if rmTrashOnly {
			var trashKey string
			trashKey, err = s.mutator.TrashObject(ctx, key)
			res = &transfer.DeleteResult{Key: key, Outcome: transfer.Denied, TrashKey: trashKey}
		} else {
			res, err = s.mutator.DeleteObject(ctx, key)
		}
		rec := deleteRecord(res)
		if rmTrashOnly {
			rec.Op = output.OpTrash
		}
		s.report(ctx, rec, err)
		if err != nil {
			if errors.Is(err, transfer.ErrNotWritable) {
				return exitError(foundry.ExitInvalidArgument, "Bucket is not writable", err)
			}
			return serviceError("Delete failed", err, zap.String("key", key))
		}
		if res.Trashed() {
			observability.CLILogger.Info("Moved to trash", zap.String("key", key), zap.String("trash", res.TrashKey))
			return nil
		}
		observability.CLILogger.Info("Deleted object", zap.String("key", key))
	}
	return nil
}
