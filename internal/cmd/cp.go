package cmd

import (
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/bucketnav/internal/observability"
	"github.com/3leaps/bucketnav/pkg/keyspace"
	"github.com/3leaps/bucketnav/pkg/output"
)

var cpCmd = &cobra.Command{
	Use:   "cp <src-key> <dst-key>",
	Short: "Copy one object",
	Long: `Copy one object to another key. Both keys are relative to the
configured root. The content type is preserved.

A destination ending in "/" keeps the source name below that prefix.

Example:
  bucketnav cp photos/beach.jpg archive/beach.jpg
  bucketnav cp photos/beach.jpg archive/`,
	Args: cobra.ExactArgs(2),
	RunE: runCp,
}

func init() {
	rootCmd.AddCommand(cpCmd)
}

func runCp(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if strings.HasSuffix(args[0], keyspace.Delimiter) {
		return exitError(foundry.ExitInvalidArgument, "Invalid source", fmt.Errorf("%q is a prefix, not an object key", args[0]))
	}

	s, err := openMutation(cmd, "copy")
	if err != nil {
		return err
	}
	defer s.close()

	src := s.cfg.Absolute(args[0])
	dstRel := args[1]
	if keyspace.IsPrefix(dstRel) {
		dstRel = keyspace.Join(dstRel, keyspace.Name(src))
	}
	dst := s.cfg.Absolute(dstRel)
	if src == dst {
		return exitError(foundry.ExitInvalidArgument, "Invalid destination", fmt.Errorf("source and destination are the same key"))
	}

	err = s.mutator.Copy(ctx, src, dst)
	s.report(ctx, &output.MutationRecord{Op: output.OpCopy, Source: src, Target: dst, Outcome: output.OutcomeDone}, err)
	if err != nil {
		return serviceError("Copy failed", err, zap.String("src", src), zap.String("dst", dst))
	}
	observability.CLILogger.Info("Copied object", zap.String("src", src), zap.String("dst", dst))
	return nil
}
