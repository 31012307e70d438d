package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/3leaps/bucketnav/pkg/browse"
	"github.com/3leaps/bucketnav/pkg/output"
	"github.com/3leaps/bucketnav/pkg/provider"
	"github.com/3leaps/bucketnav/pkg/transfer"
)

// mutationSession bundles what every mutating command needs.
type mutationSession struct {
	store   provider.Provider
	cfg     browse.Config
	mutator *transfer.Mutator
	out     *output.JSONLWriter
}

// openMutation checks readonly mode, then opens the store and mutator.
func openMutation(cmd *cobra.Command, op string) (*mutationSession, error) {
	if err := ensureWritable(op); err != nil {
		return nil, err
	}
	p, bcfg, err := openStore(cmd.Context())
	if err != nil {
		return nil, err
	}
	m, err := newMutator(p, bcfg)
	if err != nil {
		closeProvider(p)
		return nil, err
	}
	return &mutationSession{store: p, cfg: bcfg, mutator: m, out: newWriter(cmd.OutOrStdout())}, nil
}

func (s *mutationSession) close() {
	_ = s.out.Close()
	closeProvider(s.store)
}

// report writes rec and, when err is set, a matching error record.
func (s *mutationSession) report(ctx context.Context, rec *output.MutationRecord, err error) {
	if err != nil {
		if rec.Outcome != output.OutcomePartial {
			rec.Outcome = output.OutcomeFailed
		}
		rec.Message = err.Error()
		_ = s.out.WriteError(ctx, &output.ErrorRecord{
			Code:    transfer.ErrorCode(err),
			Message: err.Error(),
			Key:     rec.Source,
		})
	}
	_ = s.out.WriteMutation(ctx, rec)
}

func deleteRecord(res *transfer.DeleteResult) *output.MutationRecord {
	rec := &output.MutationRecord{Op: output.OpDelete, Source: res.Key, Outcome: output.OutcomeDone}
	if res.Outcome == transfer.Denied {
		rec.Outcome = output.OutcomeDenied
	}
	if res.Trashed() {
		rec.Outcome = output.OutcomeTrashed
		rec.TrashKey = res.TrashKey
	}
	return rec
}

func trashRecord(res *transfer.TrashResult) *output.MutationRecord {
	rec := &output.MutationRecord{
		Op:       output.OpTrash,
		Source:   res.Prefix,
		Target:   res.Root,
		TrashKey: res.Root,
		Outcome:  output.OutcomeTrashed,
		Objects:  len(res.Copied),
		Failed:   len(res.Failed),
	}
	if len(res.Failed) > 0 {
		rec.Outcome = output.OutcomePartial
	}
	return rec
}

func removeRecord(res *transfer.RemoveResult) *output.MutationRecord {
	if res.Trash != nil {
		rec := trashRecord(res.Trash)
		rec.Op = output.OpDelete
		return rec
	}
	rec := &output.MutationRecord{Op: output.OpDelete, Source: res.Prefix, Outcome: output.OutcomeDone}
	if res.Outcome == transfer.Denied {
		rec.Outcome = output.OutcomeDenied
	}
	return rec
}

func prefixArg(arg string) error {
	if !browse.ValidPrefix(arg, "") {
		return fmt.Errorf("%q: surrounding spaces or empty segments", arg)
	}
	return nil
}
