package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/bucketnav/internal/observability"
	"github.com/3leaps/bucketnav/pkg/browse"
	"github.com/3leaps/bucketnav/pkg/keyspace"
)

var browseCmd = &cobra.Command{
	Use:   "browse [prefix]",
	Short: "Browse the bucket interactively",
	Long: `Browse the bucket page by page from a line-oriented prompt.

Commands:
  n, next          next page
  p, prev          previous page
  r, refresh       reload the current prefix from its first page
  cd <name>        enter a folder (relative to the current one)
  go <prefix>      jump to a root-relative prefix
  up               go to the parent folder
  sort <order>     e.g. size-desc, lastModified-asc
  q, quit          leave

Example:
  bucketnav browse
  bucketnav browse photos/`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBrowse,
}

func init() {
	rootCmd.AddCommand(browseCmd)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	prefix := ""
	if len(args) == 1 {
		prefix = args[0]
	}
	if !browse.ValidPrefix(prefix, "") {
		return exitError(foundry.ExitInvalidArgument, "Invalid prefix", fmt.Errorf("%q: surrounding spaces or empty segments", prefix))
	}

	p, bcfg, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeProvider(p)

	s := &browseSession{
		pg:    browse.NewPaginator(p, bcfg, browse.WithLogger(observability.CLILogger)),
		out:   cmd.OutOrStdout(),
		order: browse.DefaultOrder,
	}
	s.show(s.pg.ResetForNewPrefix(ctx, prefix))
	return s.loop(ctx, cmd.InOrStdin())
}

type browseSession struct {
	pg    *browse.Paginator
	out   io.Writer
	order browse.Order
}

func (s *browseSession) loop(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for {
		_, _ = fmt.Fprint(s.out, "> ")
		if !sc.Scan() {
			_, _ = fmt.Fprintln(s.out)
			return sc.Err()
		}
		if err := ctx.Err(); err != nil {
			return exitError(foundry.ExitSignalInt, "Interrupted", err)
		}
		if quit := s.exec(ctx, strings.TrimSpace(sc.Text())); quit {
			return nil
		}
	}
}

// exec runs one prompt line and reports whether the session should end.
func (s *browseSession) exec(ctx context.Context, line string) bool {
	verb, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch verb {
	case "":
	case "q", "quit", "exit":
		return true
	case "n", "next":
		s.show(s.pg.Next(ctx))
	case "p", "prev", "previous":
		s.show(s.pg.Previous(ctx))
	case "r", "refresh":
		s.show(s.pg.Refresh(ctx))
	case "up":
		s.show(s.pg.ResetForNewPrefix(ctx, keyspace.Parent(s.pg.Prefix())))
	case "cd":
		current := s.pg.Prefix()
		if !browse.ValidPrefix(arg, current) {
			_, _ = fmt.Fprintf(s.out, "invalid prefix %q\n", arg)
			return false
		}
		s.show(s.pg.ResetForNewPrefix(ctx, browse.ResolveSearch(current, strings.TrimPrefix(arg, keyspace.Delimiter))))
	case "go":
		if !browse.ValidPrefix(arg, "") {
			_, _ = fmt.Fprintf(s.out, "invalid prefix %q\n", arg)
			return false
		}
		s.show(s.pg.ResetForNewPrefix(ctx, arg))
	case "sort":
		o, err := browse.ParseOrder(arg)
		if err != nil {
			_, _ = fmt.Fprintln(s.out, err)
			return false
		}
		s.order = o
		s.show(s.pg.Current(), nil)
	default:
		_, _ = fmt.Fprintf(s.out, "unknown command %q\n", verb)
	}
	return false
}

func (s *browseSession) show(page *browse.Page, err error) {
	switch {
	case errors.Is(err, browse.ErrStaleResult):
		return
	case err != nil:
		observability.CLILogger.Error("Failed to list prefix", zap.String("prefix", s.pg.Prefix()), zap.Error(err))
		_, _ = fmt.Fprintf(s.out, "listing failed: %v\n", err)
		return
	case page == nil:
		return
	}
	entries := append([]browse.Entry(nil), page.Entries...)
	browse.SortEntries(entries, s.order)
	view := *page
	view.Entries = entries
	_ = renderPageTable(s.out, &view)
}
