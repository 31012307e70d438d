package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/bucketnav/internal/observability"
	"github.com/3leaps/bucketnav/pkg/browse"
)

var lsCmd = &cobra.Command{
	Use:   "ls [prefix]",
	Short: "List one page of folders and files under a prefix",
	Long: `List the folders and files directly under a prefix, one listing page
at a time. The prefix is relative to the configured root.

Folders sort before files. Hidden keys (exclude rules and the trash
location) are not shown.

Example:
  bucketnav ls
  bucketnav ls photos/2024/
  bucketnav ls photos/ --page 3 --sort size-desc
  bucketnav ls photos/ --all --format jsonl`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLs,
}

var (
	lsPage   int
	lsAll    bool
	lsSort   string
	lsFormat string
)

func init() {
	rootCmd.AddCommand(lsCmd)

	lsCmd.Flags().IntVar(&lsPage, "page", 1, "Page number to show (1-based)")
	lsCmd.Flags().BoolVar(&lsAll, "all", false, "Show every page")
	lsCmd.Flags().StringVar(&lsSort, "sort", "name-asc", "Sort order: name, size or lastModified, with -asc or -desc")
	lsCmd.Flags().StringVarP(&lsFormat, "format", "f", formatTable, "Output format: table or jsonl")
}

func runLs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	prefix := ""
	if len(args) == 1 {
		prefix = args[0]
	}
	if !browse.ValidPrefix(prefix, "") {
		return exitError(foundry.ExitInvalidArgument, "Invalid prefix", fmt.Errorf("%q: surrounding spaces or empty segments", prefix))
	}
	if lsPage < 1 {
		return exitError(foundry.ExitInvalidArgument, "Invalid --page value", fmt.Errorf("page must be >= 1"))
	}
	order, err := browse.ParseOrder(lsSort)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid --sort value", err)
	}
	if lsFormat != formatTable && lsFormat != formatJSONL {
		return exitError(foundry.ExitInvalidArgument, "Invalid --format value", fmt.Errorf("unsupported format: %s", lsFormat))
	}

	p, bcfg, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeProvider(p)

	pg := browse.NewPaginator(p, bcfg, browse.WithLogger(observability.CLILogger))
	page, err := pg.ResetForNewPrefix(ctx, prefix)
	if err != nil {
		return serviceError("Failed to list prefix", err, zap.String("prefix", prefix))
	}
	for page.Number < lsPage && page.HasNext {
		next, err := pg.Next(ctx)
		if err != nil {
			return serviceError("Failed to list page", err, zap.String("prefix", prefix), zap.Int("page", page.Number+1))
		}
		page = next
	}
	if page.Number < lsPage {
		return exitError(foundry.ExitInvalidArgument, "Page out of range", fmt.Errorf("prefix %q has %d page(s)", page.Prefix, page.Number))
	}

	w := newWriter(cmd.OutOrStdout())
	defer func() { _ = w.Close() }()

	for {
		browse.SortEntries(page.Entries, order)
		if lsFormat == formatJSONL {
			err = writePageJSONL(ctx, w, page)
		} else {
			err = renderPageTable(cmd.OutOrStdout(), page)
		}
		if err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
		}
		if !lsAll || !page.HasNext {
			return nil
		}
		if page, err = pg.Next(ctx); err != nil {
			return serviceError("Failed to list page", err, zap.String("prefix", prefix))
		}
	}
}
