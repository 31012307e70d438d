package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/bucketnav/internal/observability"
	"github.com/3leaps/bucketnav/pkg/crawler"
	"github.com/3leaps/bucketnav/pkg/match"
)

var findCmd = &cobra.Command{
	Use:   "find [prefix...]",
	Short: "Recursively list objects under prefixes (JSONL)",
	Long: `Recursively list every object under one or more root-relative
prefixes and emit the selected ones as JSONL object records, followed by a
summary record.

Patterns are regular expressions matched against root-relative keys; prefix
a pattern with "glob:" for doublestar globs. Configured exclude rules and
the trash location always apply.

Example:
  bucketnav find photos/
  bucketnav find photos/ docs/ --include 'glob:**/*.{jpg,png}'
  bucketnav find --min-size 1MiB --after 2024-01-01
  bucketnav find logs/ --exclude '\.tmp$' --rate-limit 5`,
	RunE: runFind,
}

var (
	findIncludes    []string
	findExcludes    []string
	findMinSize     string
	findMaxSize     string
	findAfter       string
	findBefore      string
	findConcurrency int
	findRateLimit   float64
	findQuiet       bool
)

func init() {
	rootCmd.AddCommand(findCmd)

	findCmd.Flags().StringArrayVar(&findIncludes, "include", nil, "Only keys matching this pattern (repeatable)")
	findCmd.Flags().StringArrayVar(&findExcludes, "exclude", nil, "Skip keys matching this pattern (repeatable)")
	findCmd.Flags().StringVar(&findMinSize, "min-size", "", "Minimum object size, e.g. 10KB")
	findCmd.Flags().StringVar(&findMaxSize, "max-size", "", "Maximum object size, e.g. 2GiB")
	findCmd.Flags().StringVar(&findAfter, "after", "", "Modified at or after (YYYY-MM-DD or RFC 3339)")
	findCmd.Flags().StringVar(&findBefore, "before", "", "Modified before (YYYY-MM-DD or RFC 3339)")
	findCmd.Flags().IntVar(&findConcurrency, "concurrency", 0, "Prefixes listed in parallel (default from config)")
	findCmd.Flags().Float64Var(&findRateLimit, "rate-limit", -1, "Max list requests per second, 0 for unlimited (default from config)")
	findCmd.Flags().BoolVarP(&findQuiet, "quiet", "q", false, "Suppress progress records")
}

func runFind(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	p, bcfg, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeProvider(p)

	sel, err := match.NewSelector(match.SelectorConfig{
		Includes: findIncludes,
		Excludes: append(bcfg.ExcludePatterns(), findExcludes...),
		MinSize:  findMinSize,
		MaxSize:  findMaxSize,
		After:    findAfter,
		Before:   findBefore,
	})
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid filter", err)
	}

	prefixes := make([]string, 0, len(args))
	for _, a := range args {
		prefixes = append(prefixes, bcfg.Absolute(a))
	}

	ccfg := crawler.Config{
		Concurrency: appConfig.Crawl.Concurrency,
		RateLimit:   appConfig.Crawl.RateLimit,
		PageSize:    appConfig.Crawl.PageSize,
	}
	if findConcurrency > 0 {
		ccfg.Concurrency = findConcurrency
	}
	if findRateLimit >= 0 {
		ccfg.RateLimit = findRateLimit
	}
	if findQuiet {
		ccfg.ProgressEvery = int(^uint(0) >> 1)
	}

	w := newWriter(cmd.OutOrStdout())
	defer func() { _ = w.Close() }()

	c := crawler.New(p, ccfg).
		WithRoot(bcfg.RootPrefix).
		WithSelector(sel).
		WithWriter(w)

	observability.CLILogger.Debug("Starting find",
		zap.Strings("prefixes", prefixes),
		zap.Strings("includes", findIncludes),
		zap.Float64("rate_limit", ccfg.RateLimit))

	summary, err := c.Run(ctx, prefixes)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return exitError(foundry.ExitSignalInt, "Find interrupted", err)
		}
		return serviceError("Find failed", err, zap.Strings("prefixes", prefixes))
	}

	observability.CLILogger.Info("Find complete",
		zap.Int64("listed", summary.ObjectsListed),
		zap.Int64("matched", summary.ObjectsMatched),
		zap.Int64("errors", summary.Errors),
		zap.Duration("duration", summary.Duration))
	if summary.Errors > 0 {
		return exitError(foundry.ExitExternalServiceUnavailable, "Find completed with errors",
			fmt.Errorf("%d prefix(es) could not be listed", summary.Errors))
	}
	return nil
}
