// Package crawler enumerates every key under a prefix by following
// continuation tokens on recursive (delimiter-free) listings.
//
// Two entry points share the same listing loop:
//   - Walk and Keys drive mutations and fail as a whole on any listing error.
//   - Run is a bounded lister → selector → writer pipeline for search output,
//     where access errors on one prefix are reported and skipped.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/3leaps/bucketnav/pkg/keyspace"
	"github.com/3leaps/bucketnav/pkg/match"
	"github.com/3leaps/bucketnav/pkg/output"
	"github.com/3leaps/bucketnav/pkg/provider"
)

// ErrTokenLoop is returned when the store hands back the token it was given.
var ErrTokenLoop = errors.New("listing returned the same continuation token twice")

// Config configures crawler behavior.
type Config struct {
	// Concurrency is the number of prefixes listed in parallel by Run.
	// Default: 4
	Concurrency int

	// ChannelBuffer is the size of bounded channels between pipeline stages.
	// Default: 1000
	ChannelBuffer int

	// RateLimit is the maximum list requests per second. Zero is unlimited.
	RateLimit float64

	// ProgressEvery emits a progress record every N matched objects.
	// Default: 1000
	ProgressEvery int

	// PageSize is the MaxKeys sent with each listing. Zero uses the store default.
	PageSize int
}

// DefaultConfig returns the default crawler configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:   4,
		ChannelBuffer: 1000,
		ProgressEvery: 1000,
	}
}

// Summary contains aggregate statistics from a completed Run.
type Summary struct {
	ObjectsListed  int64
	ObjectsMatched int64
	BytesTotal     int64
	Duration       time.Duration
	Errors         int64
	Prefixes       []string
}

// Crawler lists keys recursively.
//
// Walk and Keys may be called any number of times. Run accumulates counters
// and is meant to be used once per search.
type Crawler struct {
	provider provider.Provider
	config   Config
	limiter  *rate.Limiter

	root     string
	selector *match.Selector
	writer   output.Writer

	objectsListed  atomic.Int64
	objectsMatched atomic.Int64
	bytesTotal     atomic.Int64
	errorCount     atomic.Int64
	pages          atomic.Int64
}

// New creates a crawler over p.
func New(p provider.Provider, cfg Config) *Crawler {
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = def.ChannelBuffer
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = def.ProgressEvery
	}

	c := &Crawler{provider: p, config: cfg}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return c
}

// WithRoot sets the root prefix stripped before selector matching.
func (c *Crawler) WithRoot(root string) *Crawler {
	c.root = root
	return c
}

// WithSelector sets the filter applied by Run. Without one every key matches.
func (c *Crawler) WithSelector(s *match.Selector) *Crawler {
	c.selector = s
	return c
}

// WithWriter sets the record sink used by Run.
func (c *Crawler) WithWriter(w output.Writer) *Crawler {
	c.writer = w
	return c
}

// Pages returns the number of listing pages fetched so far.
func (c *Crawler) Pages() int64 {
	return c.pages.Load()
}

// Walk calls fn for every object under prefix in listing order. It stops at
// the first listing error, fn error or cancellation.
func (c *Crawler) Walk(ctx context.Context, prefix string, fn func(provider.ObjectSummary) error) error {
	var token string
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.waitForRateLimit(ctx); err != nil {
			return err
		}

		res, err := c.provider.List(ctx, provider.ListOptions{
			Prefix:            prefix,
			ContinuationToken: token,
			MaxKeys:           c.config.PageSize,
		})
		if err != nil {
			return fmt.Errorf("list %q: %w", prefix, err)
		}
		c.pages.Add(1)

		for _, obj := range res.Objects {
			if err := fn(obj); err != nil {
				return err
			}
		}

		if res.ContinuationToken == "" {
			return nil
		}
		if res.ContinuationToken == token {
			return fmt.Errorf("list %q: %w", prefix, ErrTokenLoop)
		}
		token = res.ContinuationToken
	}
}

// Keys returns every key under prefix in listing order. The result is
// all-or-nothing: on error no partial list is returned.
func (c *Crawler) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := c.Walk(ctx, prefix, func(obj provider.ObjectSummary) error {
		keys = append(keys, obj.Key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Run lists prefixes and writes selected objects to the configured writer,
// followed by a summary record.
//
// Access, not-found, throttling and availability errors on one prefix are
// written as error records and that prefix is skipped. Other errors stop
// the run. On cancellation a partial summary is returned with the error.
func (c *Crawler) Run(ctx context.Context, prefixes []string) (*Summary, error) {
	if c.writer == nil {
		return nil, errors.New("crawler: no writer configured")
	}
	start := time.Now()
	if len(prefixes) == 0 {
		prefixes = []string{c.root}
	}

	if err := c.writeProgress(ctx, output.PhaseStarting, ""); err != nil {
		return nil, err
	}

	if err := c.runPipeline(ctx, prefixes); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return c.buildSummary(prefixes, time.Since(start)), err
		}
		return nil, err
	}

	summary := c.buildSummary(prefixes, time.Since(start))
	if err := c.writer.WriteSummary(ctx, &output.SummaryRecord{
		ObjectsFound:   summary.ObjectsListed,
		ObjectsMatched: summary.ObjectsMatched,
		BytesTotal:     summary.BytesTotal,
		Duration:       summary.Duration,
		DurationHuman:  summary.Duration.Round(time.Millisecond).String(),
		Errors:         summary.Errors,
		Prefixes:       summary.Prefixes,
	}); err != nil {
		return summary, err
	}
	return summary, nil
}

func (c *Crawler) buildSummary(prefixes []string, d time.Duration) *Summary {
	return &Summary{
		ObjectsListed:  c.objectsListed.Load(),
		ObjectsMatched: c.objectsMatched.Load(),
		BytesTotal:     c.bytesTotal.Load(),
		Duration:       d,
		Errors:         c.errorCount.Load(),
		Prefixes:       prefixes,
	}
}

func (c *Crawler) writeProgress(ctx context.Context, phase, prefix string) error {
	return c.writer.WriteProgress(ctx, &output.ProgressRecord{
		Phase:          phase,
		ObjectsFound:   c.objectsListed.Load(),
		ObjectsMatched: c.objectsMatched.Load(),
		BytesTotal:     c.bytesTotal.Load(),
		Prefix:         prefix,
	})
}

func (c *Crawler) writeError(ctx context.Context, code, message, prefix string) {
	c.errorCount.Add(1)
	_ = c.writer.WriteError(ctx, &output.ErrorRecord{Code: code, Message: message, Prefix: prefix})
}

func (c *Crawler) waitForRateLimit(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

type objectItem struct {
	summary provider.ObjectSummary
	rel     string
	prefix  string
}

func (c *Crawler) runPipeline(ctx context.Context, prefixes []string) error {
	pipeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	listCh := make(chan objectItem, c.config.ChannelBuffer)
	matchCh := make(chan objectItem, c.config.ChannelBuffer)
	errCh := make(chan error, 1)
	fail := func(err error) {
		select {
		case errCh <- err:
		default:
		}
		cancel()
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		defer close(listCh)
		if err := c.runListers(pipeCtx, prefixes, listCh); err != nil {
			fail(err)
		}
	}()
	go func() {
		defer wg.Done()
		defer close(matchCh)
		c.runSelector(pipeCtx, listCh, matchCh)
	}()
	go func() {
		defer wg.Done()
		if err := c.runWriter(pipeCtx, matchCh); err != nil {
			fail(err)
		}
	}()
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return ctx.Err()
	}
}

func (c *Crawler) runListers(ctx context.Context, prefixes []string, out chan<- objectItem) error {
	sem := make(chan struct{}, c.config.Concurrency)
	var wg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once

	for _, prefix := range prefixes {
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := c.listPrefix(ctx, p, out); err != nil {
				errOnce.Do(func() { firstErr = err })
			}
		}(prefix)
	}
	wg.Wait()
	return firstErr
}

func (c *Crawler) listPrefix(ctx context.Context, prefix string, out chan<- objectItem) error {
	err := c.Walk(ctx, prefix, func(obj provider.ObjectSummary) error {
		c.objectsListed.Add(1)
		rel, _ := keyspace.Relative(c.root, obj.Key)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- objectItem{summary: obj, rel: rel, prefix: prefix}:
			return nil
		}
	})
	if err == nil {
		return nil
	}
	if code, ok := skippableCode(err); ok {
		c.writeError(ctx, code, err.Error(), prefix)
		return nil
	}
	return err
}

// skippableCode classifies listing errors that only affect one prefix.
func skippableCode(err error) (string, bool) {
	switch {
	case provider.IsAccessDenied(err):
		return output.ErrCodeAccessDenied, true
	case provider.IsNotFound(err):
		return output.ErrCodeNotFound, true
	case provider.IsThrottled(err):
		return output.ErrCodeThrottled, true
	case provider.IsProviderUnavailable(err):
		return output.ErrCodeProviderUnavailable, true
	}
	return "", false
}

func (c *Crawler) runSelector(ctx context.Context, in <-chan objectItem, out chan<- objectItem) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-in:
			if !ok {
				return
			}
			if c.selector != nil && !c.selector.Select(item.rel, &item.summary) {
				continue
			}
			c.objectsMatched.Add(1)
			c.bytesTotal.Add(item.summary.Size)

			select {
			case <-ctx.Done():
				return
			case out <- item:
			}
		}
	}
}

func (c *Crawler) runWriter(ctx context.Context, in <-chan objectItem) error {
	var matched int64
	var lastPrefix string

	for {
		select {
		case <-ctx.Done():
			_ = c.writeProgress(context.WithoutCancel(ctx), output.PhaseComplete, lastPrefix)
			return ctx.Err()
		case item, ok := <-in:
			if !ok {
				return c.writeProgress(ctx, output.PhaseComplete, lastPrefix)
			}
			if err := c.writer.WriteObject(ctx, &output.ObjectRecord{
				Key:          item.summary.Key,
				Rel:          item.rel,
				Size:         item.summary.Size,
				ETag:         item.summary.ETag,
				LastModified: item.summary.LastModified,
			}); err != nil {
				return err
			}

			matched++
			lastPrefix = item.prefix
			if matched%int64(c.config.ProgressEvery) == 0 {
				if err := c.writeProgress(ctx, output.PhaseListing, item.prefix); err != nil {
					return err
				}
			}
		}
	}
}
