package browse

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/3leaps/bucketnav/pkg/keyspace"
	"github.com/3leaps/bucketnav/pkg/provider"
)

// ErrStaleResult is returned by a load whose result was superseded by a
// navigation that happened while it was in flight. The paginator state is
// left untouched.
var ErrStaleResult = errors.New("listing result superseded by newer navigation")

// Page is the outcome of a successful load.
type Page struct {
	// Prefix is the root-relative prefix being browsed.
	Prefix string `json:"prefix"`

	// Entries are the projected rows of this page.
	Entries []Entry `json:"entries"`

	// Number is the 1-based page position within Prefix.
	Number int `json:"number"`

	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

// Paginator holds the cursor over one prefix: the token of the page being
// shown, the token of the next page, and a stack of tokens of the pages
// before it.
//
// Paginator is safe for concurrent use. Every navigation bumps a generation
// counter; a load that finishes after a newer navigation is discarded with
// ErrStaleResult, so only the latest request can update the state.
type Paginator struct {
	p   provider.Provider
	cfg Config
	log *zap.Logger

	mu      sync.Mutex
	prefix  string
	current string
	next    string
	stack   []string
	gen     uint64
	page    *Page
}

// Option configures a Paginator.
type Option func(*Paginator)

// WithLogger sets the logger used for page loads.
func WithLogger(l *zap.Logger) Option {
	return func(pg *Paginator) {
		if l != nil {
			pg.log = l
		}
	}
}

// NewPaginator returns a paginator positioned at the first page of the root.
// Nothing is loaded until LoadPage or a navigation method is called.
func NewPaginator(p provider.Provider, cfg Config, opts ...Option) *Paginator {
	pg := &Paginator{p: p, cfg: cfg, log: zap.NewNop()}
	for _, o := range opts {
		o(pg)
	}
	return pg
}

// Prefix returns the root-relative prefix being browsed.
func (pg *Paginator) Prefix() string {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	return pg.prefix
}

// Current returns the last successfully loaded page, or nil.
func (pg *Paginator) Current() *Page {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	return pg.page
}

// HasNext reports whether a next page is known.
func (pg *Paginator) HasNext() bool {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	return pg.next != ""
}

// HasPrevious reports whether a previous page exists.
func (pg *Paginator) HasPrevious() bool {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	return len(pg.stack) > 0
}

// LoadPage fetches the page at the current token.
//
// On failure the next token, the stack and the last page are unchanged.
// A listing without the delimiter marker fails with a
// provider.ListingProtocolError.
func (pg *Paginator) LoadPage(ctx context.Context) (*Page, error) {
	pg.mu.Lock()
	c := cursor{gen: pg.gen, prefix: pg.prefix, token: pg.current, stack: pg.stack}
	pg.mu.Unlock()
	return pg.load(ctx, c)
}

// cursor is a position that becomes the paginator state only once its page
// has loaded.
type cursor struct {
	gen    uint64
	prefix string
	token  string
	stack  []string
}

func (pg *Paginator) load(ctx context.Context, c cursor) (*Page, error) {
	query := pg.cfg.Absolute(c.prefix)
	res, err := pg.p.List(ctx, provider.ListOptions{
		Prefix:            query,
		Delimiter:         keyspace.Delimiter,
		ContinuationToken: c.token,
		MaxKeys:           pg.cfg.PageSize,
	})
	if err != nil {
		pg.log.Debug("Listing failed", zap.String("prefix", query), zap.Error(err))
		return nil, fmt.Errorf("list %q: %w", query, err)
	}
	if !res.HasDelimiter {
		return nil, &provider.ListingProtocolError{URL: pg.cfg.BucketURL, Reason: "listing response has no Delimiter element"}
	}
	entries := Project(res, query, pg.cfg)

	pg.mu.Lock()
	defer pg.mu.Unlock()
	if pg.gen != c.gen {
		pg.log.Debug("Discarded stale listing", zap.String("prefix", query))
		return nil, ErrStaleResult
	}
	pg.current = c.token
	pg.stack = c.stack
	pg.next = res.ContinuationToken
	pg.page = &Page{
		Prefix:      c.prefix,
		Entries:     entries,
		Number:      len(pg.stack) + 1,
		HasNext:     pg.next != "",
		HasPrevious: len(pg.stack) > 0,
	}
	pg.log.Debug("Loaded page",
		zap.String("prefix", query),
		zap.Int("page", pg.page.Number),
		zap.Int("entries", len(entries)),
		zap.Bool("has_next", pg.page.HasNext),
	)
	return pg.page, nil
}

// Next advances to the next page. Without a next page it returns the
// current page and issues no request. If the load fails the cursor stays on
// the page being shown.
func (pg *Paginator) Next(ctx context.Context) (*Page, error) {
	pg.mu.Lock()
	if pg.next == "" {
		page := pg.page
		pg.mu.Unlock()
		return page, nil
	}
	stack := append(slices.Clip(pg.stack), pg.current)
	pg.gen++
	c := cursor{gen: pg.gen, prefix: pg.prefix, token: pg.next, stack: stack}
	pg.mu.Unlock()
	return pg.load(ctx, c)
}

// Previous returns to the page before the current one. On the first page it
// returns the current page and issues no request. If the load fails the
// cursor stays on the page being shown.
func (pg *Paginator) Previous(ctx context.Context) (*Page, error) {
	pg.mu.Lock()
	if len(pg.stack) == 0 {
		page := pg.page
		pg.mu.Unlock()
		return page, nil
	}
	last := len(pg.stack) - 1
	pg.gen++
	c := cursor{gen: pg.gen, prefix: pg.prefix, token: pg.stack[last], stack: slices.Clip(pg.stack[:last])}
	pg.mu.Unlock()
	return pg.load(ctx, c)
}

// ResetForNewPrefix clears the cursor, switches to prefix and loads its
// first page. prefix is relative to the root and normalised to end in "/".
func (pg *Paginator) ResetForNewPrefix(ctx context.Context, prefix string) (*Page, error) {
	pg.mu.Lock()
	pg.prefix = keyspace.NormalizePrefix(prefix)
	pg.current = ""
	pg.next = ""
	pg.stack = nil
	pg.page = nil
	pg.gen++
	c := cursor{gen: pg.gen, prefix: pg.prefix}
	pg.mu.Unlock()
	return pg.load(ctx, c)
}

// Refresh reloads the current prefix from its first page.
func (pg *Paginator) Refresh(ctx context.Context) (*Page, error) {
	return pg.ResetForNewPrefix(ctx, pg.Prefix())
}
