package httpbucket

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/3leaps/bucketnav/pkg/keyspace"
	"github.com/3leaps/bucketnav/pkg/provider"
)

// contentLengthHint carries an explicit body length from the request
// builder to the pre-request hook, where it becomes http.Request.ContentLength.
const contentLengthHint = "X-Bucketnav-Content-Length"

const errorBodyLimit = 1024

// Provider implements provider.Provider over HTTP.
type Provider struct {
	base        string
	listTimeout time.Duration

	// single issues requests exactly once: listing, PUT, DELETE.
	single *resty.Client
	// reads retries idempotent object reads.
	reads *resty.Client
}

var (
	_ provider.Provider      = (*Provider)(nil)
	_ provider.ObjectGetter  = (*Provider)(nil)
	_ provider.ObjectPutter  = (*Provider)(nil)
	_ provider.ObjectDeleter = (*Provider)(nil)
)

// New creates an HTTP bucket provider.
func New(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	retries := cfg.RetryCount
	if retries == 0 {
		retries = DefaultRetryCount
	}

	single := newClient(cfg)
	single.SetPreRequestHook(applyContentLength)

	reads := newClient(cfg)
	reads.SetRetryCount(retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			code := r.StatusCode()
			return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
		})

	return &Provider{
		base:        strings.TrimRight(cfg.BaseURL, "/"),
		listTimeout: cfg.ListTimeout,
		single:      single,
		reads:       reads,
	}, nil
}

func newClient(cfg Config) *resty.Client {
	var c *resty.Client
	if cfg.HTTPClient != nil {
		c = resty.NewWithClient(cfg.HTTPClient)
	} else {
		c = resty.New()
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	c.SetHeader("User-Agent", ua)
	c.SetHeaders(cfg.Headers)
	return c
}

func applyContentLength(_ *resty.Client, req *http.Request) error {
	v := req.Header.Get(contentLengthHint)
	if v == "" {
		return nil
	}
	req.Header.Del(contentLengthHint)
	n, err := strconv.ParseInt(v, 10, 64)
	if err == nil && n >= 0 && req.Body != nil {
		req.ContentLength = n
	}
	return nil
}

// BaseURL returns the bucket API URL without a trailing slash.
func (p *Provider) BaseURL() string {
	return p.base
}

// ObjectURL returns the URL of key under the bucket API.
func (p *Provider) ObjectURL(key string) string {
	return keyspace.ObjectURL(p.base, key)
}

type listBucketResult struct {
	XMLName               xml.Name       `xml:"ListBucketResult"`
	Prefix                string         `xml:"Prefix"`
	Delimiter             *string        `xml:"Delimiter"`
	IsTruncated           bool           `xml:"IsTruncated"`
	NextContinuationToken string         `xml:"NextContinuationToken"`
	Contents              []listContent  `xml:"Contents"`
	CommonPrefixes        []commonPrefix `xml:"CommonPrefixes"`
}

type listContent struct {
	Key          string `xml:"Key"`
	Size         int64  `xml:"Size"`
	ETag         string `xml:"ETag"`
	LastModified string `xml:"LastModified"`
}

type commonPrefix struct {
	Prefix string `xml:"Prefix"`
}

// List issues a ListObjectsV2 request against the base URL.
func (p *Provider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	params := map[string]string{
		"list-type": "2",
		"prefix":    opts.Prefix,
	}
	if opts.Delimiter != "" {
		params["delimiter"] = opts.Delimiter
	}
	if opts.MaxKeys > 0 {
		params["max-keys"] = strconv.Itoa(opts.MaxKeys)
	}
	if opts.ContinuationToken != "" {
		params["continuation-token"] = opts.ContinuationToken
	}

	if p.listTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.listTimeout)
		defer cancel()
	}

	resp, err := p.single.R().SetContext(ctx).SetQueryParams(params).Get(p.base)
	if err != nil {
		return nil, p.wrap("List", "", &provider.NetworkError{Op: http.MethodGet, URL: p.base, Err: err})
	}
	if !resp.IsSuccess() {
		return nil, p.wrap("List", "", httpError(http.MethodGet, p.base, resp.StatusCode(), resp.Body()))
	}

	var out listBucketResult
	if err := xml.Unmarshal(resp.Body(), &out); err != nil {
		return nil, p.wrap("List", "", &provider.ListingProtocolError{URL: p.base, Reason: "response is not a ListBucketResult"})
	}

	res := &provider.ListResult{
		Objects:           make([]provider.ObjectSummary, 0, len(out.Contents)),
		CommonPrefixes:    make([]string, 0, len(out.CommonPrefixes)),
		ContinuationToken: out.NextContinuationToken,
		IsTruncated:       out.IsTruncated,
		HasDelimiter:      out.Delimiter != nil,
	}
	if out.Delimiter != nil {
		res.Delimiter = *out.Delimiter
	}
	for _, c := range out.Contents {
		res.Objects = append(res.Objects, provider.ObjectSummary{
			Key:          c.Key,
			Size:         c.Size,
			ETag:         strings.Trim(c.ETag, `"`),
			LastModified: parseTime(time.RFC3339, c.LastModified),
		})
	}
	for _, cp := range out.CommonPrefixes {
		res.CommonPrefixes = append(res.CommonPrefixes, cp.Prefix)
	}
	return res, nil
}

// Head returns object metadata from a HEAD request.
func (p *Provider) Head(ctx context.Context, key string) (*provider.ObjectMeta, error) {
	u := p.ObjectURL(key)
	resp, err := p.reads.R().SetContext(ctx).Head(u)
	if err != nil {
		return nil, p.wrap("Head", key, &provider.NetworkError{Op: http.MethodHead, URL: u, Err: err})
	}
	if !resp.IsSuccess() {
		return nil, p.wrap("Head", key, httpError(http.MethodHead, u, resp.StatusCode(), nil))
	}

	h := resp.Header()
	size, _ := strconv.ParseInt(h.Get("Content-Length"), 10, 64)
	meta := &provider.ObjectMeta{
		ObjectSummary: provider.ObjectSummary{
			Key:          key,
			Size:         size,
			ETag:         strings.Trim(h.Get("ETag"), `"`),
			LastModified: parseTime(http.TimeFormat, h.Get("Last-Modified")),
		},
		ContentType: h.Get("Content-Type"),
		Headers:     h.Clone(),
	}
	for name, values := range h {
		lower := strings.ToLower(name)
		if suffix, ok := strings.CutPrefix(lower, "x-amz-meta-"); ok && len(values) > 0 {
			if meta.Metadata == nil {
				meta.Metadata = make(map[string]string)
			}
			meta.Metadata[suffix] = values[0]
		}
	}
	return meta, nil
}

// GetObject opens the object body. The response is not buffered.
func (p *Provider) GetObject(ctx context.Context, key string) (*provider.Object, error) {
	u := p.ObjectURL(key)
	resp, err := p.reads.R().SetContext(ctx).SetDoNotParseResponse(true).Get(u)
	if err != nil {
		return nil, p.wrap("GetObject", key, &provider.NetworkError{Op: http.MethodGet, URL: u, Err: err})
	}
	body := resp.RawBody()
	if !resp.IsSuccess() {
		excerpt, _ := io.ReadAll(io.LimitReader(body, errorBodyLimit))
		_ = body.Close()
		return nil, p.wrap("GetObject", key, httpError(http.MethodGet, u, resp.StatusCode(), excerpt))
	}

	length := int64(-1)
	if resp.RawResponse != nil {
		length = resp.RawResponse.ContentLength
	}
	return &provider.Object{
		Body:          body,
		ContentLength: length,
		ContentType:   resp.Header().Get("Content-Type"),
	}, nil
}

// PutObject uploads body to key. contentLength of -1 sends a chunked body.
func (p *Provider) PutObject(ctx context.Context, key string, body io.Reader, contentLength int64, contentType string) error {
	u := p.ObjectURL(key)
	req := p.single.R().SetContext(ctx).SetBody(body)
	if contentType != "" {
		req.SetHeader("Content-Type", contentType)
	}
	if contentLength >= 0 {
		req.SetHeader(contentLengthHint, strconv.FormatInt(contentLength, 10))
	}

	resp, err := req.Put(u)
	if err != nil {
		return p.wrap("PutObject", key, &provider.NetworkError{Op: http.MethodPut, URL: u, Err: err})
	}
	if !resp.IsSuccess() {
		return p.wrap("PutObject", key, httpError(http.MethodPut, u, resp.StatusCode(), resp.Body()))
	}
	return nil
}

// DeleteObject issues a DELETE. A 405 answer is reported as
// provider.ErrDeleteDenied through HTTPError.
func (p *Provider) DeleteObject(ctx context.Context, key string) error {
	u := p.ObjectURL(key)
	resp, err := p.single.R().SetContext(ctx).Delete(u)
	if err != nil {
		return p.wrap("DeleteObject", key, &provider.NetworkError{Op: http.MethodDelete, URL: u, Err: err})
	}
	if !resp.IsSuccess() {
		return p.wrap("DeleteObject", key, httpError(http.MethodDelete, u, resp.StatusCode(), resp.Body()))
	}
	return nil
}

// Close releases idle connections.
func (p *Provider) Close() error {
	p.single.GetClient().CloseIdleConnections()
	p.reads.GetClient().CloseIdleConnections()
	return nil
}

func (p *Provider) wrap(op, key string, err error) error {
	return &provider.ProviderError{
		Op:       op,
		Provider: provider.ProviderHTTP,
		Bucket:   p.base,
		Key:      key,
		Err:      err,
	}
}

func httpError(method, u string, status int, body []byte) *provider.HTTPError {
	if len(body) > errorBodyLimit {
		body = body[:errorBodyLimit]
	}
	return &provider.HTTPError{Method: method, URL: u, StatusCode: status, Body: string(body)}
}

func parseTime(layout, v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(layout, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
