// Package proxy is a signing reverse proxy in front of an S3-compatible
// bucket. Browsers and the http backend talk to it unsigned; it re-signs
// each request with SigV4 and streams the upstream response back.
//
// Only listing, reads and uploads are forwarded. DELETE is refused with
// 405 unless explicitly allowed, which is what drives the trash fallback
// in the mutation layer.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"go.uber.org/zap"
)

const (
	unsignedPayload = "UNSIGNED-PAYLOAD"
	signingService  = "s3"
)

// forwardedHeaders are the only request headers copied upstream.
var forwardedHeaders = []string{"Range", "If-None-Match", "If-Modified-Since", "Accept", "User-Agent", "Content-Type"}

var hopByHop = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailers":            true,
	"transfer-encoding":   true,
	"upgrade":             true,
}

// Config configures a Proxy.
type Config struct {
	// Endpoint is the upstream base URL, e.g. https://s3.eu-west-3.amazonaws.com.
	Endpoint string
	Region   string
	Bucket   string

	// Credentials signs every upstream request. It is wrapped in a cache.
	Credentials aws.CredentialsProvider

	// AllowDelete forwards DELETE on objects instead of refusing it.
	AllowDelete bool

	// StaticDir, when set, is served at "/".
	StaticDir string

	// Client defaults to an http.Client without timeout; uploads and
	// downloads may be long.
	Client *http.Client

	// Metrics is optional.
	Metrics *Metrics

	Logger *zap.Logger

	// Now defaults to time.Now; signatures use its UTC value.
	Now func() time.Time
}

// Proxy forwards bucket requests upstream with SigV4 signatures.
type Proxy struct {
	cfg     Config
	origin  *url.URL
	client  *http.Client
	signer  *v4.Signer
	creds   aws.CredentialsProvider
	logger  *zap.Logger
	metrics *Metrics
	now     func() time.Time
}

// Errors returned by New.
var (
	ErrMissingEndpoint    = errors.New("proxy: endpoint is required")
	ErrMissingBucket      = errors.New("proxy: bucket is required")
	ErrMissingRegion      = errors.New("proxy: region is required")
	ErrMissingCredentials = errors.New("proxy: credentials are required")
)

// New validates cfg and returns a Proxy.
func New(cfg Config) (*Proxy, error) {
	switch {
	case cfg.Endpoint == "":
		return nil, ErrMissingEndpoint
	case cfg.Bucket == "":
		return nil, ErrMissingBucket
	case cfg.Region == "":
		return nil, ErrMissingRegion
	case cfg.Credentials == nil:
		return nil, ErrMissingCredentials
	}
	origin, err := url.Parse(strings.TrimRight(cfg.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("proxy: invalid endpoint: %w", err)
	}
	if origin.Scheme != "http" && origin.Scheme != "https" || origin.Host == "" {
		return nil, fmt.Errorf("proxy: invalid endpoint %q", cfg.Endpoint)
	}

	p := &Proxy{
		cfg:     cfg,
		origin:  origin,
		client:  cfg.Client,
		signer:  v4.NewSigner(),
		creds:   aws.NewCredentialsCache(cfg.Credentials),
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		now:     cfg.Now,
	}
	if p.client == nil {
		p.client = &http.Client{Transport: &http.Transport{Proxy: http.ProxyFromEnvironment}}
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// bucketPath returns the unescaped and escaped upstream path for the bucket.
func (p *Proxy) bucketPath() (string, string) {
	return "/" + p.cfg.Bucket, "/" + url.PathEscape(p.cfg.Bucket)
}

// objectPath maps /s3/<key> to the upstream object path. Empty segments are
// dropped and every remaining segment is escaped on its own.
func (p *Proxy) objectPath(r *http.Request) (string, string, error) {
	keyPart := strings.TrimPrefix(r.URL.EscapedPath(), "/s3/")
	keyPart = strings.TrimLeft(keyPart, "/")
	unescaped, err := url.PathUnescape(keyPart)
	if err != nil {
		return "", "", err
	}

	var clean, escaped []string
	for _, seg := range strings.Split(unescaped, "/") {
		if seg == "" {
			continue
		}
		clean = append(clean, seg)
		escaped = append(escaped, url.PathEscape(seg))
	}

	path, raw := p.bucketPath()
	if len(clean) > 0 {
		path += "/" + strings.Join(clean, "/")
		raw += "/" + strings.Join(escaped, "/")
	}
	return path, raw, nil
}

func (p *Proxy) handleList(w http.ResponseWriter, r *http.Request) {
	path, raw := p.bucketPath()
	p.forward(w, r, path, raw, nil, 0)
}

func (p *Proxy) handleObject(w http.ResponseWriter, r *http.Request) {
	path, raw, err := p.objectPath(r)
	if err != nil {
		http.Error(w, "bad path", http.StatusBadRequest)
		return
	}
	if r.Method == http.MethodPut {
		p.forward(w, r, path, raw, r.Body, r.ContentLength)
		return
	}
	p.forward(w, r, path, raw, nil, 0)
}

func (p *Proxy) forward(w http.ResponseWriter, r *http.Request, path, rawPath string, body io.Reader, contentLength int64) {
	ctx := r.Context()
	req, err := p.upstreamRequest(ctx, r, path, rawPath, body, contentLength)
	if err != nil {
		p.logger.Error("Failed to build upstream request", zap.String("path", rawPath), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	p.logger.Debug("Forwarding request",
		zap.String("method", r.Method),
		zap.String("path", rawPath),
		zap.String("query", r.URL.RawQuery),
	)

	start := time.Now()
	resp, err := p.client.Do(req)
	p.metrics.observeUpstream(r.Method, time.Since(start))
	if err != nil {
		p.logger.Warn("Upstream request failed", zap.String("method", r.Method), zap.String("path", rawPath), zap.Error(err))
		http.Error(w, fmt.Sprintf("upstream: %v", err), http.StatusBadGateway)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	for k := range w.Header() {
		w.Header().Del(k)
	}
	copyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	if r.Method != http.MethodHead {
		if _, err := io.Copy(w, resp.Body); err != nil {
			p.logger.Debug("Response copy interrupted", zap.String("path", rawPath), zap.Error(err))
		}
	}
}

func (p *Proxy) upstreamRequest(ctx context.Context, r *http.Request, path, rawPath string, body io.Reader, contentLength int64) (*http.Request, error) {
	u := *p.origin
	u.Path = path
	u.RawPath = rawPath
	u.RawQuery = r.URL.RawQuery

	req, err := http.NewRequestWithContext(ctx, r.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Host = p.origin.Host

	for _, h := range forwardedHeaders {
		if v := r.Header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}
	if body != nil && contentLength >= 0 {
		req.ContentLength = contentLength
		req.Header.Set("Content-Length", strconv.FormatInt(contentLength, 10))
	}
	req.Header.Set("X-Amz-Content-Sha256", unsignedPayload)

	creds, err := p.creds.Retrieve(ctx)
	if err != nil {
		return nil, fmt.Errorf("retrieve credentials: %w", err)
	}
	err = p.signer.SignHTTP(ctx, creds, req, unsignedPayload, signingService, p.cfg.Region, p.now().UTC(),
		func(o *v4.SignerOptions) { o.DisableURIPathEscaping = true },
	)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return req, nil
}

func copyResponseHeaders(dst, src http.Header) {
	for k, vv := range src {
		if hopByHop[strings.ToLower(k)] {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	dst.Set("Access-Control-Allow-Origin", "*")
	dst.Set("Access-Control-Expose-Headers", "ETag, Last-Modified, Content-Length, Content-Type")
}
