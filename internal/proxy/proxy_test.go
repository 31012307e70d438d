package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seenRequest struct {
	Method   string
	Path     string
	RawQuery string
	Host     string
	Header   http.Header
	Body     string
}

type upstream struct {
	*httptest.Server
	mu   sync.Mutex
	seen []seenRequest
}

func newUpstream(t *testing.T, h http.HandlerFunc) *upstream {
	t.Helper()
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		u.mu.Lock()
		u.seen = append(u.seen, seenRequest{
			Method:   r.Method,
			Path:     r.URL.EscapedPath(),
			RawQuery: r.URL.RawQuery,
			Host:     r.Host,
			Header:   r.Header.Clone(),
			Body:     string(body),
		})
		u.mu.Unlock()
		if h != nil {
			h(w, r)
			return
		}
		w.Header().Set("ETag", `"abc"`)
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("payload"))
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) requests() []seenRequest {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]seenRequest(nil), u.seen...)
}

var signingTime = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func newTestProxy(t *testing.T, endpoint string, mutate func(*Config)) *Proxy {
	t.Helper()
	cfg := Config{
		Endpoint:    endpoint,
		Region:      "eu-west-3",
		Bucket:      "media",
		Credentials: credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", ""),
		Metrics:     NewMetrics(),
		Now:         func() time.Time { return signingTime },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := New(cfg)
	require.NoError(t, err)
	return p
}

func serve(p *Proxy, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNew_Validation(t *testing.T) {
	creds := credentials.NewStaticCredentialsProvider("a", "b", "")
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{"no endpoint", Config{Bucket: "b", Region: "r", Credentials: creds}, ErrMissingEndpoint},
		{"no bucket", Config{Endpoint: "http://x", Region: "r", Credentials: creds}, ErrMissingBucket},
		{"no region", Config{Endpoint: "http://x", Bucket: "b", Credentials: creds}, ErrMissingRegion},
		{"no credentials", Config{Endpoint: "http://x", Bucket: "b", Region: "r"}, ErrMissingCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := New(Config{Endpoint: "s3.local", Bucket: "b", Region: "r", Credentials: creds})
	assert.Error(t, err)
}

func TestList_ForwardsQueryAndSigns(t *testing.T) {
	up := newUpstream(t, nil)
	p := newTestProxy(t, up.URL+"/", nil)

	req := httptest.NewRequest(http.MethodGet, "/s3?list-type=2&prefix=photos%2F&delimiter=%2F", nil)
	rec := serve(p, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "payload", rec.Body.String())

	seen := up.requests()
	require.Len(t, seen, 1)
	got := seen[0]
	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "/media", got.Path)
	assert.Equal(t, "list-type=2&prefix=photos%2F&delimiter=%2F", got.RawQuery)
	assert.Equal(t, strings.TrimPrefix(up.URL, "http://"), got.Host)
	assert.Equal(t, "UNSIGNED-PAYLOAD", got.Header.Get("X-Amz-Content-Sha256"))
	assert.Equal(t, "20260301T093000Z", got.Header.Get("X-Amz-Date"))
	auth := got.Header.Get("Authorization")
	assert.True(t, strings.HasPrefix(auth, "AWS4-HMAC-SHA256 "), auth)
	assert.Contains(t, auth, "Credential=AKIDEXAMPLE/20260301/eu-west-3/s3/aws4_request")
	assert.Contains(t, auth, "SignedHeaders=")
}

func TestObject_PathSegmentsEscaped(t *testing.T) {
	up := newUpstream(t, nil)
	p := newTestProxy(t, up.URL, nil)

	rec := serve(p, httptest.NewRequest(http.MethodGet, "/s3/dir//a%20b/c%23d.txt", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	seen := up.requests()
	require.Len(t, seen, 1)
	assert.Equal(t, "/media/dir/a%20b/c%23d.txt", seen[0].Path)
}

func TestObject_OnlySafeRequestHeadersForwarded(t *testing.T) {
	up := newUpstream(t, nil)
	p := newTestProxy(t, up.URL, nil)

	req := httptest.NewRequest(http.MethodGet, "/s3/file.txt", nil)
	req.Header.Set("Range", "bytes=0-3")
	req.Header.Set("If-None-Match", `"old"`)
	req.Header.Set("Cookie", "session=1")
	req.Header.Set("X-Custom", "nope")
	serve(p, req)

	seen := up.requests()
	require.Len(t, seen, 1)
	assert.Equal(t, "bytes=0-3", seen[0].Header.Get("Range"))
	assert.Equal(t, `"old"`, seen[0].Header.Get("If-None-Match"))
	assert.Empty(t, seen[0].Header.Get("Cookie"))
	assert.Empty(t, seen[0].Header.Get("X-Custom"))
}

func TestObject_ResponseHeaders(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"abc"`)
		w.Header().Set("Last-Modified", "Sun, 01 Mar 2026 09:30:00 GMT")
		w.Header().Set("Proxy-Authenticate", "Basic")
		w.Header().Set("X-Amz-Meta-Owner", "ops")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte("part"))
	})
	p := newTestProxy(t, up.URL, nil)

	rec := serve(p, httptest.NewRequest(http.MethodGet, "/s3/file.txt", nil))
	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "part", rec.Body.String())
	assert.Equal(t, `"abc"`, rec.Header().Get("ETag"))
	assert.Equal(t, "ops", rec.Header().Get("X-Amz-Meta-Owner"))
	assert.Empty(t, rec.Header().Get("Proxy-Authenticate"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "ETag, Last-Modified, Content-Length, Content-Type", rec.Header().Get("Access-Control-Expose-Headers"))
}

func TestObject_HeadHasNoBody(t *testing.T) {
	up := newUpstream(t, nil)
	p := newTestProxy(t, up.URL, nil)

	rec := serve(p, httptest.NewRequest(http.MethodHead, "/s3/file.txt", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, http.MethodHead, up.requests()[0].Method)
}

func TestObject_PutForwardsBody(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	p := newTestProxy(t, up.URL, nil)

	req := httptest.NewRequest(http.MethodPut, "/s3/docs/report.pdf", strings.NewReader("%PDF-1.7"))
	req.Header.Set("Content-Type", "application/pdf")
	rec := serve(p, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	seen := up.requests()
	require.Len(t, seen, 1)
	assert.Equal(t, http.MethodPut, seen[0].Method)
	assert.Equal(t, "/media/docs/report.pdf", seen[0].Path)
	assert.Equal(t, "%PDF-1.7", seen[0].Body)
	assert.Equal(t, "application/pdf", seen[0].Header.Get("Content-Type"))
	assert.Equal(t, "8", seen[0].Header.Get("Content-Length"))
}

func TestDelete_RefusedByDefault(t *testing.T) {
	up := newUpstream(t, nil)
	p := newTestProxy(t, up.URL, nil)

	rec := serve(p, httptest.NewRequest(http.MethodDelete, "/s3/file.txt", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Empty(t, up.requests())
}

func TestDelete_Allowed(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	p := newTestProxy(t, up.URL, func(c *Config) { c.AllowDelete = true })

	rec := serve(p, httptest.NewRequest(http.MethodDelete, "/s3/file.txt", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, up.requests(), 1)
	assert.Equal(t, http.MethodDelete, up.requests()[0].Method)

	opt := serve(p, httptest.NewRequest(http.MethodOptions, "/s3/file.txt", nil))
	assert.Contains(t, opt.Header().Get("Access-Control-Allow-Methods"), "DELETE")
}

func TestMethodNotAllowed(t *testing.T) {
	up := newUpstream(t, nil)
	p := newTestProxy(t, up.URL, nil)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/s3"},
		{http.MethodPut, "/s3"},
		{http.MethodPost, "/s3/file.txt"},
		{http.MethodPatch, "/s3/file.txt"},
	} {
		rec := serve(p, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "%s %s", tc.method, tc.path)
	}
	assert.Empty(t, up.requests())
}

func TestOptions_Preflight(t *testing.T) {
	p := newTestProxy(t, "http://127.0.0.1:1", nil)

	for _, path := range []string{"/s3", "/s3/any/key"} {
		rec := serve(p, httptest.NewRequest(http.MethodOptions, path, nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", rec.Header().Get("Vary"))
		assert.Equal(t, "GET, HEAD, PUT, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Range")
	}
}

func TestUpstreamUnreachable(t *testing.T) {
	up := newUpstream(t, nil)
	endpoint := up.URL
	up.Close()
	p := newTestProxy(t, endpoint, nil)

	rec := serve(p, httptest.NewRequest(http.MethodGet, "/s3/file.txt", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "upstream")
}

func TestHealthz(t *testing.T) {
	p := newTestProxy(t, "http://127.0.0.1:1", nil)
	rec := serve(p, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}

func TestMetrics(t *testing.T) {
	up := newUpstream(t, nil)
	p := newTestProxy(t, up.URL, nil)
	h := p.Handler()

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/s3/file.txt", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/s3/file.txt", nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `bucketnav_proxy_requests_total{method="GET",status="200"} 1`)
	assert.Contains(t, body, `bucketnav_proxy_requests_total{method="DELETE",status="405"} 1`)
	assert.Contains(t, body, `bucketnav_proxy_upstream_duration_seconds_count{method="GET"} 1`)
}

func TestMetricsDisabled(t *testing.T) {
	p := newTestProxy(t, "http://127.0.0.1:1", func(c *Config) { c.Metrics = nil })
	rec := serve(p, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaticDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>browser</html>"), 0o644))
	p := newTestProxy(t, "http://127.0.0.1:1", func(c *Config) { c.StaticDir = dir })

	rec := serve(p, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "browser")
}
