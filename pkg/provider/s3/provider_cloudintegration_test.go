//go:build cloudintegration

package s3_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/bucketnav/pkg/provider"
	"github.com/3leaps/bucketnav/test/cloudtest"
)

func TestProvider_DelimiterListing(t *testing.T) {
	cloudtest.SkipIfUnavailable(t)
	ctx := context.Background()
	bucket := cloudtest.CreateBucket(t, ctx)
	cloudtest.PutObjects(t, ctx, bucket, "photos/a.jpg", "photos/b.jpg", "photos/2024/x.jpg", "readme.md")

	p := cloudtest.Provider(t, bucket)
	res, err := p.List(ctx, provider.ListOptions{Prefix: "photos/", Delimiter: "/"})
	require.NoError(t, err)

	assert.True(t, res.HasDelimiter)
	assert.Equal(t, []string{"photos/2024/"}, res.CommonPrefixes)
	var keys []string
	for _, o := range res.Objects {
		keys = append(keys, o.Key)
	}
	assert.Equal(t, []string{"photos/a.jpg", "photos/b.jpg"}, keys)
}

func TestProvider_ContinuationTokens(t *testing.T) {
	cloudtest.SkipIfUnavailable(t)
	ctx := context.Background()
	bucket := cloudtest.CreateBucket(t, ctx)
	cloudtest.PutObjects(t, ctx, bucket, "d/1", "d/2", "d/3", "d/4", "d/5")

	p := cloudtest.Provider(t, bucket)
	var keys []string
	var token string
	pages := 0
	for {
		res, err := p.List(ctx, provider.ListOptions{Prefix: "d/", MaxKeys: 2, ContinuationToken: token})
		require.NoError(t, err)
		pages++
		for _, o := range res.Objects {
			keys = append(keys, o.Key)
		}
		if res.ContinuationToken == "" {
			break
		}
		token = res.ContinuationToken
	}
	assert.Equal(t, 3, pages)
	assert.Equal(t, []string{"d/1", "d/2", "d/3", "d/4", "d/5"}, keys)
}

func TestProvider_ObjectLifecycle(t *testing.T) {
	cloudtest.SkipIfUnavailable(t)
	ctx := context.Background()
	bucket := cloudtest.CreateBucket(t, ctx)
	p := cloudtest.Provider(t, bucket)

	body := "hello bucket"
	require.NoError(t, p.PutObject(ctx, "notes/hello.txt", strings.NewReader(body), int64(len(body)), "text/plain"))

	meta, err := p.Head(ctx, "notes/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), meta.Size)
	assert.Equal(t, "text/plain", meta.ContentType)

	obj, err := p.GetObject(ctx, "notes/hello.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(obj.Body)
	_ = obj.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, body, string(data))

	require.NoError(t, p.DeleteObject(ctx, "notes/hello.txt"))
	_, err = p.Head(ctx, "notes/hello.txt")
	assert.True(t, provider.IsNotFound(err), "got %v", err)
}
