package file

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/bucketnav/pkg/provider"
)

func newTestProvider(t *testing.T, files map[string]string) (*Provider, string) {
	t.Helper()
	dir := t.TempDir()
	for key, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(key))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	p, err := New(Config{Dir: dir})
	require.NoError(t, err)
	return p, dir
}

func objectKeys(res *provider.ListResult) []string {
	var keys []string
	for _, o := range res.Objects {
		keys = append(keys, o.Key)
	}
	return keys
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrMissingDir)

	_, err = New(Config{Dir: filepath.Join(t.TempDir(), "absent")})
	assert.Error(t, err)

	f := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(f, nil, 0o644))
	_, err = New(Config{Dir: f})
	assert.ErrorContains(t, err, "not a directory")
}

func TestList_Delimiter(t *testing.T) {
	p, _ := newTestProvider(t, map[string]string{
		"photos/a.jpg":      "aa",
		"photos/b.jpg":      "bbb",
		"photos/2024/x.jpg": "x",
		"photos/2024/y.jpg": "y",
		"readme.md":         "hi",
	})

	res, err := p.List(context.Background(), provider.ListOptions{Prefix: "photos/", Delimiter: "/"})
	require.NoError(t, err)
	assert.True(t, res.HasDelimiter)
	assert.Equal(t, "/", res.Delimiter)
	assert.Equal(t, []string{"photos/2024/"}, res.CommonPrefixes)
	assert.Equal(t, []string{"photos/a.jpg", "photos/b.jpg"}, objectKeys(res))
	assert.Equal(t, int64(2), res.Objects[0].Size)
	assert.False(t, res.IsTruncated)

	res, err = p.List(context.Background(), provider.ListOptions{Delimiter: "/"})
	require.NoError(t, err)
	assert.Equal(t, []string{"photos/"}, res.CommonPrefixes)
	assert.Equal(t, []string{"readme.md"}, objectKeys(res))
}

func TestList_RecursiveAndPartialPrefix(t *testing.T) {
	p, _ := newTestProvider(t, map[string]string{
		"logs/app.log":      "1",
		"logs/2024/a.log":   "2",
		"logsarchive/b.log": "3",
		"other/c.log":       "4",
	})

	res, err := p.List(context.Background(), provider.ListOptions{Prefix: "logs"})
	require.NoError(t, err)
	assert.False(t, res.HasDelimiter)
	assert.Equal(t, []string{"logs/2024/a.log", "logs/app.log", "logsarchive/b.log"}, objectKeys(res))

	res, err = p.List(context.Background(), provider.ListOptions{Prefix: "logs/a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"logs/app.log"}, objectKeys(res))
}

func TestList_Pagination(t *testing.T) {
	p, _ := newTestProvider(t, map[string]string{
		"d/1": "", "d/2": "", "d/3": "", "d/sub/x": "", "d/sub/y": "",
	})

	var got []string
	var token string
	pages := 0
	for {
		res, err := p.List(context.Background(), provider.ListOptions{
			Prefix: "d/", Delimiter: "/", MaxKeys: 2, ContinuationToken: token,
		})
		require.NoError(t, err)
		pages++
		got = append(got, objectKeys(res)...)
		got = append(got, res.CommonPrefixes...)
		if res.ContinuationToken == "" {
			break
		}
		assert.True(t, res.IsTruncated)
		token = res.ContinuationToken
	}
	assert.Equal(t, 2, pages)
	assert.Equal(t, []string{"d/1", "d/2", "d/3", "d/sub/"}, got)
}

func TestList_MissingPrefix(t *testing.T) {
	p, _ := newTestProvider(t, nil)
	res, err := p.List(context.Background(), provider.ListOptions{Prefix: "nothing/here/", Delimiter: "/"})
	require.NoError(t, err)
	assert.Empty(t, res.Objects)
	assert.Empty(t, res.CommonPrefixes)
	assert.True(t, res.HasDelimiter)
}

func TestHead(t *testing.T) {
	p, _ := newTestProvider(t, map[string]string{
		"notes/todo.txt": "buy milk",
		"data/x.json":    `{"a":1}`,
	})

	meta, err := p.Head(context.Background(), "notes/todo.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(8), meta.Size)
	assert.True(t, strings.HasPrefix(meta.ContentType, "text/plain"), meta.ContentType)

	meta, err = p.Head(context.Background(), "data/x.json")
	require.NoError(t, err)
	assert.Equal(t, "application/json", meta.ContentType)

	_, err = p.Head(context.Background(), "notes/")
	assert.True(t, provider.IsNotFound(err))
	_, err = p.Head(context.Background(), "notes/missing.txt")
	assert.True(t, provider.IsNotFound(err))
}

func TestGetPutDelete(t *testing.T) {
	p, dir := newTestProvider(t, nil)
	ctx := context.Background()

	require.NoError(t, p.PutObject(ctx, "a/b/c.txt", strings.NewReader("hello"), 5, "text/plain"))

	obj, err := p.GetObject(ctx, "a/b/c.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(obj.Body)
	require.NoError(t, obj.Body.Close())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, int64(5), obj.ContentLength)

	entries, err := os.ReadDir(filepath.Join(dir, "a", "b"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	require.NoError(t, p.DeleteObject(ctx, "a/b/c.txt"))
	_, err = os.Stat(filepath.Join(dir, "a"))
	assert.True(t, os.IsNotExist(err), "empty folders are pruned")
	_, err = os.Stat(dir)
	require.NoError(t, err)

	require.NoError(t, p.DeleteObject(ctx, "a/b/c.txt"), "deleting a missing key succeeds")

	_, err = p.GetObject(ctx, "a/b/c.txt")
	assert.True(t, provider.IsNotFound(err))
}

func TestKeysCannotEscapeRoot(t *testing.T) {
	p, dir := newTestProvider(t, nil)
	ctx := context.Background()

	require.NoError(t, p.PutObject(ctx, "../../escape.txt", strings.NewReader("x"), 1, ""))
	_, err := os.Stat(filepath.Join(dir, "escape.txt"))
	require.NoError(t, err, "traversal is cleaned into the root")

	assert.Error(t, p.PutObject(ctx, "folder/", strings.NewReader("x"), 1, ""))
	assert.Error(t, p.DeleteObject(ctx, "/"))
}

func TestCanceledContext(t *testing.T) {
	p, _ := newTestProvider(t, map[string]string{"a": "1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.List(ctx, provider.ListOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = p.Head(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
}
