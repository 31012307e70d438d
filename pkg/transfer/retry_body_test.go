package transfer

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readTwice(t *testing.T, r io.ReadSeeker) (string, string) {
	t.Helper()
	first, err := io.ReadAll(r)
	require.NoError(t, err)
	_, err = r.Seek(0, io.SeekStart)
	require.NoError(t, err)
	second, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(first), string(second)
}

func TestSpool_InMemory(t *testing.T) {
	b, err := spool(context.Background(), "k", io.NopCloser(bytes.NewReader([]byte("hello"))), 5, 1024)
	require.NoError(t, err)
	defer func() { require.NoError(t, b.Close()) }()

	_, isFile := b.Reader().(*os.File)
	assert.False(t, isFile)
	assert.EqualValues(t, 5, b.Size())

	a, c := readTwice(t, b.Reader())
	assert.Equal(t, "hello", a)
	assert.Equal(t, "hello", c)
}

func TestSpool_LargeBodyUsesTempFile(t *testing.T) {
	payload := bytes.Repeat([]byte("z"), 512)
	b, err := spool(context.Background(), "k", io.NopCloser(bytes.NewReader(payload)), int64(len(payload)), 16)
	require.NoError(t, err)

	f, ok := b.Reader().(*os.File)
	require.True(t, ok)
	name := f.Name()

	a, _ := readTwice(t, b.Reader())
	assert.Len(t, a, len(payload))

	require.NoError(t, b.Close())
	_, statErr := os.Stat(name)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSpool_UnknownSizeSpools(t *testing.T) {
	b, err := spool(context.Background(), "k", io.NopCloser(bytes.NewReader([]byte("abc"))), -1, 1024)
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	_, isFile := b.Reader().(*os.File)
	assert.True(t, isFile)
	assert.EqualValues(t, 3, b.Size())
}

func TestSpool_SizeMismatch(t *testing.T) {
	_, err := spool(context.Background(), "short.bin", io.NopCloser(bytes.NewReader([]byte("abc"))), 10, 1024)

	var sm *SizeMismatchError
	require.ErrorAs(t, err, &sm)
	assert.Equal(t, "short.bin", sm.Key)
	assert.EqualValues(t, 10, sm.Expected)
	assert.EqualValues(t, 3, sm.Got)
}

func TestSpool_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := spool(ctx, "k", io.NopCloser(bytes.NewReader([]byte("abc"))), 3, 1024)
	assert.ErrorIs(t, err, context.Canceled)
}
