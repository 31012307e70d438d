package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/bucketnav/pkg/output"
	"github.com/3leaps/bucketnav/test/memstore"
)

func photoStore() *memstore.Store {
	return memstore.New().
		Seed("photos/a.jpg", []byte("jpeg-a"), "image/jpeg").
		Seed("photos/b.jpg", []byte("jpeg-bb"), "image/jpeg").
		Seed("photos/notes.txt", []byte("hello"), "text/plain").
		Seed("photos/2024/x.jpg", []byte("jpeg-x"), "image/jpeg").
		Seed("_trash/2025-01-01T00-00-00-000Z/old.jpg", []byte("old"), "image/jpeg").
		Seed("readme.md", []byte("# hi"), "text/markdown")
}

func TestLs_Table(t *testing.T) {
	useStore(t, photoStore())

	res := run(t, "ls", "photos/")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "/ > photos")
	assert.Contains(t, res.stdout, "2024/")
	assert.Contains(t, res.stdout, "a.jpg")
	assert.Contains(t, res.stdout, "notes.txt")
	assert.Less(t, strings.Index(res.stdout, "2024/"), strings.Index(res.stdout, "a.jpg"), "folders first")
}

func TestLs_RootHidesTrash(t *testing.T) {
	useStore(t, photoStore())

	res := run(t, "ls")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "photos/")
	assert.Contains(t, res.stdout, "readme.md")
	assert.NotContains(t, res.stdout, "_trash")
}

func TestLs_JSONLPaging(t *testing.T) {
	store := memstore.New().SeedKeys("d/1", "d/2", "d/3", "d/4", "d/5")
	useStore(t, store)
	setConfig(t, "bucket.page_size", 2)

	res := run(t, "ls", "d/", "--page", "2", "--format", "jsonl")
	require.NoError(t, res.err)

	recs := parseRecords(t, res.stdout)
	entries := recordsOfType(recs, output.TypeEntry)
	require.Len(t, entries, 2)
	assert.Equal(t, "d/3", decode[output.EntryRecord](t, entries[0]).Key)
	assert.Equal(t, "d/4", decode[output.EntryRecord](t, entries[1]).Key)

	pages := recordsOfType(recs, output.TypePage)
	require.Len(t, pages, 1)
	page := decode[output.PageRecord](t, pages[0])
	assert.Equal(t, 2, page.Number)
	assert.True(t, page.HasNext)
	assert.True(t, page.HasPrevious)
}

func TestLs_All(t *testing.T) {
	useStore(t, memstore.New().SeedKeys("d/1", "d/2", "d/3", "d/4", "d/5"))
	setConfig(t, "bucket.page_size", 2)

	res := run(t, "ls", "d/", "--all", "--format", "jsonl")
	require.NoError(t, res.err)
	recs := parseRecords(t, res.stdout)
	assert.Len(t, recordsOfType(recs, output.TypeEntry), 5)
	assert.Len(t, recordsOfType(recs, output.TypePage), 3)
}

func TestLs_SortBySizeDesc(t *testing.T) {
	useStore(t, photoStore())

	res := run(t, "ls", "photos/", "--sort", "size-desc", "--format", "jsonl")
	require.NoError(t, res.err)
	entries := recordsOfType(parseRecords(t, res.stdout), output.TypeEntry)
	require.Len(t, entries, 4)
	assert.Equal(t, "2024/", decode[output.EntryRecord](t, entries[0]).Name)
	assert.Equal(t, "b.jpg", decode[output.EntryRecord](t, entries[1]).Name)
}

func TestLs_InvalidArgs(t *testing.T) {
	useStore(t, photoStore())

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad sort", []string{"ls", "--sort", "color"}, "Invalid --sort"},
		{"bad page", []string{"ls", "--page", "0"}, "Invalid --page"},
		{"bad format", []string{"ls", "--format", "xml"}, "Invalid --format"},
		{"bad prefix", []string{"ls", "a//b"}, "Invalid prefix"},
		{"page out of range", []string{"ls", "photos/", "--page", "9"}, "Page out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, tt.args...)
			require.Error(t, res.err)
			assert.Contains(t, res.err.Error(), tt.want)
		})
	}
}

func TestLs_ListingFailure(t *testing.T) {
	store := photoStore()
	store.OmitDelimiter = true
	useStore(t, store)

	res := run(t, "ls", "photos/")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "Failed to list prefix")
}

func TestBrowse_Session(t *testing.T) {
	useStore(t, memstore.New().SeedKeys("d/1", "d/2", "d/3", "d/sub/x"))
	setConfig(t, "bucket.page_size", 2)

	res := runWithInput(t, "n\np\ncd sub\nup\nsort name-desc\nbogus\nq\n", "browse", "d/")
	require.NoError(t, res.err)
	s := res.stdout
	assert.Contains(t, s, "(page 1)")
	assert.Contains(t, s, "(page 2)")
	assert.Contains(t, s, "/ > d > sub")
	assert.Contains(t, s, `unknown command "bogus"`)
}

func TestFind_Selector(t *testing.T) {
	useStore(t, photoStore())

	res := run(t, "find", "photos/", "--include", "glob:**/*.jpg", "--quiet")
	require.NoError(t, res.err)

	recs := parseRecords(t, res.stdout)
	objects := recordsOfType(recs, output.TypeObject)
	var keys []string
	for _, r := range objects {
		keys = append(keys, decode[output.ObjectRecord](t, r).Key)
	}
	assert.ElementsMatch(t, []string{"photos/a.jpg", "photos/b.jpg", "photos/2024/x.jpg"}, keys)

	summaries := recordsOfType(recs, output.TypeSummary)
	require.Len(t, summaries, 1)
	sum := decode[output.SummaryRecord](t, summaries[0])
	assert.Equal(t, int64(4), sum.ObjectsFound)
	assert.Equal(t, int64(3), sum.ObjectsMatched)
}

func TestFind_WholeBucketSkipsTrash(t *testing.T) {
	useStore(t, photoStore())

	res := run(t, "find", "--min-size", "5")
	require.NoError(t, res.err)
	for _, r := range recordsOfType(parseRecords(t, res.stdout), output.TypeObject) {
		obj := decode[output.ObjectRecord](t, r)
		assert.False(t, strings.HasPrefix(obj.Key, "_trash/"), obj.Key)
		assert.GreaterOrEqual(t, obj.Size, int64(5))
	}
}

func TestFind_InvalidFilter(t *testing.T) {
	useStore(t, photoStore())
	res := run(t, "find", "--min-size", "huge")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "Invalid filter")
}

func TestStat_Formats(t *testing.T) {
	useStore(t, photoStore())

	res := run(t, "stat", "photos/a.jpg")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "photos/a.jpg")
	assert.Contains(t, res.stdout, "image/jpeg")

	res = run(t, "stat", "photos/a.jpg", "--format", "yaml")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "key: photos/a.jpg")
	assert.Contains(t, res.stdout, "content_type: image/jpeg")
	assert.Contains(t, res.stdout, "size: 6")

	res = run(t, "stat", "photos/a.jpg", "--format", "jsonl")
	require.NoError(t, res.err)
	objects := recordsOfType(parseRecords(t, res.stdout), output.TypeObject)
	require.Len(t, objects, 1)
	assert.Equal(t, "http://localhost:8088/s3/photos/a.jpg", decode[output.ObjectRecord](t, objects[0]).URL)
}

func TestStat_NotFound(t *testing.T) {
	useStore(t, photoStore())
	res := run(t, "stat", "photos/missing.jpg")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "Failed to read object metadata")
}

func TestCp(t *testing.T) {
	store := photoStore()
	useStore(t, store)

	res := run(t, "cp", "photos/a.jpg", "archive/")
	require.NoError(t, res.err)

	data, ok := store.Data("archive/a.jpg")
	require.True(t, ok)
	assert.Equal(t, "jpeg-a", string(data))
	assert.Equal(t, "image/jpeg", store.ContentType("archive/a.jpg"))
	assert.True(t, store.Has("photos/a.jpg"))

	muts := recordsOfType(parseRecords(t, res.stdout), output.TypeMutation)
	require.Len(t, muts, 1)
	m := decode[output.MutationRecord](t, muts[0])
	assert.Equal(t, output.OpCopy, m.Op)
	assert.Equal(t, output.OutcomeDone, m.Outcome)
}

func TestCp_MissingSource(t *testing.T) {
	useStore(t, photoStore())
	res := run(t, "cp", "photos/nope.jpg", "x.jpg")
	require.Error(t, res.err)

	recs := parseRecords(t, res.stdout)
	errs := recordsOfType(recs, output.TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, output.ErrCodeNotFound, decode[output.ErrorRecord](t, errs[0]).Code)
	muts := recordsOfType(recs, output.TypeMutation)
	require.Len(t, muts, 1)
	assert.Equal(t, output.OutcomeFailed, decode[output.MutationRecord](t, muts[0]).Outcome)
}

func TestMv_Object(t *testing.T) {
	store := photoStore()
	useStore(t, store)

	res := run(t, "mv", "photos/a.jpg", "  beach.jpg ")
	require.NoError(t, res.err)
	assert.True(t, store.Has("photos/beach.jpg"))
	assert.False(t, store.Has("photos/a.jpg"))
}

func TestMv_ObjectUnchangedName(t *testing.T) {
	useStore(t, photoStore())
	res := run(t, "mv", "photos/a.jpg", "a.jpg")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "Invalid new name")
}

func TestMv_FolderDeleteDenied(t *testing.T) {
	store := photoStore()
	store.DenyDelete = func(string) bool { return true }
	useStore(t, store)

	res := run(t, "mv", "photos/2024/", "holidays/")
	require.NoError(t, res.err)

	assert.True(t, store.Has("photos/holidays/x.jpg"))
	assert.True(t, store.Has("photos/2024/x.jpg"), "original stays when deletes are refused")

	var trashed []string
	for _, k := range store.KeysWithPrefix("_trash/") {
		if strings.HasSuffix(k, "/photos/2024/x.jpg") {
			trashed = append(trashed, k)
		}
	}
	assert.Len(t, trashed, 1)

	muts := recordsOfType(parseRecords(t, res.stdout), output.TypeMutation)
	require.Len(t, muts, 1)
	m := decode[output.MutationRecord](t, muts[0])
	assert.Equal(t, output.OpRename, m.Op)
	assert.Equal(t, output.OutcomeTrashed, m.Outcome)
	assert.Equal(t, 1, m.Objects)
}

func TestRm_Object(t *testing.T) {
	store := photoStore()
	useStore(t, store)

	res := run(t, "rm", "photos/notes.txt")
	require.NoError(t, res.err)
	assert.False(t, store.Has("photos/notes.txt"))
}

func TestRm_ObjectDeniedGoesToTrash(t *testing.T) {
	store := photoStore()
	store.DenyDelete = func(string) bool { return true }
	useStore(t, store)

	res := run(t, "rm", "photos/notes.txt")
	require.NoError(t, res.err)
	assert.True(t, store.Has("photos/notes.txt"))

	muts := recordsOfType(parseRecords(t, res.stdout), output.TypeMutation)
	require.Len(t, muts, 1)
	m := decode[output.MutationRecord](t, muts[0])
	assert.Equal(t, output.OutcomeTrashed, m.Outcome)
	assert.True(t, strings.HasPrefix(m.TrashKey, "_trash/"))
	assert.True(t, strings.HasSuffix(m.TrashKey, "/photos/notes.txt"))
	assert.True(t, store.Has(m.TrashKey))
}

func TestRm_Prefix(t *testing.T) {
	store := photoStore()
	useStore(t, store)

	res := run(t, "rm", "photos/")
	require.NoError(t, res.err)
	assert.Empty(t, store.KeysWithPrefix("photos/"))
	assert.True(t, store.Has("readme.md"))
}

func TestRm_PrefixTrashOnly(t *testing.T) {
	store := photoStore()
	useStore(t, store)

	res := run(t, "rm", "photos/2024/", "--trash")
	require.NoError(t, res.err)
	assert.True(t, store.Has("photos/2024/x.jpg"))
	assert.Zero(t, store.DeleteCalls())

	muts := recordsOfType(parseRecords(t, res.stdout), output.TypeMutation)
	require.Len(t, muts, 1)
	m := decode[output.MutationRecord](t, muts[0])
	assert.Equal(t, output.OpTrash, m.Op)
	assert.True(t, store.Has(m.TrashKey+"photos/2024/x.jpg"))
}

func TestRm_RefusesRoot(t *testing.T) {
	store := photoStore()
	useStore(t, store)

	res := run(t, "rm", "/")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "Refusing to delete the root")
	assert.Zero(t, store.DeleteCalls())
}

func TestUpload(t *testing.T) {
	store := memstore.New()
	useStore(t, store)

	dir := filepath.Join(t.TempDir(), "holidays")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "day1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "day1", "note.txt"), []byte("sunny"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plan.json"), []byte(`{"a":1}`), 0o644))

	res := run(t, "upload", dir, "--to", "photos/")
	require.NoError(t, res.err)

	assert.True(t, store.Has("photos/holidays/day1/note.txt"))
	assert.True(t, store.Has("photos/holidays/plan.json"))

	muts := recordsOfType(parseRecords(t, res.stdout), output.TypeMutation)
	require.Len(t, muts, 3)
	last := decode[output.MutationRecord](t, muts[2])
	assert.Equal(t, output.OutcomeDone, last.Outcome)
	assert.Equal(t, 2, last.Objects)
	assert.Equal(t, int64(12), last.Bytes)
}

func TestUpload_MissingPath(t *testing.T) {
	useStore(t, memstore.New())
	res := run(t, "upload", filepath.Join(t.TempDir(), "absent"), "--to", "x/")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "Failed to collect upload files")
}

func TestDownloadAll(t *testing.T) {
	useStore(t, photoStore())
	dest := filepath.Join(t.TempDir(), "out.zip")

	res := run(t, "download-all", "photos/", "--output", dest)
	require.NoError(t, res.err)

	zr, err := zip.OpenReader(dest)
	require.NoError(t, err)
	defer func() { _ = zr.Close() }()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
		assert.Equal(t, zip.Store, f.Method)
	}
	assert.Equal(t, []string{"a.jpg", "b.jpg", "notes.txt"}, names)

	recs := parseRecords(t, res.stderr)
	progress := recordsOfType(recs, output.TypeProgress)
	require.NotEmpty(t, progress)
	assert.InDelta(t, 1.0, decode[output.ProgressRecord](t, progress[len(progress)-1]).Fraction, 1e-9)
	require.Len(t, recordsOfType(recs, output.TypeMutation), 1)
}

func TestDownloadAll_DefaultNameAtRoot(t *testing.T) {
	useStore(t, photoStore())
	setConfig(t, "bucket.root_prefix", "photos/")
	dir := t.TempDir()
	t.Chdir(dir)

	res := run(t, "download-all", "/", "--quiet")
	require.NoError(t, res.err)

	zr, err := zip.OpenReader(filepath.Join(dir, "archive.zip"))
	require.NoError(t, err)
	defer func() { _ = zr.Close() }()
	assert.Len(t, zr.File, 3)
	_, err = os.Stat(filepath.Join(dir, "photos.zip"))
	assert.True(t, os.IsNotExist(err), "root archive is not named after the root prefix")
}

func TestDownloadAll_Unavailable(t *testing.T) {
	useStore(t, photoStore())

	res := run(t, "download-all", "photos/2024/", "--output", filepath.Join(t.TempDir(), "x.zip"))
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "Download-all unavailable")

	setConfig(t, "archive.allow_download_all", false)
	res = run(t, "download-all", "photos/", "--output", filepath.Join(t.TempDir(), "y.zip"))
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "Download-all unavailable")
}

func TestFileBackend_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs", "a.txt"), []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs", "b.txt"), []byte("bravo"), 0o644))

	res := run(t, "--backend", "file", "--dir", dir, "ls", "docs/", "--format", "jsonl")
	require.NoError(t, res.err)
	entries := recordsOfType(parseRecords(t, res.stdout), output.TypeEntry)
	require.Len(t, entries, 2)
	assert.Equal(t, "docs/a.txt", decode[output.EntryRecord](t, entries[0]).Key)

	res = run(t, "--backend", "file", "--dir", dir, "mv", "docs/", "papers")
	require.NoError(t, res.err)
	_, err := os.Stat(filepath.Join(dir, "papers", "b.txt"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "docs"))
	assert.True(t, os.IsNotExist(err), "old folder is gone once its files are deleted")
}
