package jar

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/archmod/internal/testutil"
)

func testFiles() []testutil.File {
	return []testutil.File{
		{Name: "META-INF/"},
		{Name: "META-INF/MANIFEST.MF", Content: []byte("Manifest-Version: 1.0\n")},
		{Name: "A.class", Content: testutil.Pattern(100, 'A')},
		{Name: "pkg/B.class", Content: testutil.Pattern(5000, 'B')},
	}
}

func TestNewEnumeratesRegularFiles(t *testing.T) {
	t.Parallel()

	data := testutil.BuildZip(t, testFiles())
	a, err := New(bytes.NewReader(data), int64(len(data)), "mem://app.jar")
	require.NoError(t, err)
	defer a.Close()

	names := slices.Collect(a.Names())
	assert.Equal(t, []string{"META-INF/MANIFEST.MF", "A.class", "pkg/B.class"}, names)
	assert.Equal(t, 3, a.Len())
	assert.Equal(t, "mem://app.jar", a.Location())
	assert.Empty(t, a.Fingerprint())
}

func TestOpenReturnsDecompressedContent(t *testing.T) {
	t.Parallel()

	files := testFiles()
	data := testutil.BuildZip(t, files)
	a, err := New(bytes.NewReader(data), int64(len(data)), "mem://app.jar")
	require.NoError(t, err)

	for _, f := range files[1:] {
		rc, err := a.Open(f.Name)
		require.NoError(t, err, f.Name)
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, f.Content, got, f.Name)
	}
}

func TestOpenUnknownEntry(t *testing.T) {
	t.Parallel()

	data := testutil.BuildZip(t, testFiles())
	a, err := New(bytes.NewReader(data), int64(len(data)), "mem://app.jar")
	require.NoError(t, err)

	_, err = a.Open("Missing.class")
	require.ErrorIs(t, err, fs.ErrNotExist)

	_, err = a.Open("META-INF/")
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestDuplicateNamesFirstWins(t *testing.T) {
	t.Parallel()

	data := testutil.BuildZip(t, []testutil.File{
		{Name: "A.class", Content: []byte("first")},
		{Name: "A.class", Content: []byte("second")},
	})
	a, err := New(bytes.NewReader(data), int64(len(data)), "dup.jar")
	require.NoError(t, err)

	assert.Equal(t, []string{"A.class"}, slices.Collect(a.Names()))
	rc, err := a.Open("A.class")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))
}

func TestNewRejectsGarbage(t *testing.T) {
	t.Parallel()

	garbage := []byte("definitely not a zip file")
	_, err := New(bytes.NewReader(garbage), int64(len(garbage)), "bad.jar")
	require.Error(t, err)

	_, err = New(nil, 0, "nil.jar")
	require.Error(t, err)
}

func TestOpenFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "app.jar")
	require.NoError(t, os.WriteFile(path, testutil.BuildZip(t, testFiles()), 0o600))

	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, path, a.Location())
	assert.NotEmpty(t, a.Fingerprint())
	assert.Equal(t, 3, a.Len())

	_, err = Open(filepath.Join(dir, "missing.jar"))
	require.Error(t, err)
}

func TestEarlyBreakStopsEnumeration(t *testing.T) {
	t.Parallel()

	data := testutil.BuildZip(t, testFiles())
	a, err := New(bytes.NewReader(data), int64(len(data)), "mem://app.jar")
	require.NoError(t, err)

	var seen int
	for range a.Names() {
		seen++
		break
	}
	assert.Equal(t, 1, seen)
}
