package tarball

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/archmod/internal/testutil"
)

func testFiles() []testutil.File {
	return []testutil.File{
		{Name: "./classes/"},
		{Name: "./classes/A.class", Content: testutil.Pattern(100, 'A')},
		{Name: "classes/B.class", Content: testutil.Pattern(5000, 'B')},
		{Name: "Empty.class"},
		{Name: "classes/A.class", Content: []byte("shadowed")},
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		compressed bool
	}{
		{name: "tar", compressed: false},
		{name: "tar.zst", compressed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data := testutil.BuildTar(t, testFiles())
			if tt.compressed {
				data = testutil.Zstd(t, data)
			}
			a, err := New(bytes.NewReader(data), int64(len(data)), "mem://classes."+tt.name)
			require.NoError(t, err)

			assert.Equal(t, tt.compressed, a.Compressed())
			assert.Equal(t, []string{"classes/A.class", "classes/B.class", "Empty.class"}, slices.Collect(a.Names()))
			assert.Equal(t, 3, a.Len())

			want := map[string][]byte{
				"classes/A.class": testutil.Pattern(100, 'A'),
				"classes/B.class": testutil.Pattern(5000, 'B'),
				"Empty.class":     {},
			}
			for name, content := range want {
				rc, err := a.Open(name)
				require.NoError(t, err, name)
				got, err := io.ReadAll(rc)
				require.NoError(t, err, name)
				require.NoError(t, rc.Close())
				assert.Equal(t, content, got, name)
			}
		})
	}
}

func TestOpenUnknownEntry(t *testing.T) {
	t.Parallel()

	data := testutil.BuildTar(t, testFiles())
	a, err := New(bytes.NewReader(data), int64(len(data)), "mem://classes.tar")
	require.NoError(t, err)

	_, err = a.Open("classes")
	require.ErrorIs(t, err, fs.ErrNotExist)
	_, err = a.Open("Missing.class")
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestConcurrentOpenReusesDecoders(t *testing.T) {
	t.Parallel()

	data := testutil.Zstd(t, testutil.BuildTar(t, testFiles()))
	a, err := New(bytes.NewReader(data), int64(len(data)), "mem://classes.tar.zst", WithDecoderLowmem(true))
	require.NoError(t, err)

	want := testutil.Pattern(5000, 'B')
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 4 {
				rc, err := a.Open("classes/B.class")
				if !assert.NoError(t, err) {
					return
				}
				got, err := io.ReadAll(rc)
				assert.NoError(t, err)
				assert.NoError(t, rc.Close())
				assert.Equal(t, want, got)
			}
		}()
	}
	wg.Wait()
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	data := testutil.Zstd(t, testutil.BuildTar(t, testFiles()))
	a, err := New(bytes.NewReader(data), int64(len(data)), "mem://classes.tar.zst")
	require.NoError(t, err)

	rc, err := a.Open("classes/A.class")
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.NoError(t, rc.Close())
}

func TestNewRejectsCorruptStream(t *testing.T) {
	t.Parallel()

	data := testutil.Zstd(t, testutil.BuildTar(t, testFiles()))
	truncated := data[:len(data)/2]
	_, err := New(bytes.NewReader(truncated), int64(len(truncated)), "mem://broken.tar.zst")
	require.Error(t, err)

	_, err = New(nil, 0, "nil.tar")
	require.Error(t, err)
}

func TestOpenFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "classes.tar.zst")
	require.NoError(t, os.WriteFile(path, testutil.Zstd(t, testutil.BuildTar(t, testFiles())), 0o600))

	a, err := Open(path, WithMaxDecoderMemory(64<<20))
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, path, a.Location())
	assert.NotEmpty(t, a.Fingerprint())
	assert.True(t, a.Compressed())
}

func TestCleanName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"./a/b.class":  "a/b.class",
		"/abs/c.class": "abs/c.class",
		"a//b/../c":    "a/c",
		".":            "",
		"/":            "",
	}
	for in, want := range tests {
		assert.Equal(t, want, cleanName(in), in)
	}
}
