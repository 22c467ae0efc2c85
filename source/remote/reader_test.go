package remote_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meigma/archmod"
	"github.com/meigma/archmod/internal/testutil"
	"github.com/meigma/archmod/source/jar"
	"github.com/meigma/archmod/source/remote"
)

func serve(t *testing.T, data []byte, etag *atomic.Value) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if etag != nil {
			w.Header().Set("ETag", etag.Load().(string)) //nolint:forcetypeassert // test only stores strings
		}
		http.ServeContent(w, r, "data", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestReaderReadAt(t *testing.T) {
	data := []byte("hello world")
	server := serve(t, data, nil)

	r, err := remote.Open(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if r.Size() != int64(len(data)) {
		t.Fatalf("Size() = %d, want %d", r.Size(), len(data))
	}
	if r.Location() != server.URL {
		t.Fatalf("Location() = %q, want %q", r.Location(), server.URL)
	}

	buf := make([]byte, 5)
	n, err := r.ReadAt(buf, 6)
	if err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if string(buf[:n]) != "world" {
		t.Fatalf("ReadAt() got %q, want %q", buf[:n], "world")
	}

	edge := make([]byte, 10)
	n, err = r.ReadAt(edge, int64(len(data)-3))
	if err != io.EOF {
		t.Fatalf("ReadAt() error = %v, want io.EOF", err)
	}
	if string(edge[:n]) != "rld" {
		t.Fatalf("ReadAt() got %q, want %q", edge[:n], "rld")
	}

	if _, err := r.ReadAt(buf, int64(len(data))); err != io.EOF {
		t.Fatalf("ReadAt() past end error = %v, want io.EOF", err)
	}
}

func TestReaderRangeUnsupported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("range unsupported"))
	}))
	t.Cleanup(server.Close)

	_, err := remote.Open(context.Background(), server.URL)
	if !errors.Is(err, remote.ErrRangeUnsupported) {
		t.Fatalf("Open() error = %v, want ErrRangeUnsupported", err)
	}
}

func TestReaderDetectsChange(t *testing.T) {
	var etag atomic.Value
	etag.Store(`"v1"`)
	server := serve(t, []byte("version one"), &etag)

	r, err := remote.Open(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if r.Fingerprint() != `"v1"` {
		t.Fatalf("Fingerprint() = %q, want %q", r.Fingerprint(), `"v1"`)
	}

	etag.Store(`"v2"`)
	if _, err := r.ReadAt(make([]byte, 4), 0); !errors.Is(err, remote.ErrChanged) {
		t.Fatalf("ReadAt() error = %v, want ErrChanged", err)
	}
}

func TestReaderSendsHeaders(t *testing.T) {
	data := []byte("secret")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.ServeContent(w, r, "data", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)

	if _, err := remote.Open(context.Background(), server.URL); err == nil {
		t.Fatal("Open() without credentials succeeded")
	}
	if _, err := remote.Open(context.Background(), server.URL, remote.WithHeader("Authorization", "Bearer token")); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
}

func TestReaderCancelledContext(t *testing.T) {
	server := serve(t, []byte("data"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := remote.Open(ctx, server.URL); !errors.Is(err, context.Canceled) {
		t.Fatalf("Open() error = %v, want context.Canceled", err)
	}
}

func TestModuleOverRemoteJar(t *testing.T) {
	files := []testutil.File{
		{Name: "A.class", Content: testutil.Pattern(100, 'A')},
		{Name: "B.class", Content: testutil.Pattern(5000, 'B')},
	}
	var etag atomic.Value
	etag.Store(`"jar-1"`)
	server := serve(t, testutil.BuildZip(t, files), &etag)

	r, err := remote.Open(context.Background(), server.URL+"/app.jar")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	a, err := jar.New(r, r.Size(), r.Location())
	if err != nil {
		t.Fatalf("jar.New() error = %v", err)
	}
	m, err := archmod.Open(a)
	if err != nil {
		t.Fatalf("archmod.Open() error = %v", err)
	}

	for _, f := range files {
		got, err := m.Content(f.Name)
		if err != nil {
			t.Fatalf("Content(%s) error = %v", f.Name, err)
		}
		if !bytes.Equal(got, f.Content) {
			t.Fatalf("Content(%s) mismatch", f.Name)
		}
	}
}
