// Package testutil builds in-memory archive fixtures for tests.
package testutil

import (
	"archive/tar"
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/containerd/stargz-snapshotter/estargz"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// File is a named entry used to build fixtures.
type File struct {
	Name    string
	Content []byte
}

// Pattern returns n deterministic bytes derived from seed.
// Different seeds produce different content so mix-ups between entries show up.
func Pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i*7) + byte(i>>8)
	}
	return b
}

// BuildZip returns a zip archive holding files, deflate-compressed, in order.
func BuildZip(tb testing.TB, files []File) []byte {
	tb.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     f.Name,
			Method:   zip.Deflate,
			Modified: time.Unix(0, 0).UTC(),
		})
		if err != nil {
			tb.Fatalf("zip create %s: %v", f.Name, err)
		}
		if _, err := w.Write(f.Content); err != nil {
			tb.Fatalf("zip write %s: %v", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// BuildTar returns an uncompressed tar stream holding files, in order.
// Names ending in "/" become directory entries.
func BuildTar(tb testing.TB, files []File) []byte {
	tb.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, f := range files {
		hdr := &tar.Header{
			Name:     f.Name,
			Mode:     0o644,
			Size:     int64(len(f.Content)),
			Typeflag: tar.TypeReg,
			ModTime:  time.Unix(0, 0),
			Format:   tar.FormatPAX,
		}
		if len(f.Name) > 0 && f.Name[len(f.Name)-1] == '/' {
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0o755
			hdr.Size = 0
		}
		if err := tw.WriteHeader(hdr); err != nil {
			tb.Fatalf("tar header %s: %v", f.Name, err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := tw.Write(f.Content); err != nil {
				tb.Fatalf("tar write %s: %v", f.Name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		tb.Fatalf("tar close: %v", err)
	}
	return buf.Bytes()
}

// Zstd compresses data into a single zstd stream.
func Zstd(tb testing.TB, data []byte) []byte {
	tb.Helper()

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		tb.Fatalf("zstd writer: %v", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

// BuildStargz returns an eStargz blob holding files.
func BuildStargz(tb testing.TB, files []File) []byte {
	tb.Helper()

	tarData := BuildTar(tb, files)
	sr := io.NewSectionReader(bytes.NewReader(tarData), 0, int64(len(tarData)))
	rc, err := estargz.Build(sr)
	if err != nil {
		tb.Fatalf("estargz build: %v", err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		tb.Fatalf("estargz copy: %v", err)
	}
	return buf.Bytes()
}
