// Package remote provides random access to archives served over HTTP.
//
// A Reader turns ReadAt calls into HTTP range requests, so a jar or eStargz
// layer can be opened with the jar or stargz sources without downloading it
// first. Only the bytes of entries actually read cross the network.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

var (
	// ErrRangeUnsupported is returned when the server ignores range requests.
	ErrRangeUnsupported = errors.New("remote: range requests not supported")

	// ErrChanged is returned when the remote object no longer matches the
	// validators captured when the Reader was opened.
	ErrChanged = errors.New("remote: object changed since open")
)

// Reader implements io.ReaderAt over a URL using HTTP range requests.
// Reader is safe for concurrent use.
type Reader struct {
	ctx          context.Context //nolint:containedctx // ReadAt has no context parameter
	url          string
	client       *http.Client
	headers      http.Header
	size         int64
	etag         string
	lastModified string
}

// Option configures a Reader.
type Option func(*Reader)

// WithClient sets the HTTP client used for requests.
func WithClient(c *http.Client) Option {
	return func(r *Reader) {
		r.client = c
	}
}

// WithHeader sets a header sent with every request, such as Authorization.
func WithHeader(key, value string) Option {
	return func(r *Reader) {
		if r.headers == nil {
			r.headers = make(http.Header)
		}
		r.headers.Set(key, value)
	}
}

// Open probes url for its size and validators.
//
// ctx bounds the probe and every later ReadAt. Reads made after the object
// changes on the server fail with ErrChanged instead of mixing versions.
func Open(ctx context.Context, url string, opts ...Option) (*Reader, error) {
	r := &Reader{
		ctx:    ctx,
		url:    url,
		client: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.client == nil {
		r.client = http.DefaultClient
	}
	if err := r.probe(); err != nil {
		return nil, fmt.Errorf("open %s: %w", url, err)
	}
	return r, nil
}

// Size returns the size of the remote object.
func (r *Reader) Size() int64 {
	return r.size
}

// Location returns the URL.
func (r *Reader) Location() string {
	return r.url
}

// Fingerprint identifies the version of the remote object, from its ETag
// or else its Last-Modified time. It is "" if the server sent neither.
func (r *Reader) Fingerprint() string {
	if r.etag != "" {
		return r.etag
	}
	return r.lastModified
}

// ReadAt reads len(p) bytes at off with a single range request.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	if off >= r.size {
		return 0, io.EOF
	}

	want := len(p)
	end := off + int64(want) - 1
	if end >= r.size {
		end = r.size - 1
		want = int(end - off + 1)
	}

	resp, err := r.get(off, end)
	if err != nil {
		return 0, err
	}
	defer drain(resp)

	if err := checkRange(resp); err != nil {
		return 0, err
	}
	n, err := io.ReadFull(resp.Body, p[:want])
	if err != nil {
		return n, err
	}
	if want < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// probe learns the size and validators with a one-byte range request.
func (r *Reader) probe() error {
	resp, err := r.get(0, 0)
	if err != nil {
		return err
	}
	defer drain(resp)

	if err := checkRange(resp); err != nil {
		return err
	}
	size, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return err
	}
	r.size = size
	r.etag = resp.Header.Get("ETag")
	r.lastModified = resp.Header.Get("Last-Modified")
	return nil
}

func (r *Reader) get(first, last int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, err
	}
	for key, values := range r.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	// Transparent gzip would make offsets refer to the encoded stream.
	req.Header.Set("Accept-Encoding", "identity")
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", first, last))
	if r.etag != "" {
		req.Header.Set("If-Match", r.etag)
	} else if r.lastModified != "" {
		req.Header.Set("If-Unmodified-Since", r.lastModified)
	}
	return r.client.Do(req)
}

func checkRange(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusPartialContent:
		return nil
	case http.StatusOK:
		return ErrRangeUnsupported
	case http.StatusPreconditionFailed:
		return ErrChanged
	case http.StatusRequestedRangeNotSatisfiable:
		return io.EOF
	default:
		return fmt.Errorf("remote: range request failed: %s", resp.Status)
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// parseContentRange returns the complete length from "bytes first-last/length".
func parseContentRange(value string) (int64, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(value), "bytes ")
	if !ok {
		return 0, fmt.Errorf("remote: invalid Content-Range %q", value)
	}
	_, total, ok := strings.Cut(rest, "/")
	if !ok || total == "*" {
		return 0, fmt.Errorf("remote: invalid Content-Range %q", value)
	}
	size, err := strconv.ParseInt(total, 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("remote: invalid Content-Range %q", value)
	}
	return size, nil
}
