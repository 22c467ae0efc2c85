package testutil

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"iter"
	"sync"
	"sync/atomic"
	"time"
)

// ErrInjected is returned by MemArchive reads that were set up to fail.
var ErrInjected = errors.New("testutil: injected read failure")

// MemArchive is an in-memory archive handle that counts opens.
type MemArchive struct {
	location string
	files    []File

	mu       sync.Mutex
	failing  map[string]bool
	delay    time.Duration
	opens    map[string]int
	total    atomic.Int64
	fprint   string
	chunkCap int
}

// NewMemArchive returns an archive over files at location.
func NewMemArchive(location string, files ...File) *MemArchive {
	return &MemArchive{
		location: location,
		files:    files,
		failing:  make(map[string]bool),
		opens:    make(map[string]int),
	}
}

// Location returns the location given to NewMemArchive.
func (m *MemArchive) Location() string {
	return m.location
}

// Names yields entry names in insertion order.
func (m *MemArchive) Names() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, f := range m.files {
			if !yield(f.Name) {
				return
			}
		}
	}
}

// Open returns a reader over the named entry.
func (m *MemArchive) Open(name string) (io.ReadCloser, error) {
	m.mu.Lock()
	m.opens[name]++
	failing := m.failing[name]
	delay := m.delay
	chunkCap := m.chunkCap
	m.mu.Unlock()
	m.total.Add(1)

	if delay > 0 {
		time.Sleep(delay)
	}
	for _, f := range m.files {
		if f.Name != name {
			continue
		}
		var r io.Reader = bytes.NewReader(f.Content)
		if chunkCap > 0 {
			r = &shortReader{r: r, max: chunkCap}
		}
		if failing {
			half := int64(len(f.Content) / 2)
			r = io.MultiReader(io.LimitReader(bytes.NewReader(f.Content), half), errReader{})
		}
		return io.NopCloser(r), nil
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// FailReads makes reads of name fail halfway through with ErrInjected.
func (m *MemArchive) FailReads(name string, fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing[name] = fail
}

// SetDelay delays every Open by d.
func (m *MemArchive) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// SetShortReads caps every Read at n bytes to exercise chunked reading.
func (m *MemArchive) SetShortReads(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunkCap = n
}

// SetFingerprint sets the value returned by Fingerprint.
func (m *MemArchive) SetFingerprint(f string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fprint = f
}

// Fingerprint returns the value set by SetFingerprint.
func (m *MemArchive) Fingerprint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fprint
}

// Opens returns how many times name was opened.
func (m *MemArchive) Opens(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens[name]
}

// TotalOpens returns the number of Open calls across all names.
func (m *MemArchive) TotalOpens() int64 {
	return m.total.Load()
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, ErrInjected }

type shortReader struct {
	r   io.Reader
	max int
}

func (s *shortReader) Read(p []byte) (int, error) {
	if len(p) > s.max {
		p = p[:s.max]
	}
	return s.r.Read(p)
}
