package tarball

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// zstdMagic is the frame magic number that prefixes zstd streams.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// decompressPool manages reusable zstd decoders to reduce allocation overhead.
type decompressPool struct {
	pool             *sync.Pool
	maxDecoderMemory uint64
	lowmem           bool
}

// newDecompressPool creates a new pool for zstd decoders.
// If maxMemory is 0, no memory limit is applied to decoders.
func newDecompressPool(maxMemory uint64, lowmem bool) *decompressPool {
	p := &decompressPool{
		maxDecoderMemory: maxMemory,
		lowmem:           lowmem,
	}
	p.pool = &sync.Pool{
		New: func() any {
			dec, err := p.newDecoder(nil)
			if err != nil {
				return nil
			}
			return dec
		},
	}
	return p
}

// get returns a decoder configured to read from r.
// The caller must call the returned release function when done.
// If an error is returned, no release function needs to be called.
func (p *decompressPool) get(r io.Reader) (*zstd.Decoder, func(), error) {
	dec, ok := p.pool.Get().(*zstd.Decoder)
	if !ok || dec == nil {
		// Pool's New function failed, try directly
		newDec, err := p.newDecoder(r)
		if err != nil {
			return nil, nil, err
		}
		return newDec, newDec.Close, nil
	}

	if err := dec.Reset(r); err != nil {
		dec.Close()
		newDec, err := p.newDecoder(r)
		if err != nil {
			return nil, nil, err
		}
		return newDec, newDec.Close, nil
	}

	return dec, func() {
		_ = dec.Reset(nil) //nolint:errcheck // clearing state before pool return
		p.pool.Put(dec)
	}, nil
}

// newDecoder creates a synchronous zstd decoder with the configured limits.
func (p *decompressPool) newDecoder(r io.Reader) (*zstd.Decoder, error) {
	opts := []zstd.DOption{
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderLowmem(p.lowmem),
	}
	if p.maxDecoderMemory != 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(p.maxDecoderMemory))
	}
	return zstd.NewReader(r, opts...)
}
