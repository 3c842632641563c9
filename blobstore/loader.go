package blobstore

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/hupe1980/lrucache/codec"
	"github.com/hupe1980/lrucache/resource"
)

type loaderOptions struct {
	codec       codec.Codec
	compression codec.Compression
	limits      *resource.Controller
	prefix      string
}

// LoaderOption configures a Loader.
type LoaderOption func(*loaderOptions)

// WithCodec sets the value codec. Defaults to codec.Default.
func WithCodec(c codec.Codec) LoaderOption {
	return func(o *loaderOptions) {
		o.codec = c
	}
}

// WithCompression sets the compression used by Save. Load detects the
// compression of each blob from its frame header.
func WithCompression(ct codec.Compression) LoaderOption {
	return func(o *loaderOptions) {
		o.compression = ct
	}
}

// WithIOLimits throttles blob reads by the controller's IO rate.
func WithIOLimits(rc *resource.Controller) LoaderOption {
	return func(o *loaderOptions) {
		o.limits = rc
	}
}

// WithPrefix maps key k to blob prefix/k.
func WithPrefix(prefix string) LoaderOption {
	return func(o *loaderOptions) {
		o.prefix = prefix
	}
}

// Loader reads values of type V from a Store. Its Load method has the shape
// of a cache provider keyed by blob name.
type Loader[V any] struct {
	store Store
	opts  loaderOptions
}

// NewLoader creates a loader over store.
func NewLoader[V any](store Store, opts ...LoaderOption) *Loader[V] {
	o := loaderOptions{codec: codec.Default}
	for _, fn := range opts {
		fn(&o)
	}
	if o.codec == nil {
		o.codec = codec.Default
	}
	return &Loader[V]{store: store, opts: o}
}

func (l *Loader[V]) name(key string) string {
	if l.opts.prefix == "" {
		return key
	}
	return path.Join(l.opts.prefix, key)
}

// Load reads and decodes the blob for key. A missing blob yields an error
// matching ErrNotFound.
func (l *Loader[V]) Load(ctx context.Context, key string) (V, error) {
	var v V

	name := l.name(key)
	b, err := l.store.Open(ctx, name)
	if err != nil {
		return v, fmt.Errorf("open %s: %w", name, err)
	}
	defer b.Close()

	data, err := l.read(ctx, b)
	if err != nil {
		return v, fmt.Errorf("read %s: %w", name, err)
	}

	if err := codec.Decode(l.opts.codec, data, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", name, err)
	}
	return v, nil
}

func (l *Loader[V]) read(ctx context.Context, b Blob) ([]byte, error) {
	if b.Size() == 0 {
		return nil, nil
	}
	r, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(resource.NewRateLimitedReader(ctx, r, l.opts.limits))
}

// Save encodes v and writes it under key.
func (l *Loader[V]) Save(ctx context.Context, key string, v V) error {
	frame, err := codec.Encode(l.opts.codec, l.opts.compression, v)
	if err != nil {
		return err
	}
	return l.store.Put(ctx, l.name(key), frame)
}

// Delete removes the blob for key.
func (l *Loader[V]) Delete(ctx context.Context, key string) error {
	return l.store.Delete(ctx, l.name(key))
}
