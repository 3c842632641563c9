package blobstore

import (
	"context"
	"errors"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/lrucache"
)

// BlockKey identifies one cached block of a blob.
type BlockKey struct {
	Name  string
	Block int64
}

// CachingStore wraps a Store and caches reads in fixed-size blocks.
type CachingStore struct {
	inner     Store
	blocks    *lrucache.Cache[BlockKey, []byte]
	blockSize int64
}

// NewCachingStore creates a CachingStore holding at most capacity blocks.
// blockSize defaults to 4KB if <= 0. opts configure the block cache.
func NewCachingStore(inner Store, capacity int, blockSize int64, opts ...lrucache.Option) (*CachingStore, error) {
	if blockSize <= 0 {
		blockSize = 4096
	}
	s := &CachingStore{
		inner:     inner,
		blockSize: blockSize,
	}

	blocks, err := lrucache.New(capacity, s.loadBlock, opts...)
	if err != nil {
		return nil, err
	}
	s.blocks = blocks
	return s, nil
}

// loadBlock is the block cache provider for reads that were not prefilled.
func (s *CachingStore) loadBlock(ctx context.Context, key BlockKey) ([]byte, error) {
	b, err := s.inner.Open(ctx, key.Name)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	buf := make([]byte, s.blockSize)
	n, err := b.ReadAt(ctx, buf, key.Block*s.blockSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

// Open opens a blob whose reads go through the block cache.
func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &CachingBlob{
		inner: b,
		store: s,
		name:  name,
	}, nil
}

// Put invalidates the cached blocks of name and writes through.
func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	s.Invalidate(name)
	return s.inner.Put(ctx, name, data)
}

// Delete invalidates the cached blocks of name and deletes it.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.Invalidate(name)
	return s.inner.Delete(ctx, name)
}

// List is passed through.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

// Invalidate drops every cached block of name.
func (s *CachingStore) Invalidate(name string) {
	for _, key := range s.blocks.Keys() {
		if key.Name == name {
			s.blocks.Reset(key)
		}
	}
}

// CachedBlocks returns the number of resident blocks.
func (s *CachingStore) CachedBlocks() int {
	return s.blocks.Len()
}

// Close releases the block cache. The inner store is not closed.
func (s *CachingStore) Close() error {
	return s.blocks.Close()
}

// CachingBlob wraps a Blob and uses the block cache for reads.
type CachingBlob struct {
	inner Blob
	store *CachingStore
	name  string
}

func (b *CachingBlob) Close() error {
	return b.inner.Close()
}

func (b *CachingBlob) Size() int64 {
	return b.inner.Size()
}

func (b *CachingBlob) key(blk int64) BlockKey {
	return BlockKey{Name: b.name, Block: blk}
}

func (b *CachingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	size := b.Size()
	if off < 0 || off >= size {
		return 0, io.EOF
	}

	bs := b.store.blockSize
	end := min(off+int64(len(p)), size)
	startBlock := off / bs
	endBlock := (end - 1) / bs

	if err := b.fillCache(ctx, startBlock, endBlock); err != nil {
		return 0, err
	}

	total := 0
	for blk := startBlock; blk <= endBlock; blk++ {
		data, err := b.store.blocks.Get(ctx, b.key(blk))
		if err != nil {
			return total, err
		}

		blkStart := blk * bs
		from := max(blkStart, off) - blkStart
		to := min(blkStart+int64(len(data)), end) - blkStart
		if to <= from {
			break
		}
		total += copy(p[blkStart+from-off:], data[from:to])
	}

	if total < len(p) {
		return total, io.EOF
	}
	return total, nil
}

// fillCache loads the blocks in [startBlock, endBlock] that are not cached.
// Contiguous runs of missing blocks are fetched with one read each.
func (b *CachingBlob) fillCache(ctx context.Context, startBlock, endBlock int64) error {
	type run struct{ start, count int64 }
	var runs []run

	for blk := startBlock; blk <= endBlock; blk++ {
		if _, ok := b.store.blocks.TryGet(b.key(blk)); ok {
			continue
		}
		if n := len(runs); n > 0 && runs[n-1].start+runs[n-1].count == blk {
			runs[n-1].count++
			continue
		}
		runs = append(runs, run{start: blk, count: 1})
	}
	if len(runs) == 0 {
		return nil
	}

	bs := b.store.blockSize
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range runs {
		g.Go(func() error {
			buf := make([]byte, r.count*bs)
			n, err := b.inner.ReadAt(gctx, buf, r.start*bs)
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			buf = buf[:n]

			for i := range r.count {
				lo := i * bs
				if lo >= int64(len(buf)) {
					break
				}
				hi := min(lo+bs, int64(len(buf)))
				// Copy so a single block does not pin the whole run buffer.
				block := make([]byte, hi-lo)
				copy(block, buf[lo:hi])
				if err := b.store.blocks.Update(b.key(r.start+i), block); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (b *CachingBlob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	return io.NopCloser(&contextSectionReader{blob: b, ctx: ctx, off: off, limit: off + length}), nil
}

// contextSectionReader wraps CachingBlob to implement io.Reader with context.
type contextSectionReader struct {
	blob  *CachingBlob
	ctx   context.Context
	off   int64
	limit int64
}

func (r *contextSectionReader) Read(p []byte) (n int, err error) {
	if r.off >= r.limit {
		return 0, io.EOF
	}
	if remaining := r.limit - r.off; int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err = r.blob.ReadAt(r.ctx, p, r.off)
	r.off += int64(n)
	if errors.Is(err, io.EOF) && n > 0 {
		err = nil
	}
	return n, err
}
