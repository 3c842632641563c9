// Package blobstore provides the storage backends a cache can load its
// values from.
//
// A Store is a flat namespace of immutable blobs. Loader turns a Store into
// a cache provider: it reads a blob, decompresses it and decodes the value
// with a codec.
//
//	store := blobstore.NewLocalStore("/var/lib/thumbs")
//	loader := blobstore.NewLoader[Thumbnail](store, blobstore.WithCompression(codec.CompressionZSTD))
//	c, _ := lrucache.NewBackground(1024, loader.Load, 8, lrucache.Constant[string](Thumbnail{}))
//
// CachingStore wraps a slow Store (S3, MinIO) with an LRU cache of
// fixed-size blocks so repeated range reads are served from memory.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process map, for tests
//   - LocalStore: local filesystem
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - s3.TableStore: small blobs in a DynamoDB table
//   - minio.Store: MinIO and other S3-compatible services
//   - redis.Store: Redis strings
package blobstore
