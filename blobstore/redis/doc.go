// Package redis provides a blobstore.Store keeping blobs as Redis strings.
//
// Redis suits small, hot values shared by several cache instances: each
// process keeps its own LRU in front of the shared store.
//
//	client, err := redis.Connect(ctx, redis.Config{ConnectionURL: "redis://localhost:6379/0"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store := redis.NewStore(client, "thumbs:")
//	loader := blobstore.NewLoader[Thumbnail](store)
package redis
