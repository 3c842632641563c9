// Package s3 provides AWS implementations of the blobstore.Store interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("thumbs/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	loader := blobstore.NewLoader[Thumbnail](store)
//	c, err := lrucache.NewBackground(1024, loader.Load, 8, lrucache.Constant[string](Thumbnail{}))
//
// Small values can live in DynamoDB instead:
//
//	table := s3.NewTableStore(dynamodb.NewFromConfig(cfg), "lrucache-blobs", "thumbs/")
//
// # Features
//
//   - Range reads for partial fetches
//   - Multipart uploads for large blobs
//   - CRC32C checksums on single-part uploads
//   - Conditional writes via PutIfNotExists
//   - Automatic pagination for listing
package s3
