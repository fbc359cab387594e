// Package gcs provides a Google Cloud Storage implementation of
// blobstore.ObjectStore.
//
//	store, err := gcs.New(ctx, "my-bucket", "metastore/", "/path/to/sa.json")
package gcs
