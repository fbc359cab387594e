// Package s3 provides Amazon S3 implementations of blobstore.ObjectStore.
//
// Store uses S3 conditional writes for PutIf. DDBCommitStore adds
// compare-and-swap on top of any content store by committing versions to a
// DynamoDB table, for S3-compatible services without conditional writes.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("metastore/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	commits := s3.NewDDBCommitStore(store, dynamodb.NewFromConfig(cfg), "metastore-commits")
package s3
