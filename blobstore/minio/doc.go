// Package minio provides an ObjectStore implementation using the MinIO client.
//
// It works with MinIO and other S3-compatible systems that honour If-Match and
// If-None-Match on PUT. For systems that do not, wrap the store with
// s3.DDBCommitStore.
//
// # Basic Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := minioblob.NewStore(client, "my-bucket", "metastore/")
package minio
