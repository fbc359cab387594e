// Package config loads the configuration of the metastore binary from a YAML
// file and METASTORE_* environment variables, and builds the object store,
// manifest backend and garbage collector it describes.
//
// Example:
//
//	backend:
//	  type: file
//	  prefix: indexes
//	  compression: zstd
//	store:
//	  type: s3
//	  bucket: my-bucket
//	  prefix: catalog
//	gc:
//	  grace_period: 30m
package config
