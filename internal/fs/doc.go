// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: an open file with read/write/sync capabilities
//   - [FileSystem]: filesystem operations used by the local object store
//
// # Implementations
//
//   - [LocalFS]: Production implementation using standard os package
//   - [FaultyFS]: Test utility for fault injection (simulate I/O errors)
//
// Tests can inject [FaultyFS] to simulate a crash while a manifest is written:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("metastore.json", fs.Fault{FailOnRename: true})
//	store := blobstore.NewLocalStoreFS(dir, ffs)
//
// This package does not take context.Context parameters. Local filesystem
// operations are not interruptible at the syscall level.
package fs
