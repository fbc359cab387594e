package blobstore_test

import (
	"testing"

	"github.com/hupe1980/metastore/blobstore"
	"github.com/hupe1980/metastore/blobstore/blobstoretest"
)

func TestLocalStore_Suite(t *testing.T) {
	blobstoretest.RunSuite(t, blobstore.NewLocalStore(t.TempDir()), blobstoretest.Options{})
}
