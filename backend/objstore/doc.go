// Package objstore implements backend.Backend on an object store.
//
// Each index is a single blob at <prefix>/<indexID>/metastore.json. The blob
// is rewritten as a whole on every mutation with a conditional put keyed by
// the fingerprint returned by the last read, which makes the write a
// compare-and-swap. Decoded manifests are cached by fingerprint so repeated
// reads of an unchanged index skip decoding.
package objstore
