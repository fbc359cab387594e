// Package occ implements optimistic concurrency control over a backend.Backend.
//
// Every mutation follows the same protocol:
//
//  1. Read the manifest and its token.
//  2. Apply the mutation to a deep copy.
//  3. If nothing changed, return without writing.
//  4. Bump the version and write conditioned on the token.
//  5. On a version conflict, back off and start over from 1.
//
// Mutation errors are returned as is and never retried. When the retry budget
// is spent the caller gets ErrConcurrentModification.
package occ
