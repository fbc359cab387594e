// Package hash provides CRC32-Castagnoli checksums.
//
// The manifest envelope stores a CRC32C of its payload, and the S3 store sends
// the same checksum with every upload so the service verifies the bytes it
// receives.
package hash
