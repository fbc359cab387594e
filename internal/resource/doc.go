// Package resource throttles background object store work such as split
// file deletion: a weighted semaphore bounds concurrency and a token bucket
// bounds the call rate.
package resource
