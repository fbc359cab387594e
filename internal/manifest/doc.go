// Package manifest holds the per-index metadata document and the split
// lifecycle state machine.
//
// # Overview
//
// A Manifest is the complete metadata record of one index: its definition and
// the insertion-ordered catalog of its splits. Mutations are plain methods on a
// Manifest value; callers apply them to a private copy (see Clone) and persist
// the result with a conditional write, so a failed mutation never leaves a
// partially modified document behind.
//
// # State Machine
//
//	Staged ──publish──▶ Published ──replace/mark──▶ MarkedForDeletion ──delete──▶ (removed)
//	   └───────────────────mark──────────────────────────▲
//
// Mutations report whether they changed anything. Marking an already marked
// split and deleting an absent split are no-ops.
//
// # Binary Format
//
// Encoded manifests carry a fixed header followed by the payload:
//
//	Header (16 bytes):
//	  Magic       (4 bytes) - "QWMS"
//	  Version     (2 bytes) - Envelope format version (currently 1)
//	  Compression (1 byte)  - 0 none, 1 LZ4, 2 ZSTD
//	  Reserved    (1 byte)
//	  Checksum    (4 bytes) - CRC32C of payload
//	  Length      (4 bytes) - Payload length in bytes
//
// The payload is a JSON document, optionally compressed. Unknown JSON fields
// are ignored so older readers accept documents written by newer ones. Decode
// also accepts a bare JSON document without header.
package manifest
