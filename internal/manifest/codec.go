package manifest

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/metastore/internal/hash"
)

const (
	headerSize = 16
	// FormatVersion is the envelope version written by Encode.
	FormatVersion = 1
)

var magic = [4]byte{'Q', 'W', 'M', 'S'}

// Encode serializes m into the binary envelope.
func Encode(m *Manifest, c Compression) ([]byte, error) {
	doc, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	payload, c, err := compress(doc, c)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}

	out := make([]byte, headerSize, headerSize+len(payload))
	copy(out[0:4], magic[:])
	binary.LittleEndian.PutUint16(out[4:6], FormatVersion)
	out[6] = byte(c)
	binary.LittleEndian.PutUint32(out[8:12], hash.CRC32C(payload))
	binary.LittleEndian.PutUint32(out[12:16], uint32(len(payload)))
	return append(out, payload...), nil
}

// Decode parses an encoded manifest. A bare JSON document is accepted as well.
func Decode(data []byte) (*Manifest, error) {
	if trimmed := bytes.TrimLeft(data, " \t\r\n"); len(trimmed) > 0 && trimmed[0] == '{' {
		return decodeJSON(trimmed)
	}

	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: short header (%d bytes)", ErrCorrupt, len(data))
	}
	if !bytes.Equal(data[0:4], magic[:]) {
		return nil, fmt.Errorf("%w: invalid magic %x", ErrCorrupt, data[0:4])
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrIncompatibleVersion, v)
	}
	c := Compression(data[6])
	checksum := binary.LittleEndian.Uint32(data[8:12])
	length := binary.LittleEndian.Uint32(data[12:16])

	payload := data[headerSize:]
	if uint32(len(payload)) != length {
		return nil, fmt.Errorf("%w: payload length %d, header says %d", ErrCorrupt, len(payload), length)
	}
	if hash.CRC32C(payload) != checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	doc, err := decompress(payload, c)
	if err != nil {
		return nil, err
	}
	return decodeJSON(doc)
}

func decodeJSON(doc []byte) (*Manifest, error) {
	m := &Manifest{}
	if err := json.Unmarshal(doc, m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return m, nil
}
