package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// encodeEmbedding packs a float32 vector into a little-endian blob, the
// on-disk form for the memories.embedding and knowledge_cache.embedding
// columns.
func encodeEmbedding(vec []float32) ([]byte, error) {
	if vec == nil {
		return nil, nil
	}
	buf := new(bytes.Buffer)
	buf.Grow(len(vec) * 4)
	for _, f := range vec {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return nil, fmt.Errorf("store: encoding embedding: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// decodeEmbedding unpacks a little-endian float32 blob back into a vector.
func decodeEmbedding(blob []byte) ([]float32, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("store: embedding blob length %d not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	reader := bytes.NewReader(blob)
	for i := range vec {
		if err := binary.Read(reader, binary.LittleEndian, &vec[i]); err != nil {
			return nil, fmt.Errorf("store: decoding embedding: %w", err)
		}
	}
	return vec, nil
}
