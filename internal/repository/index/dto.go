package index

import (
	"encoding/binary"
	"math"
	"strings"
)

func keyFor(id string) string {
	return keyPrefix + id
}

// entryID strips the storage prefix from a hash key.
func entryID(key string) string {
	return strings.TrimPrefix(key, keyPrefix)
}

// buildHashFields flattens metadata plus the vector blob into HSET fields.
func buildHashFields(vector []float32, metadata map[string]string) map[string]string {
	m := make(map[string]string, 1+len(metadata))
	for k, v := range metadata {
		if k == "vector" {
			continue
		}
		m[k] = v
	}
	m["vector"] = vectorToBytes(vector)
	return m
}

// parseHashFields returns the entry metadata, never the raw vector blob.
func parseHashFields(fields map[string]string) map[string]string {
	m := make(map[string]string, len(fields))
	for k, v := range fields {
		if k == "vector" {
			continue
		}
		m[k] = v
	}
	return m
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
