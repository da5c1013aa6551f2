// Package fingerprint computes content digests for records so unchanged
// upstream content always yields the same node digest.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Digest returns the SHA256 of the canonical JSON form of data.
func Digest(data map[string]any) string {
	return DigestWithExclusions(data, nil)
}

// DigestWithExclusions digests data while skipping the given dot-notation
// paths. Excluding a parent path excludes everything below it.
func DigestWithExclusions(data map[string]any, exclude map[string]bool) string {
	var b strings.Builder
	canonicalize(&b, data, exclude, "")
	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:])
}

func canonicalize(b *strings.Builder, data any, exclude map[string]bool, path string) {
	switch v := data.(type) {
	case map[string]any:
		canonicalizeMap(b, v, exclude, path)
	case []any:
		b.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				b.WriteByte(',')
			}
			canonicalize(b, item, exclude, path)
		}
		b.WriteByte(']')
	case []string:
		b.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				b.WriteByte(',')
			}
			writeJSON(b, item)
		}
		b.WriteByte(']')
	default:
		writeJSON(b, v)
	}
}

func canonicalizeMap(b *strings.Builder, m map[string]any, exclude map[string]bool, path string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteByte('{')
	first := true
	for _, k := range keys {
		fieldPath := k
		if path != "" {
			fieldPath = path + "." + k
		}
		if excluded(fieldPath, exclude) {
			continue
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		writeJSON(b, k)
		b.WriteByte(':')
		canonicalize(b, m[k], exclude, fieldPath)
	}
	b.WriteByte('}')
}

func writeJSON(b *strings.Builder, v any) {
	out, _ := json.Marshal(v)
	b.Write(out)
}

func excluded(fieldPath string, exclude map[string]bool) bool {
	if len(exclude) == 0 {
		return false
	}
	if exclude[fieldPath] {
		return true
	}
	for e := range exclude {
		if strings.HasPrefix(fieldPath, e+".") {
			return true
		}
	}
	return false
}
