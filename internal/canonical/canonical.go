// Package canonical produces deterministic JSON for persisted snapshots.
//
// Two snapshots holding the same data always encode to the same bytes, which
// lets the shared storage adapter skip writes whose payload did not change.
// Object keys are sorted by UTF-16 code units (RFC 8785 order) and HTML
// characters are not escaped. String values and keys are emitted exactly as
// given: entity fields are opaque, and an id must read back byte for byte.
// Unlike content hashing formats, floats and null are allowed: snapshots
// carry whatever the application state holds.
//
// Unicode normalization applies to storage keys only, through NormalizeKey.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// Marshal encodes v as canonical JSON.
//
// v is first encoded with encoding/json, so struct tags and json.Marshaler
// implementations are honored, then re-emitted in canonical form.
func Marshal(v any) ([]byte, error) {
	var raw bytes.Buffer
	enc := json.NewEncoder(&raw)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("canonical: encode: %w", err)
	}
	return Canonicalize(raw.Bytes())
}

// Canonicalize rewrites an arbitrary JSON document in canonical form.
func Canonicalize(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canonical: decode: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("canonical: trailing data after JSON value")
	}

	var buf bytes.Buffer
	if err := writeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NormalizeKey returns the NFC form of a storage key. Keys that differ only
// in Unicode composition address the same row.
func NormalizeKey(key string) string {
	return norm.NFC.String(key)
}

func writeValue(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(val.String())
	case string:
		return writeString(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		return writeObject(buf, val)
	default:
		return fmt.Errorf("canonical: unsupported type %T", v)
	}
	return nil
}

func writeObject(buf *bytes.Buffer, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(buf, k); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		buf.WriteByte(':')
		if err := writeValue(buf, obj[k]); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// writeString emits a JSON string. Only control characters, backslash and
// quote are escaped.
func writeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	out := bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'})

	// encoding/json escapes U+2028 and U+2029 for JavaScript embedding.
	// A literal backslash is always encoded as `\\`, so an escape sequence
	// starts wherever an even run of backslashes ends.
	if bytes.Contains(out, []byte(`\u202`)) {
		out = unescapeLineSeparators(out)
	}
	buf.Write(out)
	return nil
}

func unescapeLineSeparators(data []byte) []byte {
	var sb strings.Builder
	sb.Grow(len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != '\\' {
			sb.WriteByte(data[i])
			continue
		}
		if i+5 < len(data) && string(data[i+1:i+5]) == "u202" && (data[i+5] == '8' || data[i+5] == '9') {
			if data[i+5] == '8' {
				sb.WriteString("\u2028")
			} else {
				sb.WriteString("\u2029")
			}
			i += 5
			continue
		}
		// Copy the escape pair verbatim so `\\u2028` stays escaped.
		sb.WriteByte(data[i])
		if i+1 < len(data) {
			sb.WriteByte(data[i+1])
			i++
		}
	}
	return []byte(sb.String())
}

// compareUTF16 orders strings by UTF-16 code units. Go compares strings by
// UTF-8 bytes, which disagrees for characters outside the BMP.
func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}
