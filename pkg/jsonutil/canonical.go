// Package jsonutil canonicalizes JSON documents used as audit snapshots and
// as hash-chain input.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// CanonicalMarshal produces deterministic JSON with sorted object keys and no
// insignificant whitespace. Numbers keep their original textual form.
func CanonicalMarshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}
	return Canonicalize(raw)
}

// Canonicalize rewrites an arbitrary JSON document into canonical form.
func Canonicalize(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonical decode: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("canonical decode: trailing data after document")
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CanonicalSnapshot canonicalizes a snapshot string. Blank input becomes
// "{}" so absent state always has one spelling.
func CanonicalSnapshot(snapshot string) (string, error) {
	if strings.TrimSpace(snapshot) == "" {
		return "{}", nil
	}
	out, err := Canonicalize([]byte(snapshot))
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// IsEmptySnapshot reports whether a snapshot carries no prior state: blank,
// the literal "{}", or any whitespace variant of an empty object.
func IsEmptySnapshot(snapshot string) bool {
	trimmed := strings.TrimSpace(snapshot)
	if trimmed == "" || trimmed == "{}" {
		return true
	}
	canon, err := Canonicalize([]byte(trimmed))
	if err != nil {
		return false
	}
	return string(canon) == "{}"
}

// Pretty indents a JSON document for display. Input that is not valid JSON
// is returned unchanged; blank input renders as "{}".
func Pretty(snapshot string) string {
	trimmed := strings.TrimSpace(snapshot)
	if trimmed == "" {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(trimmed), "", "  "); err != nil {
		return snapshot
	}
	return buf.String()
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyBytes, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(keyBytes)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')

	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')

	case json.Number:
		buf.WriteString(val.String())

	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(raw)
	}
	return nil
}
