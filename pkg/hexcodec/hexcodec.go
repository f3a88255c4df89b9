// Package hexcodec converts between digest bytes and their lowercase hex text
// form.
package hexcodec

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrOddLength is returned when the hex text has an odd number of characters.
var ErrOddLength = errors.New("hexcodec: odd length")

// ErrInvalidChar is returned when the hex text contains a non-hex character.
var ErrInvalidChar = errors.New("hexcodec: invalid character")

// Encode returns the lowercase hex form of b, two characters per byte.
func Encode(b []byte) string {
	return hex.EncodeToString(b)
}

// Decode parses hex text in either case. It never panics.
func Decode(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, ErrOddLength
	}
	out, err := hex.DecodeString(s)
	if err != nil {
		var invalid hex.InvalidByteError
		if errors.As(err, &invalid) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidChar, byte(invalid))
		}
		return nil, ErrInvalidChar
	}
	return out, nil
}
