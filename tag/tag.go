// Package tag converts between the public "#ABC123" form of clan and player
// tags and the (high, low) integer pair that identifies them on the wire.
//
// A tag's numeric value is low<<8 | high written in base 14 over the
// alphabet "0289PYLQGRJCUV". Decoding is case-insensitive and reads the
// letter O as the digit 0, since the game never issues tags containing O.
package tag

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/cocapi/client-go/internal/apierrors"
)

// Alphabet lists the tag symbols in digit order.
const Alphabet = "0289PYLQGRJCUV"

const (
	base = uint64(len(Alphabet))

	// MaxLength is the longest tag body (without '#') Decode accepts.
	MaxLength = 13

	lowMask = 0x7FFFFFFF
)

// Invalid is the sentinel pair that never resolves to a clan or player.
var Invalid = Tag{High: -1, Low: -1}

// Tag is the integer identity behind a tag string.
type Tag struct {
	High int32
	Low  int32
}

// Parse decodes text into a Tag.
func Parse(text string) (Tag, error) {
	high, low, err := Decode(text)
	if err != nil {
		return Invalid, err
	}
	return Tag{High: high, Low: low}, nil
}

// MustParse is like Parse but panics on invalid input. It is intended for
// tags known at compile time.
func MustParse(text string) Tag {
	t, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return t
}

// Valid reports whether t can be encoded.
func (t Tag) Valid() bool {
	return t.High >= 0 && t.High < 256 && t.Low >= 0
}

// String returns the canonical "#..." form. Tags that cannot be encoded
// render as "Tag(high,low)" so they are never mistaken for a real tag.
func (t Tag) String() string {
	s, err := Encode(t.High, t.Low)
	if err != nil {
		return "Tag(" + itoa(t.High) + "," + itoa(t.Low) + ")"
	}
	return s
}

// PathEscaped returns the canonical form escaped for use as a URL path segment.
func (t Tag) PathEscaped() string {
	return url.PathEscape(t.String())
}

// MarshalText implements encoding.TextMarshaler.
func (t Tag) MarshalText() ([]byte, error) {
	s, err := Encode(t.High, t.Low)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tag) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Encode returns the "#"-prefixed tag for (high, low). high must be in
// [0, 256) and low must be non-negative; anything else is reported as an
// error rather than truncated.
func Encode(high, low int32) (string, error) {
	if high < 0 || high >= 256 || low < 0 {
		return "", &apierrors.InvalidTagError{
			Text:   "Tag(" + itoa(high) + "," + itoa(low) + ")",
			Reason: "pair out of range",
		}
	}

	value := uint64(low)<<8 | uint64(high)

	var buf [16]byte
	i := len(buf)
	for {
		i--
		buf[i] = Alphabet[value%base]
		value /= base
		if value == 0 {
			break
		}
	}
	i--
	buf[i] = '#'
	return string(buf[i:]), nil
}

// Decode parses a tag in any accepted spelling and returns its pair.
func Decode(text string) (high, low int32, err error) {
	body := Normalize(text)
	if body == "" {
		return -1, -1, &apierrors.InvalidTagError{Text: text, Reason: "empty"}
	}
	if len(body) > MaxLength {
		return -1, -1, &apierrors.InvalidTagError{Text: text, Reason: "too long"}
	}

	var value uint64
	for i := 0; i < len(body); i++ {
		digit := strings.IndexByte(Alphabet, body[i])
		if digit < 0 {
			return -1, -1, &apierrors.InvalidTagError{Text: text, Reason: "unexpected character"}
		}
		value = value*base + uint64(digit)
	}

	high = int32(value % 256)
	low = int32((value >> 8) & lowMask)
	if high == -1 || low == -1 {
		return -1, -1, &apierrors.InvalidTagError{Text: text, Reason: "sentinel pair"}
	}
	return high, low, nil
}

// Normalize strips surrounding space and the leading '#', upper-cases the
// rest and replaces O with 0. It does not validate.
func Normalize(text string) string {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "#")
	s = strings.ToUpper(s)
	return strings.ReplaceAll(s, "O", "0")
}

func itoa(v int32) string {
	return strconv.FormatInt(int64(v), 10)
}
