package keyspace

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const upperhex = "0123456789ABCDEF"

// uriReserved are the characters whose escapes survive URI decoding
// untouched, mirroring the decodeURI rules used by browsers.
const uriReserved = ";/?:@&=+$,#"

var errMalformedEscape = errors.New("keyspace: malformed percent escape")

// EncodeKey percent-encodes an object key for use as a URL path.
//
// Duplicate slashes are collapsed first. A key that already contains
// decodable escapes is treated as encoded and returned unchanged, so
// encoding is idempotent for its own output. Otherwise every byte outside
// A-Z a-z 0-9 - _ . ! ~ * ' ( ) / is escaped, including the reserved
// characters ; ? : @ & = + $ , #.
func EncodeKey(key string) string {
	key = CollapseSlashes(key)
	if decoded, err := decodeURI(key); err == nil && decoded != key {
		return key
	}
	return encodeURIComponentPath(key)
}

// ObjectURL joins a base URL and an encoded key with exactly one "/".
func ObjectURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + EncodeKey(strings.TrimLeft(key, "/"))
}

// DecodeKey reverses EncodeKey for display. Malformed input is returned as is.
func DecodeKey(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			if hi, lo, ok := hexPair(s[i+1], s[i+2]); ok {
				b.WriteByte(hi<<4 | lo)
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	out := b.String()
	if !utf8.ValidString(out) {
		return s
	}
	return out
}

func encodeURIComponentPath(s string) string {
	var b strings.Builder
	b.Grow(len(s) * 3 / 2)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if keepUnescaped(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func keepUnescaped(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')', '/':
		return true
	}
	return false
}

// decodeURI decodes percent escapes except the ones that encode a reserved
// character. It fails on incomplete escapes and on byte sequences that are
// not valid UTF-8.
func decodeURI(s string) (string, error) {
	if !strings.Contains(s, "%") {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			b.WriteByte(s[i])
			continue
		}
		if i+2 >= len(s) {
			return "", errMalformedEscape
		}
		hi, lo, ok := hexPair(s[i+1], s[i+2])
		if !ok {
			return "", errMalformedEscape
		}
		c := hi<<4 | lo
		if c < utf8.RuneSelf && strings.IndexByte(uriReserved, c) >= 0 {
			b.WriteString(s[i : i+3])
		} else {
			b.WriteByte(c)
		}
		i += 2
	}
	out := b.String()
	if !utf8.ValidString(out) {
		return "", errMalformedEscape
	}
	return out, nil
}

func hexPair(a, b byte) (byte, byte, bool) {
	hi, ok1 := unhex(a)
	lo, ok2 := unhex(b)
	return hi, lo, ok1 && ok2
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
