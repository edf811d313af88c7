package encode

import "strings"

const upperHex = "0123456789ABCDEF"

// charset is a set of bytes which are not percent-encoded.
type charset [256]bool

// Unreserved characters are never escaped, the rest of the set is safe inside a query component.
// The "&", "=", "+", "#", "[" and "]" are always escaped, so the encoded pairs can be parsed back.
const (
	unreservedChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-._~"
	querySafeChars  = unreservedChars + "!$'()*,;@?"
)

var (
	// queryChars are used for a query string, ":" and "/" are kept as they are.
	queryChars = newCharset(querySafeChars + ":/") //nolint:gochecknoglobals
	// formChars are used for a form-urlencoded body.
	formChars = newCharset(querySafeChars) //nolint:gochecknoglobals
)

func newCharset(chars string) *charset {
	out := &charset{}
	for i := range len(chars) {
		out[chars[i]] = true
	}
	return out
}

// escape percent-encodes all bytes of s not present in the allowed set, space is encoded as "%20".
func escape(s string, allowed *charset) string {
	n := 0
	for i := range len(s) {
		if !allowed[s[i]] {
			n++
		}
	}
	if n == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 2*n)
	for i := range len(s) {
		c := s[i]
		if allowed[c] {
			b.WriteByte(c)
		} else {
			b.WriteByte('%')
			b.WriteByte(upperHex[c>>4])
			b.WriteByte(upperHex[c&15])
		}
	}
	return b.String()
}
