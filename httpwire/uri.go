package httpwire

import "strings"

// splitURI splits a request-target into path, raw query, and raw fragment.
// Only the path is percent/+  decoded during parse — the query keeps its
// separator semantics (decoding it now would lose them, per spec §4.5).
func splitURI(target string) (path, query, fragment string) {
	if i := strings.IndexByte(target, '#'); i >= 0 {
		fragment = target[i+1:]
		target = target[:i]
	}
	if i := strings.IndexByte(target, '?'); i >= 0 {
		query = target[i+1:]
		target = target[:i]
	}
	path = decodePathComponent(target)
	return path, query, fragment
}

// decodePathComponent percent-decodes %XX sequences and turns '+' into a
// space, matching the spec's form/query decoding rule applied to the
// path too. Malformed escapes are passed through literally rather than
// rejected, matching formwire's query-parser leniency (spec §4.8, applied
// consistently here).
func decodePathComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '+':
			b.WriteByte(' ')
		case '%':
			if i+2 < len(s) && isHexDigit(s[i+1]) && isHexDigit(s[i+2]) {
				b.WriteByte(hexDigitsToByte(s[i+1], s[i+2]))
				i += 2
			} else {
				b.WriteByte('%')
			}
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexDigitValue(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

func hexDigitsToByte(hi, lo byte) byte {
	return hexDigitValue(hi)<<4 | hexDigitValue(lo)
}
