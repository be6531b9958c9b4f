// Package formwire parses the two small textual sub-languages embedded in
// HTTP requests that the core parsers leave raw: URL query strings and
// Cookie headers (spec §4.8, component C8).
//
// Neither the teacher module nor badu-http ship a dedicated query/cookie
// parser (badu-http hand-rolls header tokenizing directly in its request
// path instead of as a separate package), so this package is new code
// written in that same hand-rolled, no-framework style: split on
// delimiters, trim, decode, last-one-wins on duplicates. Percent-decoding
// reuses httpwire's path-decoding rule (+ as space, lenient on malformed
// escapes) for consistency across the module.
package formwire

import "strings"

// ParseQuery decodes a raw query string (without the leading '?') into an
// ordered list of key/value pairs. Duplicate keys are preserved in order;
// callers wanting "last wins" should use Values.Get.
type Pair struct {
	Key   string
	Value string
}

type Values []Pair

// Get returns the last value bound to key, matching how most web
// frameworks resolve duplicate query parameters.
func (v Values) Get(key string) (string, bool) {
	found := false
	var val string
	for _, p := range v {
		if p.Key == key {
			val = p.Value
			found = true
		}
	}
	return val, found
}

// All returns every value bound to key, in wire order.
func (v Values) All(key string) []string {
	var out []string
	for _, p := range v {
		if p.Key == key {
			out = append(out, p.Value)
		}
	}
	return out
}

// ParseQuery splits raw on '&', then each pair on the first '=', and
// percent/+-decodes both halves.
func ParseQuery(raw string) Values {
	if raw == "" {
		return nil
	}
	var out Values
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		key, value := part, ""
		if i := strings.IndexByte(part, '='); i >= 0 {
			key, value = part[:i], part[i+1:]
		}
		out = append(out, Pair{Key: decodeFormComponent(key), Value: decodeFormComponent(value)})
	}
	return out
}

// ParseCookies tokenizes a Cookie header value into name/value pairs.
// Tokens are separated by ';', each split on the first '=', with
// surrounding whitespace trimmed from both key and value. Unlike query
// parameters, cookie values are not percent-decoded here — callers that
// expect an encoded cookie value decode it themselves.
func ParseCookies(raw string) Values {
	if raw == "" {
		return nil
	}
	var out Values
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := strings.IndexByte(part, '=')
		if idx < 0 {
			// A valueless cookie-pair is unusual but not malformed;
			// keep the name with an empty value rather than dropping it.
			out = append(out, Pair{Key: part})
			continue
		}
		key := strings.TrimSpace(part[:idx])
		value := strings.TrimSpace(part[idx+1:])
		out = append(out, Pair{Key: key, Value: value})
	}
	return out
}

func decodeFormComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '+':
			b.WriteByte(' ')
		case '%':
			if i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
				b.WriteByte(hexPair(s[i+1], s[i+2]))
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

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexVal(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

func hexPair(hi, lo byte) byte {
	return hexVal(hi)<<4 | hexVal(lo)
}
