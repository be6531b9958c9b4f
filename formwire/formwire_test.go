package formwire

import "testing"

func TestParseQueryBasic(t *testing.T) {
	v := ParseQuery("a=1&b=hello+world&c")
	if val, ok := v.Get("a"); !ok || val != "1" {
		t.Fatalf("a=%q ok=%v", val, ok)
	}
	if val, ok := v.Get("b"); !ok || val != "hello world" {
		t.Fatalf("b=%q ok=%v", val, ok)
	}
	if val, ok := v.Get("c"); !ok || val != "" {
		t.Fatalf("c=%q ok=%v", val, ok)
	}
}

func TestParseQueryDuplicateKeysLastWins(t *testing.T) {
	v := ParseQuery("x=1&x=2&x=3")
	val, ok := v.Get("x")
	if !ok || val != "3" {
		t.Fatalf("want last value 3, got %q ok=%v", val, ok)
	}
	all := v.All("x")
	if len(all) != 3 || all[0] != "1" || all[2] != "3" {
		t.Fatalf("unexpected All(): %v", all)
	}
}

func TestParseQueryPercentDecoding(t *testing.T) {
	v := ParseQuery("q=a%20b%2Fc")
	val, _ := v.Get("q")
	if val != "a b/c" {
		t.Fatalf("unexpected decode: %q", val)
	}
}

func TestParseQueryMalformedEscapePassesThrough(t *testing.T) {
	v := ParseQuery("q=100%+off")
	val, _ := v.Get("q")
	if val != "100% off" {
		t.Fatalf("unexpected leniency result: %q", val)
	}
}

func TestParseCookiesBasic(t *testing.T) {
	v := ParseCookies("sid=abc123; theme=dark ; empty")
	sid, _ := v.Get("sid")
	theme, _ := v.Get("theme")
	if sid != "abc123" || theme != "dark" {
		t.Fatalf("unexpected cookies: sid=%q theme=%q", sid, theme)
	}
	if empty, ok := v.Get("empty"); !ok || empty != "" {
		t.Fatalf("unexpected valueless cookie: %q ok=%v", empty, ok)
	}
}

func TestParseQueryEmpty(t *testing.T) {
	if v := ParseQuery(""); v != nil {
		t.Fatalf("expected nil for empty query, got %v", v)
	}
}
