package netaddr

import "testing"

func TestParseRoundTrip(t *testing.T) {
	cases := []string{"127.0.0.1:8080", "[::1]:9000", "224.0.0.1:1900"}
	for _, c := range cases {
		a, err := Parse(c)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c, err)
		}
		if got := a.String(); got != c {
			t.Fatalf("round trip: want %q got %q", c, got)
		}
	}
}

func TestPredicates(t *testing.T) {
	local, _ := Parse("127.0.0.1:1")
	if !local.IsLocal() {
		t.Fatal("expected loopback")
	}
	mcast, _ := Parse("239.1.2.3:1")
	if !mcast.IsMulticast() {
		t.Fatal("expected multicast")
	}
	plain, _ := Parse("10.0.0.5:1")
	if plain.IsMulticast() || plain.IsLocal() {
		t.Fatal("expected neither predicate for a plain unicast address")
	}
}

func TestEmptyHostDefaultsUnspecified(t *testing.T) {
	a, err := New("", "80")
	if err != nil {
		t.Fatal(err)
	}
	if a.Host() != "0.0.0.0" {
		t.Fatalf("want 0.0.0.0, got %s", a.Host())
	}
}
