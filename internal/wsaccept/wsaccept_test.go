package wsaccept

import "testing"

// TestComputeKnownVector uses RFC 6455's own worked example (§1.3).
func TestComputeKnownVector(t *testing.T) {
	got := Compute("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestVerify(t *testing.T) {
	key := "dGhlIHNhbXBsZSBub25jZQ=="
	accept := Compute(key)
	if !Verify(key, accept) {
		t.Fatalf("expected Verify to accept its own Compute output")
	}
	if Verify(key, "wrong") {
		t.Fatalf("expected Verify to reject a wrong value")
	}
}
