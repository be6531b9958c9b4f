package fairserver

import "testing"

func TestArenaAllocReuseBumpsGeneration(t *testing.T) {
	a := newArena()

	slot, gen1 := a.Alloc()
	if gen1 != 1 {
		t.Fatalf("first generation = %d, want 1", gen1)
	}
	a.Free(slot)

	slot2, gen2 := a.Alloc()
	if slot2 != slot {
		t.Fatalf("expected slot reuse, got %d want %d", slot2, slot)
	}
	if gen2 != gen1+1 {
		t.Fatalf("generation = %d, want %d", gen2, gen1+1)
	}
}

func TestArenaGetRejectsStaleGeneration(t *testing.T) {
	a := newArena()
	slot, gen := a.Alloc()
	a.Free(slot)
	a.Alloc() // reuses slot with a bumped generation

	if _, ok := a.Get(slot, gen); ok {
		t.Fatalf("Get succeeded with stale generation %d", gen)
	}
}

func TestArenaGetRejectsOutOfRangeSlot(t *testing.T) {
	a := newArena()
	if _, ok := a.Get(5, 1); ok {
		t.Fatalf("Get succeeded for a slot never allocated")
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, HeaderSize)
	putHeader(buf, 1234, 7, 0xdeadbeefcafe)

	bodyLen, kind, rid := parseHeader(buf)
	if bodyLen != 1234 || kind != 7 || rid != 0xdeadbeefcafe {
		t.Fatalf("round trip mismatch: got (%d,%d,%d)", bodyLen, kind, rid)
	}
}
