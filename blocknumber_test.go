package tftp

import "testing"

func TestBlockNumberIncrementWraps(t *testing.T) {
	b := BlockNumber(0xFFFF)
	if got := b.Increment(); got.Value() != 0 {
		t.Fatalf("increment past 0xFFFF = %#x, want 0", got.Value())
	}
}

func TestBlockNumberIncrementIsBijection(t *testing.T) {
	seen := make(map[uint16]bool, 1<<16)
	b := BlockNumber(0)
	for i := 0; i < 1<<16; i++ {
		if seen[b.Value()] {
			t.Fatalf("value %d repeated after %d increments", b.Value(), i)
		}
		seen[b.Value()] = true
		b = b.Increment()
	}
	if len(seen) != 1<<16 {
		t.Fatalf("got %d distinct values, want 65536", len(seen))
	}
	if b.Value() != 0 {
		t.Fatalf("after 65536 increments, got %#x, want 0", b.Value())
	}
}

func TestBlockNumberEquals(t *testing.T) {
	if !BlockNumber(42).Equals(BlockNumber(42)) {
		t.Fatal("42 should equal 42")
	}
	if BlockNumber(42).Equals(BlockNumber(43)) {
		t.Fatal("42 should not equal 43")
	}
}

func TestIsInSeq(t *testing.T) {
	cases := []struct {
		a, b BlockNumber
		want bool
	}{
		{0, 1, true},
		{1, 2, true},
		{0xFFFF, 0, true},
		{5, 5, false},
		{5, 7, false},
		{1, 0, false},
	}
	for _, c := range cases {
		if got := IsInSeq(c.a, c.b); got != c.want {
			t.Errorf("IsInSeq(%d, %d) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
