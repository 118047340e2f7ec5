package violid

import "testing"

func TestStableViolationID_deterministic(t *testing.T) {
	t.Parallel()
	a := StableViolationID("pkg/util.py", 42, "x = 1")
	b := StableViolationID("pkg/util.py", 42, "x = 1")
	if a != b {
		t.Errorf("same inputs produced different IDs: %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Errorf("ID length = %d, want 64 hex chars", len(a))
	}
}

func TestStableViolationID_distinguishesInputs(t *testing.T) {
	t.Parallel()
	base := StableViolationID("pkg/util.py", 42, "x = 1")
	tests := []struct {
		name string
		got  string
	}{
		{"different_path", StableViolationID("pkg/other.py", 42, "x = 1")},
		{"different_line", StableViolationID("pkg/util.py", 43, "x = 1")},
		{"different_text", StableViolationID("pkg/util.py", 42, "x = 2")},
	}
	for _, tt := range tests {
		if tt.got == base {
			t.Errorf("%s: ID collided with base", tt.name)
		}
	}
}

func TestStableViolationID_normalizesCRLF(t *testing.T) {
	t.Parallel()
	lf := StableViolationID("a.py", 1, "x = 1\ny = 2")
	crlf := StableViolationID("a.py", 1, "x = 1\r\ny = 2")
	if lf != crlf {
		t.Error("CRLF and LF variants should hash identically")
	}
}

func TestStableViolationID_clampsLineNumber(t *testing.T) {
	t.Parallel()
	zero := StableViolationID("a.py", 0, "x")
	negative := StableViolationID("a.py", -7, "x")
	one := StableViolationID("a.py", 1, "x")
	if zero != one || negative != one {
		t.Error("non-positive line numbers should clamp to 1")
	}
}
