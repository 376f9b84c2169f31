package capability

import "testing"

func TestParseCaseInsensitiveAndTrims(t *testing.T) {
	cases := []struct {
		in   string
		want Capability
		ok   bool
	}{
		{"read", Read, true},
		{"READ", Read, true},
		{"  exec  ", Exec, true},
		{"Http", HTTP, true},
		{"", "", false},
		{"   ", "", false},
		{"bogus", "", false},
	}
	for _, tc := range cases {
		got, ok := Parse(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("Parse(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestDangerousOnlyExecAndEnv(t *testing.T) {
	for _, c := range All {
		want := c == Exec || c == Env
		if got := c.Dangerous(); got != want {
			t.Errorf("%s.Dangerous() = %v, want %v", c, got, want)
		}
	}
}

func TestSetOperations(t *testing.T) {
	s := NewSet(Read, Write, Exec)
	if !s.Contains(Read) || !s.Contains(Exec) {
		t.Fatal("expected set to contain seeded members")
	}
	if s.Contains(HTTP) {
		t.Fatal("set should not contain HTTP")
	}

	without := s.Without(Exec)
	if without.Contains(Exec) {
		t.Fatal("Without should remove Exec")
	}
	if !s.Contains(Exec) {
		t.Fatal("Without must not mutate the receiver")
	}

	clone := s.Clone()
	clone[HTTP] = struct{}{}
	if s.Contains(HTTP) {
		t.Fatal("Clone must be independent of the original")
	}
}

func TestSliceStableOrder(t *testing.T) {
	s := NewSet(Log, Read, Exec)
	got := s.Slice()
	want := []Capability{Read, Exec, Log}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Slice()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}
