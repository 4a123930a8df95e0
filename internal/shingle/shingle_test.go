package shingle

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"How do I restart my server?", "how do i restart my server?"},
		{"  lots\t of   space \n", "lots of space"},
		{"", ""},
		{"ONE", "one"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSet_Shingles(t *testing.T) {
	got := Set("how do I restart my minecraft server")
	want := []string{
		"how do", "do i", "i restart", "restart my", "my minecraft", "minecraft server",
	}
	if len(got) != len(want) {
		t.Fatalf("Set() returned %d shingles, want %d: %v", len(got), len(want), got)
	}
	for _, s := range want {
		if _, ok := got[s]; !ok {
			t.Errorf("Set() missing shingle %q", s)
		}
	}
}

func TestSet_ShortQueryFallsBackToWords(t *testing.T) {
	got := Set("restart server")
	// One shingle is below the minimum, so single words are added too.
	for _, s := range []string{"restart server", "restart", "server"} {
		if _, ok := got[s]; !ok {
			t.Errorf("Set() missing token %q, got %v", s, got)
		}
	}
}

func TestSet_SingleWord(t *testing.T) {
	got := Set("help")
	if len(got) != 1 {
		t.Fatalf("Set(\"help\") = %v, want single token", got)
	}
	if _, ok := got["help"]; !ok {
		t.Errorf("Set(\"help\") missing token \"help\"")
	}
}

func TestSet_Empty(t *testing.T) {
	if got := Set(""); len(got) != 0 {
		t.Errorf("Set(\"\") = %v, want empty set", got)
	}
}

func TestSet_CaseAndSpacingInsensitive(t *testing.T) {
	a := Set("How do I restart  my server")
	b := Set("how do i restart my server")
	if len(a) != len(b) {
		t.Fatalf("shingle sets differ in size: %d vs %d", len(a), len(b))
	}
	for s := range a {
		if _, ok := b[s]; !ok {
			t.Errorf("shingle %q missing from normalized variant", s)
		}
	}
}
