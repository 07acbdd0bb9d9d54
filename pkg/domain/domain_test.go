package domain

import (
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "single domain",
			input: "example.com",
			want:  []string{"example.com"},
		},
		{
			name:  "multiple domains",
			input: "a.com;b.com;c.com",
			want:  []string{"a.com", "b.com", "c.com"},
		},
		{
			name:  "whitespace trimmed",
			input: " a.com ; b.com ",
			want:  []string{"a.com", "b.com"},
		},
		{
			name:  "empty tokens dropped",
			input: "a.com;;b.com;",
			want:  []string{"a.com", "b.com"},
		},
		{
			name:  "empty string",
			input: "",
			want:  []string{},
		},
		{
			name:  "order preserved",
			input: "z.com;a.com",
			want:  []string{"z.com", "a.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Parse(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestJoinParseRoundTrip(t *testing.T) {
	in := []string{"a.com", "b.com", "c.com"}
	got := Parse(Join(in))
	if len(got) != len(in) {
		t.Fatalf("round trip changed length: %v", got)
	}
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("round trip[%d] = %q, want %q", i, got[i], in[i])
		}
	}
}

func TestHashStability(t *testing.T) {
	base := Hash([]string{"a.com", "b.com"})

	if got := Hash([]string{"b.com", "a.com"}); got != base {
		t.Errorf("hash not stable under permutation: %s != %s", got, base)
	}
	if got := Hash([]string{"a.com", "b.com", "a.com"}); got != base {
		t.Errorf("hash not stable under duplication: %s != %s", got, base)
	}
	if got := Hash([]string{" A.com", "B.COM "}); got != base {
		t.Errorf("hash not stable under case/whitespace: %s != %s", got, base)
	}
	if got := Hash([]string{"a.com"}); got == base {
		t.Error("distinct sets must hash differently")
	}
}

func TestHashEmptySet(t *testing.T) {
	// Empty set hashes to the hash of the empty string
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Hash(nil); got != want {
		t.Errorf("Hash(nil) = %s, want %s", got, want)
	}
	if got := Hash([]string{" ", ""}); got != want {
		t.Errorf("Hash(blanks) = %s, want %s", got, want)
	}
}

func TestHashJoined(t *testing.T) {
	if HashJoined("a.com;b.com") != Hash([]string{"a.com", "b.com"}) {
		t.Error("HashJoined must agree with Hash over Parse")
	}
}

func TestPrimary(t *testing.T) {
	if got := Primary([]string{"a.com", "b.com"}); got != "a.com" {
		t.Errorf("Primary = %q, want a.com", got)
	}
	if got := Primary(nil); got != "" {
		t.Errorf("Primary(nil) = %q, want empty", got)
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize([]string{"*.example.com", "plain.com", "*.", " "})
	want := []string{"example.com", "plain.com"}
	if len(got) != len(want) {
		t.Fatalf("Normalize = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Normalize[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
