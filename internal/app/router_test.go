package app

import "testing"

func TestParseOrigins(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", []string{"*"}},
		{"wildcard", "*", []string{"*"}},
		{"single", "https://a.example.com", []string{"https://a.example.com"}},
		{"multiple with spaces", "https://a.example.com, https://b.example.com", []string{"https://a.example.com", "https://b.example.com"}},
		{"blank entries collapse to wildcard", "  ,  ", []string{"*"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := ParseOrigins(c.in)
			if len(got) != len(c.want) {
				t.Fatalf("ParseOrigins(%q) = %v, want %v", c.in, got, c.want)
			}
			for i := range got {
				if got[i] != c.want[i] {
					t.Fatalf("ParseOrigins(%q)[%d] = %q, want %q", c.in, i, got[i], c.want[i])
				}
			}
		})
	}
}
