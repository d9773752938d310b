package httpserver

import "testing"

func TestValidateJobID(t *testing.T) {
	cases := []struct {
		name  string
		id    string
		valid bool
	}{
		{"empty", "", false},
		{"valid", "batch_123-abc", true},
		{"too long", string(make([]byte, 101)), false},
		{"invalid chars", "batch 123!", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := ValidateJobID(c.id)
			if got.Valid != c.valid {
				t.Fatalf("ValidateJobID(%q).Valid = %v, want %v (errors=%v)", c.id, got.Valid, c.valid, got.Errors)
			}
		})
	}
}

func TestValidatePagination(t *testing.T) {
	cases := []struct {
		name        string
		page, limit string
		valid       bool
	}{
		{"empty both", "", "", true},
		{"valid", "1", "50", true},
		{"page not a number", "abc", "", false},
		{"page zero", "0", "", false},
		{"limit too high", "", "101", false},
		{"limit zero", "", "0", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := ValidatePagination(c.page, c.limit)
			if got.Valid != c.valid {
				t.Fatalf("ValidatePagination(%q,%q).Valid = %v, want %v (errors=%v)", c.page, c.limit, got.Valid, c.valid, got.Errors)
			}
		})
	}
}

func TestValidateStatus(t *testing.T) {
	cases := []struct {
		status string
		valid  bool
	}{
		{"", true},
		{"queued", true},
		{"researching", true},
		{"running", true},
		{"done", true},
		{"failed", true},
		{"cancelled", true},
		{"bogus", false},
		{"pending", false},
	}
	for _, c := range cases {
		got := ValidateStatus(c.status)
		if got.Valid != c.valid {
			t.Fatalf("ValidateStatus(%q).Valid = %v, want %v", c.status, got.Valid, c.valid)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello\x00world  "); got != "helloworld" {
		t.Fatalf("SanitizeString: got %q", got)
	}
	long := make([]byte, 1500)
	for i := range long {
		long[i] = 'a'
	}
	if got := SanitizeString(string(long)); len(got) != 1000 {
		t.Fatalf("SanitizeString should cap at 1000 chars, got %d", len(got))
	}
}

func TestSanitizeJobID(t *testing.T) {
	if got := SanitizeJobID("batch_123-abc!@#"); got != "batch_123-abc" {
		t.Fatalf("SanitizeJobID: got %q", got)
	}
}
