package conversation

import (
	"strings"
	"testing"
)

func TestTitleOf(t *testing.T) {
	long := "Compare the monthly revenue of every region over the last two fiscal years"
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short unchanged", "Show me the top 10 rows", "Show me the top 10 rows"},
		{"newline", "line one\nline two", "line one line two"},
		{"crlf", "line one\r\nline two", "line one line two"},
		{"trim", "   padded question \n", "padded question"},
		{"exactly fifty", strings.Repeat("a", 50), strings.Repeat("a", 50)},
		{"long", long, long[:50] + "..."},
		{"empty", "   ", ""},
		{"multibyte", strings.Repeat("é", 60), strings.Repeat("é", 50) + "..."},
		{"lone cr", "line one\rline two", "line one line two"},
		{"crlf is one rune", strings.Repeat("a", 48) + "\r\nbc", strings.Repeat("a", 48) + " b" + "..."},
		{"crlf at the limit", strings.Repeat("a", 48) + "\r\nb", strings.Repeat("a", 48) + " b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TitleOf(tt.in); got != tt.want {
				t.Fatalf("TitleOf(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTitleOfLength(t *testing.T) {
	s := strings.Repeat("How many rows ", 6)[:80]
	got := TitleOf(s)
	if len(got) != 53 {
		t.Fatalf("len = %d, want 53", len(got))
	}
	if got != s[:50]+"..." {
		t.Fatalf("got %q", got)
	}
}
