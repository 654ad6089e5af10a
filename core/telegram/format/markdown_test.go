package format

import "testing"

func TestEscape(t *testing.T) {
	tests := []struct {
		in      string
		version Version
		want    string
	}{
		{"/send_tx - start", MarkdownV1, `/send\_tx - start`},
		{"*bold* `code` [x]", MarkdownV1, "\\*bold\\* \\`code\\` \\[x]"},
		{"1.5 TON!", MarkdownV2, `1\.5 TON\!`},
		{"a_b-c", MarkdownV2, `a\_b\-c`},
		{"a_b", Version(3), "a_b"},
	}
	for _, tt := range tests {
		if got := tt.version.Escape(tt.in); got != tt.want {
			t.Fatalf("Escape(%q, %d) = %q, want %q", tt.in, tt.version, got, tt.want)
		}
	}
}

func TestBold(t *testing.T) {
	if got := MarkdownV1.Bold("TON_bot"); got != `*TON\_bot*` {
		t.Fatalf("Bold = %q", got)
	}
}
