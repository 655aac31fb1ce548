package htmlsanitize_test

import (
	"testing"

	"github.com/dalemusser/campushub/internal/app/system/htmlsanitize"
)

func TestPlain_StripsMarkup(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Jordan Fox", "Jordan Fox"},
		{"<b>Jordan</b> Fox", "Jordan Fox"},
		{"<script>alert('x')</script>Jordan", "Jordan"},
		{"  padded  ", "padded"},
		{"<img src=x onerror=alert(1)>", ""},
	}
	for _, c := range cases {
		if got := htmlsanitize.Plain(c.in); got != c.want {
			t.Errorf("Plain(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestPlain_UnescapesEntities(t *testing.T) {
	// Names with ampersands survive the round trip as plain text.
	if got := htmlsanitize.Plain("Fox & Sons"); got != "Fox & Sons" {
		t.Errorf("Plain = %q, want %q", got, "Fox & Sons")
	}
}
