package sanitize

import (
	"strings"
	"testing"
)

func TestText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain", "Suspicious login", "Suspicious login"},
		{"tags stripped", "<p>Phishing <b>email</b> reported</p>", "Phishing email reported"},
		{"attributes stripped", `<a href="https://evil.example" onclick="x()">click</a> here`, "click here"},
		{"script body dropped", "before<script>alert(1)</script>after", "beforeafter"},
		{"whitespace collapsed", "  line one\n\n\tline   two  ", "line one line two"},
		{"block elements", "<div>one</div>\n<div>two</div>", "one two"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.input); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestText_Idempotent(t *testing.T) {
	inputs := []string{
		"<p>Tom &amp; Jerry</p>",
		"a & b < c",
		"&lt;script&gt;alert(1)&lt;/script&gt;",
		`<img src=x onerror="alert(1)">caption`,
		"O'Brien said \"hi\"",
		"<ul><li>one</li>\n<li>two</li></ul>",
	}

	for _, in := range inputs {
		once := Text(in)
		twice := Text(once)
		if once != twice {
			t.Errorf("not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestText_NoTagSyntax(t *testing.T) {
	in := `<div class="x"><span style="color:red">Alert</span> <iframe src="//x"></iframe>&lt;b&gt;</div>`
	got := Text(in)
	if strings.ContainsAny(got, "<>") {
		t.Errorf("Text() = %q still contains tag syntax", got)
	}
	if !strings.Contains(got, "Alert") {
		t.Errorf("Text() = %q lost visible text", got)
	}
}
