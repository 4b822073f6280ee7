package harvest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "no markup here", "no markup here"},
		{"tags removed", "<p>hello <b>world</b></p>", "hello world"},
		{"entities decoded", "fish &amp; chips", "fish & chips"},
		{"script dropped", "<p>keep</p><script>alert(1)</script>", "keep"},
		{"style dropped", "<style>p{color:red}</style><p>text</p>", "text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripHTML(tt.in))
		})
	}
}

func TestStripMarkdown(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"link keeps label", "see [the study](https://doi.org/10.1000/x) here", "see the study here"},
		{"image keeps alt", "![chart of results](img.png)", "chart of results"},
		{"bold and italics", "**bold** and *italic* text", "bold and italic text"},
		{"inline code", "use `creatine` daily", "use creatine daily"},
		{"heading marker", "## Results\nbody", "Results\nbody"},
		{"blockquote marker", "> quoted line", "quoted line"},
		{"underscores kept", "user_name stays intact", "user_name stays intact"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripMarkdown(tt.in))
		})
	}
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", CollapseWhitespace("  a \n\n b\t\tc  "))
	assert.Equal(t, "", CollapseWhitespace(" \n\t "))
}

func TestSanitize(t *testing.T) {
	in := "<div>A  study\n\nof <i>magnesium</i>&nbsp;intake</div>"
	assert.Equal(t, "A study of magnesium intake", Sanitize(in))
}
