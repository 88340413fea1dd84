package optimize

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInjectBeforeBodyClose(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		document string
		fragment string
		want     string
	}{
		{
			name:     "single body",
			document: "<html><body><p>hi</p></body></html>",
			fragment: "<i>x</i>",
			want:     "<html><body><p>hi</p><i>x</i></body></html>",
		},
		{
			name:     "only first occurrence",
			document: "<body><pre></body></pre></body>",
			fragment: "!",
			want:     "<body><pre>!</body></pre></body>",
		},
		{
			name:     "no body close",
			document: "<p>fragment only</p>",
			fragment: "!",
			want:     "<p>fragment only</p>",
		},
		{
			name:     "empty fragment",
			document: "<body></body>",
			fragment: "",
			want:     "<body></body>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, InjectBeforeBodyClose(tt.document, tt.fragment))
		})
	}
}

func TestMinifierHTMLKeepsStructure(t *testing.T) {
	t.Parallel()

	doc := `<!DOCTYPE html>
<html>
  <head>
    <!-- build comment -->
    <style>
      body {  color : red ; }
    </style>
  </head>
  <body>
    <p   class="lead">Hello</p>
    <p class="snapshot">done</p>
  </body>
</html>`

	out, err := NewMinifier().HTML(doc)
	require.NoError(t, err)

	assert.NotContains(t, out, "build comment")
	assert.NotContains(t, out, "\n  ")
	assert.Contains(t, out, "color:red")
	assert.Contains(t, out, `<p class="lead">Hello</p>`)
	assert.Contains(t, out, `<p class="snapshot">done</p>`)
	assert.Contains(t, out, "</body>")
	assert.Less(t, len(out), len(doc))
}

func TestMinifierJSFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "elm.js")
	src := "function add(first, second) {\n    // sum\n    return first + second;\n}\n"
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	require.NoError(t, NewMinifier().JSFile(path))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Less(t, len(got), len(src))
	assert.NotContains(t, string(got), "// sum")
	assert.True(t, strings.HasPrefix(string(got), "function add("))
}

func TestMinifierJSFileMissing(t *testing.T) {
	t.Parallel()

	err := NewMinifier().JSFile(filepath.Join(t.TempDir(), "missing.js"))
	require.Error(t, err)
}
