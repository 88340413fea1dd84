// Package optimize shrinks what the build writes: prerendered HTML documents
// and the compiled Elm bundle.
package optimize

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
)

const (
	mediaHTML = "text/html"
	mediaCSS  = "text/css"
	mediaJS   = "application/javascript"
)

var scriptTypes = regexp.MustCompile(`^(application|text)/(x-)?(java|ecma)script$`)

const bodyClose = "</body>"

// InjectBeforeBodyClose inserts fragment right before the first "</body>".
// Documents without a closing body tag are returned unchanged.
func InjectBeforeBodyClose(document, fragment string) string {
	return strings.Replace(document, bodyClose, fragment+bodyClose, 1)
}

// Minifier wraps a configured tdewolff minifier. The zero value is not usable;
// call NewMinifier.
type Minifier struct {
	m *minify.M
}

// NewMinifier returns a minifier that collapses whitespace, drops comments
// and minifies inline styles and scripts. Document and end tags are kept so
// the output still carries an explicit </body>.
func NewMinifier() *Minifier {
	m := minify.New()
	m.Add(mediaHTML, &html.Minifier{
		KeepDocumentTags: true,
		KeepEndTags:      true,
		KeepQuotes:       true,
	})
	m.AddFunc(mediaCSS, css.Minify)
	m.AddFuncRegexp(scriptTypes, js.Minify)
	return &Minifier{m: m}
}

// HTML minifies a full document.
func (m *Minifier) HTML(document string) (string, error) {
	out, err := m.m.String(mediaHTML, document)
	if err != nil {
		return "", fmt.Errorf("minify html: %w", err)
	}
	return out, nil
}

// JS minifies a script.
func (m *Minifier) JS(source []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := m.m.Minify(mediaJS, &buf, bytes.NewReader(source)); err != nil {
		return nil, fmt.Errorf("minify js: %w", err)
	}
	return buf.Bytes(), nil
}

// JSFile minifies the script at path in place.
func (m *Minifier) JSFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	out, err := m.JS(src)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, out, info.Mode().Perm()); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
