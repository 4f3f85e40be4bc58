package widget

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var nodeTemplate = template.Must(template.ParseFS(templateFS, "templates/node.html"))

// RenderHTML writes the render tree as HTML.
func RenderHTML(w io.Writer, n *Node) error {
	if err := nodeTemplate.ExecuteTemplate(w, "node", n); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	return nil
}

// HTML returns the render tree as an HTML fragment for embedding in a page
// template.
func HTML(n *Node) (template.HTML, error) {
	var b strings.Builder
	if err := RenderHTML(&b, n); err != nil {
		return "", err
	}
	return template.HTML(b.String()), nil
}
