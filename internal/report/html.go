package report

import (
	"embed"
	"html/template"
	"io"
)

//go:embed templates/acta.html
var templatesFS embed.FS

var actaTmpl = template.Must(template.ParseFS(templatesFS, "templates/acta.html"))

// WriteHTML renders the browser form of the acta.
func WriteHTML(w io.Writer, a Acta) error {
	return actaTmpl.Execute(w, a)
}
