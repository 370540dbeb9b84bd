package content

import (
	"bytes"
	"html/template"

	"reportflow_backend/internal/crm"
)

// pageTemplate is the minimal layout used for thumbnail capture. Final
// rendering happens in the CRM backend; this only needs to look like the
// report at a glance.
var pageTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
  body { font-family: Helvetica, Arial, sans-serif; margin: 40px; color: #1a1a1a; }
  h1 { color: {{.Primary}}; border-bottom: 3px solid {{.Accent}}; padding-bottom: 8px; }
  h2 { color: {{.Primary}}; margin-top: 28px; }
  p { line-height: 1.5; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{range .Sections}}<h2>{{.Title}}</h2>
<p>{{.Body}}</p>
{{end}}</body>
</html>
`))

type pageData struct {
	Title    string
	Sections []ResolvedSection
	Primary  string
	Accent   string
}

// RenderHTML renders the resolved document as a standalone HTML page.
func RenderHTML(doc Document, branding *crm.Branding) (string, error) {
	data := pageData{
		Title:    doc.Title,
		Sections: doc.Sections,
		Primary:  "#1f2a44",
		Accent:   "#e07a1f",
	}
	if branding != nil {
		if branding.PrimaryColor != "" {
			data.Primary = branding.PrimaryColor
		}
		if branding.AccentColor != "" {
			data.Accent = branding.AccentColor
		}
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
