package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"
)

// SafeHTML is a template function that marks a string as safe HTML
func SafeHTML(s interface{}) template.HTML {
	switch v := s.(type) {
	case string:
		return template.HTML(v)
	case template.HTML:
		return v
	default:
		return template.HTML("")
	}
}

//go:embed templates/*.html
var templateFS embed.FS

var screenplayTemplate = template.Must(
	template.New("screenplay.html").Funcs(template.FuncMap{
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
		"safeHTML": SafeHTML,
	}).ParseFS(templateFS, "templates/screenplay.html"),
)

// TemplateData holds data for screenplay template rendering
type TemplateData struct {
	Title       string
	Author      string
	DraftDate   string
	Country     string
	Logline     string
	ContentHTML template.HTML
	UpdatedAt   time.Time
}

// RenderScreenplayHTML renders the screenplay page template.
func RenderScreenplayHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := screenplayTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
