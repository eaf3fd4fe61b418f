package rendering

import (
	"fmt"
	"strings"
	"text/template"
)

// Template composes contract source from text/template markup. Inside the template,
// {{ rho .Field }} renders any convertible data as a literal.
type Template struct {
	tmpl *template.Template
}

// NewTemplate parses contract source markup
func NewTemplate(name, text string) (*Template, error) {
	tmpl, err := template.New(name).
		Option("missingkey=error").
		Funcs(template.FuncMap{"rho": renderAny}).
		Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	return &Template{tmpl: tmpl}, nil
}

// MustTemplate is like NewTemplate but panics on error
func MustTemplate(name, text string) *Template {
	t, err := NewTemplate(name, text)
	if err != nil {
		panic(err)
	}
	return t
}

// Execute renders the template against data
func (t *Template) Execute(data any) (string, error) {
	var b strings.Builder
	if err := t.tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", t.tmpl.Name(), err)
	}
	return b.String(), nil
}

func renderAny(v any) (string, error) {
	value, err := ToValue(v)
	if err != nil {
		return "", err
	}
	return Render(value), nil
}
