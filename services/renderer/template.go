package renderer

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strconv"
)

//go:embed templates/*.html
var templateFS embed.FS

var funcs = template.FuncMap{
	"number": func(v float64) string {
		return strconv.FormatFloat(v, 'f', -1, 64)
	},
	"money": func(v float64) string {
		return strconv.FormatFloat(v, 'f', 2, 64)
	},
}

// view is the value handed to the base layout.
type view struct {
	Head Header
	Doc  Document
}

// Templates holds one parsed layout per document kind.
type Templates struct {
	byKind map[Kind]*template.Template
}

func NewTemplates() (*Templates, error) {
	base, err := template.New("base").Funcs(funcs).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parse base template: %w", err)
	}

	kinds := []Kind{KindTrainingPlan, KindNutritionPlan, KindProgressReport, KindInvoice}
	t := &Templates{byKind: make(map[Kind]*template.Template, len(kinds))}
	for _, kind := range kinds {
		clone, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+string(kind)+".html"); err != nil {
			return nil, fmt.Errorf("parse %s template: %w", kind, err)
		}
		t.byKind[kind] = clone
	}

	return t, nil
}

// HTML renders doc with its kind's template. Branding and trainer defaults
// are applied first.
func (t *Templates) HTML(doc Document) ([]byte, error) {
	tpl, ok := t.byKind[doc.Kind()]
	if !ok {
		return nil, fmt.Errorf("no template for document kind %q", doc.Kind())
	}

	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, "base", view{Head: doc.Head().withDefaults(), Doc: doc}); err != nil {
		return nil, fmt.Errorf("render %s: %w", doc.Kind(), err)
	}
	return buf.Bytes(), nil
}
