// Package template renders email subjects and bodies with subscriber
// variables using Go text templates.
package template

import (
	"fmt"
	"strings"
	"text/template"
	"time"
)

// Render parses and executes a template string against the given data.
// Missing keys render as empty strings rather than failing, matching what
// operators expect from subject lines like "Hi {{.first_name}}".
func Render(templateStr string, data map[string]any) (string, error) {
	tmpl, err := template.
		New("email").
		Option("missingkey=zero").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
			"title": strings.Title, //nolint:staticcheck // ASCII subject lines only
		}).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %q: %w", templateStr, err)
	}

	var buf strings.Builder

	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %q: %w", templateStr, err)
	}

	// missingkey=zero renders untyped nils as "<no value>"; scrub them.
	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}
