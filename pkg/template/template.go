// Package template renders merge fields in user-authored text against a
// contact's profile.
package template

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/dripflow/dripflow/pkg/models"
)

// RenderMergeFields renders input with the subject's profile exposed as merge
// fields. Templates address custom fields via {{.fields.first_name}} and the
// structural attributes via {{.stage_id}}, {{.tags}} and {{.subject_id}}.
// Missing fields render as empty strings rather than failing the send.
func RenderMergeFields(input string, subject *models.Subject) (string, error) {
	data := map[string]any{
		"subject_id": subject.ID,
		"stage_id":   subject.StageID,
		"tags":       subject.Tags,
		"fields":     subject.Fields,
	}

	return Render(input, data)
}

// Render parses and executes a merge-field template against arbitrary data.
func Render(templateStr string, data any) (string, error) {
	tmpl, err := template.
		New("merge").
		Option("missingkey=zero").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
			"title": func(s string) string {
				if s == "" {
					return s
				}

				return strings.ToUpper(s[:1]) + s[1:]
			},
		}).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	// missingkey=zero renders absent map keys as "<no value>" for any-typed
	// maps; scrub those so a missing field reads as blank.
	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}
