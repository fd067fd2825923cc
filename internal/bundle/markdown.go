package bundle

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/easeaico/persona-studio/internal/types"
)

const markdownTemplateText = `# {{.Name}}

Status: {{.Status}} (v{{.Version}})
{{- if .Tags}}
Tags: {{range $i, $t := .Tags}}{{if $i}}, {{end}}{{$t}}{{end}}
{{- end}}

## Prompt

{{.OriginalPrompt}}
{{- if .ModifiedPrompt}}

### Refined

{{.ModifiedPrompt}}
{{- end}}
{{- range .Fields}}

## {{.Label}}

{{.Value}}
{{- end}}
{{- if .SystemRules}}

## System Rules

{{.SystemRules}}
{{- end}}
{{- if .WorldInfo}}

## World Info
{{- range .WorldInfo}}

### {{.Label}}

{{.Content}}
{{- end}}
{{- end}}
`

var markdownTemplate = template.Must(template.New("markdown").Parse(markdownTemplateText))

// renderMarkdown derives the human-readable view shipped in every bundle.
func renderMarkdown(record *types.CharacterRecord) (string, error) {
	var buf bytes.Buffer
	if err := markdownTemplate.Execute(&buf, record); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return buf.String(), nil
}
