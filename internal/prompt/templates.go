package prompt

import "text/template"

const refineTemplateText = `You expand terse character ideas into rich generation seeds for role-play platforms.

Rewrite the user's idea into a detailed character concept of 2-4 paragraphs:
appearance, personality, backstory hooks, and the scenario the character
lives in. Keep every concrete detail the user gave. Output only the expanded
concept, no preamble.
{{- if .Rules}}

Behavioral rules derived from the selected tags:
{{- range .Rules}}
- {{.}}
{{- end}}
{{- end}}
{{- if .NSFWBlock}}

{{.NSFWBlock}}
{{- end}}
{{- if .LengthHint}}

{{.LengthHint}}
{{- end}}`

const structuredTemplateText = `You fill in character profile fields for a role-play platform.

Produce a character name and a value for every requested field label. Do not
invent labels outside the requested set and do not rename labels.

Requested field labels:
{{- range .Labels}}
- {{.}}
{{- end}}
{{- if .Existing}}

Existing field values to stay consistent with (locked values will be kept
verbatim by the caller):
{{- range .Existing}}
{{.Label}}: {{.Value}}
{{- end}}
{{- end}}
{{- if .Rules}}

Behavioral rules derived from the selected tags:
{{- range .Rules}}
- {{.}}
{{- end}}
{{- end}}
{{- if .NSFWBlock}}

{{.NSFWBlock}}
{{- end}}

Respond with a single JSON object matching this schema exactly:
{{.SchemaJSON}}`

const imagePromptTemplateText = `You write prompts for an image generation model.

{{if eq .Subject "scenario" -}}
Describe the setting and atmosphere of the scenario below as one vivid
establishing shot. No characters in frame.
{{- else -}}
Describe the character below as a single full-body portrait: appearance,
outfit, expression, pose, lighting.
{{- end}}
Output one descriptive paragraph suitable as a direct image-generation
instruction. No lists, no headings.
{{- if .NSFWBlock}}

{{.NSFWBlock}}
{{- end}}`

const systemRulesTemplateText = `You write the behavioral contract a role-play model must follow when playing a character.

Summarize the concept and generated profile content below into a concise
system-rules block: voice, boundaries, narration style, and how the
character reacts under pressure. Write directives, not descriptions.
{{- if .Rules}}

Fold these tag-derived rules into the contract:
{{- range .Rules}}
- {{.}}
{{- end}}
{{- end}}
{{- if .NSFWBlock}}

{{.NSFWBlock}}
{{- end}}

Profile content:
{{.Content}}`

const loreTemplateText = `You extract world-building lore from a character concept.

From the concept below, extract up to {{.MaxCards}} lore cards covering
places, factions, customs, or recurring side characters worth remembering
across chat sessions. Skip cards for details already obvious from the
character profile itself.

Respond with a single JSON object: {"cards":[{"label":"...","content":"..."}]}`

const chatSystemTemplateText = `{{.SystemRules}}

Stay in character at every turn. Address the user directly and keep the
scene moving.
{{- if .LengthHint}}
{{.LengthHint}}
{{- end}}`

var (
	refineTemplate      = template.Must(template.New("refine").Parse(refineTemplateText))
	structuredTemplate  = template.Must(template.New("structured").Parse(structuredTemplateText))
	imagePromptTemplate = template.Must(template.New("image_prompt").Parse(imagePromptTemplateText))
	systemRulesTemplate = template.Must(template.New("system_rules").Parse(systemRulesTemplateText))
	loreTemplate        = template.Must(template.New("lore").Parse(loreTemplateText))
	chatSystemTemplate  = template.Must(template.New("chat_system").Parse(chatSystemTemplateText))
)
