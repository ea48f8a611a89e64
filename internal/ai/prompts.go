package ai

import (
	"bytes"
	"text/template"
)

// PlanPrompt is the template for day-plan generation
const PlanPrompt = `You are a personal planning assistant. Build a realistic day plan for the user.

User profile:
{{.Profile}}

{{if .History}}Recent conversation:
{{range .History}}{{.Role}}: {{.Content}}
{{end}}{{end}}
Produce a concrete, time-blocked plan for today. Keep it short and actionable.
Respond with ONLY valid JSON:
{
  "summary": "<one-line plan summary>",
  "blocks": [
    {"start": "HH:MM", "end": "HH:MM", "title": "<activity>", "note": "<optional detail>"}
  ]
}`

// AttachmentPrompt is the instruction sent alongside an uploaded image
const AttachmentPrompt = `The user attached this image to their planning chat.
Describe what it contains and extract anything relevant to their plans or
tasks (schedules, notes, lists, events). Reply as plain text.`

// PlanPromptData holds the values rendered into PlanPrompt
type PlanPromptData struct {
	Profile string
	History []PromptMessage
}

// PromptMessage is a prior conversation turn included for context
type PromptMessage struct {
	Role    string
	Content string
}

var planTmpl = template.Must(template.New("plan").Parse(PlanPrompt))

// RenderPlanPrompt renders the plan generation prompt
func RenderPlanPrompt(data PlanPromptData) (string, error) {
	var buf bytes.Buffer
	if err := planTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
