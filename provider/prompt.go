package provider

import (
	"strings"

	"github.com/ollama/ollama/api"
)

// CoachPreamble is the system prompt every coach backend starts from.
const CoachPreamble = `You are a warm, practical habit coach inside a journaling app.
The user may be fighting a craving, setting a morning intention, or reviewing their day.
Answer in two to four short sentences. Offer one concrete, doable next step.
Never shame the user. Do not give medical advice; suggest professional help if they describe a crisis.`

// BuildUserContent folds the flow context into the user's text.
func BuildUserContent(prompt, promptContext string) string {
	prompt = strings.TrimSpace(prompt)
	promptContext = strings.TrimSpace(promptContext)
	if promptContext == "" {
		return prompt
	}
	return "Context: " + promptContext + "\n\n" + prompt
}

// CoachMessages produces the two-message exchange sent to an Ollama runtime.
func CoachMessages(prompt, promptContext string) []api.Message {
	return []api.Message{
		{Role: "system", Content: CoachPreamble},
		{Role: "user", Content: BuildUserContent(prompt, promptContext)},
	}
}
