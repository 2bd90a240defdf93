package gateway

import (
	"fmt"
	"math"
	"strings"

	"github.com/omarluq/skin-relay/internal/upstream"
)

// DefaultSystemPrompt is the instruction template. Every %s is replaced by
// the skin name; the rest of the template is literal text.
const DefaultSystemPrompt = "Rewrite the user's text in the %s style. " +
	"Keep the meaning and the language of the original. Reply with the rewritten text only."

// PromptBuilder turns sanitized text and a validated skin into chat messages.
type PromptBuilder interface {
	Build(text, skin string, params Params) []upstream.Message
}

// TemplatePrompt builds a system message from a template and passes the
// text through as the user message.
type TemplatePrompt struct {
	Template string
}

// Build implements PromptBuilder.
func (p TemplatePrompt) Build(text, skin string, params Params) []upstream.Message {
	tmpl := p.Template
	if tmpl == "" {
		tmpl = DefaultSystemPrompt
	}

	var system strings.Builder
	system.WriteString(strings.ReplaceAll(tmpl, "%s", strings.ReplaceAll(skin, "_", " ")))
	if params.LengthRatio > 0 {
		fmt.Fprintf(&system, " Aim for about %d%% of the original length.", int(math.Round(params.LengthRatio*100)))
	}

	return []upstream.Message{
		{Role: "system", Content: system.String()},
		{Role: "user", Content: text},
	}
}

var _ PromptBuilder = TemplatePrompt{}
