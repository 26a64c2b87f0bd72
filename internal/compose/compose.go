// Package compose turns a user's input and the room's active context into
// the prompt sent to the model and the text shown in the transcript.
package compose

import (
	"fmt"
	"sort"
	"strings"

	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/chat"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/llm"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/transcript"
	"github.com/dustin/go-humanize"
)

// SearchRoute prefixes search prompts.
const SearchRoute = "[INTERNAL_ROUTE: /api/v1/search]"

// Input is everything a composition depends on.
type Input struct {
	Text        string
	Intent      chat.Intent
	Mode        chat.Mode
	Domain      string
	SubDomain   string
	Tools       []string
	Attachments []chat.Attachment
}

// Output is the composed prompt and display content.
type Output struct {
	// Prompt is the effective text sent to the model.
	Prompt string
	// Display is stored as the user message content.
	Display string
	// Parts are the current-message parts of the model request.
	Parts []llm.Part
}

// FromState fills the context fields of an Input from a room state.
func FromState(text string, intent chat.Intent, s chat.RoomState, attachments []chat.Attachment) Input {
	return Input{
		Text:        text,
		Intent:      intent,
		Mode:        s.ActiveMode,
		Domain:      s.ActiveDomain,
		SubDomain:   s.ActiveSubDomain,
		Tools:       s.Tools(),
		Attachments: attachments,
	}
}

// Tags renders the bracketed context tags that are set, in fixed order.
func Tags(in Input) string {
	var tags []string
	if in.Mode != "" {
		tags = append(tags, fmt.Sprintf("[MODE: %s]", strings.ToUpper(string(in.Mode))))
	}
	if in.Domain != "" {
		tags = append(tags, fmt.Sprintf("[DOMAIN: %s]", in.Domain))
	}
	if in.SubDomain != "" {
		tags = append(tags, fmt.Sprintf("[FOCUS: %s]", in.SubDomain))
	}
	if len(in.Tools) > 0 {
		tools := append([]string(nil), in.Tools...)
		sort.Strings(tools)
		tags = append(tags, fmt.Sprintf("[ACTIVE_TOOLS: %s]", strings.Join(tools, ", ")))
	}
	return strings.Join(tags, " ")
}

// Compose is deterministic and has no side effects.
func Compose(in Input) Output {
	tags := Tags(in)
	text := strings.TrimSpace(in.Text)

	display := text
	if tags != "" {
		display = tags + "\n\n" + text
	}
	if len(in.Attachments) > 0 {
		var b strings.Builder
		b.WriteString(display)
		b.WriteString("\n")
		for _, a := range in.Attachments {
			fmt.Fprintf(&b, "\n📎 %s (%s)", a.Name, humanize.Bytes(uint64(a.Size)))
		}
		display = b.String()
	}

	body := text
	if in.Intent == chat.IntentSearch {
		body = fmt.Sprintf("%s Query: %s. Requirement: Perform broad web search, extract technical citations, "+
			"and provide a structured synthesis of current findings.", SearchRoute, text)
	}
	prompt := body
	if tags != "" {
		prompt = tags + "\n\n" + body
	}

	parts := []llm.Part{{Text: prompt}}
	for _, a := range in.Attachments {
		parts = append(parts, llm.Part{InlineData: &llm.InlineData{MIMEType: a.MIMEType, Data: a.Data}})
	}
	return Output{Prompt: prompt, Display: display, Parts: parts}
}

// History converts transcript turns into model history turns.
func History(turns []transcript.Turn) []llm.Turn {
	out := make([]llm.Turn, 0, len(turns))
	for _, t := range turns {
		out = append(out, llm.Turn{Role: t.Role.HistoryRole(), Text: t.Content})
	}
	return out
}
