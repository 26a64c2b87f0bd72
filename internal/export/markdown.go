// Package export renders transcripts for sharing outside the console.
package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/chat"
	"github.com/dustin/go-humanize"
)

// Markdown renders room's transcript as a Markdown document.
func Markdown(room string, msgs []chat.Message, exportedAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# OmniExpert transcript: %s\n\n", room)
	fmt.Fprintf(&b, "_Exported %s, %d messages._\n", exportedAt.UTC().Format(time.RFC3339), len(msgs))

	for _, m := range msgs {
		b.WriteString("\n---\n\n")
		fmt.Fprintf(&b, "### %s", m.Role.Label(m.Sender))
		if !m.Timestamp.IsZero() {
			fmt.Fprintf(&b, " · %s", m.Timestamp.UTC().Format(time.RFC3339))
		}
		if m.Intent == chat.IntentSearch {
			b.WriteString(" · search")
		}
		b.WriteString("\n\n")

		if m.Content == "" {
			b.WriteString("_(no content)_\n")
		} else {
			b.WriteString(m.Content)
			b.WriteString("\n")
		}

		if len(m.Attachments) > 0 {
			b.WriteString("\nAttachments:\n")
			for _, a := range m.Attachments {
				fmt.Fprintf(&b, "- %s (%s, %s)\n", a.Name, a.MIMEType, humanize.Bytes(uint64(a.Size)))
			}
		}
		if len(m.Sources) > 0 {
			b.WriteString("\nSources:\n")
			for i, s := range m.Sources {
				fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, s.Title, s.URI)
			}
		}
		if m.Feedback != nil {
			fmt.Fprintf(&b, "\nFeedback: %s", m.Feedback.Type)
			if m.Feedback.Comment != "" {
				fmt.Fprintf(&b, " (%s)", m.Feedback.Comment)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
