package summarize

import (
	"fmt"
	"strings"

	"github.com/kalambet/recap/internal/storage"
)

// promptMessageCap bounds how many messages enter the prompt so long windows
// stay inside the model context. The newest messages win; older ones are
// folded into a count marker.
const promptMessageCap = 50

const systemPrompt = "You are a helpful assistant that creates clear, actionable summaries from Slack messages for engineering teams."

const customSystemPrompt = "You are a helpful assistant that can analyze Slack messages and respond to custom requests."

const sectionTemplate = `Please organize the summary into the following sections:

## Key Accomplishments
- Major achievements and completed tasks

## Technical Updates
- Code changes, deployments, bug fixes, and technical decisions

## Issues & Blockers
- Problems encountered, current blockers, items needing attention

## Upcoming Priorities
- Next steps and planned work

## Notable Discussions
- Important conversations and decisions
`

var styleLines = map[string]string{
	"technical": "Focus on technical details, code changes, bugs, and implementation specifics.",
	"executive": "Focus on high-level progress, milestones, and business impact.",
	"detailed":  "Provide comprehensive details including technical aspects, progress, and context.",
}

// BuildPrompt renders the user prompt for an EOD or EOW summary.
func BuildPrompt(messages []storage.Message, summaryType, style string) string {
	period := "Day"
	if summaryType == "EOW" {
		period = "Week"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are creating an %s (End of %s) summary from Slack messages for an engineering team.\n\n", summaryType, period)
	if line, ok := styleLines[style]; ok {
		b.WriteString(line)
		b.WriteString("\n\n")
	}
	b.WriteString(sectionTemplate)
	b.WriteString("\nHere are the Slack messages to analyze:\n")
	writeTranscript(&b, messages)
	b.WriteString("\nCreate a clear, actionable summary that helps the team understand what happened and what's coming next. Use bullet points and clear headings. Keep it concise but informative.\n")
	return b.String()
}

// BuildCustomPrompt renders the user prompt for a free-form request over the
// same transcript format.
func BuildCustomPrompt(messages []storage.Message, customPrompt string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Custom Request: %s\n\nBased on the following Slack messages, please fulfill the above request:\n", customPrompt)
	writeTranscript(&b, messages)
	return b.String()
}

func writeTranscript(b *strings.Builder, messages []storage.Message) {
	if len(messages) > promptMessageCap {
		fmt.Fprintf(b, "\n... and %d earlier messages omitted\n", len(messages)-promptMessageCap)
		messages = messages[len(messages)-promptMessageCap:]
	}
	for _, m := range messages {
		text := m.CleanText
		if text == "" {
			text = m.Text
		}
		fmt.Fprintf(b, "\n[%s] #%s - %s: %s\n", m.Timestamp.Format("2006-01-02 15:04"), m.ChannelName, m.Username, text)
	}
}
