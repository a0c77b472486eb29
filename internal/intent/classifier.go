// Package intent maps free-text bot mentions to a command intent using
// ordered keyword matching. This is deliberately a rule list, not an NLP
// layer: the precedence order below is a first-class policy.
package intent

import "strings"

// Intent is the closed set of commands the bot understands.
type Intent int

const (
	Unknown Intent = iota
	GenerateEOD
	GenerateEOW
	Help
	Sync
)

func (i Intent) String() string {
	switch i {
	case GenerateEOD:
		return "generate_eod"
	case GenerateEOW:
		return "generate_eow"
	case Help:
		return "help"
	case Sync:
		return "sync"
	default:
		return "unknown"
	}
}

// rules are evaluated in order; the first matching keyword set wins. Text
// containing both "eod" and "help" therefore classifies as GenerateEOD.
var rules = []struct {
	intent   Intent
	keywords []string
}{
	{GenerateEOD, []string{"eod", "end of day", "daily report", "daily summary"}},
	{GenerateEOW, []string{"eow", "end of week", "weekly report", "weekly summary"}},
	{Help, []string{"help", "what can you do", "commands"}},
	{Sync, []string{"sync", "refresh"}},
}

// Classify returns the intent for a bot-directed message. Matching is
// case-insensitive substring matching; no scoring, no tokenization.
func Classify(text string) Intent {
	lower := strings.ToLower(text)
	for _, rule := range rules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.intent
			}
		}
	}
	return Unknown
}
