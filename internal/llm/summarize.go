// Package llm provides thread summarization, with a deterministic
// heading/action-item extraction fallback when no LLM collaborator is
// configured. Grounded on original_source/src/mcp_agent_mail/llm.py's
// degraded-mode behavior: when disabled, it returns heading-extracted text
// rather than failing, so summarize_thread is always defined.
package llm

import (
	"regexp"
	"strings"

	"github.com/adamavenir/agentmail/internal/types"
)

// ThreadSummary is the result of summarize_thread.
type ThreadSummary struct {
	Participants  []string
	TotalMessages int
	FirstTS       int64
	LastTS        int64
	KeyPoints     []string
	ActionItems   []string
	Degraded      bool
}

// Summarizer produces key_points/action_items for a thread. The production
// implementation delegates to an external LLM collaborator; Fallback below
// is always available and requires no configuration.
type Summarizer interface {
	Summarize(messages []types.Message) (keyPoints, actionItems []string, err error)
}

var headingRe = regexp.MustCompile(`^#{1,6}\s+(.*)`)
var actionRe = regexp.MustCompile(`^\s*(?:[-*]\s*\[ \]|TODO:|ACTION:)\s*(.*)`)

// Fallback extracts key_points from markdown heading lines (plus the first
// sentence of the body for each message that has no heading), and
// action_items from checkbox/marker lines, without calling any external
// service.
type Fallback struct{}

func (Fallback) Summarize(messages []types.Message) ([]string, []string, error) {
	var keyPoints, actionItems []string
	for _, msg := range messages {
		lines := strings.Split(msg.BodyMD, "\n")
		sawHeading := false
		for _, line := range lines {
			if m := headingRe.FindStringSubmatch(line); m != nil {
				keyPoints = append(keyPoints, strings.TrimSpace(m[1]))
				sawHeading = true
			}
			if m := actionRe.FindStringSubmatch(line); m != nil {
				actionItems = append(actionItems, strings.TrimSpace(m[1]))
			}
		}
		if !sawHeading {
			if sentence := firstSentence(msg.BodyMD); sentence != "" {
				keyPoints = append(keyPoints, sentence)
			}
		}
	}
	return keyPoints, actionItems, nil
}

func firstSentence(body string) string {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return ""
	}
	if idx := strings.IndexAny(trimmed, ".!?\n"); idx != -1 {
		return strings.TrimSpace(trimmed[:idx+1])
	}
	return trimmed
}

// Summarize builds a ThreadSummary's deterministic fields from messages and
// delegates key_points/action_items to s. If s is nil, Fallback is used.
func Summarize(messages []types.Message, s Summarizer) (ThreadSummary, error) {
	if len(messages) == 0 {
		return ThreadSummary{}, nil
	}
	if s == nil {
		s = Fallback{}
	}

	seen := map[string]bool{}
	var names []string
	first, last := messages[0].CreatedTS, messages[0].CreatedTS
	for _, msg := range messages {
		if !seen[msg.FromAgent] {
			seen[msg.FromAgent] = true
			names = append(names, msg.FromAgent)
		}
		if msg.CreatedTS < first {
			first = msg.CreatedTS
		}
		if msg.CreatedTS > last {
			last = msg.CreatedTS
		}
	}

	keyPoints, actionItems, err := s.Summarize(messages)
	if err != nil {
		keyPoints, actionItems, _ = Fallback{}.Summarize(messages)
		return ThreadSummary{
			Participants:  names,
			TotalMessages: len(messages),
			FirstTS:       first,
			LastTS:        last,
			KeyPoints:     keyPoints,
			ActionItems:   actionItems,
			Degraded:      true,
		}, nil
	}

	_, isFallback := s.(Fallback)
	return ThreadSummary{
		Participants:  names,
		TotalMessages: len(messages),
		FirstTS:       first,
		LastTS:        last,
		KeyPoints:     keyPoints,
		ActionItems:   actionItems,
		Degraded:      isFallback,
	}, nil
}
