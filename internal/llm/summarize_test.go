package llm

import (
	"errors"
	"testing"

	"github.com/adamavenir/agentmail/internal/types"
)

func TestSummarizeEmptyThreadReturnsZeroValue(t *testing.T) {
	summary, err := Summarize(nil, nil)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if summary.TotalMessages != 0 {
		t.Fatalf("want zero-value summary, got %+v", summary)
	}
}

func TestSummarizeFallbackExtractsHeadingsAndActionItems(t *testing.T) {
	messages := []types.Message{
		{FromAgent: "alpha", CreatedTS: 100, BodyMD: "## Plan\nSome context.\n- [ ] write tests\nTODO: ship it"},
		{FromAgent: "beta", CreatedTS: 200, BodyMD: "Looks good to me."},
	}
	summary, err := Summarize(messages, nil)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if !summary.Degraded {
		t.Fatal("want degraded when no summarizer configured")
	}
	if summary.TotalMessages != 2 || summary.FirstTS != 100 || summary.LastTS != 200 {
		t.Fatalf("want total/first/last derived from messages, got %+v", summary)
	}
	if len(summary.Participants) != 2 {
		t.Fatalf("want two participants, got %+v", summary.Participants)
	}
	if len(summary.KeyPoints) == 0 {
		t.Fatalf("want at least one key point, got %+v", summary.KeyPoints)
	}
	if len(summary.ActionItems) != 2 {
		t.Fatalf("want two action items extracted, got %+v", summary.ActionItems)
	}
	if len(summary.Participants) == 2 && (summary.Participants[0] != "alpha" || summary.Participants[1] != "beta") {
		t.Fatalf("want participants in first-appearance order [alpha beta], got %v", summary.Participants)
	}
}

func TestSummarizeParticipantsAreDeterministicAcrossRuns(t *testing.T) {
	messages := []types.Message{
		{FromAgent: "zeta", CreatedTS: 100, BodyMD: "hello"},
		{FromAgent: "alpha", CreatedTS: 200, BodyMD: "hi"},
		{FromAgent: "zeta", CreatedTS: 300, BodyMD: "again"},
		{FromAgent: "mu", CreatedTS: 400, BodyMD: "last"},
	}
	want := []string{"zeta", "alpha", "mu"}
	for i := 0; i < 10; i++ {
		summary, err := Summarize(messages, nil)
		if err != nil {
			t.Fatalf("summarize: %v", err)
		}
		if len(summary.Participants) != len(want) {
			t.Fatalf("want %v, got %v", want, summary.Participants)
		}
		for j, name := range want {
			if summary.Participants[j] != name {
				t.Fatalf("want first-appearance order %v, got %v", want, summary.Participants)
			}
		}
	}
}

func TestSummarizeFallsBackOnSummarizerError(t *testing.T) {
	messages := []types.Message{{FromAgent: "alpha", CreatedTS: 100, BodyMD: "## Heading\nbody"}}
	summary, err := Summarize(messages, failingSummarizer{})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if !summary.Degraded {
		t.Fatal("want degraded=true after summarizer error falls back")
	}
}

func TestSummarizeUsesCustomSummarizerWhenProvided(t *testing.T) {
	messages := []types.Message{{FromAgent: "alpha", CreatedTS: 100, BodyMD: "body"}}
	summary, err := Summarize(messages, stubSummarizer{points: []string{"custom point"}})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if summary.Degraded {
		t.Fatal("want degraded=false when a real summarizer succeeds")
	}
	if len(summary.KeyPoints) != 1 || summary.KeyPoints[0] != "custom point" {
		t.Fatalf("want custom key points passed through, got %+v", summary.KeyPoints)
	}
}

type failingSummarizer struct{}

func (failingSummarizer) Summarize([]types.Message) ([]string, []string, error) {
	return nil, nil, errors.New("boom")
}

type stubSummarizer struct{ points []string }

func (s stubSummarizer) Summarize([]types.Message) ([]string, []string, error) {
	return s.points, nil, nil
}
