package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sparring-ai/sparring/pkg/core/transcript"
	"github.com/sparring-ai/sparring/pkg/scenario"
)

func TestBuildDialogueSkipsPartialsAndBlanks(t *testing.T) {
	items := []transcript.Item{
		{Role: transcript.RoleAgent, Text: "Talk to me.", Partial: false},
		{Role: transcript.RoleUser, Text: "I deserve a raise.", Partial: false},
		{Role: transcript.RoleUser, Text: "still typing", Partial: true},
		{Role: transcript.RoleAgent, Text: "   ", Partial: false},
	}

	got := BuildDialogue(items)
	want := "Interlocutor: Talk to me.\nUser: I deserve a raise."
	if got != want {
		t.Fatalf("dialogue = %q, want %q", got, want)
	}
}

func TestBuildDialogueEmptyTranscript(t *testing.T) {
	if got := BuildDialogue(nil); got != "" {
		t.Fatalf("dialogue of empty transcript = %q", got)
	}
	partialOnly := []transcript.Item{{Role: transcript.RoleUser, Text: "hm", Partial: true}}
	if got := BuildDialogue(partialOnly); got != "" {
		t.Fatalf("dialogue of partial-only transcript = %q", got)
	}
}

func TestAnalyzeRefusesEmptyDialogue(t *testing.T) {
	c := NewClient("test-key", nil)
	_, err := c.Analyze(context.Background(), nil, scenario.Scenario{Name: "x"})
	if !errors.Is(err, ErrEmptyDialogue) {
		t.Fatalf("err = %v, want ErrEmptyDialogue", err)
	}
}

func TestBuildPromptIncludesObjectivesAndDialogue(t *testing.T) {
	sc := scenario.Scenario{
		Name:        "Salary Negotiation",
		Description: "You believe you are underpaid.",
		Objectives:  []string{"State your number.", "Don't apologize."},
	}
	prompt := BuildPrompt("User: I want 20% more.", sc)

	for _, want := range []string{
		"Salary Negotiation",
		"You believe you are underpaid.",
		"1. State your number.",
		"2. Don't apologize.",
		"User: I want 20% more.",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildPromptBackfillsObjectives(t *testing.T) {
	prompt := BuildPrompt("User: hi", scenario.Scenario{Name: "x"})
	if !strings.Contains(prompt, "Maintain professionalism") {
		t.Fatal("prompt should fall back to default objectives")
	}
}

func TestReportSchemaCoversAllFields(t *testing.T) {
	schema := reportSchema()
	for _, field := range []string{
		"score", "metrics", "feedback", "strengths", "improvements",
		"criticalMoments", "suggestions", "sentimentTrend", "objectiveResults", "outcome",
	} {
		if _, ok := schema.Properties[field]; !ok {
			t.Fatalf("schema missing property %q", field)
		}
	}
	if len(schema.Required) != len(schema.Properties) {
		t.Fatalf("schema requires %d of %d properties", len(schema.Required), len(schema.Properties))
	}
}
