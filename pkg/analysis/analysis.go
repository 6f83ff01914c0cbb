// Package analysis turns a finished session transcript into a
// structured performance report via a schema-constrained model call.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/sparring-ai/sparring/pkg/core/transcript"
	"github.com/sparring-ai/sparring/pkg/scenario"
)

// DefaultModel handles the post-session reasoning task.
const DefaultModel = "gemini-3-pro-preview"

// Metrics grades the user on four axes, 0-100 each.
type Metrics struct {
	Clarity    int `json:"clarity"`
	Persuasion int `json:"persuasion"`
	Empathy    int `json:"empathy"`
	Resilience int `json:"resilience"`
}

// CriticalMoment is one quoted exchange worth highlighting.
type CriticalMoment struct {
	Quote    string `json:"quote"`
	Feedback string `json:"feedback"`
	Type     string `json:"type"`
}

// Suggestion rewrites a weak response into a stronger one.
type Suggestion struct {
	Context        string `json:"context"`
	UserSaid       string `json:"userSaid"`
	BetterResponse string `json:"betterResponse"`
	Reason         string `json:"reason"`
}

// SentimentPoint tracks the conversation mood over one segment.
type SentimentPoint struct {
	Segment string `json:"segment"`
	Score   int    `json:"score"`
	Reason  string `json:"reason"`
}

// ObjectiveResult verifies one scenario objective.
type ObjectiveResult struct {
	Objective string `json:"objective"`
	Completed bool   `json:"completed"`
	Feedback  string `json:"feedback"`
}

// Report is the full post-session performance report.
type Report struct {
	Score            int               `json:"score"`
	Metrics          Metrics           `json:"metrics"`
	Feedback         string            `json:"feedback"`
	Strengths        []string          `json:"strengths"`
	Improvements     []string          `json:"improvements"`
	CriticalMoments  []CriticalMoment  `json:"criticalMoments"`
	Suggestions      []Suggestion      `json:"suggestions"`
	SentimentTrend   []SentimentPoint  `json:"sentimentTrend"`
	ObjectiveResults []ObjectiveResult `json:"objectiveResults"`
	Outcome          string            `json:"outcome"`
}

// Analyzer produces a report from a sealed transcript. The session
// engine only depends on this interface.
type Analyzer interface {
	Analyze(ctx context.Context, items []transcript.Item, sc scenario.Scenario) (*Report, error)
}

// ErrEmptyDialogue is returned when the transcript holds no sealed,
// non-blank items to analyze.
var ErrEmptyDialogue = errors.New("no conversation to analyze")

// Client calls the Gemini API for reports.
type Client struct {
	apiKey string
	model  string
	logger *slog.Logger
}

// NewClient creates an analysis client.
func NewClient(apiKey string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{apiKey: apiKey, model: DefaultModel, logger: logger}
}

// BuildDialogue flattens sealed transcript items into the labeled
// dialogue the prompt embeds. Partial and blank items are skipped.
func BuildDialogue(items []transcript.Item) string {
	var b strings.Builder
	for _, it := range items {
		if it.Partial || strings.TrimSpace(it.Text) == "" {
			continue
		}
		speaker := "Interlocutor"
		if it.Role == transcript.RoleUser {
			speaker = "User"
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(speaker)
		b.WriteString(": ")
		b.WriteString(it.Text)
	}
	return b.String()
}

// BuildPrompt assembles the analysis prompt for a dialogue.
func BuildPrompt(dialogue string, sc scenario.Scenario) string {
	objectives := sc.Objectives
	if len(objectives) == 0 {
		objectives = scenario.DefaultObjectives()
	}
	var numbered strings.Builder
	for i, obj := range objectives {
		fmt.Fprintf(&numbered, "%d. %s\n", i+1, obj)
	}

	return fmt.Sprintf(`Analyze the following roleplay conversation based on the scenario: %q.
Scenario context: %s

The user played themselves. The AI played the interlocutor.

Mission objectives to verify:
%s
Evaluate the user's performance on:
1. Metrics (0-100): Clarity, Persuasion, Empathy, Resilience.
2. Objectives: did they satisfy each mission objective listed above?
3. Critical moments: identify 1-3 key quotes.
4. Tactical rewrites: identify 1-2 weak responses and provide a better alternative.
5. Overall outcome: Success/Failure/Neutral.

Provide a JSON response.

Conversation transcript:
%s`, sc.Name, sc.Description, numbered.String(), dialogue)
}

// Analyze implements Analyzer.
func (c *Client) Analyze(ctx context.Context, items []transcript.Item, sc scenario.Scenario) (*Report, error) {
	dialogue := BuildDialogue(items)
	if dialogue == "" {
		return nil, ErrEmptyDialogue
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	resp, err := client.Models.GenerateContent(ctx, c.model,
		genai.Text(BuildPrompt(dialogue, sc)),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   reportSchema(),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("generate analysis: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("empty response from analysis model")
	}
	var report Report
	if err := json.Unmarshal([]byte(text), &report); err != nil {
		return nil, fmt.Errorf("parse analysis response: %w", err)
	}
	c.logger.Info("analysis complete", "score", report.Score, "outcome", report.Outcome)
	return &report, nil
}

func reportSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"score": {Type: genai.TypeInteger},
			"metrics": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"clarity":    {Type: genai.TypeInteger},
					"persuasion": {Type: genai.TypeInteger},
					"empathy":    {Type: genai.TypeInteger},
					"resilience": {Type: genai.TypeInteger},
				},
				Required: []string{"clarity", "persuasion", "empathy", "resilience"},
			},
			"feedback":     {Type: genai.TypeString},
			"strengths":    {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"improvements": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"criticalMoments": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"quote":    {Type: genai.TypeString},
						"feedback": {Type: genai.TypeString},
						"type":     {Type: genai.TypeString, Enum: []string{"Positive", "Negative"}},
					},
					Required: []string{"quote", "feedback", "type"},
				},
			},
			"suggestions": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"context":        {Type: genai.TypeString},
						"userSaid":       {Type: genai.TypeString},
						"betterResponse": {Type: genai.TypeString},
						"reason":         {Type: genai.TypeString},
					},
					Required: []string{"context", "userSaid", "betterResponse", "reason"},
				},
			},
			"sentimentTrend": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"segment": {Type: genai.TypeString},
						"score":   {Type: genai.TypeInteger},
						"reason":  {Type: genai.TypeString},
					},
					Required: []string{"segment", "score", "reason"},
				},
			},
			"objectiveResults": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"objective": {Type: genai.TypeString},
						"completed": {Type: genai.TypeBoolean},
						"feedback":  {Type: genai.TypeString},
					},
					Required: []string{"objective", "completed", "feedback"},
				},
			},
			"outcome": {Type: genai.TypeString, Enum: []string{"Success", "Failure", "Neutral"}},
		},
		Required: []string{
			"score", "metrics", "feedback", "strengths", "improvements",
			"criticalMoments", "objectiveResults", "suggestions", "sentimentTrend", "outcome",
		},
	}
}
