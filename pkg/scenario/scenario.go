// Package scenario holds the built-in roleplay scenarios: who the
// interlocutor is, what the user has to achieve, and how the room
// should sound.
package scenario

import (
	"fmt"
	"time"

	"github.com/sparring-ai/sparring/pkg/core/ambience"
)

// Difficulty grades a scenario.
type Difficulty string

const (
	Easy    Difficulty = "easy"
	Medium  Difficulty = "medium"
	Hard    Difficulty = "hard"
	Extreme Difficulty = "extreme"
)

// Scenario is one roleplay setup. Pure data; the session engine and
// the analysis client both read from it.
type Scenario struct {
	ID          string
	Name        string
	Description string
	Difficulty  Difficulty
	// Persona is the system instruction handed to the agent.
	Persona string
	// Voice is the prebuilt voice name for the agent.
	Voice    string
	Duration time.Duration
	Ambience ambience.Kind
	// Objectives are verified by the post-session analysis.
	Objectives []string
}

// Builtin returns the scenario catalog in presentation order.
func Builtin() []Scenario {
	return []Scenario{
		{
			ID:          "salary-negotiation",
			Name:        "Salary Negotiation",
			Description: "You believe you are underpaid. The boss thinks the budget is tight.",
			Difficulty:  Medium,
			Voice:       "Fenrir",
			Duration:    5 * time.Minute,
			Ambience:    ambience.Office,
			Objectives: []string{
				"Clearly state your desired salary number.",
				"Reference specific market data or achievements.",
				"Don't apologize for asking.",
			},
			Persona: "You are Mr. Sterling, a tough but fair department head. " +
				"The user is an employee coming to ask for a raise. " +
				"Your company is currently under a hiring freeze and budget cuts. " +
				"You value the employee but need to be convinced with hard data. " +
				"Start by asking: \"So, you wanted to see me about your compensation? Talk to me.\" " +
				"Speak in English.",
		},
		{
			ID:          "promotion-pitch",
			Name:        "Promotion Pitch",
			Description: "A senior role just opened up. Pitch yourself against external candidates.",
			Difficulty:  Hard,
			Voice:       "Kore",
			Duration:    3 * time.Minute,
			Ambience:    ambience.Office,
			Objectives: []string{
				"Highlight your internal knowledge as an advantage.",
				"Propose a vision for the first 90 days.",
				"Remain confident when challenged about external candidates.",
			},
			Persona: "You are VP Elena Rostova, a highly demanding executive. " +
				"The user is pitching themselves for the new Senior Director role. " +
				"You are skeptical because you prefer hiring external candidates with \"fresh perspectives\". " +
				"The user needs to prove their internal knowledge is an asset, not a crutch. " +
				"Start by saying: \"I have five minutes before my board meeting. Tell me why I shouldn't hire the candidate from Google.\" " +
				"Speak in English.",
		},
		{
			ID:          "project-failure",
			Name:        "Project Failure",
			Description: "A critical deadline was missed. You need to explain why.",
			Difficulty:  Hard,
			Voice:       "Charon",
			Duration:    4 * time.Minute,
			Ambience:    ambience.Intense,
			Objectives: []string{
				"Take full accountability without blaming the team.",
				"Present a concrete recovery plan.",
				"Don't get defensive when criticized.",
			},
			Persona: "You are Director Vance, a results-driven executive. " +
				"The user is a project manager who just missed a critical launch deadline for the 'Phoenix' project. " +
				"You are angry but trying to keep it professional. You want accountability, not excuses. " +
				"Start by saying: \"I just saw the report. The Phoenix launch is scrubbed. Explain yourself.\" " +
				"Speak in English.",
		},
		{
			ID:          "team-conflict",
			Name:        "Team Conflict",
			Description: "A key team member is threatening to quit because of your leadership style.",
			Difficulty:  Medium,
			Voice:       "Puck",
			Duration:    6 * time.Minute,
			Ambience:    ambience.Quiet,
			Objectives: []string{
				"Use active listening (validate their feelings).",
				"Ask open-ended questions to understand the root cause.",
				"Commit to a specific change in your behavior.",
			},
			Persona: "You are Alex, a talented but sensitive lead developer reporting to the user. " +
				"You feel micromanaged and undervalued. You are thinking of quitting. " +
				"The user (your manager) needs to talk you down and address the issues without losing authority. " +
				"Start by saying: \"Look, I don't think this is working out anymore. I'm tired of having my code rewritten.\" " +
				"Speak in English.",
		},
		{
			ID:          "resignation",
			Name:        "Resignation",
			Description: "You are leaving for a competitor. The boss wants you to stay.",
			Difficulty:  Easy,
			Voice:       "Aoede",
			Duration:    3 * time.Minute,
			Ambience:    ambience.Quiet,
			Objectives: []string{
				"Express gratitude for the opportunity.",
				"Stand firm on your decision to leave.",
				"Offer a smooth transition plan.",
			},
			Persona: "You are Sarah, a supportive manager who relies heavily on the user. " +
				"The user is handing in their resignation. " +
				"You are shocked and desperate to keep them. You will offer counter-offers and guilt trips. " +
				"Start by saying: \"You wanted to chat? I hope it's good news, we have a lot on our plate right now.\" " +
				"Speak in English.",
		},
	}
}

// ByID looks a scenario up in the builtin catalog.
func ByID(id string) (Scenario, error) {
	for _, s := range Builtin() {
		if s.ID == id {
			return s, nil
		}
	}
	return Scenario{}, fmt.Errorf("unknown scenario %q", id)
}

// DefaultObjectives backfills scenarios that declare none.
func DefaultObjectives() []string {
	return []string{
		"Maintain professionalism",
		"Communicate clearly",
		"Achieve the goal",
	}
}
