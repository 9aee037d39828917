// Package llm provides LLM-based answer synthesis for the evidence service.
//
// This package defines the abstractions and prompt engineering required to
// turn a bounded, citation-numbered evidence list into a cited narrative
// answer using large language models (Anthropic, OpenAI). The evidence list
// is produced upstream by the aggregation pipeline; this package never
// searches or fetches articles itself.
//
// Example usage:
//
//	synth, err := llm.NewSynthesizer(cfg)
//	req := llm.SynthesisRequest{
//		Question: "Does metformin reduce cardiovascular risk?",
//		Evidence: formattedBlocks,
//	}
//	result, err := synth.Synthesize(ctx, req)
package llm

import (
	"context"
	"fmt"
	"strings"
)

// DefaultFollowUps is the number of follow-up questions requested when the
// caller does not specify one.
const DefaultFollowUps = 3

// ConversationTurn is one prior exchange in the conversation, included so
// follow-up questions can be answered in context.
type ConversationTurn struct {
	// Role is "user" or "assistant".
	Role string `json:"role"`

	// Content is the turn's text.
	Content string `json:"content"`
}

// SynthesisRequest contains the inputs for one synthesis call.
type SynthesisRequest struct {
	// Question is the user's medical question.
	Question string

	// Evidence is the citation-numbered evidence block text produced by
	// the evidence formatter. May be empty when no sources matched.
	Evidence string

	// History holds prior conversation turns, oldest first (optional).
	History []ConversationTurn

	// MaxFollowUps is the number of follow-up questions to request.
	// Zero uses DefaultFollowUps.
	MaxFollowUps int
}

// SynthesisResult contains the synthesized answer and metadata.
type SynthesisResult struct {
	// Answer is the cited narrative answer.
	Answer string

	// FollowUps are suggested follow-up questions.
	FollowUps []string

	// Model is the LLM model used.
	Model string

	// InputTokens is the number of input tokens used.
	InputTokens int

	// OutputTokens is the number of output tokens used.
	OutputTokens int
}

// Synthesizer defines the interface for LLM-based answer synthesis.
//
// Implementations should handle provider-specific API calls, response
// parsing, and error handling while conforming to this unified interface.
type Synthesizer interface {
	// Synthesize generates a cited narrative answer from the evidence.
	// The context should be used for cancellation and deadline
	// propagation.
	Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error)

	// Provider returns the name of the LLM provider (e.g., "openai",
	// "anthropic").
	Provider() string

	// Model returns the model identifier being used.
	Model() string
}

// llmResponse is the expected JSON structure from LLM responses.
type llmResponse struct {
	Answer    string   `json:"answer"`
	FollowUps []string `json:"follow_up_questions,omitempty"`
}

// BuildSynthesisPrompt builds the system and user prompts for answer
// synthesis. The system prompt fixes the role, citation rules, and response
// format; the user prompt carries the evidence, prior turns, and question.
func BuildSynthesisPrompt(req SynthesisRequest) (systemPrompt, userPrompt string) {
	systemPrompt = buildSystemPrompt(req)
	userPrompt = buildUserPrompt(req)
	return systemPrompt, userPrompt
}

// buildSystemPrompt constructs the system-level instructions for the LLM.
func buildSystemPrompt(req SynthesisRequest) string {
	var sb strings.Builder

	sb.WriteString("You are a medical evidence synthesis specialist. Your task is to ")
	sb.WriteString("answer medical questions using ONLY the numbered evidence provided, ")
	sb.WriteString("writing a clear narrative answer that a clinician or informed patient ")
	sb.WriteString("can act on.\n\n")

	sb.WriteString("You MUST respond with valid JSON in exactly this format:\n")
	sb.WriteString(`{"answer": "Narrative answer with inline citations like [1] and [2].", "follow_up_questions": ["question 1", "question 2"]}`)
	sb.WriteString("\n\n")

	sb.WriteString("Rules for the answer:\n")
	sb.WriteString("1. Cite evidence inline using the bracketed numbers, e.g. [1], [3].\n")
	sb.WriteString("2. Every factual claim must carry at least one citation.\n")
	sb.WriteString("3. Do not cite numbers that are not in the evidence list.\n")
	sb.WriteString("4. If the evidence is insufficient or conflicting, say so explicitly.\n")
	sb.WriteString("5. Note the study types behind key claims (RCT, meta-analysis, trial record).\n")
	sb.WriteString("6. Never invent findings, statistics, or sources.\n")

	followUps := req.MaxFollowUps
	if followUps <= 0 {
		followUps = DefaultFollowUps
	}
	fmt.Fprintf(&sb, "\nSuggest exactly %d follow-up questions that would deepen or broaden the answer.\n", followUps)

	return sb.String()
}

// buildUserPrompt constructs the user-level prompt containing the evidence,
// prior conversation, and the question.
func buildUserPrompt(req SynthesisRequest) string {
	var sb strings.Builder

	if req.Evidence != "" {
		sb.WriteString("Evidence:\n")
		sb.WriteString("---\n")
		sb.WriteString(req.Evidence)
		sb.WriteString("\n---\n\n")
	} else {
		sb.WriteString("Evidence: none of the queried sources returned matching articles. ")
		sb.WriteString("State that no supporting literature was found; do not answer from memory.\n\n")
	}

	if len(req.History) > 0 {
		sb.WriteString("Prior conversation:\n")
		for _, turn := range req.History {
			fmt.Fprintf(&sb, "%s: %s\n", turn.Role, turn.Content)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Question: ")
	sb.WriteString(req.Question)

	return sb.String()
}
