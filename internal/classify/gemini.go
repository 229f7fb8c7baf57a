package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"leadwatch/internal/feed"
	"leadwatch/internal/intent"
)

// Classifier assigns an intent to a single harvested comment.
type Classifier interface {
	Classify(ctx context.Context, c feed.RawComment) (intent.Classification, error)
}

var systemInstruction = `
You are an analyst monitoring public Telegram discussion groups for a B2B
software company. For each comment you receive, classify the author's intent
and judge whether the comment is a sales lead worth a human follow-up.

The intent MUST be exactly one of:
  problem        - the author describes something broken or not working
  question       - the author asks how something works
  help_request   - the author explicitly asks for assistance
  complaint      - the author expresses dissatisfaction
  feedback       - the author shares an opinion or suggestion
  neutral        - small talk or anything that fits no other category
  buying_intent  - the author signals willingness to pay or evaluate a product
  spam           - advertising, scams, or irrelevant promotion

A comment is a lead when its intent is buying_intent, help_request or
problem. lead_score expresses how valuable the lead is: weigh explicitness
of the need, urgency, and whether the author sounds like a decision maker.
Non-leads get lead_score 0.

For leads, set need_summary to one short sentence describing what the
author needs, suitable for a follow-up queue. Leave it empty for non-leads.

Comments may be in any language. Judge the content, not the language, but
write need_summary in English.
`

type geminiResult struct {
	Intent      string  `json:"intent"`
	Confidence  float64 `json:"confidence"`
	IsLead      bool    `json:"is_lead"`
	LeadScore   float64 `json:"lead_score"`
	NeedSummary string  `json:"need_summary"`
}

func responseSchema() *genai.Schema {
	intents := make([]string, 0, len(intent.All()))
	for _, it := range intent.All() {
		intents = append(intents, it.String())
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"intent":       {Type: genai.TypeString, Enum: intents},
			"confidence":   {Type: genai.TypeNumber, Description: "Classification confidence in [0,1]."},
			"is_lead":      {Type: genai.TypeBoolean},
			"lead_score":   {Type: genai.TypeNumber, Description: "Lead value in [0,1], 0 for non-leads."},
			"need_summary": {Type: genai.TypeString, Description: "One sentence describing the need; empty for non-leads."},
		},
		Required: []string{"intent", "confidence", "is_lead", "lead_score", "need_summary"},
	}
}

// GeminiConfig configures the Gemini-backed classifier.
type GeminiConfig struct {
	APIKey      string
	Model       string
	CallTimeout time.Duration
}

// Gemini classifies comments with a single Gemini model call per comment,
// constrained to a JSON response schema.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("classify: gemini API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("classify: gemini model is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("classify: create gemini client: %w", err)
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Gemini{client: client, model: cfg.Model, timeout: timeout}, nil
}

func (g *Gemini) Classify(ctx context.Context, c feed.RawComment) (intent.Classification, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prompt := fmt.Sprintf("Channel: %s\nComment:\n%s", c.Channel, c.Text)
	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: prompt}}},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}},
		ResponseMIMEType:  "application/json",
		ResponseSchema:    responseSchema(),
	})
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
			return intent.Classification{}, fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
		}
		return intent.Classification{}, fmt.Errorf("classify: gemini call: %w", err)
	}

	var raw geminiResult
	if err := json.Unmarshal([]byte(resp.Text()), &raw); err != nil {
		return intent.Classification{}, fmt.Errorf("classify: decode gemini response: %w", err)
	}

	// The taxonomy is closed: anything unrecognized lands on neutral, and
	// the lead flag is derived from the intent rather than trusted.
	it := intent.Parse(raw.Intent)
	out := intent.Classification{
		Intent:     it,
		Confidence: clamp01(raw.Confidence),
		IsLead:     it.LeadSignal(),
	}
	if out.IsLead {
		out.LeadScore = clamp01(raw.LeadScore)
		out.NeedSummary = strings.TrimSpace(raw.NeedSummary)
	}
	return out, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
