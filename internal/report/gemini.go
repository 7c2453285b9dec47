package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultModelName is used when no model is configured.
const DefaultModelName = "gemini-2.5-flash"

// Generator turns a payload into a report.
type Generator interface {
	Generate(ctx context.Context, p Payload) (Report, error)
}

// ContentGenerator is the part of the genai client the generator uses.
// *genai.Models satisfies it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiGenerator asks a Gemini model for a JSON report.
type GeminiGenerator struct {
	models ContentGenerator
	model  string
}

// NewGeminiGenerator creates a genai client from the environment
// (GOOGLE_API_KEY, or the Vertex AI variables).
func NewGeminiGenerator(ctx context.Context, model string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiGenerator: create genai client: %w", err)
	}
	return NewGeminiGeneratorWithClient(client.Models, model), nil
}

func NewGeminiGeneratorWithClient(models ContentGenerator, model string) *GeminiGenerator {
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiGenerator{models: models, model: model}
}

const reportPrompt = "You are a personal finance coach.\n" +
	"Below is the user's data for one month as JSON.\n\n" +
	"Analyse it and report on:\n" +
	"- a clear summary\n" +
	"- points to watch\n" +
	"- problematic spending\n" +
	"- opportunities to improve\n" +
	"- an end-of-month projection\n" +
	"- how well each category budget is respected\n" +
	"- progress of each savings goal\n" +
	"- personalised advice\n" +
	"- a financial stability score from 0 to 100\n\n" +
	"Return ONLY valid raw JSON, without Markdown, with exactly this structure:\n" +
	"{\n" +
	"\"summary\": \"...\",\n" +
	"\"watch\": [\"...\"],\n" +
	"\"problems\": [\"...\"],\n" +
	"\"opportunities\": [\"...\"],\n" +
	"\"projection\": \"...\",\n" +
	"\"budgets\": {\"Category\": \"Status\"},\n" +
	"\"goals\": {\"Goal\": \"Status\"},\n" +
	"\"advice\": [\"...\"],\n" +
	"\"score\": 87\n" +
	"}\n\n" +
	"User data:\n"

func buildPrompt(p Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return reportPrompt + string(data), nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, p Payload) (Report, error) {
	prompt, err := buildPrompt(p)
	if err != nil {
		return Report{}, fmt.Errorf("Generate: %w", err)
	}

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}
	config := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return Report{}, fmt.Errorf("Generate: generate content: %w", err)
	}

	r, err := parseReport(resp.Text())
	if err != nil {
		return Report{}, fmt.Errorf("Generate: %w", err)
	}
	return r, nil
}

func parseReport(raw string) (Report, error) {
	if strings.TrimSpace(raw) == "" {
		return Report{}, ErrEmptyResponse
	}
	var r Report
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &r); err != nil {
		return Report{}, fmt.Errorf("%w: unmarshal: %v", ErrInvalidReport, err)
	}
	if err := r.Validate(); err != nil {
		return Report{}, err
	}
	return r, nil
}

// cleanModelJSON strips Markdown fences and any text around the outermost
// JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return s
}

type unavailableGenerator struct{ err error }

func (u unavailableGenerator) Generate(context.Context, Payload) (Report, error) {
	return Report{}, fmt.Errorf("Generate: generator unavailable: %w", u.err)
}

// Unavailable returns a Generator that fails every call with err, for
// processes started without model credentials.
func Unavailable(err error) Generator {
	return unavailableGenerator{err: err}
}
