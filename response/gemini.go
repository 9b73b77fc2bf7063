package response

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"aegis/models"
)

const DefaultGeminiModel = "gemini-2.0-flash-lite"

// Gemini drafts responses with the Gemini API using a JSON response schema.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Generate(ctx context.Context, b Brief, measures []models.MeasureType) (map[models.MeasureType]string, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: userPrompt(b, measures)}},
		Role:  "user",
	}}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt(b)}}},
		ResponseMIMEType:  "application/json",
		ResponseSchema:    responseSchema(measures),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}
	return parseDrafts(resp.Text(), measures)
}

func responseSchema(measures []models.MeasureType) *genai.Schema {
	props := make(map[string]*genai.Schema, len(measures))
	required := make([]string, 0, len(measures))
	for _, mt := range measures {
		key := measureKey(mt)
		props[key] = &genai.Schema{Type: genai.TypeString, Description: measureGuidance[mt]}
		required = append(required, key)
	}
	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: props,
		Required:   required,
	}
}
