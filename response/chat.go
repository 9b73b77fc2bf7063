package response

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"aegis/models"
)

const deepSeekEndpoint = "https://api.deepseek.com/v1/chat/completions"

type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatResponse struct {
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Message Message `json:"message"`
}

// Chat drafts responses through an OpenAI-compatible chat completions API,
// DeepSeek by default.
type Chat struct {
	APIKey   string
	Model    string
	Endpoint string
	Client   *http.Client
}

func NewDeepSeek(apiKey string) *Chat {
	return &Chat{
		APIKey:   apiKey,
		Model:    "deepseek-chat",
		Endpoint: deepSeekEndpoint,
		Client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Chat) Name() string { return "deepseek" }

func (c *Chat) Generate(ctx context.Context, b Brief, measures []models.MeasureType) (map[models.MeasureType]string, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("DEEPSEEK_API_KEY not configured")
	}

	// Подготавливаем запрос
	requestBody := ChatRequest{
		Model: c.Model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt(b)},
			{Role: "user", Content: userPrompt(b, measures)},
		},
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	}
	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	// Отправляем запрос
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("DeepSeek API error: %s", string(body))
	}

	// Парсим ответ
	var response ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, err
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response from DeepSeek")
	}
	return parseDrafts(response.Choices[0].Message.Content, measures)
}
