package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ClientConfig holds OpenAI-compatible endpoint settings.
type ClientConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
}

// Client answers questions through an OpenAI-compatible chat completion API.
type Client struct {
	httpClient  *http.Client
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
	intents     map[string]struct{}
	intentList  []string
}

// NewClient builds a Client whose intent answers are restricted to allowed.
// It returns ErrDisabled when no API key is configured.
func NewClient(cfg ClientConfig, allowed []string) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrDisabled
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4.1-mini"
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	temp := cfg.Temperature
	if temp <= 0 {
		temp = 0.2
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 300
	}
	intents := make(map[string]struct{}, len(allowed))
	list := make([]string, 0, len(allowed))
	for _, name := range allowed {
		if _, dup := intents[name]; dup || name == "" {
			continue
		}
		intents[name] = struct{}{}
		list = append(list, name)
	}
	return &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		apiKey:      apiKey,
		model:       model,
		baseURL:     baseURL,
		temperature: temp,
		maxTokens:   maxTokens,
		intents:     intents,
		intentList:  list,
	}, nil
}

// Enabled reports whether the client can make outbound calls.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

type aiAnswer struct {
	Answer     string   `json:"answer"`
	Intent     string   `json:"intent"`
	Confidence *float64 `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// Answer asks the model for an answer drawn from the request's profile.
func (c *Client) Answer(ctx context.Context, req Request) (Prediction, error) {
	if !c.Enabled() {
		return Prediction{}, ErrDisabled
	}

	body, err := json.Marshal(c.buildPayload(req))
	if err != nil {
		return Prediction{}, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Prediction{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Prediction{}, fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return Prediction{}, fmt.Errorf("openai status %d: %v", resp.StatusCode, apiErr)
	}

	var decoded chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Prediction{}, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return Prediction{}, errors.New("openai empty response")
	}

	content := normalizeJSONBlock(decoded.Choices[0].Message.Content)
	if content == "" {
		return Prediction{}, ErrNoAnswer
	}
	var parsed aiAnswer
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return Prediction{}, fmt.Errorf("parse ai response: %w", err)
	}

	pred := c.sanitize(parsed)
	if pred.Answer == "" {
		return Prediction{}, ErrNoAnswer
	}
	return pred, nil
}

func (c *Client) sanitize(parsed aiAnswer) Prediction {
	pred := Prediction{
		Answer:    strings.TrimSpace(parsed.Answer),
		Intent:    strings.TrimSpace(parsed.Intent),
		Reasoning: strings.TrimSpace(parsed.Reasoning),
		Source:    SourceAI,
	}
	if _, ok := c.intents[pred.Intent]; !ok {
		pred.Intent = "unknown"
	}
	if parsed.Confidence != nil {
		pred.Confidence = clamp(*parsed.Confidence, 0, 1)
	}
	if pred.Reasoning == "" {
		pred.Reasoning = "Generated by language model"
	}
	return pred
}

func normalizeJSONBlock(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.IndexRune(trimmed, '\n'); idx >= 0 {
			trimmed = trimmed[idx+1:]
		}
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	}
	trimmed = strings.TrimSpace(trimmed)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end >= start {
		return strings.TrimSpace(trimmed[start : end+1])
	}
	return trimmed
}

const systemPrompt = "You fill in job application forms for a candidate. Reply with a strict JSON object with keys answer, intent, confidence and reasoning. " +
	"Use only facts present in the candidate profile. If the profile does not contain the answer, set answer to an empty string and confidence to 0. " +
	"When options are listed, answer must be copied verbatim from the options. intent must be one of the listed intents or \"unknown\". " +
	"confidence must be a decimal between 0 and 1. Emit nothing outside the JSON object."

func (c *Client) buildPayload(req Request) map[string]any {
	messages := []map[string]string{
		{"role": "system", "content": systemPrompt},
		{"role": "user", "content": c.buildUserPrompt(req)},
	}
	payload := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": c.temperature,
	}
	if c.maxTokens > 0 {
		payload["max_tokens"] = c.maxTokens
	}
	return payload
}

func (c *Client) buildUserPrompt(req Request) string {
	builder := &strings.Builder{}
	fmt.Fprintf(builder, "Question: %s\n", strings.TrimSpace(req.Question))
	if req.FieldType != "" {
		fmt.Fprintf(builder, "Field type: %s\n", req.FieldType)
	}
	if len(req.Options) > 0 {
		fmt.Fprintf(builder, "Options: %s\n", strings.Join(req.Options, " | "))
	}
	if len(c.intentList) > 0 {
		fmt.Fprintf(builder, "Intents: %s\n", strings.Join(c.intentList, ", "))
	}
	if len(req.Profile) > 0 {
		if doc, err := json.Marshal(req.Profile); err == nil {
			fmt.Fprintf(builder, "Candidate profile: %s\n", doc)
		}
	} else {
		builder.WriteString("Candidate profile: (none)\n")
	}
	return builder.String()
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}
