package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/adamavenir/agentmail/internal/types"
)

// HTTPSummarizer calls an OpenAI-compatible chat completions endpoint to
// extract key_points/action_items, the one production Summarizer the
// specification's LLM_ENABLED toggle gates. No LLM client library appears
// in the example corpus (the original Python implementation used LiteLLM,
// itself an HTTP client over provider-specific REST APIs), so this speaks
// the same wire protocol directly over net/http rather than importing an
// unvetted Go LLM SDK.
type HTTPSummarizer struct {
	Model      string
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewHTTPSummarizer builds a summarizer for model, reading its API key from
// OPENAI_API_KEY (and, if set, OPENAI_BASE_URL) the way the original
// implementation's LiteLLM router read provider credentials from the
// process environment rather than the application's own config surface.
func NewHTTPSummarizer(model string) *HTTPSummarizer {
	baseURL := os.Getenv("OPENAI_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &HTTPSummarizer{
		Model:      model,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     os.Getenv("OPENAI_API_KEY"),
		HTTPClient: &http.Client{Timeout: 20 * time.Second},
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type extraction struct {
	KeyPoints   []string `json:"key_points"`
	ActionItems []string `json:"action_items"`
}

func (s *HTTPSummarizer) Summarize(messages []types.Message) ([]string, []string, error) {
	if s.APIKey == "" {
		return nil, nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	var transcript strings.Builder
	for _, msg := range messages {
		fmt.Fprintf(&transcript, "[%s] %s\n%s\n\n", msg.FromAgent, msg.Subject, msg.BodyMD)
	}

	reqBody := chatRequest{
		Model: s.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "Extract key_points and action_items from this thread of messages between coding agents. Respond with JSON: {\"key_points\": [...], \"action_items\": [...]}."},
			{Role: "user", Content: transcript.String()},
		},
	}
	reqBody.ResponseFormat.Type = "json_object"

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.APIKey)

	resp, err := s.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("call completions endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("completions endpoint returned %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, nil, fmt.Errorf("no choices in response")
	}

	var ext extraction
	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), &ext); err != nil {
		return nil, nil, fmt.Errorf("parse extraction: %w", err)
	}
	return ext.KeyPoints, ext.ActionItems, nil
}
