package keyword

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const completionTimeout = 20 * time.Second

// CompletionGenerator asks an OpenAI-compatible chat completion API for
// expansion terms. Any transport or parse failure is surfaced to the
// caller, which falls back to the local variant generator.
type CompletionGenerator struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewCompletionGenerator constructs a generator with a shared HTTP client.
func NewCompletionGenerator(baseURL, apiKey, model string) *CompletionGenerator {
	return &CompletionGenerator{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: completionTimeout},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
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

// Generate requests count candidate terms relevant to topic, excluding
// already-used terms. The completion is asked for a bare JSON array;
// anything unparsable is an error.
func (g *CompletionGenerator) Generate(ctx context.Context, topic string, existing []string, count int) ([]string, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("expansion API key not configured")
	}

	prompt := fmt.Sprintf(
		"Suggest %d short social-media search keywords closely related to %q. "+
			"Do not repeat any of: %s. "+
			"Answer with a JSON array of strings only.",
		count, topic, strings.Join(existing, ", "),
	)

	body, _ := json.Marshal(chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You expand search keywords for creator discovery."},
			{Role: "user", Content: prompt},
		},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("completion API returned %d: %s", resp.StatusCode, string(raw))
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("completion returned no choices")
	}

	return parseTermArray(cr.Choices[0].Message.Content)
}

// parseTermArray extracts a JSON string array from completion output,
// tolerating surrounding prose or a markdown fence.
func parseTermArray(content string) ([]string, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in completion output")
	}

	var terms []string
	if err := json.Unmarshal([]byte(content[start:end+1]), &terms); err != nil {
		return nil, fmt.Errorf("parse term array: %w", err)
	}
	return terms, nil
}
