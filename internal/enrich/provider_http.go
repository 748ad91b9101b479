package enrich

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPProvider is the fallback LLM provider, a plain net/http client
// against an OpenAI-compatible chat completions endpoint. It is
// deliberately independent of any vendor SDK so a primary-provider
// outage (SDK bug, vendor incident) cannot take the fallback down with
// it, per SPEC_FULL.md's rationale for two independently-implemented
// providers.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewHTTPProvider constructs a fallback provider bound to baseURL (an
// OpenAI-compatible /chat/completions root), apiKey, and model.
func NewHTTPProvider(baseURL, apiKey, model string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Analyze sends req to the fallback endpoint. Images are inlined as a
// base64 data-URL note in the prompt text, since the OpenAI-compatible
// chat schema used here is text-only.
func (p *HTTPProvider) Analyze(ctx context.Context, req Request) ([]Item, error) {
	prompt := fmt.Sprintf(analyzePrompt, req.Text)
	if len(req.Image) > 0 {
		prompt += "\n\n[image attached: data:image/png;base64," + base64.StdEncoding.EncodeToString(req.Image) + "]"
	}

	body, err := json.Marshal(chatRequest{
		Model:    p.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, &ProviderError{Kind: FailurePermanent, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{Kind: FailurePermanent, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Kind: classify(0, err), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Kind: FailureMalformed, Err: err}
	}
	if resp.StatusCode >= 300 {
		return nil, &ProviderError{Kind: classify(resp.StatusCode, nil), Err: fmt.Errorf("enrich: fallback provider status %d: %s", resp.StatusCode, respBody)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil || len(parsed.Choices) == 0 {
		return nil, &ProviderError{Kind: FailureMalformed, Err: fmt.Errorf("enrich: malformed fallback response")}
	}

	text := parsed.Choices[0].Message.Content
	start, end := strings.Index(text, "["), strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end <= start {
		return nil, &ProviderError{Kind: FailureMalformed, Err: fmt.Errorf("enrich: no JSON array in fallback response")}
	}

	var items []Item
	if err := json.Unmarshal([]byte(text[start:end+1]), &items); err != nil {
		return nil, &ProviderError{Kind: FailureMalformed, Err: fmt.Errorf("enrich: parse fallback response: %w", err)}
	}
	return items, nil
}
