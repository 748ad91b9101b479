package enrich

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider is the primary LLM provider, calling Claude directly
// with a fixed prompt asking for the item schema spec.md §4.3 defines.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider constructs a provider bound to apiKey and model.
func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

const analyzePrompt = `You extract structured business objects from workplace activity text. Given the text below, return a JSON array of objects matching this schema exactly, and nothing else:

[{"object_type": "<lowercase noun>", "identifier": "<human-readable name>", "identifier_key": "<stable dedup key>", "confidence": <0..1>}]

If nothing identifiable is present, return [].

Text:
%s`

// Analyze sends the request to Claude and parses the response as a JSON
// array of Item.
func (p *AnthropicProvider) Analyze(ctx context.Context, req Request) ([]Item, error) {
	blocks := []anthropic.ContentBlockParamUnion{
		anthropic.NewTextBlock(fmt.Sprintf(analyzePrompt, req.Text)),
	}
	if len(req.Image) > 0 {
		blocks = append(blocks, anthropic.NewImageBlockBase64("image/png", base64.StdEncoding.EncodeToString(req.Image)))
	}

	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(blocks...),
		},
	})
	if err != nil {
		return nil, &ProviderError{Kind: classifyAnthropicErr(err), Err: err}
	}
	if len(msg.Content) == 0 {
		return nil, &ProviderError{Kind: FailureMalformed, Err: fmt.Errorf("enrich: empty anthropic response")}
	}

	text := msg.Content[0].Text
	start, end := strings.Index(text, "["), strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end <= start {
		return nil, &ProviderError{Kind: FailureMalformed, Err: fmt.Errorf("enrich: no JSON array in response")}
	}

	var items []Item
	if err := json.Unmarshal([]byte(text[start:end+1]), &items); err != nil {
		return nil, &ProviderError{Kind: FailureMalformed, Err: fmt.Errorf("enrich: parse response: %w", err)}
	}
	return items, nil
}

// classifyAnthropicErr maps an SDK error to a FailureKind using the
// status code the SDK attaches to API errors, falling back to transient
// for anything without one (network-level failures).
func classifyAnthropicErr(err error) FailureKind {
	var apiErr *anthropic.Error
	if ok := asAnthropicError(err, &apiErr); ok {
		return classify(apiErr.StatusCode, err)
	}
	return classify(0, err)
}

func asAnthropicError(err error, target **anthropic.Error) bool {
	for err != nil {
		if e, ok := err.(*anthropic.Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
