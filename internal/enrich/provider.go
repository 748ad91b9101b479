package enrich

import "context"

// Item is one object proposal returned by a provider, per spec.md §4.3's
// fixed prompt schema: [{object_type, identifier, identifier_key, confidence}].
type Item struct {
	ObjectType    string  `json:"object_type"`
	Identifier    string  `json:"identifier"`
	IdentifierKey string  `json:"identifier_key"`
	Confidence    float64 `json:"confidence"`
}

// Request is what a worker hands a provider: the text to analyze and an
// optional screenshot.
type Request struct {
	Text  string
	Image []byte
}

// Provider is the pluggable LLM capability spec.md §4.3 describes as
// { analyze(prompt, image?) -> items | error }. Implementations classify
// their own failures by wrapping the returned error in *ProviderError.
type Provider interface {
	Analyze(ctx context.Context, req Request) ([]Item, error)
}
