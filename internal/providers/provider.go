package providers

import (
	"context"
	"encoding/base64"
	"fmt"
)

// FinishReason reports why the model stopped generating.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content-filter"
	FinishError         FinishReason = "error"
	FinishOther         FinishReason = "other"
)

// Image is one page image attached to a completion request.
type Image struct {
	MediaType string `json:"mediaType"`
	Data      []byte `json:"data"`
}

// Base64 returns the image payload in standard base64 encoding.
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// Request contains the data sent to an LLM for one completion call.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Images       []Image
	MaxTokens    int
	Temperature  float64
}

// Response contains the raw response from an LLM.
type Response struct {
	Content      string
	FinishReason FinishReason
	TokensUsed   int
}

// Completer is the completion service abstraction.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Name() string
}

// New creates a provider by name.
func New(provider, model string) (Completer, error) {
	switch provider {
	case "anthropic":
		return NewAnthropic(model)
	case "openai":
		return NewOpenAI(model)
	case "gemini", "google":
		return NewGemini(model)
	case "ollama", "lmstudio":
		return NewOllama(model)
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}
