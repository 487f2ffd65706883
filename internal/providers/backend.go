package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/jackzampolin/ocrion/internal/extract"
	prompt "github.com/jackzampolin/ocrion/internal/prompts/extract"
)

// Backend sends extraction prompts to a client looked up in a Registry, so
// that config reloads take effect on the next call.
type Backend struct {
	Registry *Registry
	// Provider is the registry name of the client to use.
	Provider string
	// Model overrides the client's default model when set.
	Model       string
	MaxTokens   int
	Temperature float64
}

// Send implements extract.Backend. The prompt goes out as the user message
// after the extraction system message, asking for a JSON object reply.
func (b *Backend) Send(ctx context.Context, p string, timeout time.Duration) (string, error) {
	client, err := b.Registry.Get(b.Provider)
	if err != nil {
		return "", err
	}

	result, err := client.Chat(ctx, &ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: prompt.SystemPrompt()},
			{Role: RoleUser, Content: p},
		},
		Model:          b.Model,
		Temperature:    b.Temperature,
		MaxTokens:      b.MaxTokens,
		Timeout:        timeout,
		ResponseFormat: JSONObject,
	})
	if err != nil {
		return "", err
	}
	if !result.Success {
		return "", fmt.Errorf("%s: %s: %s", client.Name(), result.ErrorType, result.ErrorMessage)
	}
	return result.Content, nil
}

// ProviderName returns the registry name of the client in use.
func (b *Backend) ProviderName() string {
	return b.Provider
}

// ModelName returns the model requests are sent to.
func (b *Backend) ModelName() string {
	if b.Model != "" {
		return b.Model
	}
	client, err := b.Registry.Get(b.Provider)
	if err != nil {
		return ""
	}
	if d, ok := client.(interface{ DefaultModel() string }); ok {
		return d.DefaultModel()
	}
	return ""
}

var _ extract.Backend = (*Backend)(nil)
