package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/mcpchat/mcpchat/internal/config"
)

type providerName string

const (
	providerOpenRouter providerName = "openrouter"
	providerClaude     providerName = "claude"
	providerOpenAI     providerName = "openai"
	providerDeepSeek   providerName = "deepseek"
	providerOllama     providerName = "ollama"
)

// Completer adapts an eino ChatModel to the conversation engine boundary.
// Tool schemas are bound to the model once, on the first completion that
// carries any.
type Completer struct {
	model model.ChatModel

	mu    sync.Mutex
	bound bool
}

// New selects a provider from config and returns a Completer backed by it.
func New(ctx context.Context, cfg *config.Config) (*Completer, error) {
	name, pcfg, err := resolveProvider(cfg)
	if err != nil {
		return nil, err
	}

	chatModel, err := newChatModel(ctx, name, pcfg, cfg.Chat)
	if err != nil {
		return nil, fmt.Errorf("create %s model: %w", name, err)
	}
	return &Completer{model: chatModel}, nil
}

// NewWithModel wraps an existing ChatModel; used by tests and embedding.
func NewWithModel(chatModel model.ChatModel) *Completer {
	return &Completer{model: chatModel}
}

// Complete sends the conversation to the model and returns its response.
func (c *Completer) Complete(ctx context.Context, msgs []*schema.Message, tools []*schema.ToolInfo) (*schema.Message, error) {
	if err := c.bindTools(tools); err != nil {
		return nil, err
	}
	return c.model.Generate(ctx, msgs)
}

func (c *Completer) bindTools(tools []*schema.ToolInfo) error {
	if len(tools) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bound {
		return nil
	}
	if binder, ok := c.model.(interface {
		BindTools([]*schema.ToolInfo) error
	}); ok {
		if err := binder.BindTools(tools); err != nil {
			return err
		}
	}
	c.bound = true
	return nil
}

// providerFromModel maps a "provider/model" prefix to a provider.
func providerFromModel(modelName string) providerName {
	prefix, _, found := strings.Cut(modelName, "/")
	if !found {
		return ""
	}
	switch strings.ToLower(strings.TrimSpace(prefix)) {
	case "openai":
		return providerOpenAI
	case "claude", "anthropic":
		return providerClaude
	case "deepseek":
		return providerDeepSeek
	case "openrouter":
		return providerOpenRouter
	case "ollama":
		return providerOllama
	default:
		return ""
	}
}

func providerConfigured(cfg *config.Config, name providerName) (config.ProviderConfig, bool) {
	p := cfg.Providers
	switch name {
	case providerOpenRouter:
		return p.OpenRouter, p.OpenRouter.APIKey != ""
	case providerClaude:
		return p.Claude, p.Claude.APIKey != ""
	case providerOpenAI:
		return p.OpenAI, p.OpenAI.APIKey != ""
	case providerDeepSeek:
		return p.DeepSeek, p.DeepSeek.APIKey != ""
	case providerOllama:
		return p.Ollama, p.Ollama.BaseURL != ""
	default:
		return config.ProviderConfig{}, false
	}
}

// resolveProvider picks the provider mapped by the model prefix when it is
// configured, otherwise falls back through the configured providers in a
// fixed order.
func resolveProvider(cfg *config.Config) (providerName, config.ProviderConfig, error) {
	if name := providerFromModel(cfg.Chat.Model); name != "" {
		pcfg, ok := providerConfigured(cfg, name)
		if !ok {
			if name == providerOllama {
				return "", config.ProviderConfig{}, fmt.Errorf("model %q requires providers.ollama.base_url", cfg.Chat.Model)
			}
			return "", config.ProviderConfig{}, fmt.Errorf("model %q requires providers.%s.api_key", cfg.Chat.Model, name)
		}
		return name, pcfg, nil
	}

	for _, name := range []providerName{providerOpenRouter, providerClaude, providerOpenAI, providerDeepSeek, providerOllama} {
		if pcfg, ok := providerConfigured(cfg, name); ok {
			return name, pcfg, nil
		}
	}
	return "", config.ProviderConfig{}, fmt.Errorf("no provider configured: set api_key for at least one provider")
}

// modelID strips the provider prefix for direct APIs. OpenRouter expects the
// full slug and keeps it.
func modelID(name providerName, modelName string) string {
	if name == providerOpenRouter {
		return modelName
	}
	if _, rest, found := strings.Cut(modelName, "/"); found {
		return rest
	}
	return modelName
}

func newChatModel(ctx context.Context, name providerName, pcfg config.ProviderConfig, chatCfg config.ChatConfig) (model.ChatModel, error) {
	id := modelID(name, chatCfg.Model)

	switch name {
	case providerOpenRouter:
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			Model:       id,
			APIKey:      pcfg.APIKey,
			BaseURL:     "https://openrouter.ai/api/v1",
			Temperature: toFloat32Ptr(chatCfg.Temperature),
			MaxTokens:   toIntPtr(chatCfg.MaxTokens),
		})
	case providerClaude:
		claudeCfg := &claude.Config{
			APIKey:      pcfg.APIKey,
			Model:       id,
			MaxTokens:   chatCfg.MaxTokens,
			Temperature: toFloat32Ptr(chatCfg.Temperature),
		}
		if pcfg.BaseURL != "" {
			claudeCfg.BaseURL = &pcfg.BaseURL
		}
		return claude.NewChatModel(ctx, claudeCfg)
	case providerOpenAI:
		openaiCfg := &openai.ChatModelConfig{
			Model:       id,
			APIKey:      pcfg.APIKey,
			Temperature: toFloat32Ptr(chatCfg.Temperature),
			MaxTokens:   toIntPtr(chatCfg.MaxTokens),
		}
		if pcfg.BaseURL != "" {
			openaiCfg.BaseURL = pcfg.BaseURL
		}
		return openai.NewChatModel(ctx, openaiCfg)
	case providerDeepSeek:
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			Model:       id,
			APIKey:      pcfg.APIKey,
			BaseURL:     "https://api.deepseek.com/v1",
			Temperature: toFloat32Ptr(chatCfg.Temperature),
			MaxTokens:   toIntPtr(chatCfg.MaxTokens),
		})
	case providerOllama:
		return ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: pcfg.BaseURL,
			Model:   id,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

func toFloat32Ptr(f float64) *float32 {
	v := float32(f)
	return &v
}

func toIntPtr(i int) *int {
	return &i
}
