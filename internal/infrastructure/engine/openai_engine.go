package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/concierge/gateway/internal/application/gateway"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Engine directives arrive inline in the completion text. The model is
// instructed to end its reply with one of these markers when the caller
// should be handed off or the conversation is over.
const (
	transferMarker = "[TRANSFER]"
	endMarker      = "[END]"
)

// OpenAIEngine adapts an OpenAI-compatible chat completion API to the
// ConversationEngine contract. Any endpoint speaking the same protocol works
// through BaseURL.
type OpenAIEngine struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	logger      *zap.Logger
}

// OpenAIConfig holds engine connection settings
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// NewOpenAIEngine creates an engine backed by a chat completion API
func NewOpenAIEngine(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIEngine, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("engine API key required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}

	return &OpenAIEngine{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		maxTokens:   maxTokens,
		temperature: float32(cfg.Temperature),
		logger:      logger,
	}, nil
}

// Respond sends the turn to the chat completion API and parses the reply
func (e *OpenAIEngine) Respond(ctx context.Context, turn gateway.EngineTurn) (gateway.EngineReply, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		MaxTokens:   e.maxTokens,
		Temperature: e.temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: e.systemPrompt(turn),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: turn.Message,
			},
		},
	})
	if err != nil {
		return gateway.EngineReply{}, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return gateway.EngineReply{}, fmt.Errorf("chat completion returned no choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	reply := gateway.EngineReply{Text: text}

	switch {
	case strings.Contains(text, transferMarker):
		reply.Text = strings.TrimSpace(strings.ReplaceAll(text, transferMarker, ""))
		reply.Directive = gateway.DirectiveTransfer
	case strings.Contains(text, endMarker):
		reply.Text = strings.TrimSpace(strings.ReplaceAll(text, endMarker, ""))
		reply.Directive = gateway.DirectiveEnd
	}

	e.logger.Debug("engine reply",
		zap.String("session_id", turn.SessionID.String()),
		zap.String("directive", string(reply.Directive)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return reply, nil
}

// systemPrompt builds the per-tenant instruction from the tenant's greeting
// and locale. The first turn folds the greeting in; later turns only carry
// the behavioral contract.
func (e *OpenAIEngine) systemPrompt(turn gateway.EngineTurn) string {
	var b strings.Builder
	b.WriteString("You are a courteous business concierge answering on behalf of a company. ")
	b.WriteString("Reply in the caller's language; default locale is ")
	if turn.Locale != "" {
		b.WriteString(turn.Locale)
	} else {
		b.WriteString("fr-FR")
	}
	b.WriteString(". Keep replies short enough for ")
	b.WriteString(string(turn.ChannelKind))
	b.WriteString(" delivery.\n")
	if turn.TurnCount <= 1 && turn.Greeting != "" {
		b.WriteString("Open with this greeting before addressing the request: ")
		b.WriteString(turn.Greeting)
		b.WriteString("\n")
	}
	b.WriteString("If the caller asks for a human, append the marker ")
	b.WriteString(transferMarker)
	b.WriteString(" to your reply. If the conversation has clearly concluded, append ")
	b.WriteString(endMarker)
	b.WriteString(".")
	return b.String()
}

// Ensure OpenAIEngine implements ConversationEngine
var _ gateway.ConversationEngine = (*OpenAIEngine)(nil)
