package ai

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/lunajournal/luna/backend/internal/model/pseudonym"
)

// historyLimit bounds how many past messages are replayed to the model per turn.
const historyLimit = 40

// ArkTransport runs conversations through an eino chain over a chat model.
// Ark keeps no server-side history, so each conversation replays its own.
type ArkTransport struct {
	chain  compose.Runnable[map[string]any, *schema.Message]
	logger zerolog.Logger
}

// NewArkTransport compiles the prompt chain around chatModel.
func NewArkTransport(ctx context.Context, chatModel model.BaseChatModel, logger zerolog.Logger) (*ArkTransport, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &ArkTransport{chain: runnable, logger: logger}, nil
}

// Name implements Transport.
func (t *ArkTransport) Name() string { return "ark" }

// Open starts an empty conversation. No remote call is made.
func (t *ArkTransport) Open(_ context.Context, p pseudonym.Pseudonym) (Conversation, error) {
	return &arkConversation{
		chain:  t.chain,
		system: SystemInstruction(p.Name),
		logger: t.logger,
	}, nil
}

type arkConversation struct {
	chain  compose.Runnable[map[string]any, *schema.Message]
	system string
	logger zerolog.Logger

	mu      sync.Mutex
	history []*schema.Message
}

func (c *arkConversation) Send(ctx context.Context, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	response, err := c.chain.Invoke(ctx, map[string]any{
		"system":  c.system,
		"history": c.recent(),
		"query":   text,
	})
	if err != nil {
		return "", fmt.Errorf("failed to run chat chain: %w", err)
	}

	c.history = append(c.history, schema.UserMessage(text), schema.AssistantMessage(response.Content, nil))
	c.logger.Debug().Int("length", len(response.Content)).Int("history", len(c.history)).Msg("ark reply received")
	return response.Content, nil
}

func (c *arkConversation) recent() []*schema.Message {
	if len(c.history) <= historyLimit {
		return append([]*schema.Message(nil), c.history...)
	}
	return append([]*schema.Message(nil), c.history[len(c.history)-historyLimit:]...)
}
