package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/lunajournal/luna/backend/internal/config"
	"github.com/lunajournal/luna/backend/internal/metrics"
	"github.com/lunajournal/luna/backend/internal/model/pseudonym"
)

// GeminiTransport opens Gemini chats.
type GeminiTransport struct {
	client *genai.Client
	model  string
	logger zerolog.Logger
}

// NewGeminiTransport creates the Gemini client. It fails when no API key is configured.
func NewGeminiTransport(ctx context.Context, cfg config.GeminiConfig, logger zerolog.Logger) (*GeminiTransport, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiTransport{client: client, model: cfg.Model, logger: logger}, nil
}

// Name implements Transport.
func (t *GeminiTransport) Name() string { return "gemini" }

// Open creates a chat with empty history.
func (t *GeminiTransport) Open(ctx context.Context, p pseudonym.Pseudonym) (Conversation, error) {
	chat, err := t.client.Chats.Create(ctx, t.model, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemInstruction(p.Name), genai.RoleUser),
	}, nil)
	if err != nil {
		metrics.TransportFailures.WithLabelValues("open").Inc()
		return nil, fmt.Errorf("gemini chat create failed: %w", err)
	}

	t.logger.Debug().Str("model", t.model).Str("pseudonym", p.ID).Msg("gemini chat opened")
	return &geminiConversation{chat: chat, logger: t.logger}, nil
}

type geminiConversation struct {
	chat   *genai.Chat
	logger zerolog.Logger
}

func (c *geminiConversation) Send(ctx context.Context, text string) (string, error) {
	resp, err := c.chat.SendMessage(ctx, genai.Part{Text: text})
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	out := replyText(resp)
	c.logger.Debug().Int("length", len(out)).Msg("gemini reply received")
	return out, nil
}

// replyText joins the text parts of the first candidate, skipping thought parts.
func replyText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought || part.Text == "" {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}
