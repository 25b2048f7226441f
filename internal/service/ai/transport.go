package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lunajournal/luna/backend/internal/metrics"
	"github.com/lunajournal/luna/backend/internal/model/pseudonym"
)

//go:generate go run go.uber.org/mock/mockgen -source=transport.go -destination=../../mocks/mock_transport.go -package=mocks

const (
	// EmptyReplyFallback is shown when the model answers with no text.
	EmptyReplyFallback = "I'm sorry, I seem to be having a little trouble forming a response right now. Could you try saying that again?"
	// ConnectionFallback is shown when a send fails.
	ConnectionFallback = "I'm having a bit of trouble connecting at the moment. Please check your connection or try again in a little while."
)

// ErrNotConfigured is returned by a transport that has no credentials.
var ErrNotConfigured = errors.New("chat transport not configured")

// Transport opens conversations on a remote model.
type Transport interface {
	// Open starts a conversation with empty history whose system instruction
	// addresses the user by their pseudonym.
	Open(ctx context.Context, p pseudonym.Pseudonym) (Conversation, error)
	// Name identifies the provider in logs and health output.
	Name() string
}

// Conversation is a remote chat that keeps its own history.
type Conversation interface {
	Send(ctx context.Context, text string) (string, error)
}

// Reply is the displayable outcome of one exchange. The zero Reply means no
// conversation was available.
type Reply struct {
	Text string
	// Err is the transport failure behind a fallback text, if any.
	Err error
}

// Null reports whether no reply could be produced at all.
func (r Reply) Null() bool {
	return r.Text == ""
}

// Exchange sends text on conv and converts every failure into displayable
// text. It never returns an error.
func Exchange(ctx context.Context, conv Conversation, text string) Reply {
	if conv == nil {
		return Reply{}
	}

	start := time.Now()
	out, err := conv.Send(ctx, text)
	metrics.TransportLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.TransportFailures.WithLabelValues("send").Inc()
		return Reply{Text: ConnectionFallback, Err: err}
	}

	if strings.TrimSpace(out) == "" {
		metrics.TransportFailures.WithLabelValues("empty").Inc()
		return Reply{Text: EmptyReplyFallback}
	}
	return Reply{Text: out}
}

// NotConfigured is the transport used when credentials are missing.
type NotConfigured struct {
	Missing string
}

// Open always fails with ErrNotConfigured.
func (n NotConfigured) Open(context.Context, pseudonym.Pseudonym) (Conversation, error) {
	metrics.TransportFailures.WithLabelValues("open").Inc()
	return nil, ErrNotConfigured
}

// Name implements Transport.
func (NotConfigured) Name() string { return "not-configured" }

// IsConfigured reports whether t can open conversations at all.
func IsConfigured(t Transport) bool {
	if t == nil {
		return false
	}
	switch t.(type) {
	case NotConfigured, *NotConfigured:
		return false
	}
	return true
}
