package voice

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/lunajournal/luna/backend/internal/mocks"
	"github.com/lunajournal/luna/backend/internal/model/chat"
	"github.com/lunajournal/luna/backend/internal/model/pseudonym"
	speechmodel "github.com/lunajournal/luna/backend/internal/model/speech"
	"github.com/lunajournal/luna/backend/internal/service/ai"
	sessionService "github.com/lunajournal/luna/backend/internal/service/session"
)

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func startServer(t *testing.T, transport ai.Transport) (*sessionService.Factory, *wsClient) {
	t.Helper()
	factory := sessionService.NewFactory(sessionService.FactoryConfig{
		Transport:   transport,
		SkipDelay:   time.Millisecond,
		Synthesis:   speechmodel.SynthesisConfig{Lang: "en-IN", Rate: 1},
		Recognition: speechmodel.DefaultRecognitionConfig(),
		Logger:      zerolog.Nop(),
	}, sessionService.NewRegistry())
	t.Cleanup(factory.Registry().Close)

	r := chi.NewRouter()
	New(factory, pseudonym.NewMemoryStore(pseudonym.Seed()), zerolog.Nop()).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/voice/ws?locale=en-IN"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return factory, &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(kind string, data any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(map[string]any{"type": kind, "data": data, "timestamp": time.Now().UnixMilli()}))
}

func (c *wsClient) next() (frame, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f frame
	err := c.conn.ReadJSON(&f)
	return f, err
}

// waitFor reads frames until one of the given type satisfies match.
func (c *wsClient) waitFor(kind string, match func(json.RawMessage) bool) json.RawMessage {
	c.t.Helper()
	for {
		f, err := c.next()
		require.NoError(c.t, err, "waiting for %s", kind)
		if f.Type == kind && (match == nil || match(f.Data)) {
			return f.Data
		}
	}
}

func (c *wsClient) waitState(match func(sessionService.Snapshot) bool) sessionService.Snapshot {
	c.t.Helper()
	var snap sessionService.Snapshot
	c.waitFor(outState, func(raw json.RawMessage) bool {
		snap = sessionService.Snapshot{}
		require.NoError(c.t, json.Unmarshal(raw, &snap))
		return match(snap)
	})
	return snap
}

func (c *wsClient) waitPhase(phase chat.Phase) sessionService.Snapshot {
	c.t.Helper()
	return c.waitState(func(s sessionService.Snapshot) bool { return s.Phase == phase })
}

func newMocks(t *testing.T) (*mocks.MockTransport, *mocks.MockConversation) {
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)
	transport.EXPECT().Name().Return("mock").AnyTimes()
	return transport, mocks.NewMockConversation(ctrl)
}

func TestNotConfiguredSendsFatal(t *testing.T) {
	_, client := startServer(t, ai.NotConfigured{Missing: "GEMINI_API_KEY"})

	f, err := client.next()
	require.NoError(t, err)
	assert.Equal(t, outFatal, f.Type)
	assert.Contains(t, string(f.Data), "GEMINI_API_KEY")

	_, err = client.next()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseTryAgainLater))
}

func TestGreetingIsSpokenThroughBrowser(t *testing.T) {
	transport, conv := newMocks(t)
	transport.EXPECT().Open(gomock.Any(), pseudonym.Pseudonym{ID: "river", Name: "River"}).Return(conv, nil)
	conv.EXPECT().Send(gomock.Any(), ai.OpeningMessage).Return("Hello River, how was today?", nil)

	_, client := startServer(t, transport)
	client.waitPhase(chat.PhaseInitialSetup)

	client.send(msgCapabilities, map[string]any{
		"recognition": true,
		"synthesis":   true,
		"voices": []map[string]any{
			{"name": "Alex", "lang": "en-US", "voiceURI": "alex"},
			{"name": "Heera", "lang": "en-IN", "voiceURI": "heera"},
		},
	})
	client.send(msgPseudonym, map[string]string{"id": "river"})

	var cmd speakCommand
	client.waitFor(outSynthesisSpeak, func(raw json.RawMessage) bool {
		require.NoError(t, json.Unmarshal(raw, &cmd))
		return true
	})
	assert.Equal(t, "Hello River, how was today?", cmd.Utterance.Text)
	assert.Equal(t, "heera", cmd.Utterance.VoiceURI)
	assert.Equal(t, 1.0, cmd.Utterance.Rate)

	client.send(msgSynthesisStart, map[string]string{"utteranceId": cmd.Utterance.ID})
	client.waitPhase(chat.PhaseLunaSpeaking)
	client.send(msgSynthesisEnd, map[string]string{"utteranceId": cmd.Utterance.ID})

	snap := client.waitPhase(chat.PhaseReadyToChat)
	assert.False(t, snap.Output.Speaking)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, chat.SenderAssistant, snap.Messages[0].Sender)
	assert.Equal(t, "heera", snap.Output.SelectedVoice)
}

func TestSpokenTurnRoundTrip(t *testing.T) {
	transport, conv := newMocks(t)
	transport.EXPECT().Open(gomock.Any(), gomock.Any()).Return(conv, nil)
	conv.EXPECT().Send(gomock.Any(), ai.OpeningMessage).Return("Welcome back.", nil)
	conv.EXPECT().Send(gomock.Any(), "I feel calm today").Return("I'm glad to hear that.", nil)

	_, client := startServer(t, transport)
	client.send(msgCapabilities, map[string]any{"recognition": true, "synthesis": false})
	client.send(msgPseudonym, map[string]string{"name": "Lantern"})
	client.waitPhase(chat.PhaseReadyToChat)

	client.send(msgListenStart, nil)
	var start recognitionCommand
	client.waitFor(outRecognitionStart, func(raw json.RawMessage) bool {
		require.NoError(t, json.Unmarshal(raw, &start))
		return true
	})
	require.NotEmpty(t, start.SessionID)
	require.NotNil(t, start.Config)
	assert.Equal(t, "en-IN", start.Config.Lang)
	assert.True(t, start.Config.Continuous)

	client.send(msgRecognitionRes, map[string]any{
		"sessionId":   start.SessionID,
		"resultIndex": 0,
		"results":     []map[string]any{{"transcript": "I feel calm today", "confidence": 0.92, "isFinal": true}},
	})
	client.send(msgRecognitionEnd, map[string]string{"sessionId": start.SessionID})

	snap := client.waitState(func(s sessionService.Snapshot) bool {
		return s.Phase == chat.PhaseReadyToChat && len(s.Messages) == 3
	})
	assert.Equal(t, "I feel calm today", snap.Messages[1].Text)
	assert.Equal(t, "I'm glad to hear that.", snap.Messages[2].Text)
}

func TestLangMessageSetsRecognitionLanguage(t *testing.T) {
	transport, conv := newMocks(t)
	transport.EXPECT().Open(gomock.Any(), gomock.Any()).Return(conv, nil)
	conv.EXPECT().Send(gomock.Any(), ai.OpeningMessage).Return("Welcome back.", nil)

	_, client := startServer(t, transport)
	client.send(msgCapabilities, map[string]any{"recognition": true})
	client.send(msgLang, map[string]string{"lang": "en_gb"})
	client.send(msgPseudonym, map[string]string{"id": "river"})
	client.waitPhase(chat.PhaseReadyToChat)

	client.send(msgListenStart, nil)
	var start recognitionCommand
	client.waitFor(outRecognitionStart, func(raw json.RawMessage) bool {
		require.NoError(t, json.Unmarshal(raw, &start))
		return true
	})
	require.NotNil(t, start.Config)
	assert.Equal(t, "en-GB", start.Config.Lang)
}

func TestRecognitionErrorShowsInlineMessage(t *testing.T) {
	transport, conv := newMocks(t)
	transport.EXPECT().Open(gomock.Any(), gomock.Any()).Return(conv, nil)
	conv.EXPECT().Send(gomock.Any(), ai.OpeningMessage).Return("Welcome back.", nil)

	_, client := startServer(t, transport)
	client.send(msgCapabilities, map[string]any{"recognition": true})
	client.send(msgPseudonym, map[string]string{"id": "asha"})
	client.waitPhase(chat.PhaseReadyToChat)

	client.send(msgListenStart, nil)
	var start recognitionCommand
	client.waitFor(outRecognitionStart, func(raw json.RawMessage) bool {
		require.NoError(t, json.Unmarshal(raw, &start))
		return true
	})

	client.send(msgRecognitionErr, map[string]string{"sessionId": start.SessionID, "error": "not-allowed"})
	snap := client.waitState(func(s sessionService.Snapshot) bool { return s.Capture.Error != "" })
	assert.Equal(t, chat.PhaseReadyToChat, snap.Phase)
	assert.False(t, snap.Capture.Listening)
	assert.Equal(t, speechmodel.ErrorNotAllowed.Message(), snap.Capture.Error)
	assert.Equal(t, snap.Capture.Error, snap.View.MicError)
}

func TestInvalidMessagesAreRejected(t *testing.T) {
	transport, _ := newMocks(t)
	_, client := startServer(t, transport)
	client.waitPhase(chat.PhaseInitialSetup)

	require.NoError(t, client.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	data := client.waitFor(outError, nil)
	assert.Contains(t, string(data), "invalid request body")

	client.send("bogus", nil)
	data = client.waitFor(outError, nil)
	assert.Contains(t, string(data), "unsupported message type")

	client.send(msgText, map[string]string{"text": "hello"})
	data = client.waitFor(outError, nil)
	assert.Contains(t, string(data), sessionService.ErrInputDisabled.Error())

	client.send(msgMute, map[string]any{})
	data = client.waitFor(outError, nil)
	assert.Contains(t, string(data), "Muted")

	client.send(msgPseudonym, map[string]string{"id": "nobody"})
	data = client.waitFor(outError, nil)
	assert.Contains(t, string(data), pseudonym.ErrInvalid.Error())
}

func TestEndClosesSession(t *testing.T) {
	transport, _ := newMocks(t)
	factory, client := startServer(t, transport)
	client.waitPhase(chat.PhaseInitialSetup)
	require.Equal(t, 1, factory.Registry().Len())

	client.send(msgEnd, nil)
	client.waitPhase(chat.PhaseSessionEnded)

	for {
		if _, err := client.next(); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
			break
		}
	}
	require.Eventually(t, func() bool { return factory.Registry().Len() == 0 }, time.Second, 5*time.Millisecond)
}
