package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/lunajournal/luna/backend/internal/mocks"
	"github.com/lunajournal/luna/backend/internal/model/chat"
	"github.com/lunajournal/luna/backend/internal/model/pseudonym"
	"github.com/lunajournal/luna/backend/internal/service/ai"
	sessionService "github.com/lunajournal/luna/backend/internal/service/session"
)

type fixture struct {
	router    *chi.Mux
	transport *mocks.MockTransport
	conv      *mocks.MockConversation
}

func setupRouter(t *testing.T, transport ai.Transport) *chi.Mux {
	t.Helper()
	factory := sessionService.NewFactory(sessionService.FactoryConfig{
		Transport: transport,
		SkipDelay: time.Millisecond,
		Logger:    zerolog.Nop(),
	}, sessionService.NewRegistry())
	t.Cleanup(factory.Registry().Close)

	r := chi.NewRouter()
	New(factory, pseudonym.NewMemoryStore(pseudonym.Seed()), zerolog.Nop()).RegisterRoutes(r)
	return r
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &fixture{
		transport: mocks.NewMockTransport(ctrl),
		conv:      mocks.NewMockConversation(ctrl),
	}
	f.transport.EXPECT().Name().Return("mock").AnyTimes()
	f.router = setupRouter(t, f.transport)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)
	return resp
}

func decodeSnapshot(t *testing.T, resp *httptest.ResponseRecorder) sessionService.Snapshot {
	t.Helper()
	var snap sessionService.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	return snap
}

// start creates a session whose greeting has already been delivered.
func (f *fixture) start(t *testing.T) string {
	t.Helper()
	f.transport.EXPECT().Open(gomock.Any(), gomock.Any()).Return(f.conv, nil)
	f.conv.EXPECT().Send(gomock.Any(), ai.OpeningMessage).Return("Welcome, River.", nil)

	resp := f.do(t, http.MethodPost, "/sessions", map[string]string{"pseudonymId": "river"})
	require.Equal(t, http.StatusCreated, resp.Code)
	snap := decodeSnapshot(t, resp)
	require.NotEmpty(t, snap.ID)
	require.NotNil(t, snap.Pseudonym)
	require.Equal(t, "River", snap.Pseudonym.Name)

	f.waitPhase(t, snap.ID, chat.PhaseReadyToChat)
	return snap.ID
}

func (f *fixture) waitPhase(t *testing.T, id string, want chat.Phase) {
	t.Helper()
	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/sessions/"+id, nil)
		resp := httptest.NewRecorder()
		f.router.ServeHTTP(resp, req)
		var snap sessionService.Snapshot
		if resp.Code != http.StatusOK || json.NewDecoder(resp.Body).Decode(&snap) != nil {
			return false
		}
		return snap.Phase == want
	}, time.Second, 5*time.Millisecond)
}

func TestCreateSessionNotConfigured(t *testing.T) {
	r := setupRouter(t, ai.NotConfigured{Missing: "GEMINI_API_KEY"})

	req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(`{"pseudonymId":"river"}`))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Contains(t, resp.Body.String(), "GEMINI_API_KEY")
}

func TestCreateSessionInvalidPseudonym(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/sessions", map[string]string{"pseudonymId": "non-existent"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = f.do(t, http.MethodPost, "/sessions", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCreateSessionOpenFailure(t *testing.T) {
	f := newFixture(t)
	f.transport.EXPECT().Open(gomock.Any(), gomock.Any()).Return(nil, errors.New("bad key"))

	resp := f.do(t, http.MethodPost, "/sessions", map[string]string{"name": "Quiet Harbor"})

	assert.Equal(t, http.StatusBadGateway, resp.Code)
	assert.Contains(t, resp.Body.String(), "Failed to initialize chat")
}

func TestSessionConversationFlow(t *testing.T) {
	f := newFixture(t)
	id := f.start(t)

	release := make(chan struct{})
	f.conv.EXPECT().Send(gomock.Any(), "I slept badly").DoAndReturn(func(ctx context.Context, _ string) (string, error) {
		<-release
		return "That sounds tiring.", nil
	})

	resp := f.do(t, http.MethodPost, "/sessions/"+id+"/messages", map[string]string{"text": "I slept badly"})
	require.Equal(t, http.StatusAccepted, resp.Code)
	assert.Equal(t, chat.PhaseLunaThinking, decodeSnapshot(t, resp).Phase)

	resp = f.do(t, http.MethodPost, "/sessions/"+id+"/messages", map[string]string{"text": "hello?"})
	assert.Equal(t, http.StatusConflict, resp.Code)

	close(release)
	f.waitPhase(t, id, chat.PhaseReadyToChat)

	snap := decodeSnapshot(t, f.do(t, http.MethodGet, "/sessions/"+id, nil))
	require.Len(t, snap.Messages, 3)
	assert.Equal(t, chat.SenderAssistant, snap.Messages[0].Sender)
	assert.Equal(t, chat.SenderUser, snap.Messages[1].Sender)
	assert.Equal(t, "That sounds tiring.", snap.Messages[2].Text)
}

func TestSessionRejectsEmptyMessage(t *testing.T) {
	f := newFixture(t)
	id := f.start(t)

	resp := f.do(t, http.MethodPost, "/sessions/"+id+"/messages", map[string]string{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestSessionMuteAndDismiss(t *testing.T) {
	f := newFixture(t)
	id := f.start(t)

	resp := f.do(t, http.MethodPut, "/sessions/"+id+"/mute", map[string]bool{"muted": true})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, decodeSnapshot(t, resp).Muted)

	resp = f.do(t, http.MethodPut, "/sessions/"+id+"/mute", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = f.do(t, http.MethodDelete, "/sessions/"+id+"/error", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, chat.PhaseReadyToChat, decodeSnapshot(t, resp).Phase)
}

func TestSessionEndAndUnknown(t *testing.T) {
	f := newFixture(t)
	id := f.start(t)

	resp := f.do(t, http.MethodDelete, "/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp = f.do(t, http.MethodGet, "/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = f.do(t, http.MethodDelete, "/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = f.do(t, http.MethodPost, "/sessions/unknown/messages", map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestSessionEventStream(t *testing.T) {
	f := newFixture(t)
	id := f.start(t)

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/sessions/" + id + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 32)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	nextState := func() sessionService.Snapshot {
		t.Helper()
		timeout := time.After(time.Second)
		sawEvent := false
		for {
			select {
			case line, ok := <-lines:
				require.True(t, ok, "stream closed early")
				if line == "event: state" {
					sawEvent = true
					continue
				}
				if sawEvent && strings.HasPrefix(line, "data: ") {
					var snap sessionService.Snapshot
					require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snap))
					return snap
				}
			case <-timeout:
				t.Fatal("no state event received")
			}
		}
	}

	first := nextState()
	assert.Equal(t, chat.PhaseReadyToChat, first.Phase)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/sessions/"+id, nil)
	require.NoError(t, err)
	endResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	endResp.Body.Close()

	last := nextState()
	assert.Equal(t, chat.PhaseSessionEnded, last.Phase)
	assert.Greater(t, last.Version, first.Version)
}
