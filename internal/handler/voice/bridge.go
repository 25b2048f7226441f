package voice

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	speechmodel "github.com/lunajournal/luna/backend/internal/model/speech"
)

var errBridgeClosed = errors.New("voice bridge closed")

// bridge owns the write side of one browser connection and stands in for the
// browser's speech engines. It never calls back into sessions while holding a lock.
type bridge struct {
	conn   *websocket.Conn
	logger zerolog.Logger

	writeMu sync.Mutex

	mu          sync.Mutex
	recognition bool
	synthesis   bool
	closed      bool
}

func newBridge(conn *websocket.Conn, logger zerolog.Logger) *bridge {
	return &bridge{conn: conn, logger: logger}
}

func (b *bridge) send(kind string, data any) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return errBridgeClosed
	}

	msg := outgoingMessage{Type: kind, Data: data, Timestamp: time.Now().UnixMilli()}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_ = b.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := b.conn.WriteJSON(msg); err != nil {
		b.logger.Debug().Err(err).Str("type", kind).Msg("write failed")
		return err
	}
	return nil
}

func (b *bridge) sendError(message string) {
	_ = b.send(outError, errorPayload{Message: message})
}

func (b *bridge) setCapabilities(recognition, synthesis bool) {
	b.mu.Lock()
	b.recognition = recognition
	b.synthesis = synthesis
	b.mu.Unlock()
}

func (b *bridge) supports(recognition bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	if recognition {
		return b.recognition
	}
	return b.synthesis
}

func (b *bridge) close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

// pingLoop 定期发送ping消息
func (b *bridge) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// recognizerPort forwards recognition commands to the browser.
type recognizerPort struct{ b *bridge }

func (p recognizerPort) Supported() bool { return p.b.supports(true) }

func (p recognizerPort) Start(sessionID string, cfg speechmodel.RecognitionConfig) error {
	return p.b.send(outRecognitionStart, recognitionCommand{SessionID: sessionID, Config: &cfg})
}

func (p recognizerPort) Stop(sessionID string) {
	_ = p.b.send(outRecognitionStop, recognitionCommand{SessionID: sessionID})
}

func (p recognizerPort) Abort(sessionID string) {
	_ = p.b.send(outRecognitionAbort, recognitionCommand{SessionID: sessionID})
}

// synthesizerPort forwards utterances to the browser.
type synthesizerPort struct{ b *bridge }

func (p synthesizerPort) Supported() bool { return p.b.supports(false) }

func (p synthesizerPort) Speak(u speechmodel.Utterance) error {
	return p.b.send(outSynthesisSpeak, speakCommand{Utterance: u})
}

func (p synthesizerPort) Cancel() {
	_ = p.b.send(outSynthesisCancel, nil)
}
