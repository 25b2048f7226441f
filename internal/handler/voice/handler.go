package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lunajournal/luna/backend/internal/model/pseudonym"
	speechmodel "github.com/lunajournal/luna/backend/internal/model/speech"
	sessionService "github.com/lunajournal/luna/backend/internal/service/session"
	"github.com/lunajournal/luna/backend/internal/service/speech"
	"github.com/lunajournal/luna/backend/pkg/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512 << 10
)

// Handler WebSocket语音处理器. Each connection gets its own coordinator whose
// speech engines are the browser on the other end.
type Handler struct {
	factory    *sessionService.Factory
	pseudonyms pseudonym.Store
	upgrader   websocket.Upgrader
	logger     zerolog.Logger
}

// New 创建WebSocket处理器
func New(factory *sessionService.Factory, pseudonyms pseudonym.Store, logger zerolog.Logger) *Handler {
	return &Handler{
		factory:    factory,
		pseudonyms: pseudonyms,
		logger:     logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/voice/ws", h.handleWebSocket)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("upgrade failed")
		return
	}
	defer conn.Close()

	b := newBridge(conn, h.logger)

	if !h.factory.Configured() {
		missing := h.factory.Missing()
		h.logger.Warn().Str("missing", missing).Msg("voice session refused: chat not configured")
		_ = b.send(outFatal, errorPayload{Message: fmt.Sprintf("%s (missing %s)", sessionService.MsgInitFailed, missing)})
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "chat not configured"),
			time.Now().Add(writeWait))
		return
	}

	locale := r.URL.Query().Get("locale")
	coord, capture, output := h.factory.NewVoice(recognizerPort{b}, synthesizerPort{b}, locale)
	log := h.logger.With().Str("session", coord.ID()).Logger()
	log.Info().Str("locale", locale).Msg("voice connection opened")

	unsubscribe := coord.Subscribe(func(s sessionService.Snapshot) {
		_ = b.send(outState, s)
	})
	defer func() {
		unsubscribe()
		b.close()
		_ = h.factory.Registry().Remove(context.Background(), coord.ID())
		log.Info().Msg("voice connection closed")
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go b.pingLoop(ctx)

	_ = b.send(outState, coord.Snapshot())

	c := &connection{
		bridge:     b,
		coord:      coord,
		capture:    capture,
		output:     output,
		pseudonyms: h.pseudonyms,
		logger:     log,
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Warn().Err(err).Msg("read error")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg inboundMessage
		if err := decode(raw, &msg); err != nil {
			b.sendError(err.Error())
			continue
		}

		done, err := c.dispatch(msg)
		if err != nil {
			log.Debug().Err(err).Str("type", msg.Type).Msg("message rejected")
			b.sendError(err.Error())
		}
		if done {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
				time.Now().Add(writeWait))
			return
		}
	}
}

// connection routes one socket's messages to its coordinator and speech sessions.
type connection struct {
	bridge     *bridge
	coord      *sessionService.Coordinator
	capture    *speech.CaptureSession
	output     *speech.OutputSession
	pseudonyms pseudonym.Store
	logger     zerolog.Logger
}

func (c *connection) dispatch(msg inboundMessage) (bool, error) {
	switch msg.Type {
	case msgPseudonym:
		var p pseudonymPayload
		if err := decode(msg.Data, &p); err != nil {
			return false, err
		}
		chosen, err := pseudonym.Resolve(c.pseudonyms, p.ID, p.Name)
		if err != nil {
			return false, err
		}
		// Opening the conversation blocks on the remote model; keep reading meanwhile.
		go func() {
			if err := c.coord.Begin(chosen); errors.Is(err, sessionService.ErrAlreadyStarted) || errors.Is(err, sessionService.ErrSessionEnded) {
				c.bridge.sendError(err.Error())
			}
		}()

	case msgCapabilities:
		var p capabilitiesPayload
		if err := decode(msg.Data, &p); err != nil {
			return false, err
		}
		c.bridge.setCapabilities(p.Recognition, p.Synthesis)
		c.logger.Debug().Bool("recognition", p.Recognition).Bool("synthesis", p.Synthesis).Int("voices", len(p.Voices)).Msg("capabilities")
		if len(p.Voices) > 0 {
			c.output.HandleVoicesChanged(p.Voices)
		} else {
			_ = c.bridge.send(outState, c.coord.Snapshot())
		}

	case msgVoices:
		var p voicesPayload
		if err := decode(msg.Data, &p); err != nil {
			return false, err
		}
		c.output.HandleVoicesChanged(p.Voices)

	case msgListenStart:
		return false, c.coord.StartListening()

	case msgListenStop:
		c.coord.StopListening()

	case msgText:
		var p textPayload
		if err := decode(msg.Data, &p); err != nil {
			return false, err
		}
		return false, c.coord.SubmitUtterance(p.Text)

	case msgMute:
		var p mutePayload
		if err := decode(msg.Data, &p); err != nil {
			return false, err
		}
		c.coord.SetMuted(*p.Muted)

	case msgVoice:
		var p voicePayload
		if err := decode(msg.Data, &p); err != nil {
			return false, err
		}
		c.coord.SetVoice(p.VoiceURI)

	case msgRate:
		var p ratePayload
		if err := decode(msg.Data, &p); err != nil {
			return false, err
		}
		c.coord.SetRate(p.Rate)

	case msgLang:
		var p langPayload
		if err := decode(msg.Data, &p); err != nil {
			return false, err
		}
		c.capture.SetLang(speech.NormalizeLang(p.Lang))

	case msgDismiss:
		c.coord.DismissError()

	case msgEnd:
		c.coord.End()
		return true, nil

	case msgRecognitionRes:
		var p recognitionResultPayload
		if err := decode(msg.Data, &p); err != nil {
			return false, err
		}
		c.capture.HandleResult(speechmodel.RecognitionResult{
			SessionID:   p.SessionID,
			ResultIndex: p.ResultIndex,
			Results:     p.Results,
		})

	case msgRecognitionSpEnd, msgRecognitionEnd, msgRecognitionErr:
		var p recognitionEventPayload
		if err := decode(msg.Data, &p); err != nil {
			return false, err
		}
		switch msg.Type {
		case msgRecognitionSpEnd:
			c.capture.HandleSpeechEnd(p.SessionID)
		case msgRecognitionEnd:
			c.capture.HandleEnd(p.SessionID)
		default:
			if p.Message != "" {
				c.logger.Debug().Str("error", p.Error).Str("message", p.Message).Msg("recognizer reported error")
			}
			c.capture.HandleError(p.SessionID, errorKind(p.Error))
		}

	case msgSynthesisStart, msgSynthesisEnd, msgSynthesisErr:
		var p synthesisEventPayload
		if err := decode(msg.Data, &p); err != nil {
			return false, err
		}
		switch msg.Type {
		case msgSynthesisStart:
			c.output.HandleStart(p.UtteranceID)
		case msgSynthesisEnd:
			c.output.HandleEnd(p.UtteranceID)
		default:
			code := p.Error
			if code == "" {
				code = "unknown"
			}
			c.output.HandleError(p.UtteranceID, code)
		}

	default:
		return false, fmt.Errorf("unsupported message type: %s", msg.Type)
	}
	return false, nil
}

func errorKind(code string) speechmodel.ErrorKind {
	if code == "" {
		return speechmodel.ErrorKind("unknown")
	}
	return speechmodel.ErrorKind(code)
}

func decode(raw []byte, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", utils.ErrInvalidBody, err)
	}
	return utils.Validate(v)
}
