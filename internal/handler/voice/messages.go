package voice

import (
	"encoding/json"

	speechmodel "github.com/lunajournal/luna/backend/internal/model/speech"
)

// Inbound message types sent by the browser.
const (
	msgPseudonym        = "pseudonym"
	msgCapabilities     = "capabilities"
	msgVoices           = "voices"
	msgListenStart      = "listen.start"
	msgListenStop       = "listen.stop"
	msgText             = "text"
	msgMute             = "mute"
	msgVoice            = "voice"
	msgRate             = "rate"
	msgLang             = "lang"
	msgDismiss          = "dismiss"
	msgEnd              = "end"
	msgRecognitionRes   = "recognition.result"
	msgRecognitionSpEnd = "recognition.speechend"
	msgRecognitionEnd   = "recognition.end"
	msgRecognitionErr   = "recognition.error"
	msgSynthesisStart   = "synthesis.start"
	msgSynthesisEnd     = "synthesis.end"
	msgSynthesisErr     = "synthesis.error"
)

// Outbound message types sent to the browser.
const (
	outState            = "state"
	outRecognitionStart = "recognition.start"
	outRecognitionStop  = "recognition.stop"
	outRecognitionAbort = "recognition.abort"
	outSynthesisSpeak   = "synthesis.speak"
	outSynthesisCancel  = "synthesis.cancel"
	outError            = "error"
	outFatal            = "fatal"
)

type inboundMessage struct {
	Type      string          `json:"type" validate:"required"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type pseudonymPayload struct {
	ID   string `json:"id" validate:"required_without=Name,max=64"`
	Name string `json:"name" validate:"required_without=ID,max=64"`
}

type capabilitiesPayload struct {
	Recognition bool                        `json:"recognition"`
	Synthesis   bool                        `json:"synthesis"`
	Voices      []speechmodel.PlatformVoice `json:"voices" validate:"dive"`
}

type voicesPayload struct {
	Voices []speechmodel.PlatformVoice `json:"voices" validate:"dive"`
}

type textPayload struct {
	Text string `json:"text" validate:"max=4000"`
}

type mutePayload struct {
	Muted *bool `json:"muted" validate:"required"`
}

type voicePayload struct {
	VoiceURI string `json:"voiceURI"`
}

type ratePayload struct {
	Rate float64 `json:"rate" validate:"gt=0"`
}

type langPayload struct {
	Lang string `json:"lang" validate:"required,max=35"`
}

type recognitionResultPayload struct {
	SessionID   string                `json:"sessionId" validate:"required"`
	ResultIndex int                   `json:"resultIndex" validate:"gte=0"`
	Results     []speechmodel.Segment `json:"results"`
}

type recognitionEventPayload struct {
	SessionID string `json:"sessionId" validate:"required"`
	Error     string `json:"error"`
	Message   string `json:"message"`
}

type synthesisEventPayload struct {
	UtteranceID string `json:"utteranceId" validate:"required"`
	Error       string `json:"error"`
}

type recognitionCommand struct {
	SessionID string                         `json:"sessionId"`
	Config    *speechmodel.RecognitionConfig `json:"config,omitempty"`
}

type speakCommand struct {
	Utterance speechmodel.Utterance `json:"utterance"`
}

type errorPayload struct {
	Message string `json:"message"`
}
