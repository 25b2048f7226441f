package session

import "github.com/lunajournal/luna/backend/internal/model/chat"

const (
	MicLabelIdle      = "Speak"
	MicLabelListening = "Listening..."
	MicLabelBusy      = "Luna is active"

	voiceUnsupportedNotice = "Voice input is not supported by your browser. You can still type your responses."
)

// View is the presentation model derived from a snapshot.
type View struct {
	ShowSetup      bool   `json:"showSetup"`
	InputDisabled  bool   `json:"inputDisabled"`
	MicLabel       string `json:"micLabel"`
	MicAction      string `json:"micAction"`
	MicError       string `json:"micError,omitempty"`
	VoiceNotice    string `json:"voiceNotice,omitempty"`
	Transcript     string `json:"transcript,omitempty"`
	TranscriptLive bool   `json:"transcriptLive"`
	StatusText     string `json:"statusText,omitempty"`
	ErrorBanner    string `json:"errorBanner,omitempty"`
	Ended          bool   `json:"ended"`
}

// BuildView computes the controls for s.
func BuildView(s Snapshot) View {
	v := View{
		ShowSetup:   s.Phase == chat.PhaseInitialSetup || s.Pseudonym == nil,
		ErrorBanner: s.Error,
		Ended:       s.Phase == chat.PhaseSessionEnded,
		MicError:    s.Capture.Error,
	}

	switch s.Phase {
	case chat.PhaseLunaThinking, chat.PhaseLunaSpeaking, chat.PhaseInitialSetup,
		chat.PhaseProcessingUserInput, chat.PhaseSessionEnded:
		v.InputDisabled = true
	}

	switch {
	case s.Capture.Listening:
		v.MicLabel = MicLabelListening
		v.MicAction = "stop"
	case v.InputDisabled && s.Phase.LunaActive():
		v.MicLabel = MicLabelBusy
	default:
		v.MicLabel = MicLabelIdle
		v.MicAction = "start"
	}
	if v.InputDisabled && !s.Capture.Listening {
		v.MicAction = ""
	}

	if !s.Capture.Supported {
		v.VoiceNotice = voiceUnsupportedNotice
	}

	if s.Capture.Transcript != "" {
		v.Transcript = s.Capture.Transcript
		v.TranscriptLive = s.Capture.Listening
	}

	if s.Phase.LunaActive() {
		v.StatusText = s.Status
	}
	return v
}
