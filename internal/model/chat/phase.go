package chat

// Phase is the turn-taking state of a journaling session.
type Phase string

const (
	PhaseInitialSetup        Phase = "INITIAL_SETUP"
	PhaseReadyToChat         Phase = "READY_TO_CHAT"
	PhaseUserSpeaking        Phase = "USER_SPEAKING"
	PhaseProcessingUserInput Phase = "PROCESSING_USER_INPUT"
	PhaseLunaThinking        Phase = "LUNA_THINKING"
	PhaseLunaSpeaking        Phase = "LUNA_SPEAKING"
	PhaseSessionEnded        Phase = "SESSION_ENDED"
	PhaseError               Phase = "ERROR"
)

// AcceptsInput reports whether a new user utterance may be submitted.
// Submissions in any other phase are rejected, never queued.
func (p Phase) AcceptsInput() bool {
	switch p {
	case PhaseReadyToChat, PhaseUserSpeaking, PhaseError:
		return true
	default:
		return false
	}
}

// LunaActive reports whether the assistant owns the turn.
func (p Phase) LunaActive() bool {
	return p == PhaseLunaThinking || p == PhaseLunaSpeaking
}
