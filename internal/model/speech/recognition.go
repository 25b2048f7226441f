package speech

// Segment is one recognition result, interim or final.
type Segment struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
	IsFinal    bool    `json:"isFinal"`
}

// RecognitionResult is an incremental update from the platform recognizer.
// Results holds every result of the session; entries before ResultIndex are unchanged.
type RecognitionResult struct {
	SessionID   string    `json:"sessionId"`
	ResultIndex int       `json:"resultIndex"`
	Results     []Segment `json:"results"`
}

// ErrorKind classifies recognizer failures.
type ErrorKind string

const (
	ErrorNoSpeech     ErrorKind = "no-speech"
	ErrorAudioCapture ErrorKind = "audio-capture"
	ErrorNotAllowed   ErrorKind = "not-allowed"
)

// Message maps a recognizer failure to the text shown next to the mic control.
func (k ErrorKind) Message() string {
	switch k {
	case ErrorNoSpeech:
		return "I didn't hear anything. Could you try speaking again?"
	case ErrorAudioCapture:
		return "I couldn't access your microphone. Please check permissions."
	case ErrorNotAllowed:
		return "Microphone access was denied. Please enable it in your browser settings."
	default:
		return "An error occurred: " + string(k)
	}
}
