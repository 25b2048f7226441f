package speech

// PlatformVoice is a synthesis voice as reported by the client platform.
type PlatformVoice struct {
	Name         string `json:"name" validate:"required"`
	Lang         string `json:"lang"`
	VoiceURI     string `json:"voiceURI" validate:"required"`
	Default      bool   `json:"default"`
	LocalService bool   `json:"localService"`
}

// VoiceOption is a catalog entry: a platform voice plus its ranking data.
type VoiceOption struct {
	PlatformVoice
	Region   string `json:"region,omitempty"`
	Priority int    `json:"priority"`
}

// Utterance is a single synthesis request.
type Utterance struct {
	ID       string  `json:"id"`
	Text     string  `json:"text"`
	VoiceURI string  `json:"voiceURI,omitempty"`
	Lang     string  `json:"lang"`
	Rate     float64 `json:"rate"`
	Pitch    float64 `json:"pitch"`
	Volume   float64 `json:"volume"`
}
