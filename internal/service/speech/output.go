package speech

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/lunajournal/luna/backend/internal/metrics"
	speechmodel "github.com/lunajournal/luna/backend/internal/model/speech"
)

// Synthesizer is the platform speech synthesis engine. Lifecycle events for an
// utterance arrive through the OutputSession Handle* methods.
type Synthesizer interface {
	Supported() bool
	Speak(u speechmodel.Utterance) error
	Cancel()
}

// OutputEventKind distinguishes output notifications.
type OutputEventKind string

const (
	OutputStarted   OutputEventKind = "started"
	OutputFinished  OutputEventKind = "finished"
	OutputCancelled OutputEventKind = "cancelled"
	OutputFailed    OutputEventKind = "failed"
	OutputVoices    OutputEventKind = "voices"
)

// OutputEvent is emitted to subscribers after a state change.
type OutputEvent struct {
	Kind        OutputEventKind
	UtteranceID string
	Detail      string
	State       OutputState
}

// Terminal reports whether the event ends an utterance.
func (e OutputEvent) Terminal() bool {
	return e.Kind == OutputFinished || e.Kind == OutputCancelled || e.Kind == OutputFailed
}

// OutputState is a copy of the session's observable state.
type OutputState struct {
	Supported     bool                      `json:"supported"`
	Speaking      bool                      `json:"speaking"`
	Voices        []speechmodel.VoiceOption `json:"voices"`
	SelectedVoice string                    `json:"selectedVoiceURI,omitempty"`
	Rate          float64                   `json:"rate"`
	Error         string                    `json:"error,omitempty"`
}

// OutputSession renders assistant text as audio, one utterance at a time.
type OutputSession struct {
	mu      sync.Mutex
	synth   Synthesizer
	catalog *Catalog
	logger  zerolog.Logger

	locale   string
	lang     string
	rate     float64
	voices   []speechmodel.VoiceOption
	selected string

	currentID string
	speaking  bool
	errMsg    string
	closed    bool

	nextListener int
	listeners    map[int]func(OutputEvent)
}

// NewOutputSession wires an output session to a synthesizer. locale is the
// user's locale used to pick a default voice.
func NewOutputSession(synth Synthesizer, catalog *Catalog, cfg speechmodel.SynthesisConfig, locale string, logger zerolog.Logger) *OutputSession {
	if catalog == nil {
		catalog = NewCatalog(nil)
	}
	rate := cfg.Rate
	if rate == 0 {
		rate = speechmodel.DefaultRate
	}
	return &OutputSession{
		synth:     synth,
		catalog:   catalog,
		logger:    logger,
		locale:    locale,
		lang:      cfg.Lang,
		rate:      speechmodel.ClampRate(rate),
		listeners: make(map[int]func(OutputEvent)),
	}
}

// Subscribe registers fn for output events and returns its cancel func.
func (s *OutputSession) Subscribe(fn func(OutputEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Supported reports whether audio output is possible at all.
func (s *OutputSession) Supported() bool {
	return s.synth != nil && s.synth.Supported()
}

// State returns the current observable state.
func (s *OutputSession) State() OutputState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Speak issues an utterance for text, replacing any active one. It returns
// false when nothing was attempted (empty text, no synthesizer, closed).
// Otherwise exactly one of OutputFinished, OutputFailed or OutputCancelled
// follows for the returned utterance unless the session is closed first.
func (s *OutputSession) Speak(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || !s.Supported() {
		return false
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	replacing := s.currentID != ""
	u := speechmodel.Utterance{
		ID:     uuid.NewString(),
		Text:   text,
		Lang:   s.lang,
		Rate:   s.rate,
		Pitch:  speechmodel.FixedPitch,
		Volume: speechmodel.FixedVolume,
	}
	if v, ok := s.voiceLocked(s.selected); ok {
		u.VoiceURI = v.VoiceURI
		u.Lang = v.Lang
	}
	s.currentID = u.ID
	s.speaking = false
	s.errMsg = ""
	s.mu.Unlock()

	// Replacing an utterance is not a cancellation the caller asked for.
	if replacing {
		s.synth.Cancel()
	}

	if err := s.synth.Speak(u); err != nil {
		s.fail(u.ID, err.Error())
		return true
	}
	s.logger.Debug().Str("utterance", u.ID).Str("voice", u.VoiceURI).Msg("utterance queued")
	return true
}

// Cancel stops the active utterance. Calling it with nothing active is a no-op.
func (s *OutputSession) Cancel() {
	s.mu.Lock()
	id := s.currentID
	if id == "" {
		s.speaking = false
		s.mu.Unlock()
		return
	}
	s.currentID = ""
	s.speaking = false
	ev := s.eventLocked(OutputCancelled, id, "")
	s.mu.Unlock()

	if s.synth != nil {
		s.synth.Cancel()
	}
	s.emit(ev)
}

// SetVoice selects a voice by URI. An unknown URI is kept; speech then uses
// the platform default until a matching voice appears.
func (s *OutputSession) SetVoice(voiceURI string) {
	s.mu.Lock()
	s.selected = voiceURI
	ev := s.eventLocked(OutputVoices, "", "")
	s.mu.Unlock()
	s.emit(ev)
}

// SetRate changes the playback rate, clamped to the supported range.
func (s *OutputSession) SetRate(rate float64) {
	s.mu.Lock()
	s.rate = speechmodel.ClampRate(rate)
	ev := s.eventLocked(OutputVoices, "", "")
	s.mu.Unlock()
	s.emit(ev)
}

// HandleVoicesChanged rebuilds the catalog from the platform list and picks a
// default voice when none is selected.
func (s *OutputSession) HandleVoicesChanged(voices []speechmodel.PlatformVoice) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.voices = s.catalog.Build(voices)
	if s.selected == "" {
		if pick, ok := s.catalog.Pick(s.voices, s.locale); ok {
			s.selected = pick.VoiceURI
			s.logger.Debug().Str("voice", pick.Name).Str("locale", s.locale).Msg("default voice selected")
		}
	}
	ev := s.eventLocked(OutputVoices, "", "")
	s.mu.Unlock()
	s.emit(ev)
}

// HandleStart marks the utterance as audible.
func (s *OutputSession) HandleStart(utteranceID string) {
	s.mu.Lock()
	if !s.acceptLocked(utteranceID) {
		s.mu.Unlock()
		return
	}
	s.speaking = true
	ev := s.eventLocked(OutputStarted, utteranceID, "")
	s.mu.Unlock()
	s.emit(ev)
}

// HandleEnd completes the utterance.
func (s *OutputSession) HandleEnd(utteranceID string) {
	s.mu.Lock()
	if !s.acceptLocked(utteranceID) {
		s.mu.Unlock()
		return
	}
	s.currentID = ""
	s.speaking = false
	ev := s.eventLocked(OutputFinished, utteranceID, "")
	s.mu.Unlock()
	s.emit(ev)
}

// HandleError fails the utterance with the platform's error code.
func (s *OutputSession) HandleError(utteranceID, code string) {
	s.fail(utteranceID, code)
}

// Close cancels any active utterance and drops subscribers.
func (s *OutputSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	active := s.currentID != ""
	s.currentID = ""
	s.speaking = false
	s.listeners = make(map[int]func(OutputEvent))
	s.mu.Unlock()

	if active && s.synth != nil {
		s.synth.Cancel()
	}
}

func (s *OutputSession) fail(utteranceID, detail string) {
	s.mu.Lock()
	if !s.acceptLocked(utteranceID) {
		s.mu.Unlock()
		return
	}
	s.currentID = ""
	s.speaking = false
	s.errMsg = fmt.Sprintf("Speech error: %s", detail)
	ev := s.eventLocked(OutputFailed, utteranceID, detail)
	s.mu.Unlock()

	metrics.SynthesisErrors.Inc()
	s.logger.Warn().Str("utterance", utteranceID).Str("detail", detail).Msg("synthesis error")
	s.emit(ev)
}

func (s *OutputSession) voiceLocked(uri string) (speechmodel.VoiceOption, bool) {
	if uri == "" {
		return speechmodel.VoiceOption{}, false
	}
	return lo.Find(s.voices, func(v speechmodel.VoiceOption) bool { return v.VoiceURI == uri })
}

func (s *OutputSession) acceptLocked(utteranceID string) bool {
	return !s.closed && utteranceID != "" && utteranceID == s.currentID
}

func (s *OutputSession) stateLocked() OutputState {
	return OutputState{
		Supported:     s.Supported(),
		Speaking:      s.speaking,
		Voices:        append([]speechmodel.VoiceOption(nil), s.voices...),
		SelectedVoice: s.selected,
		Rate:          s.rate,
		Error:         s.errMsg,
	}
}

func (s *OutputSession) eventLocked(kind OutputEventKind, id, detail string) OutputEvent {
	return OutputEvent{Kind: kind, UtteranceID: id, Detail: detail, State: s.stateLocked()}
}

func (s *OutputSession) emit(ev OutputEvent) {
	s.mu.Lock()
	fns := make([]func(OutputEvent), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
