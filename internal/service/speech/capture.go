package speech

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lunajournal/luna/backend/internal/metrics"
	speechmodel "github.com/lunajournal/luna/backend/internal/model/speech"
)

// Recognizer is the platform speech recognition engine. Calls must not block;
// outcomes arrive through the CaptureSession Handle* methods.
type Recognizer interface {
	Supported() bool
	Start(sessionID string, cfg speechmodel.RecognitionConfig) error
	Stop(sessionID string)
	Abort(sessionID string)
}

// CaptureEventKind distinguishes capture notifications.
type CaptureEventKind string

const (
	// CaptureTranscript reports a changed running transcript.
	CaptureTranscript CaptureEventKind = "transcript"
	// CaptureUtterance delivers the finished, trimmed transcript.
	CaptureUtterance CaptureEventKind = "utterance"
	// CaptureError reports a recognition failure; listening has stopped.
	CaptureError CaptureEventKind = "error"
	// CaptureEnded reports a session that finished without an utterance.
	CaptureEnded CaptureEventKind = "ended"
)

// CaptureEvent is emitted to subscribers after a state change.
type CaptureEvent struct {
	Kind  CaptureEventKind
	Text  string
	State CaptureState
}

// CaptureState is a copy of the session's observable state.
type CaptureState struct {
	Supported  bool   `json:"supported"`
	Listening  bool   `json:"listening"`
	Transcript string `json:"transcript"`
	Error      string `json:"error,omitempty"`
}

// CaptureSession turns recognition updates into finished utterances.
type CaptureSession struct {
	mu     sync.Mutex
	rec    Recognizer
	cfg    speechmodel.RecognitionConfig
	timer  timerSlot
	logger zerolog.Logger

	sessionID string
	listening bool
	final     strings.Builder
	interim   string
	errMsg    string
	failed    bool
	closed    bool

	nextListener int
	listeners    map[int]func(CaptureEvent)
}

// NewCaptureSession wires a capture session to a recognizer.
func NewCaptureSession(rec Recognizer, cfg speechmodel.RecognitionConfig, sched Scheduler, logger zerolog.Logger) *CaptureSession {
	if sched == nil {
		sched = RealScheduler{}
	}
	return &CaptureSession{
		rec:       rec,
		cfg:       cfg,
		timer:     timerSlot{sched: sched},
		logger:    logger,
		listeners: make(map[int]func(CaptureEvent)),
	}
}

// Subscribe registers fn for capture events and returns its cancel func.
func (s *CaptureSession) Subscribe(fn func(CaptureEvent)) func() {
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

// State returns the current observable state.
func (s *CaptureSession) State() CaptureState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// SetLang changes the recognition language for the next session.
func (s *CaptureSession) SetLang(lang string) {
	if lang == "" {
		return
	}
	s.mu.Lock()
	s.cfg.Lang = lang
	s.mu.Unlock()
}

// Start opens a new recognition session. It is a no-op when already listening,
// when the platform has no recognizer, or after Close.
func (s *CaptureSession) Start() {
	s.mu.Lock()
	if s.closed || s.listening || s.rec == nil || !s.rec.Supported() {
		s.mu.Unlock()
		return
	}

	s.timer.cancel()
	s.resetLocked()
	s.errMsg = ""
	s.failed = false
	s.sessionID = uuid.NewString()
	s.listening = true
	id, cfg := s.sessionID, s.cfg
	s.mu.Unlock()

	if err := s.rec.Start(id, cfg); err != nil {
		s.mu.Lock()
		if s.sessionID != id {
			s.mu.Unlock()
			return
		}
		s.listening = false
		s.sessionID = ""
		s.errMsg = fmt.Sprintf("Could not start voice input: %v", err)
		ev := s.eventLocked(CaptureError, "")
		s.mu.Unlock()

		s.logger.Warn().Err(err).Msg("recognizer refused to start")
		s.emit(ev)
		return
	}
	s.logger.Debug().Str("session", id).Msg("recognition started")
}

// Stop asks the platform to finalize. The transcript is delivered on HandleEnd.
func (s *CaptureSession) Stop() {
	s.mu.Lock()
	if !s.listening {
		s.mu.Unlock()
		return
	}
	s.timer.cancel()
	id := s.sessionID
	s.mu.Unlock()

	s.rec.Stop(id)
}

// ResetTranscript clears accumulated text without touching the listening state.
func (s *CaptureSession) ResetTranscript() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
}

// Close aborts any live recognition session and cancels the silence timer.
// Later events are ignored.
func (s *CaptureSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.timer.cancel()
	id, live := s.sessionID, s.listening
	s.listening = false
	s.sessionID = ""
	s.listeners = make(map[int]func(CaptureEvent))
	s.mu.Unlock()

	if live && s.rec != nil {
		s.rec.Abort(id)
	}
}

// HandleResult folds an incremental recognition update into the transcript
// and re-arms the silence timer.
func (s *CaptureSession) HandleResult(res speechmodel.RecognitionResult) {
	s.mu.Lock()
	if !s.acceptLocked(res.SessionID) || !s.listening {
		s.mu.Unlock()
		return
	}

	start := res.ResultIndex
	if start < 0 {
		start = 0
	}

	var (
		interim   strings.Builder
		gotFinal  bool
		confSum   float64
		confCount int
	)
	for i := start; i < len(res.Results); i++ {
		seg := res.Results[i]
		if seg.IsFinal {
			s.final.WriteString(seg.Transcript)
			gotFinal = true
		} else {
			interim.WriteString(seg.Transcript)
		}
		if seg.Confidence > 0 {
			confSum += seg.Confidence
			confCount++
		}
	}
	s.interim = interim.String()

	transcript := s.transcriptLocked()
	confident := false
	if confCount > 0 && utf8.RuneCountInString(strings.TrimSpace(transcript)) > s.cfg.MinConfidentLength {
		confident = confSum/float64(confCount) >= s.cfg.MinConfidence
	}

	switch {
	case gotFinal || confident:
		s.armLocked(s.cfg.ShortSilence)
	case s.interim != "":
		s.armLocked(s.cfg.LongSilence)
	}

	ev := s.eventLocked(CaptureTranscript, transcript)
	s.mu.Unlock()

	s.emit(ev)
}

// HandleSpeechEnd reacts to the platform noticing the speaker stopped.
func (s *CaptureSession) HandleSpeechEnd(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.acceptLocked(sessionID) || !s.listening {
		return
	}
	s.armLocked(s.cfg.ShortSilence)
}

// HandleEnd is the single point where an utterance is delivered.
func (s *CaptureSession) HandleEnd(sessionID string) {
	s.mu.Lock()
	if !s.acceptLocked(sessionID) {
		s.mu.Unlock()
		return
	}

	s.timer.cancel()
	s.listening = false
	s.sessionID = ""

	text := strings.TrimSpace(s.transcriptLocked())
	var ev CaptureEvent
	if text != "" && !s.failed {
		ev = s.eventLocked(CaptureUtterance, text)
	} else {
		ev = s.eventLocked(CaptureEnded, "")
	}
	s.mu.Unlock()

	s.emit(ev)
}

// HandleError records a recognition failure. No automatic retry is attempted.
func (s *CaptureSession) HandleError(sessionID string, kind speechmodel.ErrorKind) {
	s.mu.Lock()
	if !s.acceptLocked(sessionID) {
		s.mu.Unlock()
		return
	}

	s.timer.cancel()
	s.listening = false
	s.failed = true
	s.errMsg = kind.Message()
	ev := s.eventLocked(CaptureError, "")
	s.mu.Unlock()

	metrics.RecognitionErrors.WithLabelValues(string(kind)).Inc()
	s.logger.Warn().Str("session", sessionID).Str("kind", string(kind)).Msg("recognition error")
	s.emit(ev)
}

func (s *CaptureSession) acceptLocked(sessionID string) bool {
	return !s.closed && sessionID != "" && sessionID == s.sessionID
}

func (s *CaptureSession) armLocked(d time.Duration) {
	id := s.sessionID
	s.timer.arm(d, func(gen uint64) {
		s.mu.Lock()
		if !s.timer.current(gen) || s.sessionID != id {
			s.mu.Unlock()
			return
		}
		s.timer.task = nil
		s.mu.Unlock()

		s.logger.Debug().Str("session", id).Msg("silence timeout")
		s.Stop()
	})
}

func (s *CaptureSession) resetLocked() {
	s.final.Reset()
	s.interim = ""
}

func (s *CaptureSession) transcriptLocked() string {
	return s.final.String() + s.interim
}

func (s *CaptureSession) stateLocked() CaptureState {
	return CaptureState{
		Supported:  s.rec != nil && s.rec.Supported(),
		Listening:  s.listening,
		Transcript: s.transcriptLocked(),
		Error:      s.errMsg,
	}
}

func (s *CaptureSession) eventLocked(kind CaptureEventKind, text string) CaptureEvent {
	return CaptureEvent{Kind: kind, Text: text, State: s.stateLocked()}
}

func (s *CaptureSession) emit(ev CaptureEvent) {
	s.mu.Lock()
	fns := make([]func(CaptureEvent), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
