package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lunajournal/luna/backend/internal/metrics"
	"github.com/lunajournal/luna/backend/internal/model/chat"
	"github.com/lunajournal/luna/backend/internal/model/pseudonym"
	"github.com/lunajournal/luna/backend/internal/service/ai"
	"github.com/lunajournal/luna/backend/internal/service/speech"
)

var (
	ErrInputDisabled    = errors.New("input is disabled while Luna is active")
	ErrEmptyUtterance   = errors.New("utterance is empty")
	ErrAlreadyStarted   = errors.New("session already started")
	ErrSessionEnded     = errors.New("session has ended")
	ErrVoiceUnavailable = errors.New("voice input is not available")
)

// Texts surfaced in the log, the error banner and the status line.
const (
	MsgInitFailed       = "Failed to initialize chat with Luna. Please check API key and try again."
	MsgOpeningFailed    = "There was an issue starting our chat. Please try refreshing."
	BannerOpeningFailed = "Failed to initialize chat."
	MsgNoResponse       = "Sorry, I couldn't get a response. Please try again."
	BannerNoResponse    = "Failed to get response from Luna."
	StatusPreparing     = "Luna is preparing..."
	StatusThinking      = "Luna is thinking..."
	StatusSpeaking      = "Luna is speaking..."
)

const (
	speechErrorTemplate = "Speech error: %s. Displaying text only."
	defaultSkipDelay    = 500 * time.Millisecond
	defaultChatTimeout  = 30 * time.Second
)

// Options wires a coordinator. Capture and Output may be nil when the client
// has no speech platform.
type Options struct {
	Transport   ai.Transport
	Capture     *speech.CaptureSession
	Output      *speech.OutputSession
	Scheduler   speech.Scheduler
	SkipDelay   time.Duration
	ChatTimeout time.Duration
	Logger      zerolog.Logger
}

// Snapshot is a consistent copy of coordinator state handed to listeners.
type Snapshot struct {
	ID        string               `json:"id"`
	Version   uint64               `json:"version"`
	Phase     chat.Phase           `json:"phase"`
	Pseudonym *pseudonym.Pseudonym `json:"pseudonym,omitempty"`
	Messages  []chat.Message       `json:"messages"`
	Status    string               `json:"status,omitempty"`
	Error     string               `json:"error,omitempty"`
	Muted     bool                 `json:"muted"`
	Capture   speech.CaptureState  `json:"capture"`
	Output    speech.OutputState   `json:"output"`
	View      View                 `json:"view"`
}

// Coordinator sequences journaling turns and owns the message log.
type Coordinator struct {
	id        string
	transport ai.Transport
	capture   *speech.CaptureSession
	output    *speech.OutputSession
	sched     speech.Scheduler
	skipDelay time.Duration
	timeout   time.Duration
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	phase     chat.Phase
	pseudonym *pseudonym.Pseudonym
	conv      ai.Conversation
	opening   bool
	turn      uint64
	messages  []chat.Message
	status    string
	errMsg    string
	muted     bool
	version   uint64
	skipTask  speech.Task
	skipGen   uint64

	nextListener int
	listeners    map[int]func(Snapshot)
	unsubscribe  []func()
}

// NewCoordinator returns a coordinator in INITIAL_SETUP.
func NewCoordinator(opts Options) *Coordinator {
	if opts.Transport == nil {
		opts.Transport = ai.NotConfigured{}
	}
	if opts.Scheduler == nil {
		opts.Scheduler = speech.RealScheduler{}
	}
	if opts.SkipDelay <= 0 {
		opts.SkipDelay = defaultSkipDelay
	}
	if opts.ChatTimeout <= 0 {
		opts.ChatTimeout = defaultChatTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	c := &Coordinator{
		id:        id,
		transport: opts.Transport,
		capture:   opts.Capture,
		output:    opts.Output,
		sched:     opts.Scheduler,
		skipDelay: opts.SkipDelay,
		timeout:   opts.ChatTimeout,
		logger:    opts.Logger.With().Str("session", id).Logger(),
		ctx:       ctx,
		cancel:    cancel,
		phase:     chat.PhaseInitialSetup,
		messages:  make([]chat.Message, 0, 16),
		listeners: make(map[int]func(Snapshot)),
	}

	if c.capture != nil {
		c.unsubscribe = append(c.unsubscribe, c.capture.Subscribe(c.onCapture))
	}
	if c.output != nil {
		c.unsubscribe = append(c.unsubscribe, c.output.Subscribe(c.onOutput))
	}
	return c
}

// ID identifies the coordinator in the registry and in logs.
func (c *Coordinator) ID() string { return c.id }

// Subscribe registers fn to receive a snapshot after every state change.
func (c *Coordinator) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Snapshot returns the current state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	snap := Snapshot{
		ID:       c.id,
		Version:  c.version,
		Phase:    c.phase,
		Messages: append([]chat.Message(nil), c.messages...),
		Status:   c.status,
		Error:    c.errMsg,
		Muted:    c.muted,
	}
	if c.pseudonym != nil {
		p := *c.pseudonym
		snap.Pseudonym = &p
	}
	c.mu.Unlock()

	if c.capture != nil {
		snap.Capture = c.capture.State()
	}
	if c.output != nil {
		snap.Output = c.output.State()
	}
	snap.View = BuildView(snap)
	return snap
}

// Done is closed when the session ends.
func (c *Coordinator) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Begin opens the conversation for p and requests Luna's greeting.
func (c *Coordinator) Begin(p pseudonym.Pseudonym) error {
	c.mu.Lock()
	switch {
	case c.phase == chat.PhaseSessionEnded:
		c.mu.Unlock()
		return ErrSessionEnded
	case c.phase != chat.PhaseInitialSetup || c.opening:
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.opening = true
	c.pseudonym = &p
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	conv, err := c.transport.Open(ctx, p)
	cancel()

	c.mu.Lock()
	c.opening = false
	if c.phase == chat.PhaseSessionEnded {
		c.mu.Unlock()
		return ErrSessionEnded
	}
	if err != nil || conv == nil {
		if err == nil {
			err = errors.New("transport returned no conversation")
		}
		c.conv = nil
		c.appendLocked(chat.SenderSystem, MsgInitFailed)
		c.errMsg = MsgInitFailed
		c.setPhaseLocked(chat.PhaseError)
		c.mu.Unlock()

		c.logger.Error().Err(err).Str("transport", c.transport.Name()).Msg("failed to open conversation")
		c.notify()
		return fmt.Errorf("open conversation: %w", err)
	}

	c.conv = conv
	c.status = StatusPreparing
	c.setPhaseLocked(chat.PhaseLunaThinking)
	c.turn++
	turn := c.turn
	c.mu.Unlock()

	c.logger.Info().Str("pseudonym", p.ID).Str("transport", c.transport.Name()).Msg("session started")
	metrics.Turns.WithLabelValues("opening").Inc()
	c.notify()

	go c.await(turn, conv, ai.OpeningMessage, true)
	return nil
}

// SubmitUtterance sends a finished user utterance, typed or spoken.
func (c *Coordinator) SubmitUtterance(text string) error {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	if c.phase == chat.PhaseSessionEnded {
		c.mu.Unlock()
		return ErrSessionEnded
	}
	if text == "" {
		c.mu.Unlock()
		return ErrEmptyUtterance
	}
	if !c.phase.AcceptsInput() {
		phase := c.phase
		c.mu.Unlock()
		c.logger.Debug().Str("phase", string(phase)).Msg("utterance rejected")
		return ErrInputDisabled
	}

	wasListening := c.phase == chat.PhaseUserSpeaking
	c.appendLocked(chat.SenderUser, text)
	c.setPhaseLocked(chat.PhaseProcessingUserInput)

	conv := c.conv
	if conv == nil {
		c.appendLocked(chat.SenderSystem, MsgNoResponse)
		c.errMsg = BannerNoResponse
		c.status = ""
		c.setPhaseLocked(chat.PhaseError)
		c.mu.Unlock()

		c.logger.Warn().Msg("utterance submitted without a conversation")
		c.notify()
		return nil
	}

	c.status = StatusThinking
	c.setPhaseLocked(chat.PhaseLunaThinking)
	c.turn++
	turn := c.turn
	c.mu.Unlock()

	if c.capture != nil {
		c.capture.ResetTranscript()
		if wasListening {
			c.capture.Stop()
		}
	}

	metrics.Turns.WithLabelValues("user").Inc()
	c.notify()

	go c.await(turn, conv, text, false)
	return nil
}

// StartListening opens a voice capture session.
func (c *Coordinator) StartListening() error {
	c.mu.Lock()
	if c.phase == chat.PhaseSessionEnded {
		c.mu.Unlock()
		return ErrSessionEnded
	}
	if !c.phase.AcceptsInput() {
		c.mu.Unlock()
		return ErrInputDisabled
	}
	if c.capture == nil || !c.capture.State().Supported {
		c.mu.Unlock()
		return ErrVoiceUnavailable
	}
	c.setPhaseLocked(chat.PhaseUserSpeaking)
	c.mu.Unlock()

	c.notify()
	c.capture.Start()
	return nil
}

// StopListening asks the recognizer to finish; the utterance follows.
func (c *Coordinator) StopListening() {
	if c.capture != nil {
		c.capture.Stop()
	}
}

// SetMuted toggles audio output. Muting while Luna speaks ends the turn at once.
func (c *Coordinator) SetMuted(muted bool) {
	c.mu.Lock()
	if c.phase == chat.PhaseSessionEnded {
		c.mu.Unlock()
		return
	}
	c.muted = muted
	interrupt := muted && c.phase == chat.PhaseLunaSpeaking
	if interrupt {
		c.cancelSkipLocked()
		c.status = ""
		c.setPhaseLocked(chat.PhaseReadyToChat)
	} else {
		c.version++
	}
	c.mu.Unlock()

	if interrupt && c.output != nil {
		c.output.Cancel()
	}
	c.notify()
}

// DismissError clears the banner. The log entry stays.
func (c *Coordinator) DismissError() {
	c.mu.Lock()
	c.errMsg = ""
	if c.phase == chat.PhaseError {
		if c.conv != nil {
			c.setPhaseLocked(chat.PhaseReadyToChat)
		} else {
			c.pseudonym = nil
			c.setPhaseLocked(chat.PhaseInitialSetup)
		}
	} else {
		c.version++
	}
	c.mu.Unlock()

	c.notify()
}

// SetVoice selects the output voice.
func (c *Coordinator) SetVoice(voiceURI string) {
	if c.output != nil {
		c.output.SetVoice(voiceURI)
	}
}

// SetRate changes the output rate.
func (c *Coordinator) SetRate(rate float64) {
	if c.output != nil {
		c.output.SetRate(rate)
	}
}

// End moves to SESSION_ENDED from any phase and releases speech resources.
// Replies still in flight are dropped.
func (c *Coordinator) End() {
	c.mu.Lock()
	if c.phase == chat.PhaseSessionEnded {
		c.mu.Unlock()
		return
	}
	c.cancelSkipLocked()
	c.status = ""
	c.setPhaseLocked(chat.PhaseSessionEnded)
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	c.cancel()
	for _, fn := range unsubscribe {
		fn()
	}
	if c.capture != nil {
		c.capture.Close()
	}
	if c.output != nil {
		c.output.Close()
	}

	c.logger.Info().Msg("session ended")
	c.notify()

	c.mu.Lock()
	c.listeners = make(map[int]func(Snapshot))
	c.mu.Unlock()
}

func (c *Coordinator) await(turn uint64, conv ai.Conversation, text string, opening bool) {
	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	reply := ai.Exchange(ctx, conv, text)
	cancel()

	c.handleReply(turn, reply, opening)
}

func (c *Coordinator) handleReply(turn uint64, reply ai.Reply, opening bool) {
	c.mu.Lock()
	if c.ctx.Err() != nil || turn != c.turn || c.phase != chat.PhaseLunaThinking {
		c.mu.Unlock()
		c.logger.Debug().Uint64("turn", turn).Msg("dropping stale reply")
		return
	}

	switch {
	case reply.Null():
		c.appendLocked(chat.SenderSystem, MsgNoResponse)
		c.errMsg = BannerNoResponse
		c.status = ""
		c.setPhaseLocked(chat.PhaseError)
		c.mu.Unlock()
		c.notify()
		return

	case opening && reply.Err != nil:
		c.appendLocked(chat.SenderSystem, MsgOpeningFailed)
		c.errMsg = BannerOpeningFailed
		c.status = ""
		c.setPhaseLocked(chat.PhaseError)
		c.mu.Unlock()

		c.logger.Error().Err(reply.Err).Msg("opening greeting failed")
		c.notify()
		return
	}

	if reply.Err != nil {
		c.logger.Warn().Err(reply.Err).Msg("chat send failed, using fallback reply")
	}

	c.appendLocked(chat.SenderAssistant, reply.Text)
	c.status = StatusSpeaking
	c.setPhaseLocked(chat.PhaseLunaSpeaking)

	audible := !c.muted && c.output != nil && c.output.Supported()
	if !audible {
		c.armSkipLocked()
	}
	c.mu.Unlock()

	c.notify()

	if audible && !c.output.Speak(reply.Text) {
		c.mu.Lock()
		if c.phase == chat.PhaseLunaSpeaking {
			c.armSkipLocked()
		}
		c.mu.Unlock()
	}
}

// armSkipLocked schedules the move back to READY_TO_CHAT when no audio plays.
func (c *Coordinator) armSkipLocked() {
	c.cancelSkipLocked()
	gen := c.skipGen
	c.skipTask = c.sched.AfterFunc(c.skipDelay, func() {
		c.mu.Lock()
		if c.skipTask == nil || c.skipGen != gen || c.phase != chat.PhaseLunaSpeaking {
			c.mu.Unlock()
			return
		}
		c.skipTask = nil
		c.status = ""
		c.setPhaseLocked(chat.PhaseReadyToChat)
		c.mu.Unlock()

		c.notify()
	})
}

func (c *Coordinator) cancelSkipLocked() {
	if c.skipTask != nil {
		c.skipTask.Stop()
		c.skipTask = nil
	}
	c.skipGen++
}

func (c *Coordinator) onCapture(ev speech.CaptureEvent) {
	switch ev.Kind {
	case speech.CaptureUtterance:
		if err := c.SubmitUtterance(ev.Text); err != nil {
			c.logger.Warn().Err(err).Msg("spoken utterance not submitted")
			c.returnFromListening()
		}
		return
	case speech.CaptureError, speech.CaptureEnded:
		c.returnFromListening()
		return
	}
	c.touch()
}

func (c *Coordinator) returnFromListening() {
	c.mu.Lock()
	if c.phase == chat.PhaseUserSpeaking {
		c.setPhaseLocked(chat.PhaseReadyToChat)
	} else {
		c.version++
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Coordinator) onOutput(ev speech.OutputEvent) {
	if !ev.Terminal() {
		c.touch()
		return
	}

	c.mu.Lock()
	if c.phase != chat.PhaseLunaSpeaking {
		c.version++
		c.mu.Unlock()
		c.notify()
		return
	}
	if ev.Kind == speech.OutputFailed {
		c.appendLocked(chat.SenderSystem, fmt.Sprintf(speechErrorTemplate, ev.Detail))
	}
	c.cancelSkipLocked()
	c.status = ""
	c.setPhaseLocked(chat.PhaseReadyToChat)
	c.mu.Unlock()

	c.notify()
}

func (c *Coordinator) touch() {
	c.mu.Lock()
	c.version++
	c.mu.Unlock()
	c.notify()
}

func (c *Coordinator) appendLocked(sender chat.Sender, text string) {
	c.messages = append(c.messages, chat.Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
	c.version++
}

func (c *Coordinator) setPhaseLocked(to chat.Phase) {
	from := c.phase
	c.version++
	if from == to {
		return
	}
	c.phase = to
	metrics.PhaseTransitions.WithLabelValues(string(from), string(to)).Inc()
	c.logger.Debug().Str("from", string(from)).Str("to", string(to)).Msg("phase changed")
}

func (c *Coordinator) notify() {
	c.mu.Lock()
	if len(c.listeners) == 0 {
		c.mu.Unlock()
		return
	}
	fns := make([]func(Snapshot), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	snap := c.Snapshot()
	for _, fn := range fns {
		fn(snap)
	}
}
