package session

import (
	"time"

	"github.com/rs/zerolog"

	speechmodel "github.com/lunajournal/luna/backend/internal/model/speech"
	"github.com/lunajournal/luna/backend/internal/service/ai"
	"github.com/lunajournal/luna/backend/internal/service/speech"
)

const (
	OriginText  = "text"
	OriginVoice = "voice"
)

// FactoryConfig holds what every new coordinator shares.
type FactoryConfig struct {
	Transport   ai.Transport
	Recognition speechmodel.RecognitionConfig
	Synthesis   speechmodel.SynthesisConfig
	Catalog     *speech.Catalog
	Scheduler   speech.Scheduler
	SkipDelay   time.Duration
	ChatTimeout time.Duration
	Logger      zerolog.Logger
}

// Factory builds coordinators and tracks them in a registry.
type Factory struct {
	cfg      FactoryConfig
	registry *Registry
}

// NewFactory returns a factory that registers every coordinator it builds.
func NewFactory(cfg FactoryConfig, registry *Registry) *Factory {
	if cfg.Transport == nil {
		cfg.Transport = ai.NotConfigured{}
	}
	if cfg.Catalog == nil {
		cfg.Catalog = speech.NewCatalog(nil)
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = speech.RealScheduler{}
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Factory{cfg: cfg, registry: registry}
}

// Registry exposes the registry new coordinators are added to.
func (f *Factory) Registry() *Registry { return f.registry }

// Transport returns the chat transport handed to coordinators.
func (f *Factory) Transport() ai.Transport { return f.cfg.Transport }

// Configured reports whether sessions can reach the chat model.
func (f *Factory) Configured() bool { return ai.IsConfigured(f.cfg.Transport) }

// Missing names the absent credential when the transport is not configured.
func (f *Factory) Missing() string {
	switch t := f.cfg.Transport.(type) {
	case ai.NotConfigured:
		return t.Missing
	case *ai.NotConfigured:
		return t.Missing
	}
	return ""
}

// NewText builds a coordinator without a speech platform. Replies go straight
// back to READY_TO_CHAT after the skip delay.
func (f *Factory) NewText() *Coordinator {
	c := NewCoordinator(f.options(nil, nil))
	f.registry.Add(c, OriginText)
	return c
}

// NewVoice builds a coordinator driven by a client speech platform.
func (f *Factory) NewVoice(rec speech.Recognizer, synth speech.Synthesizer, locale string) (*Coordinator, *speech.CaptureSession, *speech.OutputSession) {
	capture := speech.NewCaptureSession(rec, f.cfg.Recognition, f.cfg.Scheduler, f.cfg.Logger.With().Str("component", "capture").Logger())
	output := speech.NewOutputSession(synth, f.cfg.Catalog, f.cfg.Synthesis, locale, f.cfg.Logger.With().Str("component", "output").Logger())

	c := NewCoordinator(f.options(capture, output))
	f.registry.Add(c, OriginVoice)
	return c, capture, output
}

func (f *Factory) options(capture *speech.CaptureSession, output *speech.OutputSession) Options {
	return Options{
		Transport:   f.cfg.Transport,
		Capture:     capture,
		Output:      output,
		Scheduler:   f.cfg.Scheduler,
		SkipDelay:   f.cfg.SkipDelay,
		ChatTimeout: f.cfg.ChatTimeout,
		Logger:      f.cfg.Logger.With().Str("component", "coordinator").Logger(),
	}
}
