package speech_test

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	speechmodel "github.com/lunajournal/luna/backend/internal/model/speech"
	"github.com/lunajournal/luna/backend/internal/service/speech"
)

type outputHarness struct {
	synth  *fakeSynth
	sess   *speech.OutputSession
	events []speech.OutputEvent
}

func newOutputHarness(t *testing.T, locale string) *outputHarness {
	t.Helper()
	h := &outputHarness{synth: &fakeSynth{supported: true}}
	h.sess = speech.NewOutputSession(h.synth, nil, speechmodel.SynthesisConfig{Lang: "en-IN", Rate: 1}, locale, zerolog.Nop())
	h.sess.Subscribe(func(ev speech.OutputEvent) { h.events = append(h.events, ev) })
	return h
}

func (h *outputHarness) last() speech.OutputEvent {
	return h.events[len(h.events)-1]
}

func TestOutputSpeakBuildsUtterance(t *testing.T) {
	req := require.New(t)
	h := newOutputHarness(t, "en-IN")
	h.sess.HandleVoicesChanged(sampleVoices())
	req.Equal("hindi-female", h.sess.State().SelectedVoice)

	h.sess.SetRate(5)
	req.True(h.sess.Speak("  Hello River  "))
	req.Len(h.synth.spoken, 1)

	u := h.synth.spoken[0]
	req.Equal("Hello River", u.Text)
	req.Equal("hindi-female", u.VoiceURI)
	req.Equal("en-IN", u.Lang)
	req.Equal(speechmodel.MaxRate, u.Rate)
	req.Equal(1.0, u.Pitch)
	req.Equal(1.0, u.Volume)
	req.NotEmpty(u.ID)
}

func TestOutputUnknownVoiceFallsBackToPlatformDefault(t *testing.T) {
	h := newOutputHarness(t, "en-IN")
	h.sess.HandleVoicesChanged(sampleVoices())
	h.sess.SetVoice("gone")

	require.True(t, h.sess.Speak("hi"))
	assert.Equal(t, "", h.synth.spoken[0].VoiceURI)
	assert.Equal(t, "en-IN", h.synth.spoken[0].Lang)
}

func TestOutputLifecycleEvents(t *testing.T) {
	h := newOutputHarness(t, "en-US")
	require.True(t, h.sess.Speak("one"))
	id := h.synth.lastID()

	h.sess.HandleStart(id)
	assert.True(t, h.sess.State().Speaking)
	h.sess.HandleEnd(id)
	assert.False(t, h.sess.State().Speaking)

	assert.Equal(t, speech.OutputFinished, h.last().Kind)
	assert.Equal(t, id, h.last().UtteranceID)
	assert.True(t, h.last().Terminal())
}

func TestOutputSpeakNoops(t *testing.T) {
	h := newOutputHarness(t, "en-US")
	assert.False(t, h.sess.Speak("   "))

	unsupported := speech.NewOutputSession(&fakeSynth{}, nil, speechmodel.SynthesisConfig{}, "en-US", zerolog.Nop())
	assert.False(t, unsupported.Speak("hello"))
	assert.Empty(t, h.synth.spoken)
}

func TestOutputSpeakReplacesActiveUtterance(t *testing.T) {
	h := newOutputHarness(t, "en-US")
	require.True(t, h.sess.Speak("one"))
	first := h.synth.lastID()
	require.True(t, h.sess.Speak("two"))

	assert.Equal(t, 1, h.synth.cancels)
	assert.Empty(t, h.events, "replacing is not reported as a cancel")

	// Events for the replaced utterance are stale.
	h.sess.HandleEnd(first)
	h.sess.HandleError(first, "interrupted")
	assert.Empty(t, h.events)
}

func TestOutputCancelIsIdempotent(t *testing.T) {
	h := newOutputHarness(t, "en-US")
	require.True(t, h.sess.Speak("long reply"))
	id := h.synth.lastID()
	h.sess.HandleStart(id)

	h.sess.Cancel()
	h.sess.Cancel()

	assert.False(t, h.sess.State().Speaking)
	assert.Equal(t, 1, h.synth.cancels)
	cancels := 0
	for _, ev := range h.events {
		if ev.Kind == speech.OutputCancelled {
			cancels++
		}
	}
	assert.Equal(t, 1, cancels)

	// The platform's late end for the cancelled utterance is ignored.
	n := len(h.events)
	h.sess.HandleEnd(id)
	assert.Len(t, h.events, n)
}

func TestOutputErrors(t *testing.T) {
	t.Run("platform event", func(t *testing.T) {
		h := newOutputHarness(t, "en-US")
		require.True(t, h.sess.Speak("hi"))
		h.sess.HandleError(h.synth.lastID(), "synthesis-failed")

		assert.Equal(t, speech.OutputFailed, h.last().Kind)
		assert.Equal(t, "synthesis-failed", h.last().Detail)
		assert.Equal(t, "Speech error: synthesis-failed", h.sess.State().Error)
	})

	t.Run("refused by platform", func(t *testing.T) {
		h := newOutputHarness(t, "en-US")
		h.synth.speakErr = errors.New("audio-busy")
		require.True(t, h.sess.Speak("hi"))
		assert.Equal(t, speech.OutputFailed, h.last().Kind)
		assert.False(t, h.sess.State().Speaking)
	})
}

func TestOutputCloseCancelsActiveUtterance(t *testing.T) {
	h := newOutputHarness(t, "en-US")
	require.True(t, h.sess.Speak("hi"))
	id := h.synth.lastID()

	h.sess.Close()
	assert.Equal(t, 1, h.synth.cancels)

	h.sess.HandleStart(id)
	assert.False(t, h.sess.State().Speaking)
	assert.False(t, h.sess.Speak("again"))
}
