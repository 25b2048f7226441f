package speech_test

import (
	"errors"
	"sync"
	"time"

	speechmodel "github.com/lunajournal/luna/backend/internal/model/speech"
	"github.com/lunajournal/luna/backend/internal/service/speech"
)

type fakeTask struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTask) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// manualScheduler records tasks; tests fire them explicitly.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []*fakeTask
}

func (m *manualScheduler) AfterFunc(d time.Duration, f func()) speech.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &fakeTask{d: d, f: f}
	m.tasks = append(m.tasks, t)
	return t
}

func (m *manualScheduler) pending() []*fakeTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*fakeTask
	for _, t := range m.tasks {
		if !t.stopped {
			out = append(out, t)
		}
	}
	return out
}

func (m *manualScheduler) last() *fakeTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tasks) == 0 {
		return nil
	}
	return m.tasks[len(m.tasks)-1]
}

type fakeRecognizer struct {
	supported bool
	startErr  error
	started   []string
	stopped   []string
	aborted   []string
	lastCfg   speechmodel.RecognitionConfig
}

func (r *fakeRecognizer) Supported() bool { return r.supported }

func (r *fakeRecognizer) Start(id string, cfg speechmodel.RecognitionConfig) error {
	if r.startErr != nil {
		return r.startErr
	}
	r.started = append(r.started, id)
	r.lastCfg = cfg
	return nil
}

func (r *fakeRecognizer) Stop(id string)  { r.stopped = append(r.stopped, id) }
func (r *fakeRecognizer) Abort(id string) { r.aborted = append(r.aborted, id) }

func (r *fakeRecognizer) current() string {
	if len(r.started) == 0 {
		return ""
	}
	return r.started[len(r.started)-1]
}

type fakeSynth struct {
	supported bool
	speakErr  error
	spoken    []speechmodel.Utterance
	cancels   int
}

func (s *fakeSynth) Supported() bool { return s.supported }

func (s *fakeSynth) Speak(u speechmodel.Utterance) error {
	if s.speakErr != nil {
		return s.speakErr
	}
	s.spoken = append(s.spoken, u)
	return nil
}

func (s *fakeSynth) Cancel() { s.cancels++ }

func (s *fakeSynth) lastID() string {
	if len(s.spoken) == 0 {
		return ""
	}
	return s.spoken[len(s.spoken)-1].ID
}

var errBusy = errors.New("recognition already started")
