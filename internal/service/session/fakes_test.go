package session_test

import (
	"sync"
	"time"

	speechmodel "github.com/lunajournal/luna/backend/internal/model/speech"
	"github.com/lunajournal/luna/backend/internal/service/speech"
)

type fakeTask struct {
	mu      sync.Mutex
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTask) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (t *fakeTask) active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped
}

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

// fireActive runs every task that has not been stopped and reports how many ran.
func (m *manualScheduler) fireActive() int {
	m.mu.Lock()
	var due []*fakeTask
	for _, t := range m.tasks {
		if t.active() {
			due = append(due, t)
		}
	}
	m.mu.Unlock()

	for _, t := range due {
		t.f()
	}
	return len(due)
}

func (m *manualScheduler) activeDelays() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Duration
	for _, t := range m.tasks {
		if t.active() {
			out = append(out, t.d)
		}
	}
	return out
}

type fakeRecognizer struct {
	mu      sync.Mutex
	started []string
	aborted []string
}

func (r *fakeRecognizer) Supported() bool { return true }

func (r *fakeRecognizer) Start(id string, _ speechmodel.RecognitionConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, id)
	return nil
}

func (r *fakeRecognizer) Stop(string) {}

func (r *fakeRecognizer) Abort(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aborted = append(r.aborted, id)
}

func (r *fakeRecognizer) current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.started) == 0 {
		return ""
	}
	return r.started[len(r.started)-1]
}

func (r *fakeRecognizer) abortCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.aborted)
}

type fakeSynth struct {
	mu        sync.Mutex
	supported bool
	spoken    []speechmodel.Utterance
	cancels   int
}

func (s *fakeSynth) Supported() bool { return s.supported }

func (s *fakeSynth) Speak(u speechmodel.Utterance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, u)
	return nil
}

func (s *fakeSynth) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
}

func (s *fakeSynth) spokenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.spoken)
}

func (s *fakeSynth) cancelCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels
}

func (s *fakeSynth) lastID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.spoken) == 0 {
		return ""
	}
	return s.spoken[len(s.spoken)-1].ID
}
