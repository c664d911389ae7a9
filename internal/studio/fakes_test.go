package studio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/livestudio/studio/internal/comments"
	"github.com/livestudio/studio/internal/feed"
	"github.com/livestudio/studio/internal/media"
	"github.com/livestudio/studio/internal/recorder"
)

// fakeDevices hands out tracks whose releases are counted.
type fakeDevices struct {
	mu         sync.Mutex
	released   map[string]int
	cameraErr  error
	displayErr error
	micErr     error
	noDisplay  bool
	// cameraGate, when set, holds camera requests until it is closed. cameraEntered is
	// signalled once per held request.
	cameraGate    chan struct{}
	cameraEntered chan struct{}
	lastDisplay   *media.Track
	streams       []*media.Stream
}

func newFakeDevices() *fakeDevices {
	return &fakeDevices{released: make(map[string]int)}
}

func (d *fakeDevices) track(kind media.Kind, label string) *media.Track {
	var t *media.Track
	t = media.NewTrack(kind, label, func() {
		d.mu.Lock()
		d.released[t.ID()]++
		d.mu.Unlock()
	})
	return t
}

func (d *fakeDevices) releases(t *media.Track) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released[t.ID()]
}

func (d *fakeDevices) UserMedia(ctx context.Context, c media.Constraints) (*media.Stream, error) {
	d.mu.Lock()
	gate, entered := d.cameraGate, d.cameraEntered
	camErr, micErr := d.cameraErr, d.micErr
	d.mu.Unlock()

	if c.Video == nil {
		if micErr != nil {
			return nil, micErr
		}
		return d.record(media.NewStream(d.track(media.KindAudio, "mic"))), nil
	}
	if gate != nil {
		entered <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if camErr != nil {
		return nil, camErr
	}
	return d.record(media.NewStream(d.track(media.KindVideo, "camera"), d.track(media.KindAudio, "camera mic"))), nil
}

func (d *fakeDevices) DisplayMedia(ctx context.Context, c media.Constraints) (*media.Stream, error) {
	d.mu.Lock()
	err := d.displayErr
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	video := d.track(media.KindVideo, "screen")
	d.mu.Lock()
	d.lastDisplay = video
	d.mu.Unlock()
	return d.record(media.NewStream(video, d.track(media.KindAudio, "system audio"))), nil
}

func (d *fakeDevices) DisplaySupported() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.noDisplay
}

func (d *fakeDevices) record(s *media.Stream) *media.Stream {
	d.mu.Lock()
	d.streams = append(d.streams, s)
	d.mu.Unlock()
	return s
}

func (d *fakeDevices) display() *media.Track {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastDisplay
}

func (d *fakeDevices) set(fn func(d *fakeDevices)) {
	d.mu.Lock()
	fn(d)
	d.mu.Unlock()
}

// fakeFactory builds recorders the test drives by hand.
type fakeFactory struct {
	mu        sync.Mutex
	supported map[string]bool
	newErr    error
	recorders []*fakeRecorder
}

func (f *fakeFactory) IsTypeSupported(mt string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.supported[mt]
}

func (f *fakeFactory) New(stream *media.Stream, mt string, h recorder.Handlers) (recorder.Recorder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.newErr != nil {
		return nil, f.newErr
	}
	if mt == "" {
		mt = "video/webm"
	}
	r := &fakeRecorder{h: h, mime: mt, stream: stream}
	f.recorders = append(f.recorders, r)
	return r, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recorders)
}

func (f *fakeFactory) last() *fakeRecorder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recorders[len(f.recorders)-1]
}

type fakeRecorder struct {
	mu     sync.Mutex
	h      recorder.Handlers
	mime   string
	stream *media.Stream
	state  recorder.State
}

func (r *fakeRecorder) MimeType() string { return r.mime }

func (r *fakeRecorder) Start(time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == recorder.Recording {
		return recorder.ErrAlreadyStarted
	}
	r.state = recorder.Recording
	return nil
}

func (r *fakeRecorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != recorder.Recording {
		return
	}
	r.state = recorder.Inactive
	go r.h.OnStop()
}

func (r *fakeRecorder) State() recorder.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *fakeRecorder) emit(chunk []byte) { r.h.OnData(chunk) }

// eventLog records published events in order.
type eventLog struct {
	mu     sync.Mutex
	events []feed.Event
}

func (l *eventLog) Publish(e feed.Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) all() []feed.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]feed.Event(nil), l.events...)
}

func (l *eventLog) ofType(t feed.EventType) []feed.Event {
	var out []feed.Event
	for _, e := range l.all() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (l *eventLog) alerts() []string {
	var out []string
	for _, e := range l.ofType(feed.EventAlert) {
		out = append(out, e.Data.(feed.Alert).Message)
	}
	return out
}

// stubRand returns fixed values.
type stubRand struct {
	f float64
	n int
}

func (r stubRand) Float64() float64 { return r.f }
func (r stubRand) IntN(n int) int   { return r.n % n }

type harness struct {
	studio  *Studio
	devices *fakeDevices
	factory *fakeFactory
	clock   clockwork.FakeClock
	events  *eventLog
}

type harnessOption func(*Options)

func withComments(src comments.Source) harnessOption {
	return func(o *Options) { o.Comments = src }
}

func withMetrics(m feed.MetricsConfig) harnessOption {
	return func(o *Options) { o.Settings.Metrics = &m }
}

func withRand(r feed.Rand) harnessOption {
	return func(o *Options) { o.Rand = r }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		devices: newFakeDevices(),
		factory: &fakeFactory{supported: map[string]bool{}},
		clock:   clockwork.NewFakeClock(),
		events:  &eventLog{},
	}
	o := Options{
		Devices:   h.devices,
		Recorders: h.factory,
		Comments: comments.SourceFunc(func(context.Context, string) ([]string, error) {
			return []string{"a", "b"}, nil
		}),
		Events: h.events,
		Clock:  h.clock,
		Rand:   stubRand{f: 0.5},
		Logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	h.studio = New(o)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.studio.Close(ctx)
	})
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.studio.Start(context.Background()))
	require.NotNil(t, h.studio.Stream())
}

func (h *harness) chatTexts() []string {
	var out []string
	for _, m := range h.studio.Snapshot().Messages {
		out = append(out, m.Message)
	}
	return out
}

// advanceUntil moves the fake clock in steps until cond holds.
func (h *harness) advanceUntil(t *testing.T, step time.Duration, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		if cond() {
			return true
		}
		h.clock.Advance(step)
		return cond()
	}, 3*time.Second, 2*time.Millisecond)
}
