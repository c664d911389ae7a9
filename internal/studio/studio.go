// Package studio holds the live session: the capture source controller, the recording engine
// and the simulated audience around them.
package studio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/livestudio/studio/internal/comments"
	"github.com/livestudio/studio/internal/feed"
	"github.com/livestudio/studio/internal/media"
	"github.com/livestudio/studio/internal/recorder"
)

// ErrClosed is returned by operations on a studio that has been shut down.
var ErrClosed = errors.New("studio closed")

// SourceKind is what the current stream captures.
type SourceKind string

const (
	SourceNone   SourceKind = ""
	SourceCamera SourceKind = "camera"
	SourceScreen SourceKind = "screen"
)

// Settings tunes timings and simulation parameters.
type Settings struct {
	AmbientInterval   time.Duration
	Timeslice         time.Duration
	ScreenRecordDelay time.Duration
	CommentTimeout    time.Duration
	MimeTypes         []string
	ChatLimit         int
	HeartTTL          time.Duration
	// Metrics is the audience starting point. Nil means feed.DefaultMetricsConfig.
	Metrics *feed.MetricsConfig
}

// DefaultSettings returns the production timings.
func DefaultSettings() Settings {
	metrics := feed.DefaultMetricsConfig()
	return Settings{
		AmbientInterval:   2 * time.Second,
		Timeslice:         time.Second,
		ScreenRecordDelay: time.Second,
		CommentTimeout:    15 * time.Second,
		MimeTypes:         recorder.PreferredTypes,
		ChatLimit:         feed.ChatLimit,
		HeartTTL:          feed.HeartTTL,
		Metrics:           &metrics,
	}
}

// Options are the collaborators of a Studio. Devices and Recorders are required.
type Options struct {
	Devices   media.Devices
	Recorders recorder.Factory
	Comments  comments.Source
	Events    feed.Sink
	Clock     clockwork.Clock
	Rand      feed.Rand
	Logger    *zap.Logger
	Settings  Settings
}

// Studio is the live session. It exclusively owns the current capture stream; at most one
// stream is bound at a time.
type Studio struct {
	devices  media.Devices
	events   feed.Sink
	clock    clockwork.Clock
	rand     feed.Rand
	log      *zap.Logger
	settings Settings

	timers  *TimerSet
	chat    *feed.Chat
	hearts  *feed.Hearts
	metrics *feed.Metrics

	engine  *RecordingEngine
	ambient *AmbientSimulator
	bridge  *Bridge

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	stream        *media.Stream
	source        SourceKind
	cameraEnabled bool
	micEnabled    bool
	permissions   bool
	// ticket increases on every acquisition attempt; epoch only when a stream is bound and on
	// teardown. Work started under an older epoch must not touch the session.
	ticket  uint64
	epoch   uint64
	started bool
	closed  bool
	// closing is set before the final recording stop so no new recording can begin.
	closing atomic.Bool
}

// New builds a studio. Call Start to begin the session.
func New(opts Options) *Studio {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Rand == nil {
		opts.Rand = feed.SystemRand
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Events == nil {
		opts.Events = feed.Discard
	}
	if opts.Comments == nil {
		opts.Comments = comments.NewCanned(opts.Rand)
	}
	def := DefaultSettings()
	st := opts.Settings
	if st.AmbientInterval <= 0 {
		st.AmbientInterval = def.AmbientInterval
	}
	if st.Timeslice <= 0 {
		st.Timeslice = def.Timeslice
	}
	if st.ScreenRecordDelay <= 0 {
		st.ScreenRecordDelay = def.ScreenRecordDelay
	}
	if st.CommentTimeout <= 0 {
		st.CommentTimeout = def.CommentTimeout
	}
	if len(st.MimeTypes) == 0 {
		st.MimeTypes = def.MimeTypes
	}
	if st.Metrics == nil {
		st.Metrics = def.Metrics
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Studio{
		devices:  opts.Devices,
		events:   opts.Events,
		clock:    opts.Clock,
		rand:     &lockedRand{r: opts.Rand},
		log:      opts.Logger,
		settings: st,
		timers:   NewTimerSet(opts.Clock),
		chat:     feed.NewChat(st.ChatLimit),
		hearts:   feed.NewHearts(st.HeartTTL),
		metrics:  feed.NewMetrics(*st.Metrics),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.engine = newRecordingEngine(s, opts.Recorders)
	s.ambient = &AmbientSimulator{studio: s, interval: st.AmbientInterval}
	s.bridge = &Bridge{studio: s, source: comments.WithFallback(opts.Comments, opts.Logger)}
	return s
}

// Start begins the ambient simulation and acquires the camera.
func (s *Studio) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.ambient.Start()
	if err := s.AcquireCamera(ctx); err != nil {
		s.log.Warn("initial camera acquisition failed", zap.Error(err))
	}
	s.log.Info("studio started")
	return nil
}

// Close stops recording, cancels every timer and pending request and releases the stream.
func (s *Studio) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closing.Store(true)
	s.mu.Unlock()

	err := s.engine.StopSync(ctx)
	if err != nil {
		s.log.Warn("recording did not finalize before shutdown", zap.Error(err))
	}

	s.mu.Lock()
	s.closed = true
	s.epoch++
	s.ticket++
	s.mu.Unlock()

	s.cancel()
	s.timers.Close()
	s.wg.Wait()
	s.Dispose()
	s.log.Info("studio closed")
	return err
}

// Recording returns the recording engine.
func (s *Studio) Recording() *RecordingEngine { return s.engine }

// Epoch returns the current session generation.
func (s *Studio) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Stream returns the bound stream, or nil.
func (s *Studio) Stream() *media.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// goAsync runs fn in a goroutine that Close waits for. It reports false once the studio is closed.
func (s *Studio) goAsync(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
	return true
}

func (s *Studio) post(m feed.ChatMessage) {
	m = s.chat.Append(m, s.clock.Now())
	s.events.Publish(feed.Event{Type: feed.EventChatMessage, Data: m})
}

func (s *Studio) system(text string) { s.post(feed.SystemMessage(text)) }

func (s *Studio) alert(text string) {
	s.log.Info("alert", zap.String("message", text))
	s.events.Publish(feed.Event{Type: feed.EventAlert, Data: feed.Alert{Message: text}})
}

func (s *Studio) spawnHeart() {
	h := s.hearts.Spawn(s.rand, s.clock.Now())
	s.events.Publish(feed.Event{Type: feed.EventHeart, Data: h})
}

func (s *Studio) publishMetrics(m feed.MetricsSnapshot) {
	s.events.Publish(feed.Event{Type: feed.EventMetrics, Data: m})
}

func (s *Studio) publishState() {
	s.events.Publish(feed.Event{Type: feed.EventState, Data: s.State()})
}

// lockedRand serializes access to a source that is not safe for concurrent use.
type lockedRand struct {
	mu sync.Mutex
	r  feed.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}
