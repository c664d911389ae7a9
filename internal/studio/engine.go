package studio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/livestudio/studio/internal/feed"
	"github.com/livestudio/studio/internal/recorder"
)

var (
	// ErrNoStream is returned by Start when there is nothing to record.
	ErrNoStream = errors.New("no live stream to record")
	// ErrAlreadyRecording is returned by Start while a recording is running.
	ErrAlreadyRecording = errors.New("already recording")
)

const (
	msgRecordStarted   = "开始录制..."
	msgRecordFinished  = "录制已完成。"
	msgRecordFailed    = "无法开始录制，请检查浏览器支持。"
	msgRecordRecovered = "录制已停止 (修复)。"
)

// RecordingState is idle or recording; finalizing happens inside the transition to idle.
type RecordingState string

const (
	RecordingIdle   RecordingState = "idle"
	RecordingActive RecordingState = "recording"
)

// FormatElapsed renders seconds as m:ss.
func FormatElapsed(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// RecordingEngine drives one recorder at a time over the studio's current stream and turns
// its chunks into a downloadable artifact.
type RecordingEngine struct {
	studio  *Studio
	factory recorder.Factory
	log     *zap.Logger

	mu       sync.Mutex
	state    RecordingState
	rec      recorder.Recorder
	gen      uint64
	chunks   [][]byte // released once the artifact is built
	mimeType string
	elapsed  int
	ticker   TimerID
	artifact *recorder.Artifact
	done     chan struct{}
}

func newRecordingEngine(s *Studio, factory recorder.Factory) *RecordingEngine {
	return &RecordingEngine{
		studio:  s,
		factory: factory,
		log:     s.log.Named("recording"),
		state:   RecordingIdle,
	}
}

// Start records the current stream. Without a stream it only logs and returns ErrNoStream.
// A recorder that cannot be built is reported in chat and the engine stays idle.
func (e *RecordingEngine) Start() error {
	stream := e.studio.Stream()
	if stream == nil || !stream.Active() {
		e.log.Warn("no stream to record")
		return ErrNoStream
	}

	e.mu.Lock()
	if e.studio.closing.Load() {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.state == RecordingActive {
		e.mu.Unlock()
		return ErrAlreadyRecording
	}
	e.gen++
	gen := e.gen
	e.chunks = nil
	e.artifact = nil
	e.mimeType = ""
	e.elapsed = 0

	done := make(chan struct{})
	mimeType := recorder.Negotiate(e.factory, e.studio.settings.MimeTypes)
	rec, err := e.factory.New(stream, mimeType, recorder.Handlers{
		OnData: func(chunk []byte) { e.appendChunk(gen, chunk) },
		OnStop: func() { e.finalize(gen, done) },
	})
	if err == nil {
		err = rec.Start(e.studio.settings.Timeslice)
	}
	if err != nil {
		e.mu.Unlock()
		e.log.Error("failed to start recorder", zap.String("mime_type", mimeType), zap.Error(err))
		e.studio.system(msgRecordFailed)
		e.studio.publishState()
		return fmt.Errorf("start recorder: %w", err)
	}
	e.rec = rec
	e.mimeType = rec.MimeType()
	e.state = RecordingActive
	e.done = done
	e.ticker = e.studio.timers.Every(time.Second, func() { e.tick(gen) })
	e.mu.Unlock()

	e.log.Info("recording started", zap.String("stream_id", stream.ID()), zap.String("mime_type", rec.MimeType()))
	e.studio.system(msgRecordStarted)
	e.studio.publishState()
	return nil
}

// Stop asks the recorder to finalize. The engine turns idle when the recorder reports it has
// stopped. Stopping while idle clears the elapsed ticker and, if a previous recorder exists,
// notes the recovery in chat.
func (e *RecordingEngine) Stop() {
	e.mu.Lock()
	if e.state == RecordingActive {
		rec := e.rec
		e.mu.Unlock()
		rec.Stop()
		return
	}
	e.studio.timers.Cancel(e.ticker)
	e.ticker = 0
	hadRecorder := e.rec != nil && e.rec.State() == recorder.Inactive
	e.mu.Unlock()
	if hadRecorder {
		e.studio.system(msgRecordRecovered)
	}
}

// StopSync stops recording and waits until the artifact is finalized or ctx is done.
func (e *RecordingEngine) StopSync(ctx context.Context) error {
	e.mu.Lock()
	done := e.done
	active := e.state == RecordingActive
	e.mu.Unlock()
	if !active {
		return nil
	}
	e.Stop()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recording reports whether a recording is running.
func (e *RecordingEngine) Recording() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == RecordingActive
}

// Artifact returns the last finalized recording, or nil.
func (e *RecordingEngine) Artifact() *recorder.Artifact {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.artifact
}

// Status reports state, elapsed time and the artifact.
func (e *RecordingEngine) Status() RecordingStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return RecordingStatus{
		State:       e.state,
		Elapsed:     e.elapsed,
		ElapsedText: FormatElapsed(e.elapsed),
		MimeType:    e.mimeType,
		Artifact:    e.artifact,
	}
}

func (e *RecordingEngine) appendChunk(gen uint64, chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		return
	}
	e.chunks = append(e.chunks, chunk)
}

func (e *RecordingEngine) tick(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.state != RecordingActive {
		e.mu.Unlock()
		return
	}
	e.elapsed++
	e.mu.Unlock()
	e.studio.publishState()
}

// finalize runs when the recorder has emitted its last chunk.
func (e *RecordingEngine) finalize(gen uint64, done chan struct{}) {
	defer close(done)

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.studio.timers.Cancel(e.ticker)
	e.ticker = 0
	e.state = RecordingIdle
	e.artifact = recorder.NewArtifact(e.chunks, e.mimeType, e.studio.clock.Now())
	e.chunks = nil
	artifact := e.artifact
	elapsed := e.elapsed
	e.mu.Unlock()

	fields := []zap.Field{zap.String("elapsed", FormatElapsed(elapsed))}
	if artifact != nil {
		fields = append(fields, zap.String("filename", artifact.Filename), zap.Int("size", artifact.Size))
	}
	e.log.Info("recording finished", fields...)
	e.studio.system(msgRecordFinished)
	if artifact != nil {
		e.studio.events.Publish(feed.Event{Type: feed.EventRecordingReady, Data: artifact})
	}
	e.studio.publishState()
}
