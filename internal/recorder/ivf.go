package recorder

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3/pkg/media/ivfwriter"
	"go.uber.org/zap"

	"github.com/livestudio/studio/internal/media"
)

const ivfMimeType = "video/x-ivf;codecs=vp8"

// chunkBuffer collects encoder output between timeslice flushes.
type chunkBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *chunkBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// take drains the buffer. It returns nil when nothing was written since the last call.
func (b *chunkBuffer) take() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buf.Len() == 0 {
		return nil
	}
	out := bytes.Clone(b.buf.Bytes())
	b.buf.Reset()
	return out
}

// IVF records the first video track of a stream into an IVF container using pion's
// ivfwriter. It is pure Go and always available; audio tracks are not recorded.
type IVF struct {
	clock clockwork.Clock
	log   *zap.Logger
}

// NewIVF creates the IVF backend.
func NewIVF(clock clockwork.Clock, log *zap.Logger) *IVF {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &IVF{clock: clock, log: log}
}

func (f *IVF) IsTypeSupported(mimeType string) bool {
	return mimeType == "" || strings.HasPrefix(mimeType, "video/x-ivf")
}

func (f *IVF) New(stream *media.Stream, mimeType string, h Handlers) (Recorder, error) {
	if !f.IsTypeSupported(mimeType) {
		return nil, fmt.Errorf("%w: %q", ErrNoSupportedFormat, mimeType)
	}
	video := stream.VideoTracks()
	if len(video) == 0 {
		return nil, ErrNoVideoTrack
	}
	return &ivfRecorder{
		track: video[0],
		h:     h,
		clock: f.clock,
		log:   f.log.With(zap.String("stream_id", stream.ID())),
	}, nil
}

type ivfRecorder struct {
	track *media.Track
	h     Handlers
	clock clockwork.Clock
	log   *zap.Logger

	mu      sync.Mutex
	state   State
	started bool
	stop    chan struct{}
	out     chunkBuffer
}

func (r *ivfRecorder) MimeType() string { return ivfMimeType }

func (r *ivfRecorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *ivfRecorder) Start(timeslice time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return ErrAlreadyStarted
	}
	w, err := ivfwriter.NewWith(&r.out)
	if err != nil {
		return fmt.Errorf("ivf writer: %w", err)
	}
	packets, cancel := r.track.Subscribe(512)
	r.started = true
	r.state = Recording
	r.stop = make(chan struct{})
	go pump(r.clock, timeslice, r.stop, packets, cancel, w, &r.out, r.log, r.h, r.finish)
	r.log.Info("ivf recorder started", zap.Duration("timeslice", timeslice))
	return nil
}

func (r *ivfRecorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Recording || r.stop == nil {
		return
	}
	close(r.stop)
	r.stop = nil
}

func (r *ivfRecorder) finish() {
	r.mu.Lock()
	r.state = Inactive
	r.stop = nil
	r.mu.Unlock()
}

// rtpWriter is the subset of ivfwriter.IVFWriter the pump needs.
type rtpWriter interface {
	WriteRTP(*rtp.Packet) error
	Close() error
}

// pump feeds packets into w until stop is closed or the track ends, flushing out every
// timeslice. After the final flush it marks the recorder inactive and calls OnStop.
func pump(clock clockwork.Clock, timeslice time.Duration, stop <-chan struct{}, packets <-chan *rtp.Packet,
	unsubscribe func(), w rtpWriter, out *chunkBuffer, log *zap.Logger, h Handlers, finish func()) {
	ticker := clock.NewTicker(timeslice)
	flush := func() {
		if chunk := out.take(); chunk != nil && h.OnData != nil {
			h.OnData(chunk)
		}
	}
	writeErrs := 0

loop:
	for {
		select {
		case <-stop:
			break loop
		case p, ok := <-packets:
			if !ok {
				log.Info("recorded track ended")
				break loop
			}
			if err := w.WriteRTP(p); err != nil {
				writeErrs++
				if writeErrs == 1 {
					log.Warn("dropping packet the container cannot hold", zap.Error(err))
				}
			}
		case <-ticker.Chan():
			flush()
		}
	}

	ticker.Stop()
	unsubscribe()
	if err := w.Close(); err != nil && err != io.ErrClosedPipe {
		log.Warn("close writer", zap.Error(err))
	}
	flush()
	finish()
	if h.OnStop != nil {
		h.OnStop()
	}
}
