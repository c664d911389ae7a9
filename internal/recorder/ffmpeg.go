package recorder

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3/pkg/media/ivfwriter"
	"go.uber.org/zap"

	"github.com/livestudio/studio/internal/media"
)

// ffmpegWaitTimeout bounds how long Stop waits for ffmpeg to flush before killing it.
const ffmpegWaitTimeout = 10 * time.Second

// ffmpegOutputs maps supported mime types to output arguments. The input is always IVF/VP8
// on stdin and the output is written to stdout, so containers must be streamable.
var ffmpegOutputs = map[string][]string{
	"video/webm;codecs=vp9": {"-c:v", "libvpx-vp9", "-deadline", "realtime", "-cpu-used", "8", "-f", "webm"},
	"video/webm":            {"-c:v", "copy", "-f", "webm"},
	"video/mp4":             {"-c:v", "libx264", "-preset", "veryfast", "-movflags", "frag_keyframe+empty_moov", "-f", "mp4"},
}

// FFmpeg records through an ffmpeg child process, which lets the studio produce webm and mp4.
// Video frames are handed to ffmpeg as IVF on stdin.
type FFmpeg struct {
	path      string
	available bool
	clock     clockwork.Clock
	log       *zap.Logger
}

// NewFFmpeg resolves the ffmpeg binary. An unresolvable binary leaves the backend present
// but supporting no types, so negotiation falls through to the default.
func NewFFmpeg(path string, clock clockwork.Clock, log *zap.Logger) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	f := &FFmpeg{path: path, clock: clock, log: log}
	if resolved, err := exec.LookPath(path); err == nil {
		f.path = resolved
		f.available = true
	} else {
		log.Warn("ffmpeg not found, recording formats limited", zap.String("path", path), zap.Error(err))
	}
	return f
}

// Available reports whether the ffmpeg binary was found.
func (f *FFmpeg) Available() bool { return f.available }

func (f *FFmpeg) IsTypeSupported(mimeType string) bool {
	if !f.available {
		return false
	}
	_, ok := ffmpegOutputs[mimeType]
	return ok
}

func (f *FFmpeg) New(stream *media.Stream, mimeType string, h Handlers) (Recorder, error) {
	if !f.available {
		return nil, fmt.Errorf("%w: ffmpeg unavailable", ErrNoSupportedFormat)
	}
	if mimeType == "" {
		mimeType = "video/webm"
	}
	args, ok := ffmpegOutputs[mimeType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSupportedFormat, mimeType)
	}
	video := stream.VideoTracks()
	if len(video) == 0 {
		return nil, ErrNoVideoTrack
	}
	return &ffmpegRecorder{
		path:     f.path,
		args:     args,
		mimeType: mimeType,
		track:    video[0],
		h:        h,
		clock:    f.clock,
		log:      f.log.With(zap.String("stream_id", stream.ID()), zap.String("mime_type", mimeType)),
	}, nil
}

type ffmpegRecorder struct {
	path     string
	args     []string
	mimeType string
	track    *media.Track
	h        Handlers
	clock    clockwork.Clock
	log      *zap.Logger

	mu      sync.Mutex
	state   State
	started bool
	stop    chan struct{}
	out     chunkBuffer
}

func (r *ffmpegRecorder) MimeType() string { return r.mimeType }

func (r *ffmpegRecorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *ffmpegRecorder) Start(timeslice time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return ErrAlreadyStarted
	}

	args := append([]string{"-hide_banner", "-loglevel", "error", "-f", "ivf", "-i", "pipe:0", "-an"}, r.args...)
	args = append(args, "pipe:1")
	cmd := exec.Command(r.path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		if _, err := io.Copy(&r.out, stdout); err != nil {
			r.log.Warn("read ffmpeg output", zap.Error(err))
		}
	}()

	w, err := ivfwriter.NewWith(pipeWriter{stdin})
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("ivf writer: %w", err)
	}

	packets, cancel := r.track.Subscribe(512)
	r.started = true
	r.state = Recording
	r.stop = make(chan struct{})
	pw := &processWriter{ivf: w, cmd: cmd, drained: drained, log: r.log}
	go pump(r.clock, timeslice, r.stop, packets, cancel, pw, &r.out, r.log, r.h, r.finish)
	r.log.Info("ffmpeg recorder started", zap.Int("pid", cmd.Process.Pid))
	return nil
}

func (r *ffmpegRecorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Recording || r.stop == nil {
		return
	}
	close(r.stop)
	r.stop = nil
}

func (r *ffmpegRecorder) finish() {
	r.mu.Lock()
	r.state = Inactive
	r.stop = nil
	r.mu.Unlock()
}

// pipeWriter hides the pipe's Seek method so ivfwriter does not try to rewrite the header
// frame count on a non-seekable stream.
type pipeWriter struct{ io.WriteCloser }

// processWriter closes ffmpeg's stdin and waits for it to exit and for stdout to drain, so
// the pump's final flush sees the container trailer.
type processWriter struct {
	ivf     *ivfwriter.IVFWriter
	cmd     *exec.Cmd
	drained chan struct{}
	log     *zap.Logger
}

func (p *processWriter) WriteRTP(pkt *rtp.Packet) error { return p.ivf.WriteRTP(pkt) }

func (p *processWriter) Close() error {
	closeErr := p.ivf.Close()

	done := make(chan error, 1)
	go func() {
		<-p.drained
		done <- p.cmd.Wait()
	}()
	select {
	case err := <-done:
		if err != nil {
			p.log.Warn("ffmpeg exited with error", zap.Error(err))
		}
	case <-time.After(ffmpegWaitTimeout):
		_ = p.cmd.Process.Signal(os.Interrupt)
		_ = p.cmd.Process.Kill()
		<-done
	}
	return closeErr
}
