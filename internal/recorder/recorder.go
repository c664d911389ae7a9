package recorder

import (
	"errors"
	"strings"
	"time"

	"github.com/livestudio/studio/internal/media"
)

var (
	// ErrNoSupportedFormat is returned when a backend cannot encode the negotiated type.
	ErrNoSupportedFormat = errors.New("no supported recording format")
	// ErrNoVideoTrack is returned when the stream has nothing to record.
	ErrNoVideoTrack = errors.New("stream has no video track")
	// ErrAlreadyStarted is returned by Start on a recorder that is already running.
	ErrAlreadyStarted = errors.New("recorder already started")
)

// State of a single recorder instance.
type State int

const (
	Inactive State = iota
	Recording
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Recording:
		return "recording"
	default:
		return "unknown"
	}
}

// Handlers receive a recorder's output. OnData gets chunks in emission order; OnStop runs
// once, after the last chunk. Neither is invoked from within Start.
type Handlers struct {
	OnData func(chunk []byte)
	OnStop func()
}

// Recorder encodes one stream into a sequence of chunks.
type Recorder interface {
	// MimeType is the container/codec actually produced.
	MimeType() string
	// Start begins capture, emitting a chunk every timeslice.
	Start(timeslice time.Duration) error
	// Stop requests finalization. It returns immediately; OnStop signals completion.
	Stop()
	State() State
}

// Factory builds recorders for a stream.
type Factory interface {
	IsTypeSupported(mimeType string) bool
	New(stream *media.Stream, mimeType string, h Handlers) (Recorder, error)
}

// PreferredTypes is the default negotiation ladder, most capable first.
var PreferredTypes = []string{
	"video/webm;codecs=vp9",
	"video/webm",
	"video/mp4",
}

// Negotiate returns the first entry of ladder the factory supports, or "" to let the backend
// pick its default.
func Negotiate(f Factory, ladder []string) string {
	for _, mt := range ladder {
		if f.IsTypeSupported(mt) {
			return mt
		}
	}
	return ""
}

// Extension returns the file extension for a mime type. Unknown types fall back to webm.
func Extension(mimeType string) string {
	base := strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	switch strings.ToLower(base) {
	case "video/mp4":
		return "mp4"
	case "video/x-ivf":
		return "ivf"
	case "video/x-matroska":
		return "mkv"
	default:
		return "webm"
	}
}
