package studio

import (
	"github.com/livestudio/studio/internal/feed"
	"github.com/livestudio/studio/internal/recorder"
)

// State is everything the display layer renders.
type State struct {
	Source        SourceKind           `json:"source"`
	Sharing       bool                 `json:"sharing"`
	HasStream     bool                 `json:"has_stream"`
	CameraEnabled bool                 `json:"camera_enabled"`
	MicEnabled    bool                 `json:"mic_enabled"`
	Permissions   bool                 `json:"permissions"`
	Recording     RecordingStatus      `json:"recording"`
	Metrics       feed.MetricsSnapshot `json:"metrics"`
}

// RecordingStatus describes the recording engine.
type RecordingStatus struct {
	State       RecordingState     `json:"state"`
	Elapsed     int                `json:"elapsed"`
	ElapsedText string             `json:"elapsed_text"`
	MimeType    string             `json:"mime_type,omitempty"`
	Artifact    *recorder.Artifact `json:"artifact,omitempty"`
}

// Snapshot is State plus the chat and hearts.
type Snapshot struct {
	State
	Messages []feed.ChatMessage `json:"messages"`
	Hearts   []feed.Heart       `json:"hearts"`
}

// State returns the session flags, recording status and metrics.
func (s *Studio) State() State {
	s.mu.Lock()
	st := State{
		Source:        s.source,
		Sharing:       s.source == SourceScreen,
		HasStream:     s.stream != nil,
		CameraEnabled: s.cameraEnabled,
		MicEnabled:    s.micEnabled,
		Permissions:   s.permissions,
	}
	s.mu.Unlock()
	st.Recording = s.engine.Status()
	st.Metrics = s.metrics.Snapshot()
	return st
}

// Snapshot returns an immutable copy of everything on screen.
func (s *Studio) Snapshot() Snapshot {
	return Snapshot{
		State:    s.State(),
		Messages: s.chat.Messages(),
		Hearts:   s.hearts.Active(s.clock.Now()),
	}
}
