package media

import "github.com/google/uuid"

// Stream groups the tracks of one capture. A composite stream may hold tracks coming from
// several captures (screen video, system audio, microphone).
type Stream struct {
	id     string
	tracks []*Track
}

// NewStream builds a stream over the given tracks. Nil tracks are skipped.
func NewStream(tracks ...*Track) *Stream {
	s := &Stream{id: uuid.NewString()}
	for _, t := range tracks {
		if t != nil {
			s.tracks = append(s.tracks, t)
		}
	}
	return s
}

func (s *Stream) ID() string { return s.id }

// Tracks returns all tracks in insertion order.
func (s *Stream) Tracks() []*Track {
	out := make([]*Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

func (s *Stream) VideoTracks() []*Track { return s.byKind(KindVideo) }
func (s *Stream) AudioTracks() []*Track { return s.byKind(KindAudio) }

func (s *Stream) byKind(k Kind) []*Track {
	var out []*Track
	for _, t := range s.tracks {
		if t.Kind() == k {
			out = append(out, t)
		}
	}
	return out
}

// Stop stops every track of the stream.
func (s *Stream) Stop() {
	for _, t := range s.tracks {
		t.Stop()
	}
}

// Active reports whether at least one track is still live.
func (s *Stream) Active() bool {
	for _, t := range s.tracks {
		if !t.Ended() {
			return true
		}
	}
	return false
}
