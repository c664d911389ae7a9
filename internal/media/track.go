package media

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pion/rtp"
)

// Kind is the media type carried by a track.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// Track is a single live capture track. Packets written by the source are fanned out to
// subscribers while the track is enabled. Disabling mutes the track without releasing it.
type Track struct {
	id    string
	kind  Kind
	label string

	mu      sync.RWMutex
	enabled bool
	ended   bool
	subs    map[int]chan *rtp.Packet
	nextSub int
	onEnded []func()

	release  func()
	stopOnce sync.Once
}

// NewTrack creates an enabled track. release is called exactly once when the track is
// stopped or ended by its source; it may be nil.
func NewTrack(kind Kind, label string, release func()) *Track {
	return &Track{
		id:      uuid.NewString(),
		kind:    kind,
		label:   label,
		enabled: true,
		subs:    make(map[int]chan *rtp.Packet),
		release: release,
	}
}

func (t *Track) ID() string    { return t.id }
func (t *Track) Kind() Kind    { return t.kind }
func (t *Track) Label() string { return t.label }

// Enabled reports whether packets are currently delivered to subscribers.
func (t *Track) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// SetEnabled mutes or unmutes the track.
func (t *Track) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

// Ended reports whether the track was stopped or ended by its source.
func (t *Track) Ended() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ended
}

// WriteRTP delivers a packet to every subscriber. Slow subscribers drop packets rather than
// block the source.
func (t *Track) WriteRTP(p *rtp.Packet) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.ended || !t.enabled {
		return
	}
	for _, ch := range t.subs {
		select {
		case ch <- p:
		default:
		}
	}
}

// Subscribe returns a channel receiving the track's packets and a cancel function. The
// channel is closed when the track ends or the subscription is cancelled.
func (t *Track) Subscribe(buffer int) (<-chan *rtp.Packet, func()) {
	ch := make(chan *rtp.Packet, buffer)
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if c, ok := t.subs[id]; ok {
				delete(t.subs, id)
				close(c)
			}
		})
	}
}

// OnEnded registers fn to run when the source ends the track (for example the user stopped
// sharing from the browser). It does not run for Stop.
func (t *Track) OnEnded(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEnded = append(t.onEnded, fn)
}

// Stop releases the track. Ended handlers are not invoked.
func (t *Track) Stop() {
	t.finish()
}

// End marks the track ended by its source and runs the ended handlers. No-op after Stop.
func (t *Track) End() {
	handlers := t.finish()
	for _, fn := range handlers {
		fn()
	}
}

func (t *Track) finish() []func() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return nil
	}
	t.ended = true
	for id, ch := range t.subs {
		delete(t.subs, id)
		close(ch)
	}
	handlers := t.onEnded
	t.onEnded = nil
	t.mu.Unlock()

	t.stopOnce.Do(func() {
		if t.release != nil {
			t.release()
		}
	})
	return handlers
}
