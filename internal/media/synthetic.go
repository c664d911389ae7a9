package media

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pion/rtp"
	"go.uber.org/zap"
)

const (
	payloadTypeVP8  = 96
	payloadTypeOpus = 111

	vp8ClockRate  = 90000
	opusClockRate = 48000
	audioFrame    = 20 * time.Millisecond
)

// SyntheticConfig tunes the test-pattern devices.
type SyntheticConfig struct {
	FrameRate     int
	KeyframeEvery int
	// DisplayDisabled makes DisplaySupported report false.
	DisplayDisabled bool
	// DisplayDuration ends display captures after the given time, as if the user pressed
	// "stop sharing". Zero keeps them running.
	DisplayDuration time.Duration
}

// Synthetic produces test-pattern VP8 video and opus-framed audio without any hardware.
// It lets the studio run headless and in tests.
type Synthetic struct {
	cfg   SyntheticConfig
	clock clockwork.Clock
	log   *zap.Logger
}

// NewSynthetic creates synthetic capture devices.
func NewSynthetic(cfg SyntheticConfig, clock clockwork.Clock, log *zap.Logger) *Synthetic {
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	if cfg.KeyframeEvery <= 0 {
		cfg.KeyframeEvery = cfg.FrameRate * 2
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Synthetic{cfg: cfg, clock: clock, log: log}
}

// UserMedia returns a camera and/or microphone capture.
func (s *Synthetic) UserMedia(ctx context.Context, c Constraints) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var tracks []*Track
	if c.Video != nil {
		tracks = append(tracks, s.videoTrack("synthetic camera"))
	}
	if c.Audio != nil {
		tracks = append(tracks, s.audioTrack("synthetic microphone"))
	}
	if len(tracks) == 0 {
		return nil, ErrUnsupported
	}
	return NewStream(tracks...), nil
}

// DisplayMedia returns a screen capture with system audio when requested.
func (s *Synthetic) DisplayMedia(ctx context.Context, c Constraints) (*Stream, error) {
	if !s.DisplaySupported() {
		return nil, ErrUnsupported
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	video := s.videoTrack("synthetic screen")
	tracks := []*Track{video}
	if c.Audio != nil {
		tracks = append(tracks, s.audioTrack("synthetic system audio"))
	}
	if s.cfg.DisplayDuration > 0 {
		t := s.clock.NewTimer(s.cfg.DisplayDuration)
		go func() {
			<-t.Chan()
			s.log.Info("synthetic display capture ended", zap.String("track_id", video.ID()))
			video.End()
		}()
	}
	return NewStream(tracks...), nil
}

func (s *Synthetic) DisplaySupported() bool { return !s.cfg.DisplayDisabled }

func (s *Synthetic) videoTrack(label string) *Track {
	interval := time.Second / time.Duration(s.cfg.FrameRate)
	step := uint32(vp8ClockRate / s.cfg.FrameRate)
	return s.generate(KindVideo, label, interval, func(seq uint16, ts uint32, n int) *rtp.Packet {
		return vp8Packet(seq, ts, n%s.cfg.KeyframeEvery == 0)
	}, step)
}

func (s *Synthetic) audioTrack(label string) *Track {
	step := uint32(opusClockRate * audioFrame / time.Second)
	return s.generate(KindAudio, label, audioFrame, func(seq uint16, ts uint32, _ int) *rtp.Packet {
		return &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    payloadTypeOpus,
				SequenceNumber: seq,
				Timestamp:      ts,
				Marker:         true,
			},
			// TOC byte for a 20ms CELT frame followed by comfort noise.
			Payload: []byte{0xfc, 0xff, 0xfe},
		}
	}, step)
}

func (s *Synthetic) generate(kind Kind, label string, interval time.Duration, next func(uint16, uint32, int) *rtp.Packet, step uint32) *Track {
	stop := make(chan struct{})
	track := NewTrack(kind, label, func() { close(stop) })
	ticker := s.clock.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		var (
			seq uint16
			ts  uint32
			n   int
		)
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				track.WriteRTP(next(seq, ts, n))
				seq++
				ts += step
				n++
			}
		}
	}()
	return track
}

// vp8Packet builds a single-packet VP8 frame: payload descriptor with the start bit set,
// then a frame tag whose low bit is 0 for keyframes.
func vp8Packet(seq uint16, ts uint32, keyframe bool) *rtp.Packet {
	payload := make([]byte, 24)
	payload[0] = 0x10
	if keyframe {
		payload[1] = 0x00
		// keyframe start code
		payload[4], payload[5], payload[6] = 0x9d, 0x01, 0x2a
	} else {
		payload[1] = 0x01
	}
	for i := 10; i < len(payload); i++ {
		payload[i] = byte(seq) ^ byte(i)
	}
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    payloadTypeVP8,
			SequenceNumber: seq,
			Timestamp:      ts,
			Marker:         true,
		},
		Payload: payload,
	}
}
