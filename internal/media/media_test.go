package media

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackFanOutAndMute(t *testing.T) {
	track := NewTrack(KindVideo, "cam", nil)
	a, cancelA := track.Subscribe(4)
	b, _ := track.Subscribe(4)
	defer cancelA()

	track.WriteRTP(&rtp.Packet{Header: rtp.Header{SequenceNumber: 1}})
	assert.Equal(t, uint16(1), (<-a).SequenceNumber)
	assert.Equal(t, uint16(1), (<-b).SequenceNumber)

	track.SetEnabled(false)
	track.WriteRTP(&rtp.Packet{Header: rtp.Header{SequenceNumber: 2}})
	assert.Len(t, a, 0)

	track.SetEnabled(true)
	track.WriteRTP(&rtp.Packet{Header: rtp.Header{SequenceNumber: 3}})
	assert.Equal(t, uint16(3), (<-a).SequenceNumber)
}

func TestTrackStopReleasesOnceWithoutEndedHandlers(t *testing.T) {
	released := 0
	ended := 0
	track := NewTrack(KindAudio, "mic", func() { released++ })
	track.OnEnded(func() { ended++ })
	ch, _ := track.Subscribe(1)

	track.Stop()
	track.Stop()
	track.End()

	assert.Equal(t, 1, released)
	assert.Equal(t, 0, ended)
	assert.True(t, track.Ended())
	_, open := <-ch
	assert.False(t, open)
}

func TestTrackEndRunsHandlers(t *testing.T) {
	released := 0
	ended := 0
	track := NewTrack(KindVideo, "screen", func() { released++ })
	track.OnEnded(func() { ended++ })

	track.End()
	track.End()

	assert.Equal(t, 1, released)
	assert.Equal(t, 1, ended)
}

func TestSubscribeAfterEndIsClosed(t *testing.T) {
	track := NewTrack(KindVideo, "cam", nil)
	track.Stop()
	ch, cancel := track.Subscribe(1)
	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestStreamKindsAndStop(t *testing.T) {
	v := NewTrack(KindVideo, "v", nil)
	a1 := NewTrack(KindAudio, "a1", nil)
	a2 := NewTrack(KindAudio, "a2", nil)
	s := NewStream(v, nil, a1, a2)

	assert.Len(t, s.Tracks(), 3)
	assert.Equal(t, []*Track{v}, s.VideoTracks())
	assert.Equal(t, []*Track{a1, a2}, s.AudioTracks())
	assert.True(t, s.Active())

	s.Stop()
	assert.False(t, s.Active())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		errName string
		message string
		want    error
	}{
		{"policy", "NotAllowedError", "Access to the feature \"display-capture\" is disallowed by permissions policy", ErrPolicyDenied},
		{"cancelled", "NotAllowedError", "Permission denied", ErrUserCancelled},
		{"unsupported", "NotSupportedError", "getDisplayMedia is not supported", ErrUnsupported},
		{"device", "NotReadableError", "Could not start video source", ErrDeviceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, Classify(tt.errName, tt.message), tt.want)
		})
	}

	err := Classify("UnknownError", "boom")
	for _, sentinel := range []error{ErrPolicyDenied, ErrUserCancelled, ErrUnsupported, ErrDeviceUnavailable} {
		assert.False(t, errors.Is(err, sentinel))
	}
}

func TestSyntheticCameraProducesVideoAndAudio(t *testing.T) {
	clock := clockwork.NewFakeClock()
	devices := NewSynthetic(SyntheticConfig{FrameRate: 10}, clock, nil)

	stream, err := devices.UserMedia(context.Background(), Constraints{
		Video: &VideoConstraints{FacingMode: "user", Width: 1080, Height: 1920},
		Audio: &AudioConstraints{},
	})
	require.NoError(t, err)
	defer stream.Stop()
	require.Len(t, stream.VideoTracks(), 1)
	require.Len(t, stream.AudioTracks(), 1)

	packets, cancel := stream.VideoTracks()[0].Subscribe(16)
	defer cancel()

	require.Eventually(t, func() bool {
		clock.Advance(100 * time.Millisecond)
		return len(packets) > 0
	}, time.Second, 5*time.Millisecond)

	first := <-packets
	assert.Equal(t, uint8(payloadTypeVP8), first.PayloadType)
	assert.True(t, first.Marker)
	assert.Equal(t, byte(0x10), first.Payload[0])
}

func TestSyntheticDisplay(t *testing.T) {
	clock := clockwork.NewFakeClock()

	disabled := NewSynthetic(SyntheticConfig{DisplayDisabled: true}, clock, nil)
	assert.False(t, disabled.DisplaySupported())
	_, err := disabled.DisplayMedia(context.Background(), Constraints{Video: &VideoConstraints{}})
	assert.ErrorIs(t, err, ErrUnsupported)

	devices := NewSynthetic(SyntheticConfig{DisplayDuration: time.Minute}, clock, nil)
	stream, err := devices.DisplayMedia(context.Background(), Constraints{Video: &VideoConstraints{}, Audio: &AudioConstraints{}})
	require.NoError(t, err)
	require.Len(t, stream.AudioTracks(), 1)

	ended := make(chan struct{})
	stream.VideoTracks()[0].OnEnded(func() { close(ended) })
	require.Eventually(t, func() bool {
		clock.Advance(10 * time.Second)
		select {
		case <-ended:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestSyntheticRequiresAKind(t *testing.T) {
	devices := NewSynthetic(SyntheticConfig{}, clockwork.NewFakeClock(), nil)
	_, err := devices.UserMedia(context.Background(), Constraints{})
	assert.ErrorIs(t, err, ErrUnsupported)
}
