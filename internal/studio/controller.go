package studio

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/livestudio/studio/internal/media"
)

var (
	// ErrSuperseded is returned when a newer acquisition or teardown overtook this one.
	ErrSuperseded = errors.New("acquisition superseded")
	// ErrShareFailed is returned by ToggleSource when screen sharing could not start.
	ErrShareFailed = errors.New("screen share failed")
)

// Chat lines and alerts shown to the presenter.
const (
	msgWelcome          = "欢迎来到直播间！直播已准备就绪。"
	msgSharePick        = "请选择'整个屏幕'并勾选'分享系统音频'以获得最佳效果。"
	msgMicUnavailable   = "无法访问麦克风，仅共享屏幕画面。"
	msgShareCancelled   = "已取消屏幕共享。"
	msgSwitchStopRecord = "停止当前录制，准备切换..."

	alertCameraPermission = "请允许访问摄像头和麦克风以使用此应用。"
	alertShareUnsupported = "您的浏览器不支持屏幕分享功能。"
	alertSharePolicy      = "无法启动录屏：当前运行环境禁止了 'display-capture' 权限。"
	alertShareFailed      = "屏幕共享启动失败，请重试。"
)

var (
	cameraConstraints = media.Constraints{
		Video: &media.VideoConstraints{FacingMode: "user", Width: 1080, Height: 1920},
		Audio: &media.AudioConstraints{},
	}
	displayConstraints = media.Constraints{
		Video: &media.VideoConstraints{},
		Audio: &media.AudioConstraints{},
	}
	micConstraints = media.Constraints{
		Audio: &media.AudioConstraints{EchoCancellation: true, NoiseSuppression: true},
	}
)

// beginAcquire issues the ticket for a new acquisition. A later ticket supersedes it.
func (s *Studio) beginAcquire() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	s.ticket++
	return s.ticket, nil
}

// bind makes stream current if ticket is still the latest, then stops the stream it replaces.
// A superseded stream is stopped instead. Only a successful bind starts a new epoch.
func (s *Studio) bind(ticket uint64, stream *media.Stream, kind SourceKind) bool {
	s.mu.Lock()
	if s.closed || ticket != s.ticket {
		s.mu.Unlock()
		stream.Stop()
		s.log.Info("discarding superseded capture", zap.String("stream_id", stream.ID()))
		return false
	}
	old := s.stream
	s.stream = stream
	s.source = kind
	s.epoch++
	s.permissions = true
	s.cameraEnabled = true
	s.micEnabled = len(stream.AudioTracks()) > 0
	s.mu.Unlock()

	if old != nil && old != stream {
		old.Stop()
	}
	s.log.Info("stream bound", zap.String("stream_id", stream.ID()), zap.String("source", string(kind)))
	s.publishState()
	return true
}

// stopRecordingForSwitch finalizes an active recording so it never outlives its source.
func (s *Studio) stopRecordingForSwitch(ctx context.Context) {
	if !s.engine.Recording() {
		return
	}
	if err := s.engine.StopSync(ctx); err != nil {
		s.log.Warn("recording did not finalize before source switch", zap.Error(err))
	}
}

// AcquireCamera switches to the camera with microphone. A recording in progress is stopped
// first. On failure the previous stream stays bound; the presenter is alerted only if
// permissions were never granted.
func (s *Studio) AcquireCamera(ctx context.Context) error {
	s.stopRecordingForSwitch(ctx)

	ticket, err := s.beginAcquire()
	if err != nil {
		return err
	}
	stream, err := s.devices.UserMedia(ctx, cameraConstraints)
	if err != nil {
		s.log.Warn("camera acquisition failed", zap.Error(err))
		s.mu.Lock()
		granted := s.permissions
		s.mu.Unlock()
		if !granted {
			s.alert(alertCameraPermission)
		}
		return fmt.Errorf("acquire camera: %w", err)
	}
	if !s.bind(ticket, stream, SourceCamera) {
		return ErrSuperseded
	}
	s.system(msgWelcome)
	return nil
}

// AcquireScreenShare switches to a composite of display video, display audio and microphone.
// The microphone is best effort. It reports whether the share is now bound; failures are
// surfaced to the presenter as alerts or chat notices, never returned.
func (s *Studio) AcquireScreenShare(ctx context.Context) bool {
	if !s.devices.DisplaySupported() {
		s.alert(alertShareUnsupported)
		return false
	}
	ticket, err := s.beginAcquire()
	if err != nil {
		return false
	}

	s.system(msgSharePick)
	display, err := s.devices.DisplayMedia(ctx, displayConstraints)
	if err != nil {
		s.screenShareFailed(err)
		return false
	}
	videos := display.VideoTracks()
	if len(videos) == 0 {
		display.Stop()
		s.screenShareFailed(fmt.Errorf("display capture has no video: %w", media.ErrDeviceUnavailable))
		return false
	}

	tracks := append(append([]*media.Track{}, videos...), display.AudioTracks()...)
	if mic, err := s.devices.UserMedia(ctx, micConstraints); err != nil {
		s.log.Warn("microphone unavailable during screen share", zap.Error(err))
		s.system(msgMicUnavailable)
	} else {
		tracks = append(tracks, mic.AudioTracks()...)
		for _, t := range mic.VideoTracks() {
			t.Stop()
		}
	}
	composite := media.NewStream(tracks...)
	videos[0].OnEnded(func() { s.shareEnded(composite) })

	s.stopRecordingForSwitch(ctx)
	return s.bind(ticket, composite, SourceScreen)
}

func (s *Studio) screenShareFailed(err error) {
	s.log.Warn("screen share failed", zap.Error(err))
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	case errors.Is(err, media.ErrPolicyDenied):
		s.alert(alertSharePolicy)
	case errors.Is(err, media.ErrUserCancelled):
		s.system(msgShareCancelled)
	case errors.Is(err, media.ErrUnsupported):
		s.alert(alertShareUnsupported)
	default:
		s.alert(alertShareFailed)
	}
}

// shareEnded handles the presenter stopping the share from the capture UI: the recording is
// finalized and the camera comes back.
func (s *Studio) shareEnded(composite *media.Stream) {
	if s.Stream() != composite {
		return
	}
	s.log.Info("screen share ended by presenter")
	s.goAsync(func() {
		if err := s.AcquireCamera(s.ctx); err != nil {
			s.log.Warn("camera fallback after screen share failed", zap.Error(err))
		}
	})
}

// ToggleSource switches between camera and screen share.
func (s *Studio) ToggleSource(ctx context.Context) error {
	s.mu.Lock()
	screen := s.source == SourceScreen
	s.mu.Unlock()
	if screen {
		return s.AcquireCamera(ctx)
	}
	if !s.AcquireScreenShare(ctx) {
		return ErrShareFailed
	}
	return nil
}

// ScreenRecord stops any recording, starts a screen share and begins recording it shortly
// after so the capture has settled.
func (s *Studio) ScreenRecord(ctx context.Context) error {
	if s.engine.Recording() {
		s.engine.Stop()
		s.system(msgSwitchStopRecord)
	}
	if !s.AcquireScreenShare(ctx) {
		return ErrShareFailed
	}
	epoch := s.Epoch()
	s.timers.AfterFunc(s.settings.ScreenRecordDelay, func() {
		if s.Epoch() != epoch {
			return
		}
		if err := s.engine.Start(); err != nil {
			s.log.Warn("screen record start", zap.Error(err))
		}
	})
	return nil
}

// ToggleCamera mutes or unmutes every video track without releasing it. It reports the new
// flag and false when no stream is held.
func (s *Studio) ToggleCamera() (enabled, ok bool) {
	s.mu.Lock()
	if s.stream == nil {
		s.mu.Unlock()
		return false, false
	}
	s.cameraEnabled = !s.cameraEnabled
	enabled = s.cameraEnabled
	for _, t := range s.stream.VideoTracks() {
		t.SetEnabled(enabled)
	}
	s.mu.Unlock()
	s.publishState()
	return enabled, true
}

// ToggleMic mutes or unmutes every audio track.
func (s *Studio) ToggleMic() (enabled, ok bool) {
	s.mu.Lock()
	if s.stream == nil {
		s.mu.Unlock()
		return false, false
	}
	s.micEnabled = !s.micEnabled
	enabled = s.micEnabled
	for _, t := range s.stream.AudioTracks() {
		t.SetEnabled(enabled)
	}
	s.mu.Unlock()
	s.publishState()
	return enabled, true
}

// Dispose stops every track of the held stream and unbinds it.
func (s *Studio) Dispose() {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.source = SourceNone
	s.mu.Unlock()
	if stream == nil {
		return
	}
	stream.Stop()
	s.log.Info("stream disposed", zap.String("stream_id", stream.ID()))
	s.publishState()
}
