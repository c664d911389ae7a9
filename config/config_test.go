package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"HOST", "PORT", "RECORDING_BACKEND", "CAPTURE_MODE", "VIEWER_CLAMP", "REDIS_ADDR", "GEMINI_API_KEY", "CHAT_LIMIT"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr())
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 2*time.Second, cfg.Studio.AmbientInterval)
	assert.Equal(t, 50, cfg.Studio.ChatLimit)
	assert.Equal(t, 1205, cfg.Studio.InitialViewers)
	assert.InDelta(t, 3.5, cfg.Studio.InitialHeat, 1e-9)
	assert.True(t, cfg.Studio.ViewerClamp)
	assert.Zero(t, cfg.Studio.ViewerFloor)
	assert.Equal(t, RecordingIVF, cfg.Recording.Backend)
	assert.Equal(t, CaptureWebRTC, cfg.Capture.Mode)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Empty(t, cfg.Comments.GeminiAPIKey)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.WebRTC.ICEUrls)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("RECORDING_BACKEND", "FFmpeg")
	t.Setenv("CAPTURE_MODE", "synthetic")
	t.Setenv("VIEWER_CLAMP", "false")
	t.Setenv("VIEWER_FLOOR", "100")
	t.Setenv("AMBIENT_INTERVAL", "500ms")
	t.Setenv("COMMENT_TIMEOUT", "3")
	t.Setenv("RECORDING_MIME_TYPES", "video/webm, video/mp4 ,")
	t.Setenv("WEBRTC_ICE_URLS", "stun:a:3478,turn:b:3478")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, RecordingFFmpeg, cfg.Recording.Backend)
	assert.Equal(t, CaptureSynthetic, cfg.Capture.Mode)
	assert.False(t, cfg.Studio.ViewerClamp)
	assert.Equal(t, 100, cfg.Studio.ViewerFloor)
	assert.Equal(t, 500*time.Millisecond, cfg.Studio.AmbientInterval)
	assert.Equal(t, 3*time.Second, cfg.Comments.Timeout)
	assert.Equal(t, []string{"video/webm", "video/mp4"}, cfg.Recording.MimeTypes)
	assert.Equal(t, []string{"stun:a:3478", "turn:b:3478"}, cfg.WebRTC.ICEUrls)
}

func TestLoadRejectsUnknownModes(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"RECORDING_BACKEND", "mediarecorder"},
		{"CAPTURE_MODE", "v4l2"},
		{"CHAT_LIMIT", "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.ErrorContains(t, err, tt.key)
		})
	}
}

func TestEnvHelpersFallBack(t *testing.T) {
	t.Setenv("X_INT", "abc")
	t.Setenv("X_DUR", "soon")
	t.Setenv("X_BOOL", "maybe")
	t.Setenv("X_FLOAT", "hot")
	assert.Equal(t, 7, getEnvInt("X_INT", 7))
	assert.Equal(t, time.Minute, getEnvDuration("X_DUR", time.Minute))
	assert.True(t, getEnvBool("X_BOOL", true))
	assert.InDelta(t, 1.5, getEnvFloat("X_FLOAT", 1.5), 1e-9)
	assert.Nil(t, splitTrim("", ","))
}
