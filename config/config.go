package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Studio    StudioConfig
	Recording RecordingConfig
	Comments  CommentsConfig
	Redis     RedisConfig
	WebRTC    WebRTCConfig
	Capture   CaptureConfig
	Log       LogConfig
}

// ServerConfig holds HTTP server settings. The studio is a single-presenter tool, so it binds
// to loopback unless told otherwise.
type ServerConfig struct {
	Host               string
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	ShutdownTimeout    time.Duration
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// Addr returns host:port for the listener.
func (c ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// StudioConfig tunes the simulated room.
type StudioConfig struct {
	AmbientInterval   time.Duration
	ScreenRecordDelay time.Duration
	ChatLimit         int
	HeartTTL          time.Duration
	InitialViewers    int
	InitialHeat       float64
	ViewerClamp       bool
	ViewerFloor       int
}

// Recording backends.
const (
	RecordingIVF    = "ivf"
	RecordingFFmpeg = "ffmpeg"
)

// RecordingConfig selects how recordings are muxed.
type RecordingConfig struct {
	Backend    string // ivf | ffmpeg
	FFmpegPath string
	Timeslice  time.Duration
	MimeTypes  []string // negotiation ladder; empty = built-in ladder
}

// CommentsConfig configures the simulated audience comments.
type CommentsConfig struct {
	GeminiAPIKey string // empty = canned comments
	Model        string
	Timeout      time.Duration
	CacheTTL     time.Duration // 0 disables the Redis cache
}

// RedisConfig holds Redis connection settings. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// WebRTCConfig holds STUN/TURN ICE server URLs for WebRTC.
type WebRTCConfig struct {
	ICEUrls []string // comma-separated in env
}

// Capture modes.
const (
	CaptureWebRTC    = "webrtc"
	CaptureSynthetic = "synthetic"
)

// CaptureConfig selects where camera and screen come from.
type CaptureConfig struct {
	Mode    string // webrtc | synthetic
	Timeout time.Duration
	// FrameRate and DisplayDisabled apply to synthetic capture.
	FrameRate       int
	DisplayDisabled bool
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Host:               getEnv("HOST", "127.0.0.1"),
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000"),
		},
		Studio: StudioConfig{
			AmbientInterval:   getEnvDuration("AMBIENT_INTERVAL", 2*time.Second),
			ScreenRecordDelay: getEnvDuration("SCREEN_RECORD_DELAY", time.Second),
			ChatLimit:         getEnvInt("CHAT_LIMIT", 50),
			HeartTTL:          getEnvDuration("HEART_TTL", 2*time.Second),
			InitialViewers:    getEnvInt("INITIAL_VIEWERS", 1205),
			InitialHeat:       getEnvFloat("INITIAL_HEAT", 3.5),
			ViewerClamp:       getEnvBool("VIEWER_CLAMP", true),
			ViewerFloor:       getEnvInt("VIEWER_FLOOR", 0),
		},
		Recording: RecordingConfig{
			Backend:    strings.ToLower(getEnv("RECORDING_BACKEND", RecordingIVF)),
			FFmpegPath: getEnv("FFMPEG_PATH", "ffmpeg"),
			Timeslice:  getEnvDuration("RECORDING_TIMESLICE", time.Second),
			MimeTypes:  splitTrim(getEnv("RECORDING_MIME_TYPES", ""), ","),
		},
		Comments: CommentsConfig{
			GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
			Model:        getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			Timeout:      getEnvDuration("COMMENT_TIMEOUT", 15*time.Second),
			CacheTTL:     getEnvDuration("COMMENT_CACHE_TTL", 10*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		WebRTC: WebRTCConfig{
			ICEUrls: splitTrim(getEnv("WEBRTC_ICE_URLS", "stun:stun.l.google.com:19302"), ","),
		},
		Capture: CaptureConfig{
			Mode:            strings.ToLower(getEnv("CAPTURE_MODE", CaptureWebRTC)),
			Timeout:         getEnvDuration("CAPTURE_TIMEOUT", 2*time.Minute),
			FrameRate:       getEnvInt("SYNTHETIC_FRAME_RATE", 30),
			DisplayDisabled: getEnvBool("SYNTHETIC_DISPLAY_DISABLED", false),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Recording.Backend {
	case RecordingIVF, RecordingFFmpeg:
	default:
		return fmt.Errorf("RECORDING_BACKEND must be %q or %q, got %q", RecordingIVF, RecordingFFmpeg, c.Recording.Backend)
	}
	switch c.Capture.Mode {
	case CaptureWebRTC, CaptureSynthetic:
	default:
		return fmt.Errorf("CAPTURE_MODE must be %q or %q, got %q", CaptureWebRTC, CaptureSynthetic, c.Capture.Mode)
	}
	if c.Studio.ChatLimit <= 0 {
		return fmt.Errorf("CHAT_LIMIT must be positive, got %d", c.Studio.ChatLimit)
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("1500ms") or plain seconds ("2").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
