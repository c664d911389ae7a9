package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupported means the environment has no capability for the requested capture.
	ErrUnsupported = errors.New("capture not supported")
	// ErrPolicyDenied means the host disallows the capture permission entirely.
	ErrPolicyDenied = errors.New("capture disallowed by permissions policy")
	// ErrUserCancelled means the user declined or dismissed the permission prompt.
	ErrUserCancelled = errors.New("capture cancelled by user")
	// ErrDeviceUnavailable means the device exists but could not be opened.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
)

// VideoConstraints are ideal values; devices may return something else.
type VideoConstraints struct {
	FacingMode string `json:"facing_mode,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
}

type AudioConstraints struct {
	EchoCancellation bool `json:"echo_cancellation,omitempty"`
	NoiseSuppression bool `json:"noise_suppression,omitempty"`
}

// Constraints describe a capture request. A nil member means the kind is not requested.
type Constraints struct {
	Video *VideoConstraints `json:"video,omitempty"`
	Audio *AudioConstraints `json:"audio,omitempty"`
}

// Devices acquires live capture streams.
type Devices interface {
	// UserMedia opens camera and/or microphone.
	UserMedia(ctx context.Context, c Constraints) (*Stream, error)
	// DisplayMedia opens a screen capture, optionally with system audio.
	DisplayMedia(ctx context.Context, c Constraints) (*Stream, error)
	// DisplaySupported reports whether DisplayMedia can work at all.
	DisplaySupported() bool
}

// Classify maps a browser capture failure (DOMException name and message) onto the error
// taxonomy.
func Classify(name, message string) error {
	switch {
	case strings.Contains(strings.ToLower(message), "permissions policy"):
		return fmt.Errorf("%w: %s", ErrPolicyDenied, message)
	case name == "NotAllowedError" || name == "AbortError":
		return fmt.Errorf("%w: %s", ErrUserCancelled, message)
	case name == "NotSupportedError" || name == "TypeError":
		return fmt.Errorf("%w: %s", ErrUnsupported, message)
	case name == "NotFoundError" || name == "NotReadableError" || name == "OverconstrainedError":
		return fmt.Errorf("%w: %s: %s", ErrDeviceUnavailable, name, message)
	default:
		return fmt.Errorf("capture failed: %s: %s", name, message)
	}
}
