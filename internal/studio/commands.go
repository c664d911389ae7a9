package studio

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownAction is returned by Do for an action name it does not know.
var ErrUnknownAction = errors.New("unknown action")

// Presenter actions, as sent by the control surface.
const (
	ActionCamera       = "camera"
	ActionScreen       = "screen"
	ActionToggleSource = "toggle-source"
	ActionToggleCamera = "toggle-camera"
	ActionToggleMic    = "toggle-mic"
	ActionRecordStart  = "record-start"
	ActionRecordStop   = "record-stop"
	ActionScreenRecord = "screen-record"
	ActionHype         = "hype"
	ActionHeart        = "heart"
)

// Actions lists every action Do accepts.
var Actions = []string{
	ActionCamera, ActionScreen, ActionToggleSource, ActionToggleCamera, ActionToggleMic,
	ActionRecordStart, ActionRecordStop, ActionScreenRecord, ActionHype, ActionHeart,
}

// Do runs a presenter action by name.
func (s *Studio) Do(ctx context.Context, action string) error {
	switch action {
	case ActionCamera:
		return s.AcquireCamera(ctx)
	case ActionScreen:
		if !s.AcquireScreenShare(ctx) {
			return ErrShareFailed
		}
		return nil
	case ActionToggleSource:
		return s.ToggleSource(ctx)
	case ActionToggleCamera:
		if _, ok := s.ToggleCamera(); !ok {
			return ErrNoStream
		}
		return nil
	case ActionToggleMic:
		if _, ok := s.ToggleMic(); !ok {
			return ErrNoStream
		}
		return nil
	case ActionRecordStart:
		return s.engine.Start()
	case ActionRecordStop:
		s.engine.Stop()
		return nil
	case ActionScreenRecord:
		return s.ScreenRecord(ctx)
	case ActionHype:
		s.TriggerHype()
		return nil
	case ActionHeart:
		s.TriggerHeart()
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}
