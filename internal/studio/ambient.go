package studio

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/livestudio/studio/internal/feed"
)

const (
	ambientEventThreshold = 0.6
	ambientJoinThreshold  = 0.85
	ambientShareThreshold = 0.95

	heatIncrement = 0.01
)

// AmbientSimulator makes the room feel alive: viewers drift, join and share on a fixed tick.
// It never touches media or recording state.
type AmbientSimulator struct {
	studio   *Studio
	interval time.Duration
}

// Start registers the tick with the studio timers.
func (a *AmbientSimulator) Start() {
	a.studio.timers.Every(a.interval, a.tick)
}

func (a *AmbientSimulator) tick() {
	defer func() {
		if r := recover(); r != nil {
			a.studio.log.Error("ambient tick panicked", zap.Any("panic", r))
		}
	}()

	s := a.studio
	r := s.rand.Float64()
	if r > ambientEventThreshold {
		user := feed.PickUsername(s.rand)
		switch {
		case r > ambientShareThreshold:
			s.system(fmt.Sprintf("%s 分享了直播间", user))
		case r > ambientJoinThreshold:
			s.system(fmt.Sprintf("%s 来了", user))
		}
	}
	s.publishMetrics(s.metrics.Nudge(s.rand.IntN(5)-1, heatIncrement))
}
