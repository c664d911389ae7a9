package studio

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/livestudio/studio/internal/comments"
	"github.com/livestudio/studio/internal/feed"
)

// ErrEmptyMessage is returned for blank host messages.
var ErrEmptyMessage = errors.New("message is empty")

const (
	hypePrompt  = "主播正在求关注，求互动，求点赞"
	msgHypeWarm = "正在生成热度..."

	hostReplyDelay = 200 * time.Millisecond
)

// stagger describes how a batch of comments trickles into chat: the first line after first,
// each next one base plus up to jitter later.
type stagger struct {
	first       time.Duration
	base        time.Duration
	jitter      time.Duration
	alwaysHeart bool
}

var (
	hostStagger = stagger{first: 300 * time.Millisecond, base: 400 * time.Millisecond, jitter: 800 * time.Millisecond}
	hypeStagger = stagger{first: 500 * time.Millisecond, base: 300 * time.Millisecond, jitter: 1000 * time.Millisecond, alwaysHeart: true}
)

// Bridge turns presenter input into simulated audience reactions from the comment source.
type Bridge struct {
	studio *Studio
	source comments.Source
}

// SendHostMessage posts the presenter's line and schedules audience replies to it.
func (b *Bridge) SendHostMessage(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	s := b.studio
	s.post(feed.HostMessage(text))
	epoch := s.Epoch()
	s.timers.AfterFunc(hostReplyDelay, func() {
		b.respond(epoch, text, hostStagger)
	})
	return nil
}

// TriggerHype asks for a burst of enthusiastic comments, each with a heart.
func (b *Bridge) TriggerHype() {
	s := b.studio
	s.system(msgHypeWarm)
	epoch := s.Epoch()
	s.goAsync(func() { b.respond(epoch, hypePrompt, hypeStagger) })
}

// TriggerHeart spawns a heart and warms the room.
func (b *Bridge) TriggerHeart() {
	s := b.studio
	s.spawnHeart()
	s.publishMetrics(s.metrics.AddHeat(heatIncrement))
}

// respond fetches comments and schedules them. Replies are dropped when the session moved to
// another source or closed while they were pending.
func (b *Bridge) respond(epoch uint64, prompt string, st stagger) {
	s := b.studio
	ctx, cancel := context.WithTimeout(s.ctx, s.settings.CommentTimeout)
	lines, err := b.source.Generate(ctx, prompt)
	cancel()
	if err != nil || len(lines) == 0 {
		s.log.Warn("comment source returned nothing usable", zap.Error(err))
		lines = comments.ErrorFallback
	}
	if s.ctx.Err() != nil || s.Epoch() != epoch {
		s.log.Info("dropping stale comments", zap.Int("lines", len(lines)))
		return
	}

	delay := st.first
	for _, line := range lines {
		s.timers.AfterFunc(delay, func() {
			if s.Epoch() != epoch {
				return
			}
			s.post(feed.ViewerMessage(feed.PickUsername(s.rand), line, feed.PickColor(s.rand)))
			if st.alwaysHeart || s.rand.Float64() > 0.5 {
				s.spawnHeart()
			}
		})
		delay += st.base + time.Duration(s.rand.IntN(int(st.jitter/time.Millisecond)))*time.Millisecond
	}
}

// SendHostMessage posts a presenter message and schedules audience replies.
func (s *Studio) SendHostMessage(text string) error { return s.bridge.SendHostMessage(text) }

// TriggerHype asks the audience for a burst of comments.
func (s *Studio) TriggerHype() { s.bridge.TriggerHype() }

// TriggerHeart spawns one heart.
func (s *Studio) TriggerHeart() { s.bridge.TriggerHeart() }
