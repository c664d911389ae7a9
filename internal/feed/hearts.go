package feed

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// HeartTTL is how long a heart stays on screen.
const HeartTTL = 2 * time.Second

// Heart is a floating reaction. Left is a horizontal offset in percent.
type Heart struct {
	ID        uuid.UUID `json:"id"`
	Left      float64   `json:"left"`
	Color     string    `json:"color"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Hearts holds self-expiring hearts. Expired entries are dropped lazily when the set is read
// or grows, so no timer is kept per heart.
type Hearts struct {
	mu     sync.Mutex
	ttl    time.Duration
	hearts []Heart
}

// NewHearts creates an overlay whose hearts live for ttl (HeartTTL when ttl <= 0).
func NewHearts(ttl time.Duration) *Hearts {
	if ttl <= 0 {
		ttl = HeartTTL
	}
	return &Hearts{ttl: ttl}
}

// Spawn adds a heart centred at 50% with ±20% jitter.
func (h *Hearts) Spawn(r Rand, now time.Time) Heart {
	heart := Heart{
		ID:        uuid.Must(uuid.NewV7()),
		Left:      50 + (r.Float64()*40 - 20),
		Color:     PickColor(r),
		ExpiresAt: now.Add(h.ttl),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pruneLocked(now)
	h.hearts = append(h.hearts, heart)
	return heart
}

// Active returns the hearts still visible at now.
func (h *Hearts) Active(now time.Time) []Heart {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pruneLocked(now)
	out := make([]Heart, len(h.hearts))
	copy(out, h.hearts)
	return out
}

func (h *Hearts) pruneLocked(now time.Time) {
	kept := h.hearts[:0]
	for _, heart := range h.hearts {
		if now.Before(heart.ExpiresAt) {
			kept = append(kept, heart)
		}
	}
	clear(h.hearts[len(kept):])
	h.hearts = kept
}
