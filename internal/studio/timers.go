package studio

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// TimerID identifies a timer registered in a TimerSet. The zero value is never issued.
type TimerID uint64

// TimerSet owns every background timer of a studio so they can be torn down together.
// Callbacks run on their own goroutine; Close cancels everything and waits for running
// callbacks to return.
type TimerSet struct {
	clock clockwork.Clock

	mu     sync.Mutex
	next   TimerID
	timers map[TimerID]chan struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewTimerSet creates an empty set driven by clock.
func NewTimerSet(clock clockwork.Clock) *TimerSet {
	return &TimerSet{clock: clock, timers: make(map[TimerID]chan struct{})}
}

// AfterFunc runs fn once after d. It returns 0 if the set is closed.
func (s *TimerSet) AfterFunc(d time.Duration, fn func()) TimerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	id, cancel := s.registerLocked()
	t := s.clock.NewTimer(d)
	go func() {
		defer s.wg.Done()
		select {
		case <-cancel:
			t.Stop()
		case <-t.Chan():
			if s.release(id) {
				fn()
			}
		}
	}()
	return id
}

// Every runs fn every d until cancelled. It returns 0 if the set is closed.
func (s *TimerSet) Every(d time.Duration, fn func()) TimerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	id, cancel := s.registerLocked()
	t := s.clock.NewTicker(d)
	go func() {
		defer s.wg.Done()
		defer t.Stop()
		for {
			select {
			case <-cancel:
				return
			case <-t.Chan():
				select {
				case <-cancel:
					return
				default:
				}
				fn()
			}
		}
	}()
	return id
}

func (s *TimerSet) registerLocked() (TimerID, chan struct{}) {
	s.next++
	cancel := make(chan struct{})
	s.timers[s.next] = cancel
	s.wg.Add(1)
	return s.next, cancel
}

// release removes a fired one-shot timer. It reports false if the timer was cancelled first.
func (s *TimerSet) release(id TimerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.timers[id]; !ok {
		return false
	}
	delete(s.timers, id)
	return true
}

// Cancel stops a timer. Unknown or already fired ids are ignored.
func (s *TimerSet) Cancel(id TimerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.timers[id]; ok {
		close(cancel)
		delete(s.timers, id)
	}
}

// Len returns the number of pending timers.
func (s *TimerSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Close cancels all timers, refuses new ones and waits for callbacks in flight.
func (s *TimerSet) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, cancel := range s.timers {
		close(cancel)
		delete(s.timers, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
