package studio

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerSetAfterFunc(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ts := NewTimerSet(clock)
	defer ts.Close()

	fired := make(chan struct{}, 1)
	id := ts.AfterFunc(time.Second, func() { fired <- struct{}{} })
	require.NotZero(t, id)
	assert.Equal(t, 1, ts.Len())

	clock.Advance(999 * time.Millisecond)
	select {
	case <-fired:
		t.Fatal("fired early")
	case <-time.After(20 * time.Millisecond):
	}

	clock.Advance(time.Millisecond)
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("did not fire")
	}
	assert.Eventually(t, func() bool { return ts.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestTimerSetCancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ts := NewTimerSet(clock)
	defer ts.Close()

	var calls atomic.Int32
	id := ts.AfterFunc(time.Second, func() { calls.Add(1) })
	ts.Cancel(id)
	ts.Cancel(id)
	ts.Cancel(12345)
	assert.Zero(t, ts.Len())

	clock.Advance(2 * time.Second)
	assert.Never(t, func() bool { return calls.Load() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestTimerSetEvery(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ts := NewTimerSet(clock)
	defer ts.Close()

	var calls atomic.Int32
	id := ts.Every(time.Second, func() { calls.Add(1) })

	require.Eventually(t, func() bool {
		clock.Advance(time.Second)
		return calls.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	ts.Cancel(id)
	n := calls.Load()
	clock.Advance(time.Second)
	clock.Advance(time.Second)
	assert.Never(t, func() bool { return calls.Load() > n+1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestTimerSetClose(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ts := NewTimerSet(clock)

	started := make(chan struct{})
	release := make(chan struct{})
	ts.AfterFunc(time.Second, func() {
		close(started)
		<-release
	})
	ts.Every(time.Second, func() {})
	ts.AfterFunc(time.Hour, func() { t.Error("cancelled timer fired") })

	clock.Advance(time.Second)
	<-started

	closed := make(chan struct{})
	go func() {
		ts.Close()
		close(closed)
	}()
	select {
	case <-closed:
		t.Fatal("Close returned while a callback was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	assert.Zero(t, ts.Len())
	assert.Zero(t, ts.AfterFunc(time.Second, func() {}))
	assert.Zero(t, ts.Every(time.Second, func() {}))
	ts.Close()
}
