package stream

import (
	"runtime"
	"testing"
	"time"

	"github.com/quietmask/maskd/internal/testutil"
)

func TestBroadcastReachesAllListeners(t *testing.T) {
	b := NewBroadcaster()
	l1 := b.Subscribe()
	l2 := b.Subscribe()

	source := make(chan []int16, 1)
	go b.Run(source)

	frame := []int16{1, 2, 3}
	source <- frame
	close(source)

	for i, l := range []*Listener{l1, l2} {
		select {
		case got := <-l.C:
			if len(got) != 3 || got[0] != 1 {
				t.Errorf("listener %d got %v", i, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("listener %d received nothing", i)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroadcaster()
	l := b.Subscribe()
	if b.ListenerCount() != 1 {
		t.Fatalf("ListenerCount = %d, want 1", b.ListenerCount())
	}

	b.Unsubscribe(l)
	b.Unsubscribe(l) // double unsubscribe must not panic

	if b.ListenerCount() != 0 {
		t.Errorf("ListenerCount = %d after unsubscribe, want 0", b.ListenerCount())
	}
	select {
	case <-l.Done():
	default:
		t.Error("Done not closed after unsubscribe")
	}
}

func TestSlowListenerDoesNotBlockBroadcast(t *testing.T) {
	b := NewBroadcaster()
	slow := b.Subscribe() // never drained
	_ = slow

	source := make(chan []int16)
	done := make(chan struct{})
	go func() {
		b.Run(source)
		close(done)
	}()

	// push far more frames than the listener buffer holds
	frame := make([]int16, 4)
	for i := 0; i < 500; i++ {
		select {
		case source <- frame:
		case <-time.After(time.Second):
			t.Fatal("broadcast stalled on a slow listener")
		}
	}
	close(source)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after source close")
	}
}

func TestRunExitsCleanly(t *testing.T) {
	baseline := runtime.NumGoroutine()

	b := NewBroadcaster()
	source := make(chan []int16)
	go b.Run(source)
	close(source)

	testutil.AssertNoGoroutineLeaks(t, baseline, 2)
}
