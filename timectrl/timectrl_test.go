package timectrl

import (
	"context"
	"errors"
	"testing"
	"time"
)

var start = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

func TestControllerSetTime(t *testing.T) {
	c := New(start, time.Second, RealTime)

	newNow := start.Add(42 * time.Second)
	c.SetTime(newNow)

	if got := c.Now(); !got.Equal(newNow) {
		t.Fatalf("Now() = %v, want %v", got, newNow)
	}
}

func TestRunAcceleratedUpdatesNow(t *testing.T) {
	c := New(start, 5*time.Millisecond, Accelerated)
	var ticks int
	c.AddListener(func(time.Time) { ticks++ })

	if err := c.Run(context.Background(), 15*time.Millisecond); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if want := start.Add(15 * time.Millisecond); !c.Now().Equal(want) {
		t.Fatalf("Now() = %v, want %v", c.Now(), want)
	}
	if ticks != 3 {
		t.Fatalf("listener ran %d times, want 3", ticks)
	}
}

func TestRunRealTimeStopsOnCancel(t *testing.T) {
	c := New(start, time.Millisecond, RealTime)
	ctx, cancel := context.WithCancel(context.Background())
	c.AddListener(func(now time.Time) {
		if now.Sub(start) >= 3*time.Millisecond {
			cancel()
		}
	})

	err := c.Run(ctx, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err = %v, want context.Canceled", err)
	}
	if c.Now().Sub(start) < 3*time.Millisecond {
		t.Fatalf("stopped early at %v", c.Now())
	}
}

func TestAfterFiresInSimulatedTime(t *testing.T) {
	c := New(start, time.Second, Accelerated)
	late := c.After(3 * time.Second)
	early := c.After(time.Second)

	c.Step()
	select {
	case got := <-early:
		if !got.Equal(start.Add(time.Second)) {
			t.Fatalf("early fired at %v", got)
		}
	default:
		t.Fatalf("early timer did not fire after one tick")
	}
	select {
	case <-late:
		t.Fatalf("late timer fired too soon")
	default:
	}

	c.SetTime(start.Add(5 * time.Second))
	select {
	case <-late:
	default:
		t.Fatalf("late timer did not fire after SetTime")
	}

	select {
	case <-c.After(0):
	default:
		t.Fatalf("After(0) did not fire immediately")
	}
}

func TestStartAsyncCloses(t *testing.T) {
	c := New(start, time.Millisecond, Accelerated)
	select {
	case <-c.StartAsync(context.Background(), 10*time.Millisecond):
	case <-time.After(time.Second):
		t.Fatalf("StartAsync did not finish")
	}
}
