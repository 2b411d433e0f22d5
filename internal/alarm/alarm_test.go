package alarm

import (
	"testing"
	"time"
)

func TestAlarmFiresAfterInitialDeadline(t *testing.T) {
	a := New(Arithmetic)
	start := time.Now()
	a.Alarm(50 * time.Millisecond)
	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("alarm did not fire")
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Fatal("alarm fired too early")
	}
}

func TestAlarmRetunesToObservedGaps(t *testing.T) {
	a := New(Weighted)
	a.Alarm(5 * time.Second)
	for i := 0; i < 3; i++ {
		time.Sleep(20 * time.Millisecond)
		a.Alarm(5 * time.Second)
	}
	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("alarm should fire near the observed gap, not the initial deadline")
	}
}

func TestStoppedAlarmDoesNotFire(t *testing.T) {
	a := New(Harmonic)
	a.Alarm(20 * time.Millisecond)
	a.Stop()
	select {
	case <-a.Done():
		t.Fatal("stopped alarm fired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAverages(t *testing.T) {
	delays := []time.Duration{10 * time.Millisecond, 40 * time.Millisecond}
	cases := map[Decay]time.Duration{
		Arithmetic: 25 * time.Millisecond,
		Weighted:   30 * time.Millisecond,
		Harmonic:   16 * time.Millisecond,
		Geometric:  20 * time.Millisecond,
	}
	for decay, want := range cases {
		got := average(decay, delays)
		if diff := got - want; diff > time.Microsecond || diff < -time.Microsecond {
			t.Fatalf("decay %d: got %s want %s", decay, got, want)
		}
	}
}

func TestFloorHoldsAlarmOpenDuringBursts(t *testing.T) {
	a := New(Arithmetic).WithFloor(80 * time.Millisecond)
	a.Alarm(time.Second)
	a.Alarm(time.Second)
	select {
	case <-a.Done():
		t.Fatal("alarm fired below its floor")
	case <-time.After(40 * time.Millisecond):
	}
	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("alarm did not fire after the floor")
	}
}
