package timer

import (
	"testing"
	"time"
)

func TestRealTimer(t *testing.T) {
	src := NewReal()
	tm := src.NewTimer(time.Millisecond)
	select {
	case <-tm.C():
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	if tm.Stop() {
		t.Error("stop after fire should report false")
	}
}

func TestManualTimer(t *testing.T) {
	src := NewManual()
	tm := src.NewTimer(time.Second * 30)

	created := <-src.Created()
	if have, want := created.Duration(), time.Second*30; have != want {
		t.Errorf("unexpected duration: have: %v, want: %v", have, want)
	}

	select {
	case <-tm.C():
		t.Fatal("manual timer fired on its own")
	default:
	}

	if !created.Fire() {
		t.Error("fire should report true")
	}
	select {
	case <-tm.C():
	default:
		t.Fatal("fired timer did not deliver")
	}
	if created.Fire() {
		t.Error("second fire should report false")
	}
}

func TestManualTimerStop(t *testing.T) {
	src := NewManual()
	tm := src.NewTimer(time.Second)
	created := <-src.Created()
	if !tm.Stop() {
		t.Error("stop before fire should report true")
	}
	if created.Fire() {
		t.Error("stopped timer should not fire")
	}
	if tm.Stop() {
		t.Error("second stop should report false")
	}
}
