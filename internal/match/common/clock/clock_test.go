package clock

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	before := time.Now()
	now := RealClock{}.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("clock time %v outside [%v, %v]", now, before, after)
	}
}

func TestMockClock_Advance(t *testing.T) {
	fixed := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	c := &MockClock{CurrentTime: fixed}

	if !c.Now().Equal(fixed) {
		t.Fatalf("Now() = %v, want %v", c.Now(), fixed)
	}
	c.Advance(90 * time.Second)
	if want := fixed.Add(90 * time.Second); !c.Now().Equal(want) {
		t.Fatalf("after Advance Now() = %v, want %v", c.Now(), want)
	}

	var _ Clock = c
	var _ Clock = RealClock{}
}
