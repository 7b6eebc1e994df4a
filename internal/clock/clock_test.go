package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_NowAndSet(t *testing.T) {
	start := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	f := NewFake(start)
	assert.Equal(t, start, f.Now())

	later := start.Add(3 * time.Hour)
	f.Set(later)
	assert.Equal(t, later, f.Now())
}

func TestFake_AdvanceFiresDueTimers(t *testing.T) {
	f := NewFake(time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC))

	soon := f.After(10 * time.Minute)
	late := f.After(2 * time.Hour)

	f.Advance(30 * time.Minute)

	select {
	case <-soon:
	default:
		t.Fatal("due timer did not fire")
	}
	select {
	case <-late:
		t.Fatal("undue timer fired early")
	default:
	}

	f.Advance(2 * time.Hour)
	select {
	case <-late:
	default:
		t.Fatal("timer did not fire after its deadline passed")
	}
}

func TestFake_SetDoesNotFireTimers(t *testing.T) {
	f := NewFake(time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC))
	ch := f.After(time.Minute)

	f.Set(f.Now().Add(time.Hour))
	select {
	case <-ch:
		t.Fatal("Set must not deliver timers")
	default:
	}
}

func TestSystem(t *testing.T) {
	var c Clock = System{}
	before := time.Now()
	now := c.Now()
	assert.False(t, now.Before(before))

	select {
	case <-c.After(time.Millisecond):
	case <-time.After(time.Second):
		t.Fatal("system timer did not fire")
	}
}
