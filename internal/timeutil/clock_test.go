package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClock(t *testing.T) {
	var c Clock = RealClock{}
	before := time.Now()
	assert.False(t, c.Now().Before(before))

	tk := c.NewTicker(time.Millisecond)
	defer tk.Stop()
	select {
	case <-tk.C():
	case <-time.After(time.Second):
		t.Fatal("real ticker did not fire")
	}
}

func TestMockClock_Advance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	c.Advance(3 * time.Second)
	assert.Equal(t, start.Add(3*time.Second), c.Now())
}

func TestMockTicker(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	tk := c.NewTicker(100 * time.Millisecond)
	assert.Equal(t, 1, c.Tickers())

	c.Advance(50 * time.Millisecond)
	select {
	case <-tk.C():
		t.Fatal("ticked early")
	default:
	}

	c.Advance(50 * time.Millisecond)
	select {
	case got := <-tk.C():
		assert.Equal(t, time.Unix(0, 0).Add(100*time.Millisecond), got)
	default:
		t.Fatal("expected a tick")
	}

	// Unread ticks are dropped rather than queued.
	c.Advance(100 * time.Millisecond)
	c.Advance(100 * time.Millisecond)
	<-tk.C()
	select {
	case <-tk.C():
		t.Fatal("ticks should not queue")
	default:
	}

	tk.Stop()
	c.Advance(time.Second)
	select {
	case <-tk.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}
