package clock

import (
	"testing"
	"time"
)

func TestFakeSetJumpsWithoutTicks(t *testing.T) {
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	clk := NewFake(start)
	ticker := clk.NewTicker(time.Second)
	defer ticker.Stop()

	clk.Set(start.Add(time.Hour))

	if got := clk.Now(); !got.Equal(start.Add(time.Hour)) {
		t.Errorf("Now = %v, want %v", got, start.Add(time.Hour))
	}
	select {
	case <-ticker.C():
		t.Error("Set delivered a tick")
	default:
	}
}

func TestFakeAdvanceDeliversTicks(t *testing.T) {
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	clk := NewFake(start)
	ticker := clk.NewTicker(time.Second)
	defer ticker.Stop()

	clk.Advance(time.Second)

	select {
	case at := <-ticker.C():
		if !at.Equal(start.Add(time.Second)) {
			t.Errorf("tick at %v, want %v", at, start.Add(time.Second))
		}
	default:
		t.Fatal("no tick delivered")
	}
}

func TestFakeAdvanceCoalescesForSlowConsumer(t *testing.T) {
	clk := NewFake(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	ticker := clk.NewTicker(time.Second)
	defer ticker.Stop()

	// Nobody reads between ticks; delivery matches time.Ticker and coalesces.
	clk.Advance(5 * time.Second)

	delivered := 0
	for {
		select {
		case <-ticker.C():
			delivered++
			continue
		default:
		}
		break
	}
	if delivered != 1 {
		t.Errorf("delivered %d ticks to a slow consumer, want 1", delivered)
	}
}

func TestFakeStoppedTickerStopsDelivering(t *testing.T) {
	clk := NewFake(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	ticker := clk.NewTicker(time.Second)
	ticker.Stop()

	clk.Advance(3 * time.Second)

	select {
	case <-ticker.C():
		t.Error("stopped ticker delivered a tick")
	default:
	}
}
