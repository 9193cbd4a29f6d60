package watchdog

import (
	"testing"
	"time"
)

func fixedClock(t *time.Time) func() time.Time {
	return func() time.Time { return *t }
}

// TestPollFiresAfterTimeout is S3: a stale leader past the timeout
// fires exactly one LeaderTimeout.
func TestPollFiresAfterTimeout(t *testing.T) {
	base := time.UnixMilli(1000)
	clock := fixedClock(&base)
	w := New(2000*time.Millisecond, clock)

	base = time.UnixMilli(1000 + 2001)
	if !w.Poll() {
		t.Fatal("expected timeout to fire at t=1000+2001ms")
	}
}

// TestPollFiresAtMostOncePerStalePeriod is I7.
func TestPollFiresAtMostOncePerStalePeriod(t *testing.T) {
	base := time.UnixMilli(1000)
	clock := fixedClock(&base)
	w := New(2000*time.Millisecond, clock)

	base = time.UnixMilli(1000 + 2001)
	if !w.Poll() {
		t.Fatal("expected first poll to fire")
	}

	base = time.UnixMilli(1000 + 2500)
	if w.Poll() {
		t.Fatal("expected no second emission within the same stale period")
	}
}

// TestMutedNeverFires is I6.
func TestMutedNeverFires(t *testing.T) {
	base := time.UnixMilli(0)
	clock := fixedClock(&base)
	w := New(2000*time.Millisecond, clock)
	w.SetMuted(true)

	base = time.UnixMilli(1_000_000)
	if w.Poll() {
		t.Fatal("expected muted watchdog to never fire")
	}
}

// TestFreshMessageResetsWindow covers S3's recovery leg.
func TestFreshMessageResetsWindow(t *testing.T) {
	base := time.UnixMilli(1000)
	clock := fixedClock(&base)
	w := New(2000*time.Millisecond, clock)

	base = time.UnixMilli(1000 + 2001)
	if !w.Poll() {
		t.Fatal("expected timeout to fire")
	}

	w.NoteLeaderMessage()
	base = time.UnixMilli(1000 + 2001 + 100)
	if w.Poll() {
		t.Fatal("expected reset window to not yet be stale")
	}
}
