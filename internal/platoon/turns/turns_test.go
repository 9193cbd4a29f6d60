package turns

import (
	"testing"

	"github.com/saidurrsaied/DPS-ESE/internal/platoon/wire"
)

func TestPushRespectsCapacity(t *testing.T) {
	q := New(1)
	if !q.Push(Waypoint{X: 1, Y: 1, Dir: wire.East}) {
		t.Fatal("expected first push to succeed")
	}
	if q.Push(Waypoint{X: 2, Y: 2, Dir: wire.East}) {
		t.Fatal("expected second push to be dropped at capacity")
	}
}

func TestCheckAndUpdateNotYetCrossed(t *testing.T) {
	q := New(4)
	q.Push(Waypoint{X: 0, Y: 10, Dir: wire.North})
	if _, ok := q.CheckAndUpdate(0, 5, wire.North); ok {
		t.Fatal("should not have crossed yet")
	}
}

func TestCheckAndUpdateCrossedExactly(t *testing.T) {
	q := New(4)
	q.Push(Waypoint{X: 0, Y: 10, Dir: wire.North})
	w, ok := q.CheckAndUpdate(0, 10, wire.North)
	if !ok || w.Dir != wire.North {
		t.Fatalf("expected crossing at exact waypoint, got %+v ok=%v", w, ok)
	}
	if q.Len() != 0 {
		t.Fatalf("expected waypoint consumed, queue len=%d", q.Len())
	}
}

func TestCheckAndUpdatePassedWaypoint(t *testing.T) {
	q := New(4)
	q.Push(Waypoint{X: 0, Y: 10, Dir: wire.North})
	if _, ok := q.CheckAndUpdate(0, 11, wire.North); !ok {
		t.Fatal("should consider overshoot as crossed")
	}
}

func TestCheckAndUpdateEachDirection(t *testing.T) {
	cases := []struct {
		dir  wire.Direction
		x, y float64
		tx, ty float64
	}{
		{wire.North, 0, 10, 0, 10},
		{wire.South, 0, -10, 0, -10},
		{wire.East, 10, 0, 10, 0},
		{wire.West, -10, 0, -10, 0},
	}
	for _, c := range cases {
		q := New(1)
		q.Push(Waypoint{X: c.tx, Y: c.ty, Dir: c.dir})
		if _, ok := q.CheckAndUpdate(c.x, c.y, c.dir); !ok {
			t.Fatalf("direction %v: expected crossing", c.dir)
		}
	}
}

func TestCheckAndUpdateOnlyConsumesHeadOnce(t *testing.T) {
	q := New(4)
	q.Push(Waypoint{X: 0, Y: 10, Dir: wire.North})
	q.Push(Waypoint{X: 0, Y: 20, Dir: wire.North})

	if _, ok := q.CheckAndUpdate(0, 15, wire.North); !ok {
		t.Fatal("expected first waypoint consumed")
	}
	if q.Len() != 1 {
		t.Fatalf("expected one waypoint remaining, got %d", q.Len())
	}
	if _, ok := q.CheckAndUpdate(0, 15, wire.North); ok {
		t.Fatal("second waypoint at y=20 should not yet be crossed")
	}
}
