package topology

import (
	"testing"

	"github.com/saidurrsaied/DPS-ESE/internal/platoon/wire"
)

type fakeSender struct {
	sent []wire.Envelope
	fail bool
}

func (f *fakeSender) WriteEnvelope(env wire.Envelope) error {
	if f.fail {
		return errTestSendFailed
	}
	f.sent = append(f.sent, env)
	return nil
}

var errTestSendFailed = &testSendError{}

type testSendError struct{}

func (*testSendError) Error() string { return "fake send failure" }

// TestRegisterAssignsContiguousIDs is I3: ids are always a contiguous
// prefix starting at 1.
func TestRegisterAssignsContiguousIDs(t *testing.T) {
	r := New(5)
	for i := 0; i < 3; i++ {
		id, _, _, err := r.Register(wire.NetInfo{IP: "10.0.0.1", Port: 9000 + i}, &fakeSender{}, 5)
		if err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
		if id != i+1 {
			t.Fatalf("expected id %d, got %d", i+1, id)
		}
	}
	if r.ActiveCount() != 3 {
		t.Fatalf("expected 3 active, got %d", r.ActiveCount())
	}
}

// TestRegisterFormsAtThreshold is S1: PlatoonFormed fires exactly
// when the active count reaches minFollowers.
func TestRegisterFormsAtThreshold(t *testing.T) {
	r := New(5)
	for i := 0; i < 2; i++ {
		_, _, formed, _ := r.Register(wire.NetInfo{}, &fakeSender{}, 3)
		if formed {
			t.Fatalf("should not have formed at count %d", i+1)
		}
	}
	_, _, formed, _ := r.Register(wire.NetInfo{}, &fakeSender{}, 3)
	if !formed {
		t.Fatal("expected formation at threshold")
	}
	if !r.FormationComplete() {
		t.Fatal("expected FormationComplete true")
	}
}

// TestRegisterFullRejected exercises the capacity bound.
func TestRegisterFullRejected(t *testing.T) {
	r := New(1)
	if _, _, _, err := r.Register(wire.NetInfo{}, &fakeSender{}, 1); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, _, _, err := r.Register(wire.NetInfo{}, &fakeSender{}, 1); err != ErrFull {
		t.Fatalf("expected ErrFull, got %v", err)
	}
}

// TestDisconnectCompactsPrefix is I3: after a disconnect, remaining
// sessions still occupy a contiguous id prefix once Finalize is
// called.
func TestDisconnectCompactsPrefix(t *testing.T) {
	r := New(5)
	r.Register(wire.NetInfo{Port: 1}, &fakeSender{}, 5)
	_, tok2, _, _ := r.Register(wire.NetInfo{Port: 2}, &fakeSender{}, 5)
	r.Register(wire.NetInfo{Port: 3}, &fakeSender{}, 5)

	r.Disconnect(tok2)
	plan := r.Finalize()
	if len(plan.AssignIDs) != 2 {
		t.Fatalf("expected 2 remaining sessions, got %d", len(plan.AssignIDs))
	}
	for i, a := range plan.AssignIDs {
		if a.NewID != i+1 {
			t.Fatalf("expected contiguous id %d, got %d", i+1, a.NewID)
		}
	}
}

// TestDisconnectClearsFormationWhenEmpty covers section 4.4's
// disconnect handling: dropping to zero followers clears formation.
func TestDisconnectClearsFormationWhenEmpty(t *testing.T) {
	r := New(5)
	_, tok, _, _ := r.Register(wire.NetInfo{}, &fakeSender{}, 1)
	if !r.FormationComplete() {
		t.Fatal("expected formed")
	}
	_, cleared := r.Disconnect(tok)
	if !cleared {
		t.Fatal("expected formation cleared")
	}
	if r.FormationComplete() {
		t.Fatal("expected FormationComplete false after last disconnect")
	}
}

// TestDisconnectRequestsReformWhenStillComplete covers the case where
// formation was complete, stays above threshold-as-fraction, and the
// registry signals the caller to re-finalize the rear chain.
func TestDisconnectRequestsReformWhenStillComplete(t *testing.T) {
	r := New(5)
	r.Register(wire.NetInfo{}, &fakeSender{}, 2)
	_, tok2, _, _ := r.Register(wire.NetInfo{}, &fakeSender{}, 2)
	r.Register(wire.NetInfo{}, &fakeSender{}, 2)

	reform, cleared := r.Disconnect(tok2)
	if cleared {
		t.Fatal("should not have cleared formation")
	}
	if !reform {
		t.Fatal("expected reform requested")
	}
}

// TestFinalizeRearChainLinksNeighbors verifies each session's rear
// points to the next session's address, and the last has no rear.
func TestFinalizeRearChainLinksNeighbors(t *testing.T) {
	r := New(5)
	r.Register(wire.NetInfo{Port: 1}, &fakeSender{}, 3)
	r.Register(wire.NetInfo{Port: 2}, &fakeSender{}, 3)
	r.Register(wire.NetInfo{Port: 3}, &fakeSender{}, 3)

	plan := r.Finalize()
	if len(plan.Rears) != 3 {
		t.Fatalf("expected 3 rear assignments, got %d", len(plan.Rears))
	}
	if !plan.Rears[0].HasRear || plan.Rears[0].Rear.Port != 2 {
		t.Fatalf("expected session 1's rear to be port 2, got %+v", plan.Rears[0])
	}
	if !plan.Rears[1].HasRear || plan.Rears[1].Rear.Port != 3 {
		t.Fatalf("expected session 2's rear to be port 3, got %+v", plan.Rears[1])
	}
	if plan.Rears[2].HasRear {
		t.Fatalf("expected last session to have no rear, got %+v", plan.Rears[2])
	}
}

// TestDisconnectSurvivesRenumbering reproduces the exact scenario that
// motivated Token: 4 followers register (ids 1-4), F2 disconnects and
// Finalize renumbers F3->2, F4->3. F3's connection goroutine must
// disconnect its own session (now id 2), not F4's session, which now
// holds F3's original id 3, because it only ever held the token it got
// from Register.
func TestDisconnectSurvivesRenumbering(t *testing.T) {
	r := New(5)
	r.Register(wire.NetInfo{Port: 1}, &fakeSender{}, 4)
	_, tok2, _, _ := r.Register(wire.NetInfo{Port: 2}, &fakeSender{}, 4)
	_, tok3, _, _ := r.Register(wire.NetInfo{Port: 3}, &fakeSender{}, 4)
	_, tok4, _, _ := r.Register(wire.NetInfo{Port: 4}, &fakeSender{}, 4)

	r.Disconnect(tok2)
	r.Finalize() // F3 renumbered to id 2, F4 renumbered to id 3

	r.Disconnect(tok3)
	if r.ActiveCount() != 2 {
		t.Fatalf("expected 2 active sessions after disconnecting F3, got %d", r.ActiveCount())
	}

	plan := r.Finalize()
	if len(plan.AssignIDs) != 2 {
		t.Fatalf("expected 2 remaining sessions, got %d", len(plan.AssignIDs))
	}
	foundF4 := false
	r.mu.Lock()
	for i := 0; i < r.active; i++ {
		if r.sessions[i].Token == tok4 {
			foundF4 = true
		}
		if r.sessions[i].Token == tok3 {
			t.Fatal("F3's session is still active after its own disconnect")
		}
	}
	r.mu.Unlock()
	if !foundF4 {
		t.Fatal("F4's session was wrongly removed by F3's disconnect")
	}
}

// TestBroadcastContinuesPastFailure ensures one failing sender does
// not stop delivery to the rest.
func TestBroadcastContinuesPastFailure(t *testing.T) {
	r := New(5)
	bad := &fakeSender{fail: true}
	good := &fakeSender{}
	r.Register(wire.NetInfo{}, bad, 5)
	r.Register(wire.NetInfo{}, good, 5)

	var failedIDs []int
	r.Broadcast(wire.Envelope{Kind: wire.KindCmd}, func(id int, err error) {
		failedIDs = append(failedIDs, id)
	})

	if len(failedIDs) != 1 || failedIDs[0] != 1 {
		t.Fatalf("expected session 1 to fail, got %v", failedIDs)
	}
	if len(good.sent) != 1 {
		t.Fatal("expected good sender to receive broadcast")
	}
}
