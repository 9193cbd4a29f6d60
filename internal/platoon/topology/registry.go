// Package topology implements the leader-side follower membership
// registry of spec.md section 4.4: an ordered set of at most MAX
// active follower sessions with stable compaction and rear-chain
// wiring.
//
// Registry is modeled on the teacher's MessageReceptacle
// (sfurman3-chatroom/vector/vectorClock.go): a fixed-capacity,
// mutex-guarded collection whose membership invariants are enforced
// by one operation (there: deliver; here: compact) rather than
// scattered across callers.
package topology

import (
	"fmt"
	"sync"

	"github.com/saidurrsaied/DPS-ESE/internal/platoon/wire"
)

// Token is a stable handle to a session, issued once by Register and
// never renumbered. ID is renumbered on every Finalize (I3's
// contiguous-prefix requirement), so callers that need to refer back
// to a specific session across a reform — chiefly a connection
// goroutine tearing itself down — must hold onto the Token, not the
// ID.
type Token int64

// Session is a single follower's connection bookkeeping.
// Conn is an opaque handle (e.g. *wire.Codec) the caller owns; the
// registry never dials or reads it, and writes it only in Broadcast and Send,
// keeping the "followers" lock's scope distinct from "sockets" per
// spec.md section 5's lock-order table.
type Session struct {
	ID      int
	Token   Token
	Active  bool
	Address wire.NetInfo
	Conn    Sender
}

// Sender abstracts the one operation the registry needs to perform on
// a session's connection: sending an Envelope. Production code
// backs this with *wire.Codec; tests can use a fake.
type Sender interface {
	WriteEnvelope(wire.Envelope) error
}

// RearAssignment describes one follower's rear-chain wiring, part of
// the plan returned by Finalize.
type RearAssignment struct {
	SessionID int
	HasRear   bool
	Rear      wire.NetInfo
}

// FinalizePlan is the broadcast plan a Finalize call computes: fresh
// AssignId values (in prefix order) and fresh UpdateRear wiring. The
// caller (leaderctx, acting on the leader FSM's FinalizeTopology
// effect) is responsible for actually sending these, so
// Registry never needs a direct dependency on the FSM or command
// queue (spec.md section 5's lock-order boundary).
type FinalizePlan struct {
	AssignIDs []AssignPlan
	Rears     []RearAssignment
}

// AssignPlan pairs a session with its freshly computed id.
type AssignPlan struct {
	SessionID int
	NewID     int
}

// Registry holds up to max active follower sessions.
type Registry struct {
	mu        sync.Mutex
	sessions  [MaxSlack]*Session // see note on MaxSlack below
	max       int
	active    int
	completed bool
	nextToken Token
}

// MaxSlack bounds the largest MAX_FOLLOWERS value New will accept
// without reallocating; spec.md's default MAX_FOLLOWERS is 5, so a
// generous compile-time ceiling keeps Registry allocation-free.
const MaxSlack = 64

// New constructs a Registry for at most max active followers.
func New(max int) *Registry {
	if max <= 0 || max > MaxSlack {
		panic(fmt.Sprintf("topology: max followers %d out of range (1..%d)", max, MaxSlack))
	}
	return &Registry{max: max}
}

// ErrFull is returned by Register when the registry has no free slot.
var ErrFull = fmt.Errorf("topology: registry full")

// Register compacts the registry (so the new session occupies the
// lowest free slot), appends the session, and returns its 1-based id,
// its Token (a stable handle that survives future renumbering — see
// Token's doc), and whether this registration just completed
// formation for the first time, or re-completed it (both cases emit
// PlatoonFormed per spec.md section 4.4).
func (r *Registry) Register(addr wire.NetInfo, conn Sender, minFollowers int) (id int, token Token, formed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.compactLocked()
	if r.active >= r.max {
		return 0, 0, false, ErrFull
	}

	idx := r.active
	r.nextToken++
	tok := r.nextToken
	r.sessions[idx] = &Session{ID: idx + 1, Token: tok, Active: true, Address: addr, Conn: conn}
	r.active++

	formed = false
	if r.active >= minFollowers {
		if !r.completed {
			r.completed = true
			formed = true
		} else {
			// Already complete: re-finalize per spec.md section 4.4
			// ("If formation was already complete, also emit
			// PlatoonFormed to re-finalize.")
			formed = true
		}
	}
	return idx + 1, tok, formed, nil
}

// Disconnect marks the session with the given token inactive. Tokens,
// unlike ids, are never reassigned by Finalize, so a connection
// goroutine can safely hold onto the token it received from Register
// across any number of intervening reforms and still tear down the
// right session. It reports whether the registry should emit
// PlatoonFormed (to re-densify remaining members) and whether
// formation should be cleared.
func (r *Registry) Disconnect(token Token) (shouldReform bool, clearedFormation bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < r.active; i++ {
		if r.sessions[i] != nil && r.sessions[i].Token == token {
			r.sessions[i].Active = false
			r.sessions[i] = nil
			break
		}
	}
	r.compactLocked()

	if r.active == 0 {
		r.completed = false
		return false, true
	}
	if r.completed {
		return true, false
	}
	return false, false
}

// compactLocked slides active sessions down to a contiguous prefix.
// Callers must hold r.mu.
func (r *Registry) compactLocked() {
	write := 0
	for read := 0; read < r.max; read++ {
		s := r.sessions[read]
		if s == nil || !s.Active {
			continue
		}
		r.sessions[write] = s
		write++
	}
	for i := write; i < r.max; i++ {
		r.sessions[i] = nil
	}
	r.active = write
}

// Finalize recomputes ids as prefix-index+1 for every active session
// and returns the AssignId/UpdateRear broadcast plan (spec.md section
// 4.4: "(a) compact ... (b) reassign ... (c) broadcast fresh AssignId
// ... (d) broadcast fresh UpdateRear").
func (r *Registry) Finalize() FinalizePlan {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.compactLocked()

	plan := FinalizePlan{}
	for i := 0; i < r.active; i++ {
		s := r.sessions[i]
		newID := i + 1
		s.ID = newID
		plan.AssignIDs = append(plan.AssignIDs, AssignPlan{SessionID: newID, NewID: newID})

		rear := RearAssignment{SessionID: newID}
		if i+1 < r.active {
			rear.HasRear = true
			rear.Rear = r.sessions[i+1].Address
		}
		plan.Rears = append(plan.Rears, rear)
	}
	return plan
}

// ActiveCount returns the number of active sessions.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// FormationComplete reports whether at least MinFollowers have ever
// been reached and not since dropped to zero.
func (r *Registry) FormationComplete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed
}

// Broadcast sends env to every active session. A single failing send
// does not abort the loop (spec.md section 4.4); onErr, if non-nil,
// is invoked for each failure so callers can log/record metrics.
func (r *Registry) Broadcast(env wire.Envelope, onErr func(sessionID int, err error)) {
	r.mu.Lock()
	sessions := make([]*Session, r.active)
	copy(sessions, r.sessions[:r.active])
	r.mu.Unlock()

	for _, s := range sessions {
		if err := s.Conn.WriteEnvelope(env); err != nil && onErr != nil {
			onErr(s.ID, err)
		}
	}
}

// Send sends env to exactly one active session by id, ignoring
// inactive/unknown ids.
func (r *Registry) Send(id int, env wire.Envelope) error {
	r.mu.Lock()
	var target *Session
	for i := 0; i < r.active; i++ {
		if r.sessions[i].ID == id {
			target = r.sessions[i]
			break
		}
	}
	r.mu.Unlock()
	if target == nil {
		return fmt.Errorf("topology: no active session with id %d", id)
	}
	return target.Conn.WriteEnvelope(env)
}
