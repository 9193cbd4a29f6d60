// Package clock implements the causal matrix clock piggy-backed on
// every cross-node message (spec C1).
//
// It generalizes the teacher's vector-clock API (builder construction,
// TickLocal/TickReceive naming, Cmp-based comparison) from an N-length
// vector of logical clocks to an NxN matrix where M[i][j] is node i's
// view of node j's logical time.
package clock

import "fmt"

// Snapshot is the wire-safe, immutable value carried on outgoing
// messages: a deep copy of a Matrix's rows at the moment of send.
type Snapshot [][]int64

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for i, row := range s {
		out[i] = append([]int64(nil), row...)
	}
	return out
}

// String renders the snapshot as a comma-delimited matrix, mirroring
// the teacher's Clock.String bracket-and-comma convention.
func (s Snapshot) String() string {
	out := "["
	for i, row := range s {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprint(row)
	}
	return out + "]"
}

// Matrix is the mutable, node-local causal clock. The zero value is
// not ready to use; construct with New.
type Matrix struct {
	self int
	rows [][]int64
}

// New builds a zeroed NxN matrix clock for the node identified by
// self (0-based, leader == 0 per spec.md DATA MODEL).
func New(self, n int) (*Matrix, error) {
	if n <= 0 || self < 0 || self >= n {
		return nil, fmt.Errorf("clock: invalid self=%d for n=%d", self, n)
	}
	rows := make([][]int64, n)
	for i := range rows {
		rows[i] = make([]int64, n)
	}
	return &Matrix{self: self, rows: rows}, nil
}

// LocalTick increments M[self][self]. Callers must hold whatever lock
// guards the Matrix; Matrix itself performs no internal locking so
// that it composes cleanly with a single node-wide mutex (spec.md
// section 4.1: "the read/copy/update sequence is atomic w.r.t. other
// threads of the same node").
func (m *Matrix) LocalTick() {
	m.rows[m.self][m.self]++
}

// OnSend performs a local tick and returns the snapshot to attach to
// the outgoing message.
func (m *Matrix) OnSend() Snapshot {
	m.LocalTick()
	return m.Snapshot()
}

// OnReceive merges an incoming snapshot elementwise-max into m, then
// ticks the local row, per spec.md section 4.1.
func (m *Matrix) OnReceive(incoming Snapshot) error {
	if len(incoming) != len(m.rows) {
		return fmt.Errorf("clock: size mismatch: got %d rows, want %d", len(incoming), len(m.rows))
	}
	for i, row := range incoming {
		if len(row) != len(m.rows) {
			return fmt.Errorf("clock: row %d size mismatch: got %d, want %d", i, len(row), len(m.rows))
		}
		for j, v := range row {
			if v > m.rows[i][j] {
				m.rows[i][j] = v
			}
		}
	}
	m.rows[m.self][m.self]++
	return nil
}

// Snapshot returns a deep copy of the current matrix state.
func (m *Matrix) Snapshot() Snapshot {
	return Snapshot(m.rows).Clone()
}

// Self returns the node's own index in the matrix.
func (m *Matrix) Self() int { return m.self }
