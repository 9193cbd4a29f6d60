package eventqueue

// Kind identifies an event's origin/nature. Priority is derived from
// Kind via PriorityOf, per the table in spec.md section 4.2.
type Kind int

const (
	KindEmergency Kind = iota
	KindLeaderTimeout
	KindIntruder
	KindDistance
	KindCruiseCmd
	KindIntruderClear
	KindEmergencyTimer
	KindTick
	KindUserInput
	KindFollowerMsg
	KindPlatoonFormed
	KindShutdown

	numKinds
)

// NumLevels is the number of distinct priority levels (0..NumLevels-1,
// 0 = most urgent), matching the Kind enumeration one-for-one.
const NumLevels = int(numKinds)

// PriorityOf returns the priority level for a Kind: its own ordinal,
// since spec.md section 4.2 assigns priorities 0..11 in exactly the
// order the Kind constants are declared above.
func PriorityOf(k Kind) int { return int(k) }

func (k Kind) String() string {
	switch k {
	case KindEmergency:
		return "Emergency"
	case KindLeaderTimeout:
		return "LeaderTimeout"
	case KindIntruder:
		return "Intruder"
	case KindDistance:
		return "Distance"
	case KindCruiseCmd:
		return "CruiseCmd"
	case KindIntruderClear:
		return "IntruderClear"
	case KindEmergencyTimer:
		return "EmergencyTimer"
	case KindTick:
		return "Tick"
	case KindUserInput:
		return "UserInput"
	case KindFollowerMsg:
		return "FollowerMsg"
	case KindPlatoonFormed:
		return "PlatoonFormed"
	case KindShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// Event is a tagged-union value passed through the queue. Payload
// holds whatever data the Kind implies (e.g. a wire.LeaderCommand,
// an fsm.UserInput key, a wire.IntruderInfo); consumers switch on Kind.
type Event struct {
	Kind    Kind
	Payload any
}
