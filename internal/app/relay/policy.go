package relay

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a member whose send buffer is full.
type Policy interface {
	OnBackPressure(room *Room, member *Member) BackpressureAction
}

// SimplePolicy disconnects slow members.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(*Room, *Member) BackpressureAction {
	return KickMember
}
