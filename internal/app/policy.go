package app

import "github.com/abhimm5/chatapp/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

func (a BackpressureAction) String() string {
	switch a {
	case KickMember:
		return "kick"
	case DropFrame:
		return "drop"
	default:
		return "none"
	}
}

// Policy decides what happens to a member whose connection cannot keep up.
type Policy interface {
	OnBackPressure(room domain.Room, member domain.Member) BackpressureAction
}

// SimplePolicy drops the frame and keeps the member.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.Room, domain.Member) BackpressureAction {
	return DropFrame
}

// KickSlowPolicy disconnects members that fall behind.
type KickSlowPolicy struct{}

func (KickSlowPolicy) OnBackPressure(domain.Room, domain.Member) BackpressureAction {
	return KickMember
}

// NewPolicy maps a config name to a policy. Unknown names fall back to SimplePolicy.
func NewPolicy(name string) Policy {
	if name == "kick" {
		return KickSlowPolicy{}
	}
	return SimplePolicy{}
}
