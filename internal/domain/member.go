package domain

// Member is the snapshot of an identity stored inside a room.
// No transport or lifecycle logic here.
type Member struct {
	Username     string       `json:"username"`
	AvatarRef    string       `json:"avatarRef"`
	ConnectionID ConnectionID `json:"connectionId"`
}

// NewMember avoids raw literals in the app layer and keeps construction obvious.
func NewMember(id Identity) Member {
	return Member{
		Username:     id.Username,
		AvatarRef:    id.AvatarRef,
		ConnectionID: id.ConnectionID,
	}
}
