package domain

// Identity is the authenticated shopper. A zero Identity is a guest.
type Identity struct {
	UserID string
	Token  string
}

func (i Identity) Authenticated() bool {
	return i.UserID != ""
}
