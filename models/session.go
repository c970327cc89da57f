package models

// SessionState is the persisted browser storage state (cookies and origins)
// and whether it was last seen authenticated.
type SessionState struct {
	Blob  []byte
	Valid bool
}

// Empty reports whether there is nothing to restore.
func (s SessionState) Empty() bool {
	return len(s.Blob) == 0
}
