package entity

import "strings"

// Scope selects the corpus an operation reads or writes: the shared corpus
// when UserID is empty, otherwise that user's private corpus.
type Scope struct {
	UserID string
}

// SharedScope is the system-wide corpus.
func SharedScope() Scope { return Scope{} }

// UserScope is the private corpus of userID.
func UserScope(userID string) Scope { return Scope{UserID: strings.TrimSpace(userID)} }

func (s Scope) IsShared() bool { return s.UserID == "" }

// Key is a stable string form, used in indexes and logs.
func (s Scope) Key() string {
	if s.IsShared() {
		return "shared"
	}
	return "user:" + s.UserID
}

func (s Scope) String() string { return s.Key() }
