package events

import "time"

// CascadeFinish is emitted after a user deletion and its dependent cleanup.
type CascadeFinish struct {
	UserID        string
	Subscriptions int // other users whose lists were rewritten
	Posts         int
	Profiles      int
	Err           error
	Duration      time.Duration
}
