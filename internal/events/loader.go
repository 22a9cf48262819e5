package events

import "time"

// LoaderBatch is emitted after a batch loader performs its bulk fetch.
type LoaderBatch struct {
	Kind     string // entity collection, e.g. "posts"
	Field    string // foreign-key field the batch filtered on
	Site     string // resolver site, e.g. "User.posts"
	Keys     int
	Rows     int
	Err      error
	Duration time.Duration
}
