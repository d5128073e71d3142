package boardsync

import "errors"

var (
	// ErrIdentity means signing in failed or did not finish in time.
	ErrIdentity = errors.New("identity unavailable")
	// ErrSubscription means the board document could not be listened to.
	ErrSubscription = errors.New("board subscription failed")
	// ErrWrite means a remote write of the board failed.
	ErrWrite = errors.New("board write failed")
)
