package ui

import "habitcoach/coach"

// snapshotMsg carries a dispatcher state change into the update loop.
type snapshotMsg struct {
	Snapshot coach.Snapshot
}

// replyMsg is delivered when GenerateResponse returns.
type replyMsg struct {
	Prompt string
	Reply  string
}

type switchDoneMsg struct {
	Err error
}

type unloadedMsg struct{}

type copiedMsg struct {
	Err error
}

// noticeExpiredMsg clears a transient status notice. Seq guards against
// clearing a newer notice.
type noticeExpiredMsg struct {
	Seq int
}
