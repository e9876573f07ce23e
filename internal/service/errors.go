package service

import (
	"fmt"

	"ruteo-sync-agent/internal/remote"
)

// ErrShiftAlreadyClosed means the authority reported the day's shift as
// already closed. The caller must choose between abandoning and a forced
// reopen; the agent never auto-resolves this.
var ErrShiftAlreadyClosed = remote.ErrShiftAlreadyClosed

// PendingWorkError refuses a shift closure while unsynced transactions exist.
// Closure triggers authoritative stock and cash reconciliation on the server,
// which must see every transaction first.
type PendingWorkError struct {
	Count int
}

func (e *PendingWorkError) Error() string {
	return fmt.Sprintf("%d unsynced transactions pending; sync before closing the shift", e.Count)
}
