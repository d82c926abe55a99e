package state

import (
	"errors"
	"time"
)

// #region errors
// ErrNotFound is returned when a key has never been set.
var ErrNotFound = errors.New("key not found")

// #endregion errors

// #region entry
// Entry is one key/value row.
type Entry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// #endregion entry

// Keys for scalar control-plane settings.
const (
	KeyResolutionIndex = "resolution.scale_index"
	KeyAutoCycle       = "controlplane.auto_cycle"
	KeyMacros          = "arbiter.macros"
)
