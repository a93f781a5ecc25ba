package coordinator

import (
	"fmt"
	"strings"
)

// PlacementError is returned when a fragment could not be written after all retries.
// Nothing is registered when it occurs.
type PlacementError struct {
	FileHash string   // FileHash is the file being uploaded
	Index    int      // Index is the fragment that could not be placed
	Tried    []string // Tried lists the nodes attempted for that fragment, in order
	Err      error    // Err is the last failure
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("place fragment %d of %s after trying [%s]: %v",
		e.Index, e.FileHash, strings.Join(e.Tried, ", "), e.Err)
}

func (e *PlacementError) Unwrap() error {
	return e.Err
}

// UnrecoverableFragmentError is returned when every replica of a fragment failed.
type UnrecoverableFragmentError struct {
	FileHash    string   // FileHash is the file being retrieved
	Index       int      // Index is the missing fragment
	FailedNodes []string // FailedNodes lists the replicas tried, in order
}

func (e *UnrecoverableFragmentError) Error() string {
	return fmt.Sprintf("fragment %d of %s unrecoverable: all replicas failed [%s]",
		e.Index, e.FileHash, strings.Join(e.FailedNodes, ", "))
}

// DuplicateFileError is returned when identical content is already registered by another owner.
type DuplicateFileError struct {
	FileHash string // FileHash is the content hash
	Owner    string // Owner is the existing owner
}

func (e *DuplicateFileError) Error() string {
	return fmt.Sprintf("file %s already registered by %s", e.FileHash, e.Owner)
}
