package fragment

import "fmt"

// FragmentationError reports input that cannot be split.
type FragmentationError struct {
	Reason string
}

func (e *FragmentationError) Error() string {
	return "fragmentation: " + e.Reason
}

// ReconstructionError reports a structurally incomplete fragment set.
// MissingIndex is -1 when the problem is not a gap.
type ReconstructionError struct {
	MissingIndex int
	Reason       string
	Err          error
}

func (e *ReconstructionError) Error() string {
	msg := "reconstruction: " + e.Reason
	if e.MissingIndex >= 0 {
		msg = fmt.Sprintf("%s (index %d)", msg, e.MissingIndex)
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *ReconstructionError) Unwrap() error {
	return e.Err
}

// IntegrityError reports a hash mismatch. Index is the fragment index,
// or -1 for the whole-file check.
type IntegrityError struct {
	FileHash string
	Index    int
	Node     string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("integrity: file %s hashed to %s", e.Expected, e.Actual)
	}

	msg := fmt.Sprintf("integrity: fragment %d of file %s: expected %s, got %s", e.Index, e.FileHash, e.Expected, e.Actual)
	if e.Node != "" {
		msg += " from node " + e.Node
	}

	return msg
}
