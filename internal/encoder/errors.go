package encoder

import (
	"fmt"
	"path/filepath"
)

// EncodeError reports a segment encode that failed after every fallback.
type EncodeError struct {
	Segment int    // segment index within the job
	Encoder string // last encoder tried
	Tail    []string
	Err     error
}

func (e *EncodeError) Error() string {
	if e.Encoder != "" {
		return fmt.Sprintf("encoding segment %d with %s: %v", e.Segment, e.Encoder, e.Err)
	}
	return fmt.Sprintf("encoding segment %d: %v", e.Segment, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// ConcatError reports a failed group concatenation.
type ConcatError struct {
	Output string
	Tail   []string
	Err    error
}

func (e *ConcatError) Error() string {
	return fmt.Sprintf("concatenating %s: %v", filepath.Base(e.Output), e.Err)
}

func (e *ConcatError) Unwrap() error { return e.Err }
