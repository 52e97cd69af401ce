package variant

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownFormat = errors.New("unknown variant format")
	ErrNotAnOriginal = errors.New("variants can only be derived from an original blob")
)

// PipelineError tags a failure with the (label, format) derivation
// step that produced it, so callers can resume or clean up precisely.
type PipelineError struct {
	Step string
	Err  error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("variant step %q failed: %v", e.Step, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// TempFileError reports a scratch-file allocation or cleanup failure
// with the underlying OS reason.
type TempFileError struct {
	Op   string
	Path string
	Err  error
}

func (e *TempFileError) Error() string {
	return fmt.Sprintf("temp file %s failed at %q: %v", e.Op, e.Path, e.Err)
}

func (e *TempFileError) Unwrap() error {
	return e.Err
}
