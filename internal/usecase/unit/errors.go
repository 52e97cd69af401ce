package unit

import (
	"errors"
	"fmt"

	"attachstore/internal/usecase/attachment"
)

// StepError names the step a unit of work failed at and carries its
// error unchanged. When the failure came from changeset validation the
// annotated changeset rides along.
type StepError struct {
	Step      string
	Err       error
	Changeset *attachment.Changeset
}

func (e *StepError) Error() string {
	return fmt.Sprintf("unit step %q failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

var ErrMissingEntityID = errors.New("update requires an entity id")
