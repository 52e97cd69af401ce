package attachment

import "errors"

// ErrValidation marks a unit-of-work failure caused by changeset field
// errors rather than an environmental fault. The failing step carries
// the annotated changeset.
var ErrValidation = errors.New("changeset validation failed")
