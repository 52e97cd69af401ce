package blob

import "errors"

var (
	ErrBlobNotFound     = errors.New("blob not found")
	ErrEntityNotFound   = errors.New("entity not found")
	ErrDuplicateKey     = errors.New("duplicate key violation")
	ErrDuplicateVariant = errors.New("duplicate variant violation")
)
