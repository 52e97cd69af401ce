package blob

import "errors"

var (
	ErrKeyHasExtension       = errors.New("key must not contain an extension")
	ErrUnmappableContentType = errors.New("no extension known for content type")
	ErrVariantPairing        = errors.New("variant and original blob id must be set together")
	ErrVariantOfVariant      = errors.New("a variant cannot be derived from another variant")
	ErrInvalidBlob           = errors.New("invalid blob")
	ErrNoPurgeQueue          = errors.New("no purge queue configured")
)
