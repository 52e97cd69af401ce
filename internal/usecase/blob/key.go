package blob

import (
	"fmt"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ExtensionFor maps a MIME content type to its canonical file
// extension, including the leading dot.
func ExtensionFor(contentType string) (string, error) {
	mt := mimetype.Lookup(contentType)
	if mt == nil || mt.Extension() == "" {
		return "", fmt.Errorf("%w: %s", ErrUnmappableContentType, contentType)
	}
	return mt.Extension(), nil
}

// DeriveKey appends the extension derived from contentType to a raw
// key. The raw key itself must not contain a dot: the extension is
// always system-derived, never caller-supplied.
func DeriveKey(rawKey, contentType string) (string, error) {
	if strings.Contains(rawKey, ".") {
		return "", fmt.Errorf("%w: %s", ErrKeyHasExtension, rawKey)
	}
	ext, err := ExtensionFor(contentType)
	if err != nil {
		return "", err
	}
	return rawKey + ext, nil
}

// KeyRoot strips the extension off a derived key.
func KeyRoot(key string) string {
	return strings.TrimSuffix(key, path.Ext(key))
}

// VariantKey places a variant under the original's key root:
// "uploads/a/avatar.jpg" + "small" + "image/png" → "uploads/a/avatar/small.png".
func VariantKey(originalKey, label, contentType string) (string, error) {
	return DeriveKey(KeyRoot(originalKey)+"/"+label, contentType)
}

// VariantFilename keeps the original extension and suffixes the label:
// "avatar.jpg" + "small" → "avatar_small.jpg".
func VariantFilename(originalFilename, label string) string {
	ext := path.Ext(originalFilename)
	return strings.TrimSuffix(originalFilename, ext) + "_" + label + ext
}
