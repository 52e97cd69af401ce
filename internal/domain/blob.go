package domain

import "time"

// Blob is the persisted record describing one stored file, either an
// uploaded original or a derived variant. Rows are immutable once created.
type Blob struct {
	ID          string
	Key         string
	Filename    string
	ContentType string
	ByteSize    int64
	Checksum    string
	Metadata    map[string]any
	// Path points at local bytes that have not been uploaded yet.
	// It is never persisted.
	Path           string `json:"-"`
	Variant        string
	OriginalBlobID string
	CreatedAt      time.Time
}

// IsVariant reports whether the blob was derived from another blob.
// Variant and OriginalBlobID are always both empty or both set.
func (b *Blob) IsVariant() bool {
	return b.Variant != ""
}

// StatResult is the content-derived metadata of a local file.
type StatResult struct {
	Filename    string
	ContentType string
	ByteSize    int64
	Checksum    string
	Metadata    map[string]any
}

type AccessLevel string

const (
	AccessPrivate    AccessLevel = "private"
	AccessPublicRead AccessLevel = "public-read"
)

type BlobFormat string

const (
	FormatJPEG BlobFormat = "jpeg"
	FormatJPG  BlobFormat = "jpg"
	FormatPNG  BlobFormat = "png"
	FormatGIF  BlobFormat = "gif"
	FormatWebP BlobFormat = "webp"
	FormatBMP  BlobFormat = "bmp"
	FormatTIFF BlobFormat = "tiff"
)

// ContentTypeOf maps a short format name to its MIME content type.
func ContentTypeOf(format string) string {
	switch BlobFormat(format) {
	case FormatJPEG, FormatJPG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	case FormatGIF:
		return "image/gif"
	case FormatWebP:
		return "image/webp"
	case FormatBMP:
		return "image/bmp"
	case FormatTIFF:
		return "image/tiff"
	default:
		return ""
	}
}

// FormatFromContentType is the inverse of ContentTypeOf for the formats
// the transforms can encode. Unknown types fall back to jpeg.
func FormatFromContentType(contentType string) string {
	switch contentType {
	case "image/png":
		return string(FormatPNG)
	case "image/gif":
		return string(FormatGIF)
	case "image/webp":
		return string(FormatWebP)
	default:
		return string(FormatJPEG)
	}
}

const (
	MetaWidth  = "width"
	MetaHeight = "height"
)

const (
	DefaultMaxUploadSize = 32 << 20
	DefaultJPEGQuality   = 85
	DefaultThumbnailSize = 200
)
