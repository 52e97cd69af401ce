package attachment

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"attachstore/internal/domain"
	"attachstore/internal/inspector"
)

// Source is a local file handle produced by the caller, typically a
// multipart upload spooled to disk.
type Source struct {
	Path        string
	Filename    string
	ContentType string
}

// Binder turns source files in a changeset's params into pending
// blobs. Binding stats the local file but touches neither the database
// nor the object store.
type Binder struct {
	inspector *inspector.Inspector
}

func NewBinder(ins *inspector.Inspector) *Binder {
	return &Binder{inspector: ins}
}

// Bind inspects the payload under field:
//   - a *Source becomes a pending blob attached to the field,
//   - nil or absent clears the association (or fails when required),
//   - anything else is an invalid payload.
func (b *Binder) Bind(cs *Changeset, field string, keyFn KeyFunc, opts BindOptions) *Changeset {
	if keyFn == nil {
		panic("attachment: Bind requires a key function")
	}

	raw, present := cs.params[field]
	if !present || raw == nil {
		if opts.Required {
			cs.AddError(field, "required")
			return cs
		}
		cs.putAttachment(&Attachment{Field: field, KeyFn: keyFn, Opts: opts})
		return cs
	}

	src, ok := raw.(*Source)
	if !ok {
		if v, isValue := raw.(Source); isValue {
			src, ok = &v, true
		}
	}
	if !ok {
		cs.AddError(field, "invalid")
		return cs
	}

	stat, err := b.inspector.Stat(src.Path, src.Filename, src.ContentType)
	if err != nil {
		cs.AddError(field, fmt.Sprintf("unreadable: %v", err))
		return cs
	}

	pending := &domain.Blob{
		ID:          uuid.New().String(),
		Filename:    stat.Filename,
		ContentType: stat.ContentType,
		ByteSize:    stat.ByteSize,
		Checksum:    stat.Checksum,
		Metadata:    stat.Metadata,
		Path:        src.Path,
	}

	cs.putAttachment(&Attachment{Field: field, Blob: pending, KeyFn: keyFn, Opts: opts})
	return cs
}

// ValidateType adds a field error when the pending blob's content type
// matches none of the allowed entries. Entries may end in "/*" to
// allow a whole type family.
func ValidateType(cs *Changeset, field string, allowed []string) *Changeset {
	att := cs.Attachment(field)
	if att == nil || att.Blob == nil {
		return cs
	}

	for _, a := range allowed {
		if a == att.Blob.ContentType {
			return cs
		}
		if prefix, ok := strings.CutSuffix(a, "/*"); ok && strings.HasPrefix(att.Blob.ContentType, prefix+"/") {
			return cs
		}
	}

	cs.AddError(field, fmt.Sprintf("content type %s is not allowed", att.Blob.ContentType))
	return cs
}

// ValidateSize adds a field error when the pending blob exceeds
// maxBytes.
func ValidateSize(cs *Changeset, field string, maxBytes int64) *Changeset {
	att := cs.Attachment(field)
	if att == nil || att.Blob == nil {
		return cs
	}

	if att.Blob.ByteSize > maxBytes {
		cs.AddError(field, fmt.Sprintf("file exceeds %d bytes", maxBytes))
	}
	return cs
}
