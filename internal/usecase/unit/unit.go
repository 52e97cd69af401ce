package unit

import (
	"context"
	"fmt"

	repo "attachstore/internal/repository/blob"

	"attachstore/internal/domain"
	"attachstore/internal/usecase/attachment"
)

// Unit is an ordered list of named steps making up one unit of work.
// Steps run in declaration order; the database portion commits as one
// transaction; storage side effects are issued in order but are not
// transactional and survive a later failure.
type Unit struct {
	steps []step
	seen  map[string]struct{}
}

// Results maps each completed step name to its produced value. Steps
// that attach blobs additionally publish them under "<step>.<field>".
type Results map[string]any

// Entity returns the row produced by an entity step.
func (r Results) Entity(name string) map[string]any {
	row, _ := r[name].(map[string]any)
	return row
}

// Blob returns the blob attached by step name under field, keyed as
// "<step>.<field>".
func (r Results) Blob(step, field string) *domain.Blob {
	b, _ := r[step+"."+field].(*domain.Blob)
	return b
}

// Callback is a caller-supplied step. It sees the accumulated results
// of every prior step and shares their transaction.
type Callback func(ctx context.Context, tx repo.Tx, results Results) (any, error)

type stepKind int

const (
	kindInsertEntity stepKind = iota
	kindUpdateEntity
	kindDeleteEntity
	kindAttachBlob
	kindDetachBlob
	kindCallback
)

type step struct {
	name   string
	kind   stepKind
	cs     *attachment.Changeset
	table  string
	id     string
	fields []string
	blob   *domain.Blob
	acl    domain.AccessLevel
	fn     Callback
}

func New() *Unit {
	return &Unit{seen: map[string]struct{}{}}
}

// InsertEntity inserts the changeset's row, processing its bound
// attachments first: superseded blobs are purged, new blob rows
// inserted, and the new bytes uploaded once the rows are in place.
func (u *Unit) InsertEntity(name string, cs *attachment.Changeset) *Unit {
	return u.add(step{name: name, kind: kindInsertEntity, cs: cs})
}

// UpdateEntity applies the changeset to an existing row with the same
// attachment handling as InsertEntity.
func (u *Unit) UpdateEntity(name string, cs *attachment.Changeset) *Unit {
	return u.add(step{name: name, kind: kindUpdateEntity, cs: cs})
}

// DeleteEntity removes the row and purges the blobs behind the listed
// attachment fields, variants included.
func (u *Unit) DeleteEntity(name, table, id string, attachmentFields ...string) *Unit {
	return u.add(step{name: name, kind: kindDeleteEntity, table: table, id: id, fields: attachmentFields})
}

// AttachBlob inserts an already-keyed pending blob and uploads its
// bytes, guarding against stale rows at the same key.
func (u *Unit) AttachBlob(name string, b *domain.Blob, acl domain.AccessLevel) *Unit {
	return u.add(step{name: name, kind: kindAttachBlob, blob: b, acl: acl})
}

// DetachBlob purges a blob, its variants and their remote bytes.
func (u *Unit) DetachBlob(name, blobID string) *Unit {
	return u.add(step{name: name, kind: kindDetachBlob, id: blobID})
}

func (u *Unit) Callback(name string, fn Callback) *Unit {
	if fn == nil {
		panic("unit: nil callback for step " + name)
	}
	return u.add(step{name: name, kind: kindCallback, fn: fn})
}

func (u *Unit) add(s step) *Unit {
	if s.name == "" {
		panic("unit: step name must not be empty")
	}
	if _, dup := u.seen[s.name]; dup {
		panic(fmt.Sprintf("unit: duplicate step name %q", s.name))
	}
	u.seen[s.name] = struct{}{}
	u.steps = append(u.steps, s)
	return u
}
