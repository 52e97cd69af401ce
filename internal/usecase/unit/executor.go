package unit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	repo "attachstore/internal/repository/blob"

	"attachstore/internal/usecase/attachment"
	blobuc "attachstore/internal/usecase/blob"
)

// Executor interprets a unit of work. All database steps share one
// transaction; the first failing step aborts the rest and rolls the
// database portion back. Storage calls made by earlier steps are not
// undone, so destructive storage work is ordered before new uploads
// and every storage operation is safe to re-run.
type Executor struct {
	repo   repository
	store  objectStore
	blobs  blobService
	logger *zlog.Zerolog
}

func NewExecutor(r repository, store objectStore, blobs blobService, logger *zlog.Zerolog) *Executor {
	return &Executor{
		repo:   r,
		store:  store,
		blobs:  blobs,
		logger: logger,
	}
}

// Exec runs every step in declaration order and returns the named
// results, or a *StepError naming the first step that failed.
func (e *Executor) Exec(ctx context.Context, u *Unit) (Results, error) {
	results := Results{}

	err := e.repo.WithinTx(ctx, func(tx repo.Tx) error {
		for _, s := range u.steps {
			value, err := e.runStep(ctx, tx, s, results)
			if err != nil {
				return &StepError{Step: s.name, Err: err, Changeset: s.cs}
			}
			results[s.name] = value
		}
		return nil
	})
	if err != nil {
		var se *StepError
		if errors.As(err, &se) {
			e.logger.Warn().Str("step", se.Step).Err(se.Err).Msg("Unit of work aborted")
			return nil, se
		}
		return nil, err
	}

	return results, nil
}

func (e *Executor) runStep(ctx context.Context, tx repo.Tx, s step, results Results) (any, error) {
	switch s.kind {
	case kindInsertEntity:
		return e.applyChangeset(ctx, tx, s, results, true)
	case kindUpdateEntity:
		return e.applyChangeset(ctx, tx, s, results, false)
	case kindDeleteEntity:
		return e.deleteEntity(ctx, tx, s)
	case kindAttachBlob:
		return e.attachBlob(ctx, tx, s)
	case kindDetachBlob:
		if err := e.blobs.PurgeTx(ctx, tx, s.id); err != nil {
			return nil, err
		}
		return s.id, nil
	case kindCallback:
		return s.fn(ctx, tx, results)
	default:
		panic(fmt.Sprintf("unit: unknown step kind %d", s.kind))
	}
}

func (e *Executor) applyChangeset(ctx context.Context, tx repo.Tx, s step, results Results, insert bool) (map[string]any, error) {
	cs := s.cs
	if !cs.Valid() {
		return nil, attachment.ErrValidation
	}

	if insert {
		if cs.EntityID() == "" {
			cs.SetChange("id", uuid.New().String())
		} else {
			cs.SetChange("id", cs.EntityID())
		}
	} else if cs.EntityID() == "" {
		return nil, ErrMissingEntityID
	}

	// Database work first: purge superseded blobs, insert the new
	// rows, wire the foreign keys. Uploads are deferred until all
	// rows are in place.
	var uploads []*attachment.Attachment
	for _, att := range cs.Attachments() {
		pending, err := e.applyAttachment(ctx, tx, cs, att)
		if err != nil {
			return nil, err
		}
		if pending {
			uploads = append(uploads, att)
		}
	}

	if insert {
		if err := e.repo.InsertEntity(ctx, tx, cs.Table, cs.Changes()); err != nil {
			return nil, err
		}
	} else {
		if err := e.repo.UpdateEntity(ctx, tx, cs.Table, cs.EntityID(), cs.Changes()); err != nil {
			return nil, err
		}
	}

	for _, att := range uploads {
		if err := e.store.Upload(ctx, att.Blob.Path, att.Blob.Key); err != nil {
			return nil, err
		}
		if att.Opts.ACL != "" {
			if err := e.store.SetACL(ctx, att.Blob.Key, att.Opts.ACL); err != nil {
				return nil, err
			}
		}
		results[s.name+"."+att.Field] = att.Blob
		e.logger.Info().
			Str("step", s.name).
			Str("field", att.Field).
			Str("blob_id", att.Blob.ID).
			Str("key", att.Blob.Key).
			Msg("Blob attached")
	}

	row := map[string]any{}
	if !insert {
		existing, err := e.repo.GetEntity(ctx, tx, cs.Table, cs.EntityID())
		if err != nil {
			return nil, err
		}
		row = existing
	} else {
		for k, v := range cs.Changes() {
			row[k] = v
		}
	}
	return row, nil
}

// applyAttachment performs the database half of one attachment change
// and reports whether an upload is still owed for it.
func (e *Executor) applyAttachment(ctx context.Context, tx repo.Tx, cs *attachment.Changeset, att *attachment.Attachment) (bool, error) {
	column := attachment.BlobColumn(att.Field)
	oldID := cs.DataString(column)

	if att.Blob == nil {
		if oldID != "" {
			if err := e.blobs.PurgeTx(ctx, tx, oldID); err != nil {
				return false, err
			}
		}
		cs.SetChange(column, nil)
		return false, nil
	}

	key, err := blobuc.DeriveKey(att.KeyFn(cs), att.Blob.ContentType)
	if err != nil {
		cs.AddError(att.Field, err.Error())
		return false, err
	}
	att.Blob.Key = key

	// Overwrite protocol: drop the currently associated blob before
	// anything is written under the new one.
	if oldID != "" && oldID != att.Blob.ID {
		if err := e.blobs.PurgeTx(ctx, tx, oldID); err != nil {
			return false, err
		}
	}

	// Orphan guard: a stale row holding the target key would trip the
	// unique index, so it is purged the same way.
	orphan, err := e.repo.GetBlobByKey(ctx, tx, key)
	if err != nil {
		return false, err
	}
	if orphan != nil && orphan.ID != att.Blob.ID {
		if err := e.blobs.PurgeTx(ctx, tx, orphan.ID); err != nil {
			return false, err
		}
	}

	if err := e.blobs.Validate(ctx, tx, att.Blob); err != nil {
		return false, err
	}
	if err := e.repo.InsertBlob(ctx, tx, att.Blob); err != nil {
		return false, err
	}
	cs.SetChange(column, att.Blob.ID)
	return true, nil
}

func (e *Executor) deleteEntity(ctx context.Context, tx repo.Tx, s step) (map[string]any, error) {
	row, err := e.repo.GetEntity(ctx, tx, s.table, s.id)
	if err != nil {
		return nil, err
	}

	for _, field := range s.fields {
		blobID, _ := row[attachment.BlobColumn(field)].(string)
		if blobID == "" {
			continue
		}
		if err := e.blobs.PurgeTx(ctx, tx, blobID); err != nil {
			return nil, err
		}
	}

	if err := e.repo.DeleteEntity(ctx, tx, s.table, s.id); err != nil {
		return nil, err
	}
	return row, nil
}

func (e *Executor) attachBlob(ctx context.Context, tx repo.Tx, s step) (any, error) {
	b := s.blob
	if b == nil || b.Key == "" || b.Path == "" {
		panic("unit: AttachBlob requires a keyed blob with local bytes")
	}

	orphan, err := e.repo.GetBlobByKey(ctx, tx, b.Key)
	if err != nil {
		return nil, err
	}
	if orphan != nil && orphan.ID != b.ID {
		if err := e.blobs.PurgeTx(ctx, tx, orphan.ID); err != nil {
			return nil, err
		}
	}

	if err := e.blobs.Validate(ctx, tx, b); err != nil {
		return nil, err
	}
	if err := e.repo.InsertBlob(ctx, tx, b); err != nil {
		return nil, err
	}
	if err := e.store.Upload(ctx, b.Path, b.Key); err != nil {
		return nil, err
	}
	if s.acl != "" {
		if err := e.store.SetACL(ctx, b.Key, s.acl); err != nil {
			return nil, err
		}
	}
	return b, nil
}
