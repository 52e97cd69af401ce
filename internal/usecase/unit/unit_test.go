package unit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	repo "attachstore/internal/repository/blob"
	repomem "attachstore/internal/repository/blob/memory"
	storemem "attachstore/internal/storage/memory"

	"attachstore/internal/domain"
	"attachstore/internal/inspector"
	"attachstore/internal/usecase/attachment"
	blobuc "attachstore/internal/usecase/blob"
)

type fixture struct {
	repo   *repomem.Repository
	store  *storemem.Storage
	blobs  *blobuc.Service
	exec   *Executor
	binder *attachment.Binder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	zlog.Init()
	r := repomem.New()
	st := storemem.New()
	blobs := blobuc.NewService(r, st, nil, &zlog.Logger, retry.Strategy{Attempts: 1})
	return &fixture{
		repo:   r,
		store:  st,
		blobs:  blobs,
		exec:   NewExecutor(r, st, blobs, &zlog.Logger),
		binder: attachment.NewBinder(inspector.New()),
	}
}

func avatarKey(cs *attachment.Changeset) string {
	return "uploads/users/" + cs.EntityID() + "/avatar"
}

func sourceFile(t *testing.T, data []byte) *attachment.Source {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return &attachment.Source{Path: path, Filename: "avatar.jpg", ContentType: "image/jpeg"}
}

// userChangeset binds an avatar source into a fresh insert changeset.
func (f *fixture) userChangeset(t *testing.T, params map[string]any, opts attachment.BindOptions) *attachment.Changeset {
	t.Helper()
	cs := attachment.New("users", "", nil, params)
	cs.Cast("name")
	f.binder.Bind(cs, "avatar", avatarKey, opts)
	return cs
}

func keys(t *testing.T, st *storemem.Storage) []string {
	t.Helper()
	ks, err := st.List(context.Background())
	require.NoError(t, err)
	return ks
}

func TestInsertEntityWithAttachment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	src := sourceFile(t, []byte("avatar bytes"))
	cs := f.userChangeset(t, map[string]any{"name": "ada", "avatar": src}, attachment.BindOptions{ACL: domain.AccessPublicRead})

	results, err := f.exec.Exec(ctx, New().InsertEntity("user", cs))
	require.NoError(t, err)

	row := results.Entity("user")
	require.NotNil(t, row)
	id, _ := row["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "ada", row["name"])

	b := results.Blob("user", "avatar")
	require.NotNil(t, b)
	assert.Equal(t, "uploads/users/"+id+"/avatar.jpg", b.Key)
	assert.Equal(t, b.ID, row["avatar_blob_id"])

	stored, err := f.repo.GetBlob(ctx, nil, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Key, stored.Key)

	assert.Equal(t, []string{b.Key}, keys(t, f.store))
	assert.Equal(t, domain.AccessPublicRead, f.store.ACL(b.Key))
}

func TestInsertEntityWithoutAttachment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cs := f.userChangeset(t, map[string]any{"name": "ada"}, attachment.BindOptions{})

	results, err := f.exec.Exec(ctx, New().InsertEntity("user", cs))
	require.NoError(t, err)

	row := results.Entity("user")
	assert.Nil(t, row["avatar_blob_id"])
	assert.Empty(t, keys(t, f.store))
}

func TestUpdateReplacesOldAttachment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	src := sourceFile(t, []byte("first avatar"))
	insertCS := f.userChangeset(t, map[string]any{"name": "ada", "avatar": src}, attachment.BindOptions{})
	results, err := f.exec.Exec(ctx, New().InsertEntity("user", insertCS))
	require.NoError(t, err)

	row := results.Entity("user")
	id := row["id"].(string)
	oldBlob := results.Blob("user", "avatar")

	// Simulate a variant hanging off the old original.
	variant := &domain.Blob{
		ID:             "v1",
		Key:            blobuc.KeyRoot(oldBlob.Key) + "/small.jpg",
		Filename:       "avatar_small.jpg",
		ContentType:    "image/jpeg",
		ByteSize:       3,
		Checksum:       "ccc",
		Variant:        "small",
		OriginalBlobID: oldBlob.ID,
	}
	require.NoError(t, f.repo.InsertBlob(ctx, nil, variant))
	vsrc := sourceFile(t, []byte("sm"))
	require.NoError(t, f.store.Upload(ctx, vsrc.Path, variant.Key))

	newSrc := sourceFile(t, []byte("second avatar, bigger"))
	updateCS := attachment.New("users", id, row, map[string]any{"avatar": newSrc})
	f.binder.Bind(updateCS, "avatar", avatarKey, attachment.BindOptions{})

	results, err = f.exec.Exec(ctx, New().UpdateEntity("user", updateCS))
	require.NoError(t, err)

	newBlob := results.Blob("user", "avatar")
	require.NotNil(t, newBlob)
	assert.Equal(t, oldBlob.Key, newBlob.Key)
	assert.NotEqual(t, oldBlob.ID, newBlob.ID)

	// Old original and its variant are fully gone, rows and bytes.
	_, err = f.repo.GetBlob(ctx, nil, oldBlob.ID)
	require.ErrorIs(t, err, repo.ErrBlobNotFound)
	_, err = f.repo.GetBlob(ctx, nil, "v1")
	require.ErrorIs(t, err, repo.ErrBlobNotFound)
	assert.Equal(t, []string{newBlob.Key}, keys(t, f.store))

	updated, err := f.repo.GetEntity(ctx, nil, "users", id)
	require.NoError(t, err)
	assert.Equal(t, newBlob.ID, updated["avatar_blob_id"])
}

func TestUpdateWithNilClearsAttachment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	src := sourceFile(t, []byte("avatar bytes"))
	insertCS := f.userChangeset(t, map[string]any{"name": "ada", "avatar": src}, attachment.BindOptions{})
	results, err := f.exec.Exec(ctx, New().InsertEntity("user", insertCS))
	require.NoError(t, err)

	row := results.Entity("user")
	id := row["id"].(string)
	oldBlob := results.Blob("user", "avatar")

	clearCS := attachment.New("users", id, row, map[string]any{"avatar": nil})
	f.binder.Bind(clearCS, "avatar", avatarKey, attachment.BindOptions{})

	_, err = f.exec.Exec(ctx, New().UpdateEntity("user", clearCS))
	require.NoError(t, err)

	_, err = f.repo.GetBlob(ctx, nil, oldBlob.ID)
	require.ErrorIs(t, err, repo.ErrBlobNotFound)
	assert.Empty(t, keys(t, f.store))

	updated, err := f.repo.GetEntity(ctx, nil, "users", id)
	require.NoError(t, err)
	assert.Nil(t, updated["avatar_blob_id"])
}

func TestOrphanGuardPurgesStaleRowAtKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	src := sourceFile(t, []byte("avatar bytes"))
	cs := f.userChangeset(t, map[string]any{"name": "ada", "avatar": src}, attachment.BindOptions{})
	cs.SetChange("id", "u1")

	orphan := &domain.Blob{
		ID:          "stale",
		Key:         "uploads/users/u1/avatar.jpg",
		Filename:    "old.jpg",
		ContentType: "image/jpeg",
		ByteSize:    3,
		Checksum:    "aaa",
	}
	require.NoError(t, f.repo.InsertBlob(ctx, nil, orphan))

	results, err := f.exec.Exec(ctx, New().InsertEntity("user", cs))
	require.NoError(t, err)

	_, err = f.repo.GetBlob(ctx, nil, "stale")
	require.ErrorIs(t, err, repo.ErrBlobNotFound)

	b := results.Blob("user", "avatar")
	require.NotNil(t, b)
	assert.Equal(t, "uploads/users/u1/avatar.jpg", b.Key)
}

func TestValidationFailureLeavesNothingBehind(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cs := f.userChangeset(t, map[string]any{"name": "ada"}, attachment.BindOptions{Required: true})

	_, err := f.exec.Exec(ctx, New().InsertEntity("user", cs))
	require.Error(t, err)

	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "user", se.Step)
	require.ErrorIs(t, err, attachment.ErrValidation)
	require.NotNil(t, se.Changeset)
	assert.Contains(t, se.Changeset.Errors()["avatar"], "required")

	assert.Empty(t, keys(t, f.store))
	_, err = f.repo.GetEntity(ctx, nil, "users", cs.EntityID())
	require.ErrorIs(t, err, repo.ErrEntityNotFound)
}

func TestInvalidPayloadFailsStep(t *testing.T) {
	f := newFixture(t)

	cs := f.userChangeset(t, map[string]any{"name": "ada", "avatar": "not a source"}, attachment.BindOptions{})

	_, err := f.exec.Exec(context.Background(), New().InsertEntity("user", cs))
	require.ErrorIs(t, err, attachment.ErrValidation)
}

func TestFailureAfterUploadRollsBackRowsNotBytes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	src := sourceFile(t, []byte("avatar bytes"))
	cs := f.userChangeset(t, map[string]any{"name": "ada", "avatar": src}, attachment.BindOptions{})

	boom := errors.New("boom")
	u := New().
		InsertEntity("user", cs).
		Callback("explode", func(ctx context.Context, tx repo.Tx, results Results) (any, error) {
			return nil, boom
		})

	_, err := f.exec.Exec(ctx, u)
	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "explode", se.Step)
	require.ErrorIs(t, err, boom)

	// The database portion rolled back entirely.
	id := cs.EntityID()
	_, err = f.repo.GetEntity(ctx, nil, "users", id)
	require.ErrorIs(t, err, repo.ErrEntityNotFound)

	// The uploaded bytes survive; a later attach at the same key
	// overwrites them via the orphan guard.
	assert.Len(t, keys(t, f.store), 1)
}

func TestCallbackSeesPriorResults(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cs := f.userChangeset(t, map[string]any{"name": "ada"}, attachment.BindOptions{})

	var seen string
	u := New().
		InsertEntity("user", cs).
		Callback("note", func(ctx context.Context, tx repo.Tx, results Results) (any, error) {
			seen, _ = results.Entity("user")["name"].(string)
			return "noted", nil
		})

	results, err := f.exec.Exec(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, "ada", seen)
	assert.Equal(t, "noted", results["note"])
}

func TestUpdateWithoutEntityID(t *testing.T) {
	f := newFixture(t)

	cs := attachment.New("users", "", nil, map[string]any{"name": "x"})
	cs.Cast("name")

	_, err := f.exec.Exec(context.Background(), New().UpdateEntity("user", cs))
	require.ErrorIs(t, err, ErrMissingEntityID)
}

func TestAttachBlobStep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	src := sourceFile(t, []byte("report bytes"))
	b := &domain.Blob{
		ID:          "b1",
		Key:         "uploads/reports/b1.jpg",
		Filename:    "report.jpg",
		ContentType: "image/jpeg",
		ByteSize:    12,
		Checksum:    "abc",
		Path:        src.Path,
	}

	results, err := f.exec.Exec(ctx, New().AttachBlob("attach", b, domain.AccessPrivate))
	require.NoError(t, err)
	assert.Equal(t, b, results["attach"])

	_, err = f.repo.GetBlob(ctx, nil, "b1")
	require.NoError(t, err)
	assert.Equal(t, []string{b.Key}, keys(t, f.store))
	assert.Equal(t, domain.AccessPrivate, f.store.ACL(b.Key))
}

func TestAttachBlobWithoutKeyPanics(t *testing.T) {
	f := newFixture(t)
	b := &domain.Blob{ID: "b1", Path: "/tmp/x"}
	assert.Panics(t, func() {
		f.exec.Exec(context.Background(), New().AttachBlob("attach", b, ""))
	})
}

func TestDetachBlobStep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	src := sourceFile(t, []byte("bytes"))
	b := &domain.Blob{
		ID:          "b1",
		Key:         "uploads/reports/b1.jpg",
		Filename:    "report.jpg",
		ContentType: "image/jpeg",
		ByteSize:    5,
		Checksum:    "abc",
		Path:        src.Path,
	}
	_, err := f.exec.Exec(ctx, New().AttachBlob("attach", b, ""))
	require.NoError(t, err)

	_, err = f.exec.Exec(ctx, New().DetachBlob("detach", "b1"))
	require.NoError(t, err)

	_, err = f.repo.GetBlob(ctx, nil, "b1")
	require.ErrorIs(t, err, repo.ErrBlobNotFound)
	assert.Empty(t, keys(t, f.store))
}

func TestDeleteEntityPurgesAttachments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	src := sourceFile(t, []byte("avatar bytes"))
	cs := f.userChangeset(t, map[string]any{"name": "ada", "avatar": src}, attachment.BindOptions{})
	results, err := f.exec.Exec(ctx, New().InsertEntity("user", cs))
	require.NoError(t, err)

	id := results.Entity("user")["id"].(string)
	blobID := results.Blob("user", "avatar").ID

	_, err = f.exec.Exec(ctx, New().DeleteEntity("drop", "users", id, "avatar"))
	require.NoError(t, err)

	_, err = f.repo.GetEntity(ctx, nil, "users", id)
	require.ErrorIs(t, err, repo.ErrEntityNotFound)
	_, err = f.repo.GetBlob(ctx, nil, blobID)
	require.ErrorIs(t, err, repo.ErrBlobNotFound)
	assert.Empty(t, keys(t, f.store))
}

func TestDeleteEntityToleratesMissingRemoteBytes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	src := sourceFile(t, []byte("avatar bytes"))
	cs := f.userChangeset(t, map[string]any{"name": "ada", "avatar": src}, attachment.BindOptions{})
	results, err := f.exec.Exec(ctx, New().InsertEntity("user", cs))
	require.NoError(t, err)

	id := results.Entity("user")["id"].(string)
	blob := results.Blob("user", "avatar")

	// The remote bytes vanished out of band; the delete still wins.
	require.NoError(t, f.store.Delete(ctx, blob.Key))

	_, err = f.exec.Exec(ctx, New().DeleteEntity("drop", "users", id, "avatar"))
	require.NoError(t, err)

	_, err = f.repo.GetEntity(ctx, nil, "users", id)
	require.ErrorIs(t, err, repo.ErrEntityNotFound)
	_, err = f.repo.GetBlob(ctx, nil, blob.ID)
	require.ErrorIs(t, err, repo.ErrBlobNotFound)
}

func TestStepsRunInDeclarationOrder(t *testing.T) {
	f := newFixture(t)

	var order []string
	note := func(name string) Callback {
		return func(ctx context.Context, tx repo.Tx, results Results) (any, error) {
			order = append(order, name)
			return nil, nil
		}
	}

	u := New().Callback("one", note("one")).Callback("two", note("two")).Callback("three", note("three"))
	_, err := f.exec.Exec(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, order)
}

func TestFailingStepSkipsLaterSteps(t *testing.T) {
	f := newFixture(t)

	ran := false
	u := New().
		Callback("fail", func(ctx context.Context, tx repo.Tx, results Results) (any, error) {
			return nil, errors.New("nope")
		}).
		Callback("after", func(ctx context.Context, tx repo.Tx, results Results) (any, error) {
			ran = true
			return nil, nil
		})

	_, err := f.exec.Exec(context.Background(), u)
	require.Error(t, err)
	assert.False(t, ran)
}

func TestDuplicateStepNamePanics(t *testing.T) {
	assert.Panics(t, func() {
		New().DetachBlob("same", "a").DetachBlob("same", "b")
	})
}

func TestEmptyStepNamePanics(t *testing.T) {
	assert.Panics(t, func() {
		New().DetachBlob("", "a")
	})
}

func TestNilCallbackPanics(t *testing.T) {
	assert.Panics(t, func() {
		New().Callback("cb", nil)
	})
}
