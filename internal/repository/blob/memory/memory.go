package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	repo "attachstore/internal/repository/blob"

	"attachstore/internal/domain"
)

// Repository is an in-memory stand-in for the Postgres repository,
// used by tests. WithinTx works on a deep copy and swaps it in on
// commit, so a failing unit of work leaves no trace.
type Repository struct {
	mu    sync.Mutex
	state *state
}

type state struct {
	blobs    map[string]*domain.Blob
	entities map[string]map[string]map[string]any
}

type txState struct {
	state *state
}

func New() *Repository {
	return &Repository{
		state: &state{
			blobs:    make(map[string]*domain.Blob),
			entities: make(map[string]map[string]map[string]any),
		},
	}
}

func (r *Repository) WithinTx(ctx context.Context, fn func(tx repo.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	work := r.state.clone()
	if err := fn(&txState{state: work}); err != nil {
		return err
	}

	r.state = work
	return nil
}

func (r *Repository) InsertBlob(ctx context.Context, tx repo.Tx, b *domain.Blob) error {
	st, unlock := r.view(tx)
	defer unlock()

	for _, existing := range st.blobs {
		if existing.Key == b.Key {
			return repo.ErrDuplicateKey
		}
		if b.Variant != "" &&
			existing.Variant == b.Variant &&
			existing.OriginalBlobID == b.OriginalBlobID &&
			existing.ContentType == b.ContentType {
			return repo.ErrDuplicateVariant
		}
	}

	stored := cloneBlob(b)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
		b.CreatedAt = stored.CreatedAt
	}
	stored.Path = ""
	st.blobs[b.ID] = stored
	return nil
}

func (r *Repository) GetBlob(ctx context.Context, tx repo.Tx, id string) (*domain.Blob, error) {
	st, unlock := r.view(tx)
	defer unlock()

	b, ok := st.blobs[id]
	if !ok {
		return nil, repo.ErrBlobNotFound
	}
	return cloneBlob(b), nil
}

func (r *Repository) GetBlobByKey(ctx context.Context, tx repo.Tx, key string) (*domain.Blob, error) {
	st, unlock := r.view(tx)
	defer unlock()

	for _, b := range st.blobs {
		if b.Key == key {
			return cloneBlob(b), nil
		}
	}
	return nil, nil
}

func (r *Repository) GetVariant(ctx context.Context, tx repo.Tx, originalID, label, contentType string) (*domain.Blob, error) {
	st, unlock := r.view(tx)
	defer unlock()

	for _, b := range st.blobs {
		if b.OriginalBlobID == originalID && b.Variant == label && b.ContentType == contentType {
			return cloneBlob(b), nil
		}
	}
	return nil, nil
}

func (r *Repository) ListVariants(ctx context.Context, tx repo.Tx, originalID string) ([]domain.Blob, error) {
	st, unlock := r.view(tx)
	defer unlock()

	var variants []domain.Blob
	for _, b := range st.blobs {
		if b.OriginalBlobID == originalID {
			variants = append(variants, *cloneBlob(b))
		}
	}
	sort.Slice(variants, func(i, j int) bool {
		return variants[i].Key < variants[j].Key
	})
	return variants, nil
}

func (r *Repository) DeleteBlob(ctx context.Context, tx repo.Tx, id string) error {
	st, unlock := r.view(tx)
	defer unlock()

	if _, ok := st.blobs[id]; !ok {
		return repo.ErrBlobNotFound
	}
	delete(st.blobs, id)
	return nil
}

func (r *Repository) InsertEntity(ctx context.Context, tx repo.Tx, table string, row map[string]any) error {
	st, unlock := r.view(tx)
	defer unlock()

	rows, ok := st.entities[table]
	if !ok {
		rows = make(map[string]map[string]any)
		st.entities[table] = rows
	}

	id, _ := row["id"].(string)
	if _, exists := rows[id]; exists {
		return repo.ErrDuplicateKey
	}
	rows[id] = cloneRow(row)
	return nil
}

func (r *Repository) UpdateEntity(ctx context.Context, tx repo.Tx, table, id string, changes map[string]any) error {
	st, unlock := r.view(tx)
	defer unlock()

	row, ok := st.entities[table][id]
	if !ok {
		return repo.ErrEntityNotFound
	}
	for k, v := range changes {
		row[k] = v
	}
	return nil
}

func (r *Repository) DeleteEntity(ctx context.Context, tx repo.Tx, table, id string) error {
	st, unlock := r.view(tx)
	defer unlock()

	if _, ok := st.entities[table][id]; !ok {
		return repo.ErrEntityNotFound
	}
	delete(st.entities[table], id)
	return nil
}

func (r *Repository) GetEntity(ctx context.Context, tx repo.Tx, table, id string) (map[string]any, error) {
	st, unlock := r.view(tx)
	defer unlock()

	row, ok := st.entities[table][id]
	if !ok {
		return nil, repo.ErrEntityNotFound
	}
	return cloneRow(row), nil
}

// view resolves the state a call should operate on. Calls inside a
// transaction already hold the repository lock via WithinTx.
func (r *Repository) view(tx repo.Tx) (*state, func()) {
	if t, ok := tx.(*txState); ok && t != nil {
		return t.state, func() {}
	}
	r.mu.Lock()
	return r.state, r.mu.Unlock
}

func (s *state) clone() *state {
	blobs := make(map[string]*domain.Blob, len(s.blobs))
	for id, b := range s.blobs {
		blobs[id] = cloneBlob(b)
	}

	entities := make(map[string]map[string]map[string]any, len(s.entities))
	for table, rows := range s.entities {
		copied := make(map[string]map[string]any, len(rows))
		for id, row := range rows {
			copied[id] = cloneRow(row)
		}
		entities[table] = copied
	}

	return &state{blobs: blobs, entities: entities}
}

func cloneBlob(b *domain.Blob) *domain.Blob {
	copied := *b
	if b.Metadata != nil {
		copied.Metadata = make(map[string]any, len(b.Metadata))
		for k, v := range b.Metadata {
			copied.Metadata[k] = v
		}
	}
	return &copied
}

func cloneRow(row map[string]any) map[string]any {
	copied := make(map[string]any, len(row))
	for k, v := range row {
		copied[k] = v
	}
	return copied
}
