package attachment

import (
	"attachstore/internal/domain"
)

// Changeset collects the pending changes of one owning-entity row,
// including the blobs bound to its attachment fields. It performs no
// I/O itself: the unit-of-work executor applies it.
type Changeset struct {
	Table string

	entityID string
	data     map[string]any
	params   map[string]any
	changes  map[string]any
	atts     []*Attachment
	errs     map[string][]string
}

// Attachment is one attachment field's pending change. A nil Blob
// clears the association and deletes the currently attached blob.
type Attachment struct {
	Field string
	Blob  *domain.Blob
	KeyFn KeyFunc
	Opts  BindOptions
}

// KeyFunc maps the in-flight changeset to the raw storage key (no
// extension) for the blob being attached. It runs after the entity id
// has been generated, so it can build keys containing the id.
type KeyFunc func(cs *Changeset) string

type BindOptions struct {
	Required bool
	ACL      domain.AccessLevel
}

// New builds a changeset for a row of table. entityID is empty for
// inserts; data holds the current row values for updates.
func New(table, entityID string, data, params map[string]any) *Changeset {
	if data == nil {
		data = map[string]any{}
	}
	if params == nil {
		params = map[string]any{}
	}
	return &Changeset{
		Table:    table,
		entityID: entityID,
		data:     data,
		params:   params,
		changes:  map[string]any{},
		errs:     map[string][]string{},
	}
}

// Cast copies the named plain params into the change set, skipping any
// that are absent.
func (c *Changeset) Cast(fields ...string) *Changeset {
	for _, f := range fields {
		if v, ok := c.params[f]; ok {
			c.changes[f] = v
		}
	}
	return c
}

// EntityID prefers a freshly generated id in the changes over the
// persisted one, so key functions see ids that do not exist yet.
func (c *Changeset) EntityID() string {
	if id, ok := c.changes["id"].(string); ok && id != "" {
		return id
	}
	return c.entityID
}

func (c *Changeset) SetChange(field string, value any) {
	c.changes[field] = value
}

func (c *Changeset) Change(field string) (any, bool) {
	v, ok := c.changes[field]
	return v, ok
}

// Changes returns the accumulated change map. The executor applies it
// as the row to insert or the columns to update.
func (c *Changeset) Changes() map[string]any {
	out := make(map[string]any, len(c.changes))
	for k, v := range c.changes {
		out[k] = v
	}
	return out
}

func (c *Changeset) Data(field string) any {
	return c.data[field]
}

// DataString reads a current row value as a string, tolerating nil.
func (c *Changeset) DataString(field string) string {
	if s, ok := c.data[field].(string); ok {
		return s
	}
	return ""
}

func (c *Changeset) AddError(field, message string) {
	c.errs[field] = append(c.errs[field], message)
}

func (c *Changeset) Errors() map[string][]string {
	return c.errs
}

func (c *Changeset) Valid() bool {
	return len(c.errs) == 0
}

// Attachments returns the bound attachment fields in bind order.
func (c *Changeset) Attachments() []*Attachment {
	return c.atts
}

func (c *Changeset) Attachment(field string) *Attachment {
	for _, a := range c.atts {
		if a.Field == field {
			return a
		}
	}
	return nil
}

func (c *Changeset) putAttachment(a *Attachment) {
	for i, existing := range c.atts {
		if existing.Field == a.Field {
			c.atts[i] = a
			return
		}
	}
	c.atts = append(c.atts, a)
}

// BlobColumn is the foreign-key column backing an attachment field.
func BlobColumn(field string) string {
	return field + "_blob_id"
}
