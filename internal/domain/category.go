package domain

// Category is a node in the book classification tree.
// Categories form a hierarchy through ParentID: Fiction -> Science Fiction -> Space Opera.
// Each book belongs to exactly one category.
type Category struct {
	Timestamps
	ID       uint16  `json:"id"`                  // Assigned by the store, never changes
	Title    string  `json:"title"`               // Stored normalized: trimmed, lower-case
	ImageRef string  `json:"image_ref"`           // Name of the stored image
	ParentID *uint16 `json:"parent_id,omitempty"` // nil for root categories
}

// IsRoot returns true if this category has no parent.
func (c *Category) IsRoot() bool {
	return c.ParentID == nil
}

// IsChildOf reports whether parentID is this category's direct parent.
func (c *Category) IsChildOf(parentID uint16) bool {
	return c.ParentID != nil && *c.ParentID == parentID
}

// Clone returns a deep copy, so callers can hold results without sharing the parent pointer.
func (c *Category) Clone() *Category {
	out := *c
	if c.ParentID != nil {
		out.ParentID = CategoryRef(*c.ParentID)
	}
	return &out
}

// CategoryRef returns a pointer to id, for building optional parent references.
func CategoryRef(id uint16) *uint16 {
	return &id
}

// SameParent reports whether two optional parent references point at the same category.
func SameParent(a, b *uint16) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
