package domain

// Book is a catalogued title. The category hierarchy only cares which
// category a book points at: a referenced category cannot be deleted.
type Book struct {
	Timestamps
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	CategoryID uint16 `json:"category_id"`
}
