package model

import "errors"

// ErrEmptyPatch is returned when a patch names no fields.
var ErrEmptyPatch = errors.New("patch has no fields to update")

// Patch is a typed partial update of a payload.
// Fields returns the changed fields keyed by their dotted document path.
type Patch[P Payload] interface {
	Apply(P) P
	Fields() map[string]any
}

// Book is the payload of a book record.
type Book struct {
	Name        string `json:"name" bson:"name"`
	Author      string `json:"author" bson:"author"`
	BookstoreID string `json:"bookstore_id" bson:"bookstore_id"`
}

// BookParentField is the document path holding a book's bookstore id.
const BookParentField = "data.bookstore_id"

func (Book) KeyPrefix() string { return "book_" }

// ParentID returns the id of the bookstore the book belongs to.
func (b Book) ParentID() string { return b.BookstoreID }

// Bookstore is the payload of a bookstore record.
type Bookstore struct {
	Name    string `json:"name" bson:"name"`
	Address string `json:"address" bson:"address"`
	Number  string `json:"number" bson:"number"`
}

func (Bookstore) KeyPrefix() string { return "bookstore_" }

type (
	BookRecord      = Record[Book]
	BookstoreRecord = Record[Bookstore]
)

// BookPatch names the book fields an update may change. Nil fields are left as is.
type BookPatch struct {
	Name        *string `json:"name,omitempty"`
	Author      *string `json:"author,omitempty"`
	BookstoreID *string `json:"bookstore_id,omitempty"`
}

// Apply returns b with the patch applied.
func (p BookPatch) Apply(b Book) Book {
	if p.Name != nil {
		b.Name = *p.Name
	}
	if p.Author != nil {
		b.Author = *p.Author
	}
	if p.BookstoreID != nil {
		b.BookstoreID = *p.BookstoreID
	}
	return b
}

// Fields returns the patched fields keyed by document path.
func (p BookPatch) Fields() map[string]any {
	fields := make(map[string]any, 3)
	if p.Name != nil {
		fields["data.name"] = *p.Name
	}
	if p.Author != nil {
		fields["data.author"] = *p.Author
	}
	if p.BookstoreID != nil {
		fields[BookParentField] = *p.BookstoreID
	}
	return fields
}

// BookstorePatch names the bookstore fields an update may change.
type BookstorePatch struct {
	Name    *string `json:"name,omitempty"`
	Address *string `json:"address,omitempty"`
	Number  *string `json:"number,omitempty"`
}

// Apply returns s with the patch applied.
func (p BookstorePatch) Apply(s Bookstore) Bookstore {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Address != nil {
		s.Address = *p.Address
	}
	if p.Number != nil {
		s.Number = *p.Number
	}
	return s
}

// Fields returns the patched fields keyed by document path.
func (p BookstorePatch) Fields() map[string]any {
	fields := make(map[string]any, 3)
	if p.Name != nil {
		fields["data.name"] = *p.Name
	}
	if p.Address != nil {
		fields["data.address"] = *p.Address
	}
	if p.Number != nil {
		fields["data.number"] = *p.Number
	}
	return fields
}
