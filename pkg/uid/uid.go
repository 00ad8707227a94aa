package uid

import "github.com/google/uuid"

// New returns a random UUID, used for request ids.
func New() string {
	return uuid.New().String()
}

// NewOrdered returns a time-ordered UUID (version 7). Generated record ids
// use it so that listings, which are sorted by id, follow creation order.
func NewOrdered() string {
	id, err := uuid.NewV7()
	if err != nil {
		return New()
	}
	return id.String()
}

// IsValid reports whether s parses as a UUID.
func IsValid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
