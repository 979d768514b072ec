package store

import "github.com/tphakala/dogs-go/internal/errors"

// Sentinel errors for store operations.
var (
	// ErrUnsupportedDatabase indicates an unknown database.type setting.
	ErrUnsupportedDatabase = errors.NewStd("unsupported database type")

	// ErrBreedRequired indicates a per-breed operation was called with an empty breed.
	ErrBreedRequired = errors.NewStd("breed is required")
)

// dbError wraps a GORM failure with store context.
func dbError(err error, operation string) error {
	return errors.New(err).
		Component("store").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Build()
}
