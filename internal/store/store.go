package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/dogs-go/internal/store/entities"
)

const insertBatchSize = 200

// Store is the local cache of breeds and breed images. Reads return an empty,
// non-nil slice when nothing matches.
type Store interface {
	// GetAllBreeds returns every cached breed ordered by name.
	GetAllBreeds(ctx context.Context) ([]entities.Breed, error)
	// ReplaceAllBreeds atomically replaces the whole breed set.
	ReplaceAllBreeds(ctx context.Context, breeds []entities.Breed) error

	// GetImagesByBreed returns a breed's images, newest first, then in listing order.
	GetImagesByBreed(ctx context.Context, breed string) ([]entities.Image, error)
	// ReplaceImagesForBreed atomically replaces all images of one breed.
	ReplaceImagesForBreed(ctx context.Context, breed string, images []entities.Image) error
	// DeleteImagesForBreed removes all images of one breed.
	DeleteImagesForBreed(ctx context.Context, breed string) error
	// UpdateImageLocalPath records a materialized file. Unknown URLs are ignored.
	UpdateImageLocalPath(ctx context.Context, url, localPath string, at time.Time) error
	// PendingImages returns up to limit images that have no local file yet.
	PendingImages(ctx context.Context, limit int) ([]entities.Image, error)
}

// gormStore implements Store.
type gormStore struct {
	db *gorm.DB
}

// New creates a Store on an initialized database.
func New(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) GetAllBreeds(ctx context.Context) ([]entities.Breed, error) {
	breeds := make([]entities.Breed, 0)
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&breeds).Error; err != nil {
		return nil, dbError(err, "get_all_breeds")
	}
	for i := range breeds {
		if breeds[i].SubBreeds == nil {
			breeds[i].SubBreeds = []string{}
		}
	}
	return breeds, nil
}

func (s *gormStore) ReplaceAllBreeds(ctx context.Context, breeds []entities.Breed) error {
	rows := make([]entities.Breed, len(breeds))
	for i := range breeds {
		rows[i] = breeds[i]
		if rows[i].SubBreeds == nil {
			rows[i].SubBreeds = []string{}
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&entities.Breed{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(&rows, insertBatchSize).Error
	})
	if err != nil {
		return dbError(err, "replace_all_breeds")
	}
	return nil
}

func (s *gormStore) GetImagesByBreed(ctx context.Context, breed string) ([]entities.Image, error) {
	images := make([]entities.Image, 0)
	err := s.db.WithContext(ctx).
		Where("breed = ?", breed).
		Order("cached_at DESC").
		Order("position ASC").
		Find(&images).Error
	if err != nil {
		return nil, dbError(err, "get_images_by_breed")
	}
	return images, nil
}

func (s *gormStore) ReplaceImagesForBreed(ctx context.Context, breed string, images []entities.Image) error {
	if breed == "" {
		return ErrBreedRequired
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("breed = ?", breed).Delete(&entities.Image{}).Error; err != nil {
			return err
		}
		if len(images) == 0 {
			return nil
		}
		// url is the key: a URL cached under another breed (hound vs hound/afghan)
		// moves to this one, last writer wins
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "url"}},
			UpdateAll: true,
		}).CreateInBatches(&images, insertBatchSize).Error
	})
	if err != nil {
		return dbError(err, "replace_images_for_breed")
	}
	return nil
}

func (s *gormStore) DeleteImagesForBreed(ctx context.Context, breed string) error {
	if breed == "" {
		return ErrBreedRequired
	}
	if err := s.db.WithContext(ctx).Where("breed = ?", breed).Delete(&entities.Image{}).Error; err != nil {
		return dbError(err, "delete_images_for_breed")
	}
	return nil
}

func (s *gormStore) UpdateImageLocalPath(ctx context.Context, url, localPath string, at time.Time) error {
	err := s.db.WithContext(ctx).
		Model(&entities.Image{}).
		Where("url = ?", url).
		Updates(map[string]any{
			"local_path": localPath,
			"cached_at":  at.UnixMilli(),
		}).Error
	if err != nil {
		return dbError(err, "update_image_local_path")
	}
	return nil
}

func (s *gormStore) PendingImages(ctx context.Context, limit int) ([]entities.Image, error) {
	images := make([]entities.Image, 0)
	err := s.db.WithContext(ctx).
		Where("local_path = ?", "").
		Order("cached_at DESC").
		Limit(limit).
		Find(&images).Error
	if err != nil {
		return nil, dbError(err, "pending_images")
	}
	return images, nil
}
