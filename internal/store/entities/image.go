package entities

// Image is one cached image URL of a breed. LocalPath stays empty until the
// image has been materialized to local storage.
type Image struct {
	URL       string `gorm:"primaryKey;size:512"`
	Breed     string `gorm:"size:100;not null;index:idx_dog_images_breed"`
	LocalPath string `gorm:"size:1024;not null"`
	CachedAt  int64  `gorm:"not null;index"`
	// Position keeps the remote listing order among rows cached in the same batch.
	Position int `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM.
func (Image) TableName() string {
	return "dog_images"
}
