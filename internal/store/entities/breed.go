package entities

// Breed is one cached breed with its ordered sub-breeds.
type Breed struct {
	Name      string   `gorm:"primaryKey;size:100"`
	SubBreeds []string `gorm:"serializer:json;type:text;not null"`
	CachedAt  int64    `gorm:"not null;index"`
}

// TableName returns the table name for GORM.
func (Breed) TableName() string {
	return "dog_breeds"
}
