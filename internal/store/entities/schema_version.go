package entities

// SchemaVersion is a singleton row recording which schema revision created the tables.
type SchemaVersion struct {
	ID      uint `gorm:"primaryKey"`
	Version int  `gorm:"not null"`
}

// TableName returns the table name for GORM.
func (SchemaVersion) TableName() string {
	return "schema_versions"
}
