// Package store is the local cache of breeds and image records, persisted with GORM
// on SQLite or MySQL.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/dogs-go/internal/errors"
	"github.com/tphakala/dogs-go/internal/logger"
	"github.com/tphakala/dogs-go/internal/store/entities"
)

// SchemaVersion is the schema revision this binary writes.
const SchemaVersion = 1

const slowQueryThreshold = 200 * time.Millisecond

// Manager owns a database connection and its schema.
type Manager interface {
	// Initialize migrates the schema, recreating it when it was written by a newer binary.
	Initialize(ctx context.Context) error
	// DB returns the underlying GORM database.
	DB() *gorm.DB
	// Path returns the database location for display.
	Path() string
	// Close closes the database connection.
	Close() error
	// IsMySQL returns true if this is a MySQL manager.
	IsMySQL() bool
}

// Config selects and configures the database backend.
type Config struct {
	Type       string // "sqlite" or "mysql"
	SQLitePath string
	MySQL      MySQLConfig
}

// MySQLConfig holds MySQL connection settings.
type MySQLConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string
}

// Open connects to the configured backend. SQL traces go to log.
func Open(cfg Config, log logger.Logger) (Manager, error) {
	switch cfg.Type {
	case "", "sqlite":
		return NewSQLiteManager(cfg.SQLitePath, log)
	case "mysql":
		return NewMySQLManager(&cfg.MySQL, log)
	default:
		return nil, errors.New(fmt.Errorf("%w: %q", ErrUnsupportedDatabase, cfg.Type)).
			Component("store").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

func gormConfig(log logger.Logger) *gorm.Config {
	return &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log, slowQueryThreshold),
	}
}

type baseManager struct {
	db       *gorm.DB
	location string
	isMySQL  bool
}

func (m *baseManager) DB() *gorm.DB  { return m.db }
func (m *baseManager) Path() string  { return m.location }
func (m *baseManager) IsMySQL() bool { return m.isMySQL }

// Close closes the database connection.
func (m *baseManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return dbError(err, "close")
	}
	return sqlDB.Close()
}

// Initialize creates or upgrades the cache tables. A schema written by a newer
// binary is dropped and recreated; the tables only hold re-fetchable cache data.
func (m *baseManager) Initialize(ctx context.Context) error {
	db := m.db.WithContext(ctx)

	if err := db.AutoMigrate(&entities.SchemaVersion{}); err != nil {
		return dbError(err, "migrate_schema_versions")
	}

	var stored entities.SchemaVersion
	if err := db.Limit(1).Find(&stored, 1).Error; err != nil {
		return dbError(err, "read_schema_version")
	}

	if stored.Version > SchemaVersion {
		if err := db.Migrator().DropTable(&entities.Breed{}, &entities.Image{}); err != nil {
			return dbError(err, "drop_cache_tables")
		}
	}

	if err := db.AutoMigrate(&entities.Breed{}, &entities.Image{}); err != nil {
		return dbError(err, "migrate_cache_tables")
	}

	err := db.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&entities.SchemaVersion{ID: 1, Version: SchemaVersion}).Error
	if err != nil {
		return dbError(err, "write_schema_version")
	}
	return nil
}

// SQLiteManager handles a file-backed SQLite database.
type SQLiteManager struct {
	baseManager
}

// NewSQLiteManager opens (creating if needed) the SQLite database at path.
func NewSQLiteManager(path string, log logger.Logger) (*SQLiteManager, error) {
	if path == "" {
		return nil, errors.Newf("sqlite path is empty").
			Component("store").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.New(err).
			Component("store").
			Category(errors.CategoryFileIO).
			Context("operation", "create_database_dir").
			Build()
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(log))
	if err != nil {
		return nil, dbError(fmt.Errorf("failed to open sqlite database: %w", err), "open")
	}

	return &SQLiteManager{baseManager{db: db, location: path}}, nil
}

// MySQLManager handles a MySQL database.
type MySQLManager struct {
	baseManager
}

// NewMySQLManager connects to MySQL and configures the connection pool.
func NewMySQLManager(cfg *MySQLConfig, log logger.Logger) (*MySQLManager, error) {
	port := strconv.Itoa(cfg.Port)
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username, cfg.Password, cfg.Host, port, cfg.Database)

	db, err := gorm.Open(mysql.Open(dsn), gormConfig(log))
	if err != nil {
		return nil, dbError(fmt.Errorf("failed to open mysql database: %w", err), "open")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, dbError(err, "open")
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &MySQLManager{baseManager{
		db:       db,
		location: fmt.Sprintf("%s:%s/%s", cfg.Host, port, cfg.Database),
		isMySQL:  true,
	}}, nil
}
