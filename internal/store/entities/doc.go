// Package entities defines the GORM models persisted by the local store.
// Timestamps are epoch milliseconds so both SQLite and MySQL store them as integers.
package entities
