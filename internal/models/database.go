package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var providerBucket = []byte("providers")

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// ProviderStat tracks the success and failure history of one provider
type ProviderStat struct {
	ID          string    `json:"id"`
	Successes   int       `json:"successes"`
	Failures    int       `json:"failures"`
	Consecutive int       `json:"consecutive"` // Failures since the last success
	LastSuccess time.Time `json:"last_success"`
	LastFailure time.Time `json:"last_failure"`
	LastError   string    `json:"last_error,omitempty"`
}

// Database wraps the bbolt store holding provider statistics
type Database struct {
	store *bbolt.DB
}

// NewDatabase creates a new database connection
func NewDatabase(path string) (*Database, error) {
	store, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = store.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(providerBucket)
		return err
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &Database{store: store}, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.store.Close()
}

// GetProviderStat retrieves the statistics of one provider
func (db *Database) GetProviderStat(id string) (*ProviderStat, error) {
	var stat ProviderStat
	err := db.store.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(providerBucket).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &stat)
	})
	if err != nil {
		return nil, err
	}
	return &stat, nil
}

// SaveProviderStat creates or replaces the statistics of one provider
func (db *Database) SaveProviderStat(stat *ProviderStat) error {
	data, err := json.Marshal(stat)
	if err != nil {
		return fmt.Errorf("failed to encode provider stat: %w", err)
	}
	return db.store.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(providerBucket).Put([]byte(stat.ID), data)
	})
}

// GetAllProviderStats retrieves the statistics of every provider
func (db *Database) GetAllProviderStats() ([]*ProviderStat, error) {
	var stats []*ProviderStat
	err := db.store.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(providerBucket).ForEach(func(_, data []byte) error {
			var stat ProviderStat
			if err := json.Unmarshal(data, &stat); err != nil {
				return err
			}
			stats = append(stats, &stat)
			return nil
		})
	})
	return stats, err
}

// DeleteProviderStat deletes the statistics of one provider
func (db *Database) DeleteProviderStat(id string) error {
	return db.store.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(providerBucket).Delete([]byte(id))
	})
}
