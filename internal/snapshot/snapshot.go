// Package snapshot persists whole collections as JSON documents keyed by a
// fixed set of logical names. Every save replaces the previous document.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

type Key string

const (
	KeyUsers          Key = "users"
	KeyAppointments   Key = "appointments"
	KeyTreatments     Key = "treatments"
	KeyNotifications  Key = "notifications"
	KeySettings       Key = "settings"
	KeyPatientRecords Key = "patient_records"
)

// Keys lists every collection in load order.
var Keys = []Key{KeySettings, KeyTreatments, KeyUsers, KeyAppointments, KeyNotifications, KeyPatientRecords}

var ErrNotFound = errors.New("snapshot not found")

// Store loads and saves raw snapshot documents.
type Store interface {
	Load(ctx context.Context, key Key) ([]byte, error)
	Save(ctx context.Context, key Key, data []byte) error
}

// Sink receives post-commit state. Implementations must not block the
// caller on storage.
type Sink interface {
	Enqueue(key Key, v any)
}

// LoadJSON decodes the snapshot stored under key into dst. It reports false
// without error when nothing has been stored yet.
func LoadJSON(ctx context.Context, store Store, key Key, dst any) (bool, error) {
	data, err := store.Load(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load snapshot %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return true, nil
}

// SaveJSON encodes v and stores it under key synchronously.
func SaveJSON(ctx context.Context, store Store, key Key, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", key, err)
	}
	if err := store.Save(ctx, key, data); err != nil {
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}
	return nil
}
