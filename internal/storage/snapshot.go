package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"genstudio/internal/models"
)

const snapshotKey = "auth-storage"

// Snapshot is the serialized session used to restore state on relaunch.
type Snapshot struct {
	User                  *models.UserProfile `json:"user"`
	IsAuthenticated       bool                `json:"isAuthenticated"`
	HasFinishedOnboarding bool                `json:"hasFinishedOnboarding"`
	AccessToken           string              `json:"accessToken,omitempty"`
	RefreshToken          string              `json:"refreshToken,omitempty"`
}

type SnapshotStore struct {
	kv KV
}

func NewSnapshotStore(kv KV) *SnapshotStore {
	return &SnapshotStore{kv: kv}
}

// Load returns the stored snapshot, or nil when nothing was saved.
func (s *SnapshotStore) Load(ctx context.Context) (*Snapshot, error) {
	raw, err := s.kv.Get(ctx, snapshotKey)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode session snapshot: %w", err)
	}
	return &snap, nil
}

func (s *SnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode session snapshot: %w", err)
	}
	return s.kv.Set(ctx, snapshotKey, string(raw))
}

func (s *SnapshotStore) Clear(ctx context.Context) error {
	return s.kv.Delete(ctx, snapshotKey)
}
